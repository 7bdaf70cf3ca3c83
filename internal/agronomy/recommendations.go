package agronomy

import "github.com/kjstillabower/agrimeteo-service/internal/models"

// Current-conditions recommendations.
const (
	RecHeatStress   = "Risque de stress thermique pour les cultures. Augmentez l'irrigation."
	RecFrost        = "Risque de gel. Protégez les cultures sensibles."
	RecHighHumidity = "Humidité élevée. Surveillez les maladies fongiques."
	RecLowHumidity  = "Humidité faible. Augmentez l'irrigation."
	RecStrongWind   = "Vent fort. Évitez la pulvérisation de produits phytosanitaires."
	RecHeavyRain    = "Fortes précipitations. Vérifiez les systèmes de drainage."
	RecLightRain    = "Précipitations légères. Complétez avec une irrigation si nécessaire."
)

// Daily forecast recommendations.
const (
	DailyRecHeatStress   = "Risque de stress thermique. Prévoyez une irrigation supplémentaire."
	DailyRecMorningFrost = "Risque de gel matinal. Protégez les cultures sensibles."
	DailyRecHeavyRain    = "Fortes précipitations prévues. Vérifiez vos systèmes de drainage."
	DailyRecLightRain    = "Pluie légère prévue. Adaptez l'irrigation en conséquence."
	DailyRecDryHot       = "Journée sèche et chaude. Assurez une irrigation suffisante."
	DailyRecViolentWind  = "Vents violents. Évitez les traitements et sécurisez les structures."
	DailyRecStrongWind   = "Vents forts. Report des pulvérisations recommandé."
	DailyRecHighHumidity = "Humidité élevée. Risque accru de maladies fongiques."
)

// MaxDailyRecommendations caps the recommendations attached to a daily summary.
const MaxDailyRecommendations = 2

// Recommendations returns advice for current conditions, in check order
// (temperature, humidity, wind, precipitation). Wind speed is in m/s.
func Recommendations(temperature, humidity, windSpeed, precipitation float64) []string {
	recs := []string{}

	if temperature > 30 {
		recs = append(recs, RecHeatStress)
	} else if temperature < 5 {
		recs = append(recs, RecFrost)
	}

	if humidity > 80 {
		recs = append(recs, RecHighHumidity)
	} else if humidity < 30 {
		recs = append(recs, RecLowHumidity)
	}

	if windSpeed > 10 {
		recs = append(recs, RecStrongWind)
	}

	if precipitation > 10 {
		recs = append(recs, RecHeavyRain)
	} else if precipitation > 0 && precipitation < 2 {
		recs = append(recs, RecLightRain)
	}

	return recs
}

// DailyRecommendations returns at most MaxDailyRecommendations pieces of advice for a day,
// using the day's extremes, total precipitation and its representative midday sample.
func DailyRecommendations(day models.Sample, minTemp, maxTemp, precipitation float64) []string {
	recs := []string{}

	if maxTemp > 30 {
		recs = append(recs, DailyRecHeatStress)
	} else if minTemp < 5 {
		recs = append(recs, DailyRecMorningFrost)
	}

	switch {
	case precipitation > 15:
		recs = append(recs, DailyRecHeavyRain)
	case precipitation > 0 && precipitation < 5:
		recs = append(recs, DailyRecLightRain)
	case precipitation == 0 && maxTemp > 25:
		recs = append(recs, DailyRecDryHot)
	}

	if day.WindSpeed > 30 {
		recs = append(recs, DailyRecViolentWind)
	} else if day.WindSpeed > 20 {
		recs = append(recs, DailyRecStrongWind)
	}

	if day.Humidity > 85 {
		recs = append(recs, DailyRecHighHumidity)
	}

	if len(recs) > MaxDailyRecommendations {
		recs = recs[:MaxDailyRecommendations]
	}
	return recs
}
