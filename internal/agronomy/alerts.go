package agronomy

import (
	"fmt"
	"math"
	"time"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
)

// Alert types. They prefix alert IDs.
const (
	AlertTempHigh   = "temp-high"
	AlertTempLow    = "temp-low"
	AlertRainHeavy  = "rain-heavy"
	AlertWindStrong = "wind-strong"
	AlertUVHigh     = "uv-high"
)

// Alert thresholds.
const (
	HeatWaveTemperature = 35.0
	FrostTemperature    = 0.0
	HeavyRainMM         = 20.0
	StrongWindSpeed     = 50.0
	HighUVIndex         = 8.0

	rainLookaheadDays = 2
	windLookaheadDays = 2
	uvLookaheadDays   = 3
)

// AlertID returns the stable identifier for an alert type on a target date.
func AlertID(alertType string, target time.Time) string {
	return alertType + "-" + target.Format(time.DateOnly)
}

// SynthesizeAlerts derives alerts from a five-day forecast: extreme current temperature,
// then heavy rain and strong wind in the next two days and high UV in the next three.
// now stamps the alerts; it does not affect their IDs.
func SynthesizeAlerts(f models.FiveDayForecast, now time.Time) []models.Alert {
	alerts := []models.Alert{}
	cur := f.Current

	if cur.Temperature > HeatWaveTemperature {
		alerts = append(alerts, newAlert(AlertTempHigh, cur.Time, models.AlertDanger, now, f.Location,
			"Alerte Canicule",
			fmt.Sprintf("Températures très élevées (%.0f°C) attendues. Prenez des précautions contre la déshydratation et protégez vos cultures sensibles.", math.Round(cur.Temperature)),
			"thermostat"))
	} else if cur.Temperature < FrostTemperature {
		alerts = append(alerts, newAlert(AlertTempLow, cur.Time, models.AlertWarning, now, f.Location,
			"Alerte Gel",
			fmt.Sprintf("Températures négatives (%.0f°C). Risque de gel pour les cultures. Prenez des mesures de protection.", math.Round(cur.Temperature)),
			"ac_unit"))
	}

	if len(f.Daily) == 0 {
		return alerts
	}

	if d, ok := firstDay(f.Daily, rainLookaheadDays, func(d models.DailyForecast) bool { return d.Precipitation > HeavyRainMM }); ok {
		alerts = append(alerts, newAlert(AlertRainHeavy, d.Date, models.AlertWarning, now, f.Location,
			"Fortes Précipitations à Venir",
			fmt.Sprintf("Précipitations importantes prévues le %s. Préparez vos systèmes de drainage et évitez la fertilisation.", FormatDateFR(d.Date)),
			"water"))
	}

	if d, ok := firstDay(f.Daily, windLookaheadDays, func(d models.DailyForecast) bool { return d.WindSpeed > StrongWindSpeed }); ok {
		alerts = append(alerts, newAlert(AlertWindStrong, d.Date, models.AlertDanger, now, f.Location,
			"Vents Violents Annoncés",
			fmt.Sprintf("Vents forts prévus le %s. Sécurisez les structures et reportez les pulvérisations.", FormatDateFR(d.Date)),
			"air"))
	}

	if d, ok := firstDay(f.Daily, uvLookaheadDays, func(d models.DailyForecast) bool { return d.UV > HighUVIndex }); ok {
		alerts = append(alerts, newAlert(AlertUVHigh, d.Date, models.AlertInfo, now, f.Location,
			"Indice UV Élevé",
			fmt.Sprintf("Indice UV élevé prévu le %s. Protégez les cultures sensibles et le personnel travaillant en extérieur.", FormatDateFR(d.Date)),
			"wb_sunny"))
	}

	return alerts
}

func firstDay(days []models.DailyForecast, n int, match func(models.DailyForecast) bool) (models.DailyForecast, bool) {
	if n > len(days) {
		n = len(days)
	}
	for _, d := range days[:n] {
		if match(d) {
			return d, true
		}
	}
	return models.DailyForecast{}, false
}

func newAlert(alertType string, target time.Time, kind models.AlertKind, now time.Time, location, title, message, icon string) models.Alert {
	return models.Alert{
		ID:         AlertID(alertType, target),
		Type:       alertType,
		Kind:       kind,
		Title:      title,
		Message:    message,
		TargetDate: target.Format(time.DateOnly),
		Timestamp:  now,
		Location:   location,
		Icon:       icon,
	}
}
