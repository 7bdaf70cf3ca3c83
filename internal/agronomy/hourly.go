package agronomy

import (
	"fmt"
	"math"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
)

var wmoDescriptions = map[int]string{
	0:  "Ciel dégagé",
	1:  "Principalement clair",
	2:  "Partiellement nuageux",
	3:  "Nuageux",
	45: "Brouillard",
	51: "Bruine légère",
	53: "Bruine modérée",
	55: "Bruine dense",
	56: "Bruine verglaçante légère",
	57: "Bruine verglaçante dense",
	61: "Pluie légère",
	63: "Pluie modérée",
	65: "Pluie forte",
	66: "Pluie verglaçante légère",
	67: "Pluie verglaçante forte",
	71: "Chute de neige légère",
	73: "Chute de neige modérée",
	75: "Chute de neige forte",
	77: "Grains de neige",
	80: "Averses de pluie légères",
	81: "Averses de pluie modérées",
	82: "Averses de pluie violentes",
	85: "Averses de neige légères",
	86: "Averses de neige fortes",
	95: "Orage modéré ou fort",
	96: "Orage avec grêle légère",
	99: "Orage avec grêle forte",
}

// WeatherCodeDescription returns the French description of a WMO weather code.
func WeatherCodeDescription(code int) string {
	if d, ok := wmoDescriptions[code]; ok {
		return d
	}
	return fmt.Sprintf("Code: %d", code)
}

// WeatherCodeColor returns the display colour used for a WMO weather code band.
func WeatherCodeColor(code int) string {
	switch {
	case code < 3:
		return "#4FC3F7"
	case code < 50:
		return "#90A4AE"
	case code < 60:
		return "#81D4FA"
	case code < 70:
		return "#29B6F6"
	case code < 80:
		return "#E1F5FE"
	case code < 90:
		return "#0288D1"
	default:
		return "#FFA000"
	}
}

// SummarizeHourly aggregates hourly readings, skipping missing values per field.
// Temperature figures stay zero when no hour has a temperature.
func SummarizeHourly(hours []models.HourlyReading) models.HourlySummary {
	s := models.HourlySummary{Hours: len(hours)}
	var (
		tempSum, humiditySum float64
		temps, humidities    int
	)
	for _, h := range hours {
		if t := h.Temperature; t != nil {
			if temps == 0 || *t < s.MinTemperature {
				s.MinTemperature = *t
			}
			if temps == 0 || *t > s.MaxTemperature {
				s.MaxTemperature = *t
			}
			tempSum += *t
			temps++
		}
		if h.Humidity != nil {
			humiditySum += *h.Humidity
			humidities++
		}
		if h.WindSpeed != nil {
			s.MaxWindSpeed = math.Max(s.MaxWindSpeed, *h.WindSpeed)
		}
	}
	if temps > 0 {
		s.AvgTemperature = tempSum / float64(temps)
	}
	if humidities > 0 {
		s.AvgHumidity = humiditySum / float64(humidities)
	}
	return s
}

// WeatherDistribution counts hours per weather description, in order of first
// appearance. Hours without a weather code are not counted.
func WeatherDistribution(hours []models.HourlyReading) []models.WeatherShare {
	out := []models.WeatherShare{}
	index := make(map[string]int)
	for _, h := range hours {
		if h.WeatherCode == nil {
			continue
		}
		desc := WeatherCodeDescription(*h.WeatherCode)
		if i, ok := index[desc]; ok {
			out[i].Count++
			continue
		}
		index[desc] = len(out)
		out = append(out, models.WeatherShare{Description: desc, Count: 1})
	}
	return out
}
