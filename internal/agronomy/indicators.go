package agronomy

import "math"

// GDDBaseTemperature is the base temperature (°C) for growing-degree-days.
const GDDBaseTemperature = 10.0

// SoilMoisture estimates soil moisture (%) from relative humidity (%) and precipitation (mm).
func SoilMoisture(humidity, precipitation float64) float64 {
	return clamp(humidity*0.7+precipitation*10, 0, 100)
}

// UVIndex estimates the UV index from cloud cover (%).
func UVIndex(cloudCover float64) float64 {
	return clamp(10-cloudCover/10, 0, 10)
}

// GrowingDegreeDays returns the single-day heat accumulation above GDDBaseTemperature.
func GrowingDegreeDays(temperature float64) float64 {
	return math.Max(0, temperature-GDDBaseTemperature)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}
