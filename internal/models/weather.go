package models

import "time"

// AgricultureWeatherData is current weather combined with the derived soil, UV and
// growing-degree-day estimates and textual recommendations.
type AgricultureWeatherData struct {
	Location          string    `json:"location"`
	Date              time.Time `json:"date"`
	Temperature       float64   `json:"temperature"`
	FeelsLike         float64   `json:"feelsLike"`
	Humidity          float64   `json:"humidity"`
	Precipitation     float64   `json:"precipitation"`
	WindSpeed         float64   `json:"windSpeed"`
	CloudCover        float64   `json:"cloudCover"`
	Conditions        string    `json:"conditions"`
	Icon              string    `json:"icon,omitempty"`
	SoilMoisture      float64   `json:"soilMoisture"`
	UVIndex           float64   `json:"uvIndex"`
	GrowingDegreeDays float64   `json:"growingDegreeDays"`
	Recommendations   []string  `json:"recommendations"`
	FetchedAt         time.Time `json:"fetchedAt"`
	Stale             bool      `json:"stale,omitempty"` // Indicates data served from stale cache
}

// Sample is one provider reading, either current conditions or a 3-hour forecast step.
type Sample struct {
	Time          time.Time `json:"time"`
	Temperature   float64   `json:"temperature"`
	FeelsLike     float64   `json:"feelsLike"`
	Humidity      float64   `json:"humidity"`
	Precipitation float64   `json:"precipitation"`
	WindSpeed     float64   `json:"windSpeed"`
	CloudCover    float64   `json:"cloudCover"`
	Main          string    `json:"main"`
	Description   string    `json:"description"`
	Icon          string    `json:"icon"`
}

// CurrentWeather is a provider's current-conditions response reduced to what the service uses.
type CurrentWeather struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Sample
}

// Forecast is a provider's 3-hourly forecast. UTCOffset is the location's offset in seconds.
type Forecast struct {
	City      string   `json:"city"`
	Country   string   `json:"country"`
	UTCOffset int      `json:"utcOffset"`
	Samples   []Sample `json:"samples"`
}

// TemperatureRange holds the daily extremes and the representative midday reading.
type TemperatureRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Day float64 `json:"day"`
}

// Conditions describes the weather of a representative sample.
type Conditions struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// DailyForecast is one calendar day aggregated from 3-hour samples.
type DailyForecast struct {
	Date            time.Time        `json:"date"`
	Day             string           `json:"day"`
	Temperature     TemperatureRange `json:"temperature"`
	Weather         Conditions       `json:"weather"`
	Precipitation   float64          `json:"precipitation"`
	Humidity        float64          `json:"humidity"`
	WindSpeed       float64          `json:"windSpeed"`
	UV              float64          `json:"uv"`
	Recommendations []string         `json:"recommendations"`
}

// CurrentSummary is the first forecast step shown as "now".
type CurrentSummary struct {
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feelsLike"`
	Weather     string    `json:"weather"`
	Icon        string    `json:"icon"`
	Time        time.Time `json:"time"`
}

// FiveDayForecast is the forecast view: current step plus up to five daily summaries.
type FiveDayForecast struct {
	Location string          `json:"location"`
	Current  CurrentSummary  `json:"current"`
	Daily    []DailyForecast `json:"daily"`
}
