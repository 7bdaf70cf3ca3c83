package models

// GeoLocation is a geocoding match.
type GeoLocation struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state,omitempty"`
}

// HourlyReading is one archived hour. A nil field is an hour the archive has no
// value for yet and is serialized as null.
type HourlyReading struct {
	Time        string   `json:"time"`
	Temperature *float64 `json:"temp"`
	Humidity    *float64 `json:"humidity"`
	WeatherCode *int     `json:"weatherCode"`
	WindSpeed   *float64 `json:"windSpeed"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// HourlySummary aggregates a day of hourly readings. Each figure only covers the
// hours that carry that value; Hours counts every reading.
type HourlySummary struct {
	MinTemperature float64 `json:"minTemperature"`
	MaxTemperature float64 `json:"maxTemperature"`
	AvgTemperature float64 `json:"avgTemperature"`
	AvgHumidity    float64 `json:"avgHumidity"`
	MaxWindSpeed   float64 `json:"maxWindSpeed"`
	Hours          int     `json:"hours"`
}

// WeatherShare counts hours with the same weather description.
type WeatherShare struct {
	Description string `json:"description"`
	Count       int    `json:"count"`
}

// HistoricalWeather is the archive view of a single day for a city.
type HistoricalWeather struct {
	City         string          `json:"city"`
	Country      string          `json:"country"`
	Date         string          `json:"date"`
	Hourly       []HourlyReading `json:"hourly"`
	Summary      HourlySummary   `json:"summary"`
	Distribution []WeatherShare  `json:"distribution"`
}
