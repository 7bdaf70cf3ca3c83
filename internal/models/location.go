package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Location identifies where to fetch weather: a city with an optional ISO country
// code, or a coordinate pair.
type Location struct {
	City           string  `json:"city,omitempty"`
	Country        string  `json:"country,omitempty"`
	Lat            float64 `json:"lat,omitempty"`
	Lon            float64 `json:"lon,omitempty"`
	HasCoordinates bool    `json:"-"`
}

// CityLocation returns a Location for a city name and optional country code.
func CityLocation(city, country string) Location {
	return Location{City: strings.TrimSpace(city), Country: strings.TrimSpace(country)}
}

// CoordinateLocation returns a Location for a latitude and longitude.
func CoordinateLocation(lat, lon float64) Location {
	return Location{Lat: lat, Lon: lon, HasCoordinates: true}
}

// Query is the OpenWeatherMap q parameter ("paris" or "paris,fr").
func (l Location) Query() string {
	if l.Country == "" {
		return l.City
	}
	return l.City + "," + l.Country
}

// Key is the normalized cache key.
func (l Location) Key() string {
	if l.HasCoordinates {
		return "coord:" + formatCoord(l.Lat) + "," + formatCoord(l.Lon)
	}
	return "city:" + strings.ToLower(l.Query())
}

func (l Location) String() string {
	if l.HasCoordinates {
		return fmt.Sprintf("%s,%s", formatCoord(l.Lat), formatCoord(l.Lon))
	}
	return l.Query()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
