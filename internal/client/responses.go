package client

import (
	"time"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
)

type conditionsJSON struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type mainJSON struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	Humidity  float64 `json:"humidity"`
}

type precipitationJSON struct {
	OneHour   float64 `json:"1h"`
	ThreeHour float64 `json:"3h"`
}

// amount prefers the last-hour total and falls back to the three-hour one.
func (p *precipitationJSON) amount() float64 {
	if p == nil {
		return 0
	}
	if p.OneHour > 0 {
		return p.OneHour
	}
	return p.ThreeHour
}

type sampleJSON struct {
	Dt      int64            `json:"dt"`
	Main    mainJSON         `json:"main"`
	Weather []conditionsJSON `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Rain *precipitationJSON `json:"rain"`
}

func (s sampleJSON) toModel() models.Sample {
	out := models.Sample{
		Time:          time.Unix(s.Dt, 0).UTC(),
		Temperature:   s.Main.Temp,
		FeelsLike:     s.Main.FeelsLike,
		Humidity:      s.Main.Humidity,
		Precipitation: s.Rain.amount(),
		WindSpeed:     s.Wind.Speed,
		CloudCover:    s.Clouds.All,
	}
	if len(s.Weather) > 0 {
		out.Main = s.Weather[0].Main
		out.Description = s.Weather[0].Description
		out.Icon = s.Weather[0].Icon
	}
	return out
}

type currentResponse struct {
	sampleJSON
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
	Name string `json:"name"`
}

func (r currentResponse) toModel(loc models.Location) models.CurrentWeather {
	name := r.Name
	if name == "" {
		name = loc.String()
	}
	return models.CurrentWeather{
		Name:    name,
		Country: r.Sys.Country,
		Lat:     r.Coord.Lat,
		Lon:     r.Coord.Lon,
		Sample:  r.sampleJSON.toModel(),
	}
}

type forecastResponse struct {
	List []sampleJSON `json:"list"`
	City struct {
		Name     string `json:"name"`
		Country  string `json:"country"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
}

func (r forecastResponse) toModel(loc models.Location) models.Forecast {
	name := r.City.Name
	if name == "" {
		name = loc.String()
	}
	samples := make([]models.Sample, 0, len(r.List))
	for _, s := range r.List {
		samples = append(samples, s.toModel())
	}
	return models.Forecast{
		City:      name,
		Country:   r.City.Country,
		UTCOffset: r.City.Timezone,
		Samples:   samples,
	}
}

type geocodeResponse struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
}
