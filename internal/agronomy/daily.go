package agronomy

import (
	"math"
	"sort"
	"time"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
)

// ForecastDays is the number of daily summaries in a five-day forecast.
const ForecastDays = 5

// LocationForOffset returns a fixed zone for a provider UTC offset in seconds.
func LocationForOffset(offsetSeconds int) *time.Location {
	if offsetSeconds == 0 {
		return time.UTC
	}
	return time.FixedZone("", offsetSeconds)
}

// AggregateDaily groups samples by calendar day in loc and summarises each day.
// Days are returned in date order, at most limit of them (limit <= 0 means no limit).
func AggregateDaily(samples []models.Sample, loc *time.Location, limit int) []models.DailyForecast {
	if len(samples) == 0 {
		return []models.DailyForecast{}
	}
	if loc == nil {
		loc = time.UTC
	}

	buckets := make(map[string][]models.Sample)
	for _, s := range samples {
		key := s.Time.In(loc).Format(time.DateOnly)
		buckets[key] = append(buckets[key], s)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	days := make([]models.DailyForecast, 0, len(keys))
	for _, k := range keys {
		days = append(days, summarizeDay(k, buckets[k], loc))
	}
	return days
}

func summarizeDay(key string, samples []models.Sample, loc *time.Location) models.DailyForecast {
	date, _ := time.ParseInLocation(time.DateOnly, key, loc)

	minTemp, maxTemp := math.Inf(1), math.Inf(-1)
	var precipitation float64
	for _, s := range samples {
		minTemp = math.Min(minTemp, s.Temperature)
		maxTemp = math.Max(maxTemp, s.Temperature)
		precipitation += s.Precipitation
	}

	day := MiddaySample(samples, loc)
	return models.DailyForecast{
		Date: date,
		Day:  DayName(date),
		Temperature: models.TemperatureRange{
			Min: minTemp,
			Max: maxTemp,
			Day: day.Temperature,
		},
		Weather: models.Conditions{
			Main:        day.Main,
			Description: day.Description,
			Icon:        day.Icon,
		},
		Precipitation:   precipitation,
		Humidity:        day.Humidity,
		WindSpeed:       day.WindSpeed,
		UV:              UVIndex(day.CloudCover),
		Recommendations: DailyRecommendations(day, minTemp, maxTemp, precipitation),
	}
}

// MiddaySample returns the sample whose hour in loc is closest to 12:00.
// Ties go to the earliest sample in list order. samples must be non-empty.
func MiddaySample(samples []models.Sample, loc *time.Location) models.Sample {
	best := samples[0]
	bestDiff := middayDistance(best.Time.In(loc))
	for _, s := range samples[1:] {
		if d := middayDistance(s.Time.In(loc)); d < bestDiff {
			best, bestDiff = s, d
		}
	}
	return best
}

func middayDistance(t time.Time) int {
	d := t.Hour() - 12
	if d < 0 {
		return -d
	}
	return d
}

// BuildFiveDayForecast turns a provider forecast into the five-day view.
// The first sample is reported as the current conditions.
func BuildFiveDayForecast(f models.Forecast) models.FiveDayForecast {
	loc := LocationForOffset(f.UTCOffset)
	out := models.FiveDayForecast{
		Location: f.City,
		Daily:    AggregateDaily(f.Samples, loc, ForecastDays),
	}
	if len(f.Samples) > 0 {
		first := f.Samples[0]
		out.Current = models.CurrentSummary{
			Temperature: first.Temperature,
			FeelsLike:   first.FeelsLike,
			Weather:     first.Main,
			Icon:        first.Icon,
			Time:        first.Time.In(loc),
		}
	}
	return out
}

// BuildAgricultureData maps current conditions onto the agricultural view.
func BuildAgricultureData(w models.CurrentWeather, fetchedAt time.Time) models.AgricultureWeatherData {
	return models.AgricultureWeatherData{
		Location:          w.Name,
		Date:              w.Time,
		Temperature:       w.Temperature,
		FeelsLike:         w.FeelsLike,
		Humidity:          w.Humidity,
		Precipitation:     w.Precipitation,
		WindSpeed:         w.WindSpeed,
		CloudCover:        w.CloudCover,
		Conditions:        w.Description,
		Icon:              w.Icon,
		SoilMoisture:      SoilMoisture(w.Humidity, w.Precipitation),
		UVIndex:           UVIndex(w.CloudCover),
		GrowingDegreeDays: GrowingDegreeDays(w.Temperature),
		Recommendations:   Recommendations(w.Temperature, w.Humidity, w.WindSpeed, w.Precipitation),
		FetchedAt:         fetchedAt,
	}
}
