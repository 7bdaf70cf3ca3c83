package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
)

func BenchmarkClient_Decode(b *testing.B) {
	loc := models.CityLocation("Lyon", "FR")
	current, _ := json.Marshal(currentPayload())
	forecast, _ := json.Marshal(forecastPayload(40))

	b.Run("current", func(b *testing.B) {
		for range b.N {
			var resp currentResponse
			_ = json.Unmarshal(current, &resp)
			_ = resp.toModel(loc)
		}
	})
	b.Run("forecast-40", func(b *testing.B) {
		for range b.N {
			var resp forecastResponse
			_ = json.Unmarshal(forecast, &resp)
			_ = resp.toModel(loc)
		}
	})
}

// BenchmarkClient_GetForecast measures one full round trip against a local server.
func BenchmarkClient_GetForecast(b *testing.B) {
	body, _ := json.Marshal(forecastPayload(40))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c, err := NewOpenWeatherClient(testAPIKey, srv.URL, 2*time.Second)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	loc := models.CoordinateLocation(45.76, 4.84)

	b.ResetTimer()
	for range b.N {
		if _, err := c.GetForecast(ctx, loc); err != nil {
			b.Fatal(err)
		}
	}
}
