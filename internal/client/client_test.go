package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/agrimeteo-service/internal/circuitbreaker"
	"github.com/kjstillabower/agrimeteo-service/internal/models"
)

const testAPIKey = "test-api-key-12345"

func currentPayload() map[string]interface{} {
	return map[string]interface{}{
		"name":  "Paris",
		"dt":    1717408800,
		"coord": map[string]interface{}{"lat": 48.8566, "lon": 2.3522},
		"sys":   map[string]interface{}{"country": "FR"},
		"main": map[string]interface{}{
			"temp":       21.5,
			"feels_like": 20.9,
			"humidity":   65,
		},
		"weather": []map[string]interface{}{
			{"main": "Clouds", "description": "nuageux", "icon": "04d"},
		},
		"wind":   map[string]interface{}{"speed": 3.2},
		"clouds": map[string]interface{}{"all": 40},
		"rain":   map[string]interface{}{"3h": 1.2},
	}
}

func forecastPayload(n int) map[string]interface{} {
	list := make([]map[string]interface{}, 0, n)
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC).Unix()
	for i := 0; i < n; i++ {
		list = append(list, map[string]interface{}{
			"dt":      start + int64(i*3*3600),
			"main":    map[string]interface{}{"temp": 10 + float64(i%8), "feels_like": 9, "humidity": 70},
			"weather": []map[string]interface{}{{"main": "Rain", "description": "pluie légère", "icon": "10d"}},
			"wind":    map[string]interface{}{"speed": 4.1},
			"clouds":  map[string]interface{}{"all": 75},
			"rain":    map[string]interface{}{"3h": 0.5},
		})
	}
	return map[string]interface{}{
		"list": list,
		"city": map[string]interface{}{"name": "Lyon", "country": "FR", "timezone": 7200},
	}
}

func jsonHandler(t *testing.T, payload interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode payload: %v", err)
		}
	}
}

func newTestClient(t *testing.T, url string, attempts int) *OpenWeatherClient {
	t.Helper()
	c, err := NewOpenWeatherClientWithRetry(testAPIKey, url, 2*time.Second, attempts, 5*time.Millisecond, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
	}
	return c
}

func TestNewOpenWeatherClient_InvalidAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{name: "empty API key", apiKey: "", wantErr: ErrInvalidAPIKey},
		{name: "too short API key", apiKey: "short", wantErr: ErrInvalidAPIKey},
		{name: "valid API key", apiKey: "valid-api-key-12345", wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewOpenWeatherClient(tt.apiKey, "https://api.test.com", 2*time.Second)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewOpenWeatherClient() error = %v, want %v", err, tt.wantErr)
				}
				if client != nil {
					t.Errorf("NewOpenWeatherClient() expected nil client on error")
				}
				return
			}
			if err != nil || client == nil {
				t.Fatalf("NewOpenWeatherClient() = %v, %v; want client", client, err)
			}
		})
	}
}

func TestOpenWeatherClient_GetCurrentWeather_ByCity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != weatherPath {
			t.Errorf("path = %s, want %s", r.URL.Path, weatherPath)
		}
		q := r.URL.Query()
		if q.Get("q") != "Paris,FR" {
			t.Errorf("q = %q, want Paris,FR", q.Get("q"))
		}
		if q.Get("appid") != testAPIKey {
			t.Errorf("expected API key in query")
		}
		if q.Get("units") != "metric" {
			t.Errorf("expected units=metric in query")
		}
		jsonHandler(t, currentPayload())(w, r)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 1)
	got, err := client.GetCurrentWeather(context.Background(), models.CityLocation("Paris", "FR"))
	if err != nil {
		t.Fatalf("GetCurrentWeather() error = %v", err)
	}

	if got.Name != "Paris" || got.Country != "FR" {
		t.Errorf("Name, Country = %q, %q", got.Name, got.Country)
	}
	if got.Temperature != 21.5 || got.FeelsLike != 20.9 {
		t.Errorf("Temperature, FeelsLike = %v, %v", got.Temperature, got.FeelsLike)
	}
	if got.Humidity != 65 || got.WindSpeed != 3.2 || got.CloudCover != 40 {
		t.Errorf("Humidity, WindSpeed, CloudCover = %v, %v, %v", got.Humidity, got.WindSpeed, got.CloudCover)
	}
	if got.Precipitation != 1.2 {
		t.Errorf("Precipitation = %v, want 1.2 (3h fallback)", got.Precipitation)
	}
	if got.Description != "nuageux" || got.Icon != "04d" {
		t.Errorf("Description, Icon = %q, %q", got.Description, got.Icon)
	}
	if !got.Time.Equal(time.Unix(1717408800, 0)) {
		t.Errorf("Time = %v", got.Time)
	}
}

func TestOpenWeatherClient_GetCurrentWeather_ByCoordinates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("lat") != "45.764" || q.Get("lon") != "4.8357" {
			t.Errorf("lat, lon = %q, %q", q.Get("lat"), q.Get("lon"))
		}
		if q.Has("q") {
			t.Errorf("unexpected q parameter for coordinate lookup")
		}
		payload := currentPayload()
		payload["name"] = ""
		jsonHandler(t, payload)(w, r)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 1)
	got, err := client.GetCurrentWeather(context.Background(), models.CoordinateLocation(45.764, 4.8357))
	if err != nil {
		t.Fatalf("GetCurrentWeather() error = %v", err)
	}
	if got.Name != "45.7640,4.8357" {
		t.Errorf("Name = %q, want coordinate fallback", got.Name)
	}
}

func TestPrecipitationAmount(t *testing.T) {
	tests := []struct {
		name string
		p    *precipitationJSON
		want float64
	}{
		{"absent", nil, 0},
		{"one hour", &precipitationJSON{OneHour: 2, ThreeHour: 5}, 2},
		{"three hour fallback", &precipitationJSON{ThreeHour: 5}, 5},
		{"empty", &precipitationJSON{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.amount(); got != tt.want {
				t.Errorf("amount() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpenWeatherClient_GetForecast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != forecastPath {
			t.Errorf("path = %s, want %s", r.URL.Path, forecastPath)
		}
		jsonHandler(t, forecastPayload(40))(w, r)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 1)
	got, err := client.GetForecast(context.Background(), models.CityLocation("Lyon", ""))
	if err != nil {
		t.Fatalf("GetForecast() error = %v", err)
	}
	if got.City != "Lyon" || got.UTCOffset != 7200 {
		t.Errorf("City, UTCOffset = %q, %d", got.City, got.UTCOffset)
	}
	if len(got.Samples) != 40 {
		t.Fatalf("len(Samples) = %d, want 40", len(got.Samples))
	}
	if got.Samples[1].Time.Sub(got.Samples[0].Time) != 3*time.Hour {
		t.Errorf("sample spacing = %v, want 3h", got.Samples[1].Time.Sub(got.Samples[0].Time))
	}
	if got.Samples[0].Precipitation != 0.5 || got.Samples[0].Main != "Rain" {
		t.Errorf("first sample = %+v", got.Samples[0])
	}
}

func TestOpenWeatherClient_GetForecast_Empty(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, forecastPayload(0)))
	defer server.Close()

	client := newTestClient(t, server.URL, 1)
	_, err := client.GetForecast(context.Background(), models.CityLocation("Lyon", ""))
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("GetForecast() error = %v, want ErrUpstreamFailure", err)
	}
}

func TestOpenWeatherClient_Geocode(t *testing.T) {
	tests := []struct {
		name    string
		payload interface{}
		want    models.GeoLocation
		wantErr error
	}{
		{
			name: "match",
			payload: []map[string]interface{}{
				{"name": "Bordeaux", "lat": 44.8378, "lon": -0.5792, "country": "FR", "state": "Nouvelle-Aquitaine"},
			},
			want: models.GeoLocation{Name: "Bordeaux", Lat: 44.8378, Lon: -0.5792, Country: "FR", State: "Nouvelle-Aquitaine"},
		},
		{
			name:    "no match",
			payload: []map[string]interface{}{},
			wantErr: ErrLocationNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != geocodePath {
					t.Errorf("path = %s, want %s", r.URL.Path, geocodePath)
				}
				if r.URL.Query().Get("limit") != "1" {
					t.Errorf("limit = %q, want 1", r.URL.Query().Get("limit"))
				}
				jsonHandler(t, tt.payload)(w, r)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, 1)
			got, err := client.Geocode(context.Background(), "Bordeaux")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Geocode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Geocode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Geocode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOpenWeatherClient_ErrorHandling(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
		retryable  bool
	}{
		{"401 unauthorized", http.StatusUnauthorized, ErrInvalidAPIKey, false},
		{"404 not found", http.StatusNotFound, ErrLocationNotFound, false},
		{"429 rate limited", http.StatusTooManyRequests, ErrRateLimited, true},
		{"500 server error", http.StatusInternalServerError, ErrUpstreamFailure, true},
		{"502 bad gateway", http.StatusBadGateway, ErrUpstreamFailure, true},
		{"418 unexpected", http.StatusTeapot, ErrUpstreamFailure, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, 1)
			_, err := client.GetCurrentWeather(context.Background(), models.CityLocation("test", ""))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("GetCurrentWeather() error = %v, want %v", err, tt.wantErr)
			}
			if got := client.isRetryable(err); got != tt.retryable {
				t.Errorf("isRetryable() = %v, want %v for %v", got, tt.retryable, err)
			}
		})
	}
}

func TestOpenWeatherClient_RetryLogic(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		jsonHandler(t, currentPayload())(w, r)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 3)
	got, err := client.GetCurrentWeather(context.Background(), models.CityLocation("Paris", ""))
	if err != nil {
		t.Fatalf("GetCurrentWeather() error = %v", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
	if got.Name != "Paris" {
		t.Errorf("Name = %q, want Paris", got.Name)
	}
}

func TestOpenWeatherClient_ExhaustedRetries(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 2)
	_, err := client.GetCurrentWeather(context.Background(), models.CityLocation("Paris", ""))
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("GetCurrentWeather() error = %v, want ErrUpstreamFailure", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestOpenWeatherClient_NoRetryOnNonRetryableError(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 3)
	_, err := client.GetCurrentWeather(context.Background(), models.CityLocation("test", ""))
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("GetCurrentWeather() error = %v, want %v", err, ErrInvalidAPIKey)
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("expected 1 attempt (no retry), got %d", n)
	}
}

func TestOpenWeatherClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetCurrentWeather(ctx, models.CityLocation("test", ""))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetCurrentWeather() error = %v, want context.Canceled", err)
	}
}

func TestOpenWeatherClient_CorrelationID(t *testing.T) {
	var capturedCorrID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedCorrID = r.Header.Get("X-Correlation-ID")
		jsonHandler(t, currentPayload())(w, r)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 1)
	ctx := context.WithValue(context.Background(), "correlation_id", "test-correlation-id-123")
	if _, err := client.GetCurrentWeather(ctx, models.CityLocation("Paris", "")); err != nil {
		t.Fatalf("GetCurrentWeather() error = %v", err)
	}

	if capturedCorrID != "test-correlation-id-123" {
		t.Errorf("X-Correlation-ID header = %q, want %q", capturedCorrID, "test-correlation-id-123")
	}
}

func TestOpenWeatherClient_CircuitBreaker(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 1)
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		Timeout:          time.Minute,
		Component:        "openweather",
		IsFailure:        IsBreakerFailure,
	})
	client.SetCircuitBreaker(cb)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, _ = client.GetCurrentWeather(ctx, models.CityLocation("Paris", ""))
	}
	if cb.State() != circuitbreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", cb.State())
	}

	_, err := client.GetCurrentWeather(ctx, models.CityLocation("Paris", ""))
	if !errors.Is(err, circuitbreaker.ErrOpen) || !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("GetCurrentWeather() error = %v, want ErrOpen wrapped in ErrUpstreamFailure", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Errorf("upstream attempts = %d, want 2 (open circuit short-circuits)", n)
	}
}

func TestIsBreakerFailure(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrLocationNotFound, false},
		{ErrInvalidAPIKey, false},
		{ErrUpstreamFailure, true},
		{ErrRateLimited, true},
		{context.DeadlineExceeded, true},
	}
	for _, tt := range tests {
		if got := IsBreakerFailure(tt.err); got != tt.want {
			t.Errorf("IsBreakerFailure(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestOpenWeatherClient_ValidateAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
		wantAnyErr bool
	}{
		{"valid", http.StatusOK, nil, false},
		{"invalid", http.StatusUnauthorized, ErrInvalidAPIKey, true},
		{"upstream down", http.StatusServiceUnavailable, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("q") != keyCheckCity {
					t.Errorf("q = %q, want %s", r.URL.Query().Get("q"), keyCheckCity)
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			err := newTestClient(t, server.URL, 1).ValidateAPIKey(context.Background())
			if (err != nil) != tt.wantAnyErr {
				t.Fatalf("ValidateAPIKey() error = %v, wantErr %v", err, tt.wantAnyErr)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateAPIKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	client := &OpenWeatherClient{retryBaseDelay: 100 * time.Millisecond, retryMaxDelay: 300 * time.Millisecond}
	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{1, 100 * time.Millisecond, 110 * time.Millisecond},
		{2, 200 * time.Millisecond, 220 * time.Millisecond},
		{3, 300 * time.Millisecond, 330 * time.Millisecond},
		{6, 300 * time.Millisecond, 330 * time.Millisecond},
	}
	for _, tt := range tests {
		got := client.calculateBackoff(tt.attempt)
		if got < tt.min || got > tt.max {
			t.Errorf("calculateBackoff(%d) = %v, want in [%v, %v]", tt.attempt, got, tt.min, tt.max)
		}
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{200: "success", 204: "success", 429: "rate_limited", 404: "client_error", 503: "server_error", 301: "error"}
	for code, want := range tests {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
