package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/agrimeteo-service/internal/circuitbreaker"
	"github.com/kjstillabower/agrimeteo-service/internal/models"
	"github.com/kjstillabower/agrimeteo-service/internal/observability"
)

// WeatherClient is the OpenWeatherMap surface used by the service layer.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, loc models.Location) (models.CurrentWeather, error)
	GetForecast(ctx context.Context, loc models.Location) (models.Forecast, error)
	Geocode(ctx context.Context, city string) (models.GeoLocation, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
)

const (
	weatherPath  = "/data/2.5/weather"
	forecastPath = "/data/2.5/forecast"
	geocodePath  = "/geo/1.0/direct"

	keyCheckCity = "Paris"
)

type OpenWeatherClient struct {
	apiKey         string
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithRetry(apiKey, apiURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

// NewOpenWeatherClientWithRetry builds a client for the API rooted at apiURL
// (e.g. https://api.openweathermap.org). Retryable failures are attempted up to
// retryAttempts times with exponential backoff and jitter.
func NewOpenWeatherClientWithRetry(apiKey, apiURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if retryAttempts < 1 {
		retryAttempts = 1
	}

	return &OpenWeatherClient{
		apiKey:         apiKey,
		apiURL:         strings.TrimRight(apiURL, "/"),
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker routes every upstream attempt through cb.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// IsBreakerFailure reports whether err should count against the circuit.
// Caller mistakes (unknown city, bad key) do not.
func IsBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrLocationNotFound) && !errors.Is(err, ErrInvalidAPIKey)
}

func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, loc models.Location) (models.CurrentWeather, error) {
	var apiResp currentResponse
	if err := c.fetch(ctx, "weather", weatherPath, locationParams(loc), &apiResp); err != nil {
		return models.CurrentWeather{}, err
	}
	return apiResp.toModel(loc), nil
}

func (c *OpenWeatherClient) GetForecast(ctx context.Context, loc models.Location) (models.Forecast, error) {
	var apiResp forecastResponse
	if err := c.fetch(ctx, "forecast", forecastPath, locationParams(loc), &apiResp); err != nil {
		return models.Forecast{}, err
	}
	if len(apiResp.List) == 0 {
		return models.Forecast{}, fmt.Errorf("%w: forecast has no samples", ErrUpstreamFailure)
	}
	return apiResp.toModel(loc), nil
}

// Geocode resolves a city name to its first match.
func (c *OpenWeatherClient) Geocode(ctx context.Context, city string) (models.GeoLocation, error) {
	params := url.Values{}
	params.Set("q", city)
	params.Set("limit", "1")

	var matches []geocodeResponse
	if err := c.fetch(ctx, "geocode", geocodePath, params, &matches); err != nil {
		return models.GeoLocation{}, err
	}
	if len(matches) == 0 {
		return models.GeoLocation{}, fmt.Errorf("%w: %s", ErrLocationNotFound, city)
	}
	m := matches[0]
	return models.GeoLocation{Name: m.Name, Lat: m.Lat, Lon: m.Lon, Country: m.Country, State: m.State}, nil
}

func locationParams(loc models.Location) url.Values {
	params := url.Values{}
	if loc.HasCoordinates {
		params.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
		params.Set("lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	} else {
		params.Set("q", loc.Query())
	}
	params.Set("units", "metric")
	return params
}

// fetch runs one logical call, retrying retryable failures with jittered backoff.
// Errors are counted once per call, not once per attempt.
func (c *OpenWeatherClient) fetch(ctx context.Context, endpoint, path string, params url.Values, out interface{}) error {
	var err error
	for attempt := range c.retryAttempts {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			timer := time.NewTimer(c.calculateBackoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = c.attempt(ctx, endpoint, path, params, out); err == nil {
			return nil
		}
		if !c.isRetryable(err) {
			break
		}
		if attempt == c.retryAttempts-1 {
			err = fmt.Errorf("exhausted retries: %w", err)
		}
	}
	observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
	return err
}

func (c *OpenWeatherClient) attempt(ctx context.Context, endpoint, path string, params url.Values, out interface{}) error {
	if c.breaker == nil {
		return c.callAPI(ctx, endpoint, path, params, out)
	}
	err := c.breaker.Call(ctx, func() error {
		return c.callAPI(ctx, endpoint, path, params, out)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
	}
	return err
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, endpoint, path string, params url.Values, out interface{}) error {
	start := time.Now()
	status := "error"
	defer func() {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
	}()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, path, params)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if id := extractCorrelationID(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status = statusLabel(resp.StatusCode)
	if err := statusError(resp.StatusCode); err != nil {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// isRetryable reports whether another attempt could succeed. Throttling, 5xx
// and timeouts are retried; an open breaker and caller mistakes are not.
func (c *OpenWeatherClient) isRetryable(err error) bool {
	switch {
	case err == nil, errors.Is(err, circuitbreaker.ErrOpen), errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrUpstreamFailure), errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}

// calculateBackoff doubles retryBaseDelay per attempt up to retryMaxDelay and adds
// up to 10% jitter.
func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := min(float64(c.retryBaseDelay)*math.Pow(2, float64(attempt-1)), float64(c.retryMaxDelay))
	return time.Duration(delay * (1 + 0.1*rand.Float64()))
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.apiURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	q := make(url.Values, len(params)+1)
	for k, v := range params {
		q[k] = v
	}
	q.Set("appid", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// statusError maps an OpenWeatherMap status code onto the package sentinels.
func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP 401", ErrInvalidAPIKey)
	case code == http.StatusNotFound:
		return ErrLocationNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	}
}

func extractCorrelationID(ctx context.Context) string {
	id, _ := ctx.Value("correlation_id").(string)
	return id
}

func statusLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "success"
	case code == http.StatusTooManyRequests:
		return "rate_limited"
	case code >= 400 && code < 500:
		return "client_error"
	case code >= 500:
		return "server_error"
	default:
		return "error"
	}
}

// ValidateAPIKey makes a single unretried current-weather call for a fixed city.
// Only a 401 is reported as ErrInvalidAPIKey.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, weatherPath, locationParams(models.CityLocation(keyCheckCity, "")))
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	default:
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}
}
