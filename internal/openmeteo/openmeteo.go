// Package openmeteo reads hourly history from the Open-Meteo archive API.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
	"github.com/kjstillabower/agrimeteo-service/internal/observability"
)

const (
	archivePath   = "/v1/archive"
	hourlyFields  = "temperature_2m,relative_humidity_2m,weathercode,windspeed_10m"
	breakerName   = "openmeteo"
	defaultURL    = "https://archive-api.open-meteo.com"
	maxErrorBytes = 512
	maxBodyBytes  = 4 << 20
)

var (
	ErrCircuitOpen     = errors.New("archive circuit breaker open")
	ErrUpstreamFailure = errors.New("archive upstream failure")
	ErrBadRequest      = errors.New("archive rejected request")
	ErrInvalidResponse = errors.New("invalid archive response")
)

// ArchiveClient fetches one day of hourly readings for a coordinate.
type ArchiveClient interface {
	GetHourlyArchive(ctx context.Context, lat, lon float64, date time.Time) ([]models.HourlyReading, error)
}

// Config holds connection and resilience settings.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Consecutive failures before the breaker opens, and how long it stays open.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	OnStateChange   func(name string, from, to gobreaker.State)
}

// Client is an ArchiveClient backed by the Open-Meteo HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	circuit *gobreaker.CircuitBreaker
	cfg     Config
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}

	failures := cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrBadRequest)
		},
		OnStateChange: cfg.OnStateChange,
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		circuit: cb,
		cfg:     cfg,
	}
}

// State reports the breaker state.
func (c *Client) State() gobreaker.State {
	return c.circuit.State()
}

// GetHourlyArchive returns the hourly readings for date at (lat, lon), in the
// location's own timezone.
func (c *Client) GetHourlyArchive(ctx context.Context, lat, lon float64, date time.Time) ([]models.HourlyReading, error) {
	day := date.Format(time.DateOnly)
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("start_date", day)
	params.Set("end_date", day)
	params.Set("hourly", hourlyFields)
	params.Set("timezone", "auto")
	endpoint := c.baseURL + archivePath + "?" + params.Encode()

	var payload archiveResponse
	op := func() error {
		result, err := c.circuit.Execute(func() (interface{}, error) {
			return c.get(ctx, endpoint)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrCircuitOpen, err))
		}
		if errors.Is(err, ErrBadRequest) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		body := result.([]byte)
		if err := json.Unmarshal(body, &payload); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrInvalidResponse, err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return payload.readings()
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	observability.ArchiveAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ArchiveAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		observability.ArchiveAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamFailure, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		observability.ArchiveAPICallsTotal.WithLabelValues("success").Inc()
		if len(body) == 0 {
			return nil, fmt.Errorf("%w: empty body", ErrUpstreamFailure)
		}
		return body, nil
	case resp.StatusCode == http.StatusBadRequest:
		observability.ArchiveAPICallsTotal.WithLabelValues("client_error").Inc()
		return nil, fmt.Errorf("%w: %s", ErrBadRequest, reason(body))
	case resp.StatusCode == http.StatusTooManyRequests:
		observability.ArchiveAPICallsTotal.WithLabelValues("rate_limited").Inc()
		return nil, fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	default:
		observability.ArchiveAPICallsTotal.WithLabelValues("server_error").Inc()
		return nil, fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
}

// reason extracts the "reason" field Open-Meteo puts in error bodies.
func reason(body []byte) string {
	var e struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Reason != "" {
		return e.Reason
	}
	if len(body) > maxErrorBytes {
		body = body[:maxErrorBytes]
	}
	return string(body)
}

type archiveResponse struct {
	Hourly struct {
		Time        []string   `json:"time"`
		Temperature []*float64 `json:"temperature_2m"`
		Humidity    []*float64 `json:"relative_humidity_2m"`
		WeatherCode []*int     `json:"weathercode"`
		WindSpeed   []*float64 `json:"windspeed_10m"`
	} `json:"hourly"`
}

// readings zips the parallel hourly arrays. All arrays must have the same length;
// null entries stay nil.
func (r archiveResponse) readings() ([]models.HourlyReading, error) {
	h := r.Hourly
	n := len(h.Time)
	if len(h.Temperature) != n || len(h.Humidity) != n || len(h.WeatherCode) != n || len(h.WindSpeed) != n {
		return nil, fmt.Errorf("%w: hourly arrays have mismatched lengths (time=%d temperature=%d humidity=%d weathercode=%d windspeed=%d)",
			ErrInvalidResponse, n, len(h.Temperature), len(h.Humidity), len(h.WeatherCode), len(h.WindSpeed))
	}
	out := make([]models.HourlyReading, n)
	for i := range n {
		out[i] = models.HourlyReading{
			Time:        h.Time[i],
			Temperature: h.Temperature[i],
			Humidity:    h.Humidity[i],
			WeatherCode: h.WeatherCode[i],
			WindSpeed:   h.WindSpeed[i],
		}
	}
	return out, nil
}
