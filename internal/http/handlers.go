package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/agrimeteo-service/internal/alerts"
	"github.com/kjstillabower/agrimeteo-service/internal/client"
	"github.com/kjstillabower/agrimeteo-service/internal/degraded"
	"github.com/kjstillabower/agrimeteo-service/internal/lifecycle"
	"github.com/kjstillabower/agrimeteo-service/internal/models"
	"github.com/kjstillabower/agrimeteo-service/internal/observability"
	"github.com/kjstillabower/agrimeteo-service/internal/openmeteo"
	"github.com/kjstillabower/agrimeteo-service/internal/repository"
	"github.com/kjstillabower/agrimeteo-service/internal/service"
	"github.com/kjstillabower/agrimeteo-service/internal/traffic"
)

const (
	maxBodyBytes   = 1 << 20
	maxLocationLen = 100
)

// HealthConfig holds the thresholds and dependency checks used by GET /health.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// CachePing, when set, reports cache reachability (memcached backend).
	CachePing func() error
	// StoragePing, when set, reports record storage reachability.
	StoragePing func(ctx context.Context) error
	Version     string
}

// Deps are the collaborators of a Handler. Health, Recovery, Clock and Logger are optional.
type Deps struct {
	Weather       *service.WeatherService
	Client        client.WeatherClient
	Farmers       repository.FarmerRepository
	Searches      *repository.SearchHistory
	Alerts        *alerts.Inbox
	AlertLocation models.Location
	Health        *HealthConfig
	Recovery      *degraded.Recovery
	Clock         clockwork.Clock
	Logger        *zap.Logger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather       *service.WeatherService
	client        client.WeatherClient
	farmers       repository.FarmerRepository
	searches      *repository.SearchHistory
	inbox         *alerts.Inbox
	alertLocation models.Location
	healthConfig  *HealthConfig
	recovery      *degraded.Recovery
	clock         clockwork.Clock
	logger        *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

func NewHandler(d Deps) *Handler {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Handler{
		weather:       d.Weather,
		client:        d.Client,
		farmers:       d.Farmers,
		searches:      d.Searches,
		inbox:         d.Alerts,
		alertLocation: d.AlertLocation,
		healthConfig:  d.Health,
		recovery:      d.Recovery,
		clock:         d.Clock,
		logger:        d.Logger,
	}
}

type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	if result.status == "degraded" {
		h.recovery.Notify()
	}

	checks := map[string]string{"weatherApi": "healthy"}
	if result.status == "degraded" {
		checks["weatherApi"] = "unhealthy"
	}
	version := "dev"
	if cfg := h.healthConfig; cfg != nil {
		if cfg.CachePing != nil {
			checks["cache"] = checkStatus(cfg.CachePing() == nil)
		}
		if cfg.StoragePing != nil {
			checks["storage"] = checkStatus(cfg.StoragePing(r.Context()) == nil)
		}
		if cfg.Version != "" {
			version = cfg.Version
		}
	}
	now := h.clock.Now()
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "agrimeteo-service",
		"version":   version,
		"checks":    checks,
		"uptime":    lifecycle.Uptime(now).Round(time.Second).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

func checkStatus(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

// computeHealthStatus evaluates, in order: shutting-down, API key, overload, error rate.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if err := h.client.ValidateAPIKey(ctx); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	cfg := h.healthConfig
	if cfg == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if cfg.RateLimitRPS > 0 && cfg.OverloadWindow > 0 && cfg.OverloadThresholdPct > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(traffic.RequestCount(cfg.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		errs, total := degraded.ErrorRate(cfg.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(cfg.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{"code","message","requestId"}}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": correlationID(r.Context()),
		},
	})
}

func correlationID(ctx context.Context) string {
	if v, ok := ctx.Value("correlation_id").(string); ok {
		return v
	}
	return ""
}

func loggerFromRequest(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		return logger
	}
	return fallback
}

// writeServiceError maps upstream weather errors onto the error envelope.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	category := client.CategorizeError(err)
	observability.HTTPErrorsTotal.WithLabelValues(string(category)).Inc()
	loggerFromRequest(r, h.logger).Debug("upstream error",
		zap.Error(err),
		zap.String("category", string(category)),
	)

	switch {
	case errors.Is(err, client.ErrLocationNotFound):
		writeError(w, r, http.StatusNotFound, "LOCATION_NOT_FOUND", "Location not found")
	case errors.Is(err, client.ErrRateLimited):
		writeError(w, r, http.StatusTooManyRequests, "UPSTREAM_RATE_LIMITED", "Weather provider rate limit reached")
	case errors.Is(err, openmeteo.ErrBadRequest):
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "Archive rejected the request")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "Weather request timed out")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	}
}

// writeRecordError maps repository and inbox errors onto the error envelope.
func (h *Handler) writeRecordError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrFarmerNotFound):
		writeError(w, r, http.StatusNotFound, "FARMER_NOT_FOUND", "Farmer not found")
	case errors.Is(err, repository.ErrParcelleNotFound):
		writeError(w, r, http.StatusNotFound, "PARCELLE_NOT_FOUND", "Parcelle not found")
	case errors.Is(err, repository.ErrBesoinNotFound):
		writeError(w, r, http.StatusNotFound, "BESOIN_NOT_FOUND", "Besoin not found")
	case errors.Is(err, repository.ErrInvalidRecord):
		writeError(w, r, http.StatusBadRequest, "INVALID_RECORD", err.Error())
	case errors.Is(err, alerts.ErrAlertNotFound):
		writeError(w, r, http.StatusNotFound, "ALERT_NOT_FOUND", "Alert not found")
	case errors.Is(err, alerts.ErrAlertExists):
		writeError(w, r, http.StatusConflict, "ALERT_EXISTS", "Alert already exists")
	default:
		observability.HTTPErrorsTotal.WithLabelValues("storage").Inc()
		loggerFromRequest(r, h.logger).Error("record operation failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error")
	}
}

// recordUpstreamOutcome feeds the traffic windows behind degraded detection.
// Unknown locations and rejected archive requests are caller errors, not upstream ones.
func recordUpstreamOutcome(err error) {
	switch {
	case err == nil, errors.Is(err, client.ErrLocationNotFound), errors.Is(err, openmeteo.ErrBadRequest):
		traffic.RecordSuccess()
	default:
		traffic.RecordError()
	}
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
