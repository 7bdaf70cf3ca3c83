package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/agrimeteo-service/internal/observability"
)

// RouterConfig configures middleware applied by NewRouter.
type RouterConfig struct {
	// RequestTimeout bounds routes that call weather providers (0 = none).
	RequestTimeout time.Duration
	// Limiter rate-limits every API route except /health and /metrics (nil = disabled).
	Limiter *rate.Limiter
	Logger  *zap.Logger
}

// NewRouter registers every route on a gorilla/mux router.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))

	upstream := api.NewRoute().Subrouter()
	if cfg.RequestTimeout > 0 {
		upstream.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	upstream.HandleFunc("/weather", h.GetWeatherByCoordinates).Methods(http.MethodGet)
	upstream.HandleFunc("/weather/{city}", h.GetWeather).Methods(http.MethodGet)
	upstream.HandleFunc("/weather/{city}/forecast", h.GetForecast).Methods(http.MethodGet)
	upstream.HandleFunc("/weather/{city}/alerts", h.GetCityAlerts).Methods(http.MethodGet)
	upstream.HandleFunc("/weather/{city}/history", h.GetHistory).Methods(http.MethodGet)
	upstream.HandleFunc("/forecast", h.GetForecastByCoordinates).Methods(http.MethodGet)
	upstream.HandleFunc("/farmers/weather", h.GetFarmersWeather).Methods(http.MethodGet)
	upstream.HandleFunc("/farmers/{id}/parcelles/{pid}/weather", h.GetParcelleWeather).Methods(http.MethodGet)
	upstream.HandleFunc("/alerts/refresh", h.RefreshAlerts).Methods(http.MethodPost)

	api.HandleFunc("/searches/recent", h.GetRecentSearches).Methods(http.MethodGet)

	api.HandleFunc("/farmers", h.ListFarmers).Methods(http.MethodGet)
	api.HandleFunc("/farmers", h.CreateFarmer).Methods(http.MethodPost)
	api.HandleFunc("/farmers/{id}", h.GetFarmer).Methods(http.MethodGet)
	api.HandleFunc("/farmers/{id}", h.UpdateFarmer).Methods(http.MethodPut)
	api.HandleFunc("/farmers/{id}", h.DeleteFarmer).Methods(http.MethodDelete)
	api.HandleFunc("/farmers/{id}/preferences", h.UpdatePreferences).Methods(http.MethodPut)
	api.HandleFunc("/farmers/{id}/parcelles", h.ListParcelles).Methods(http.MethodGet)
	api.HandleFunc("/farmers/{id}/parcelles", h.CreateParcelle).Methods(http.MethodPost)
	api.HandleFunc("/farmers/{id}/parcelles/{pid}", h.GetParcelle).Methods(http.MethodGet)
	api.HandleFunc("/farmers/{id}/parcelles/{pid}", h.UpdateParcelle).Methods(http.MethodPut)
	api.HandleFunc("/farmers/{id}/parcelles/{pid}", h.DeleteParcelle).Methods(http.MethodDelete)
	api.HandleFunc("/farmers/{id}/besoins", h.ListBesoins).Methods(http.MethodGet)
	api.HandleFunc("/farmers/{id}/besoins", h.CreateBesoin).Methods(http.MethodPost)
	api.HandleFunc("/farmers/{id}/besoins/{bid}", h.GetBesoin).Methods(http.MethodGet)
	api.HandleFunc("/farmers/{id}/besoins/{bid}", h.UpdateBesoin).Methods(http.MethodPut)
	api.HandleFunc("/farmers/{id}/besoins/{bid}", h.DeleteBesoin).Methods(http.MethodDelete)

	api.HandleFunc("/alerts", h.ListAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts", h.CreateAlert).Methods(http.MethodPost)
	api.HandleFunc("/alerts/unread", h.GetUnreadCount).Methods(http.MethodGet)
	api.HandleFunc("/alerts/dismissed", h.ListDismissed).Methods(http.MethodGet)
	api.HandleFunc("/alerts/dismissed", h.ClearDismissed).Methods(http.MethodDelete)
	api.HandleFunc("/alerts/dismissed/{id}", h.RemoveDismissed).Methods(http.MethodDelete)
	api.HandleFunc("/alerts/read-all", h.MarkAllAsRead).Methods(http.MethodPost)
	api.HandleFunc("/alerts/{id}/dismiss", h.DismissAlert).Methods(http.MethodPost)

	return router
}
