package http

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
	"github.com/kjstillabower/agrimeteo-service/internal/observability"
	"github.com/kjstillabower/agrimeteo-service/internal/validation"
)

// cityLocation validates the {city} path variable and optional ?country=.
func cityLocation(w http.ResponseWriter, r *http.Request) (models.Location, bool) {
	city, err := validation.ValidateLocation(mux.Vars(r)["city"], 1, maxLocationLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return models.Location{}, false
	}
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if country != "" {
		if country, err = validation.ValidateLocation(country, 2, maxLocationLen); err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_COUNTRY", err.Error())
			return models.Location{}, false
		}
	}
	return models.CityLocation(city, country), true
}

func coordinateLocation(w http.ResponseWriter, r *http.Request) (models.Location, bool) {
	q := r.URL.Query()
	lat, lon, err := validation.ParseCoordinates(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return models.Location{}, false
	}
	return models.CoordinateLocation(lat, lon), true
}

// GetWeather handles GET /weather/{city}?country=.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	loc, ok := cityLocation(w, r)
	if !ok {
		return
	}
	if h.respondCurrent(w, r, loc) {
		h.recordSearch(r, loc.City)
	}
}

// GetWeatherByCoordinates handles GET /weather?lat=&lon=.
func (h *Handler) GetWeatherByCoordinates(w http.ResponseWriter, r *http.Request) {
	loc, ok := coordinateLocation(w, r)
	if !ok {
		return
	}
	h.respondCurrent(w, r, loc)
}

// respondCurrent writes agricultural weather for loc and reports whether it succeeded.
func (h *Handler) respondCurrent(w http.ResponseWriter, r *http.Request, loc models.Location) bool {
	observability.RecordWeatherQuery(loc.Key())
	data, err := h.weather.GetAgricultureWeather(r.Context(), loc)
	recordUpstreamOutcome(err)
	if err != nil {
		h.writeServiceError(w, r, err)
		return false
	}
	writeJSON(w, http.StatusOK, data)
	return true
}

func (h *Handler) recordSearch(r *http.Request, city string) {
	if h.searches == nil {
		return
	}
	if err := h.searches.Record(r.Context(), city); err != nil {
		loggerFromRequest(r, h.logger).Warn("record search failed", zap.String("city", city), zap.Error(err))
	}
}

// GetForecast handles GET /weather/{city}/forecast.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	if loc, ok := cityLocation(w, r); ok {
		h.respondForecast(w, r, loc)
	}
}

// GetForecastByCoordinates handles GET /forecast?lat=&lon=.
func (h *Handler) GetForecastByCoordinates(w http.ResponseWriter, r *http.Request) {
	if loc, ok := coordinateLocation(w, r); ok {
		h.respondForecast(w, r, loc)
	}
}

func (h *Handler) respondForecast(w http.ResponseWriter, r *http.Request, loc models.Location) {
	forecast, err := h.weather.GetFiveDayForecast(r.Context(), loc)
	recordUpstreamOutcome(err)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

// GetCityAlerts handles GET /weather/{city}/alerts. Alerts are synthesized, not stored.
func (h *Handler) GetCityAlerts(w http.ResponseWriter, r *http.Request) {
	loc, ok := cityLocation(w, r)
	if !ok {
		return
	}
	list, err := h.weather.GetWeatherAlerts(r.Context(), loc)
	recordUpstreamOutcome(err)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Alert{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetHistory handles GET /weather/{city}/history?date=YYYY-MM-DD.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	city, err := validation.ValidateLocation(mux.Vars(r)["city"], 1, maxLocationLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}
	date, err := validation.ParseHistoryDate(r.URL.Query().Get("date"), h.clock.Now())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DATE", err.Error())
		return
	}
	hist, err := h.weather.GetHistoricalWeather(r.Context(), city, date)
	recordUpstreamOutcome(err)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.recordSearch(r, city)
	writeJSON(w, http.StatusOK, hist)
}

// GetRecentSearches handles GET /searches/recent.
func (h *Handler) GetRecentSearches(w http.ResponseWriter, r *http.Request) {
	if h.searches == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	recent, err := h.searches.Recent(r.Context())
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	if recent == nil {
		recent = []string{}
	}
	writeJSON(w, http.StatusOK, recent)
}
