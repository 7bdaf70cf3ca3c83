package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across client, http, service, and cache packages.
func TestMetrics_Usable(t *testing.T) {
	// Route uses path template to avoid cardinality (e.g. /weather/{city} not /weather/paris)
	HTTPRequestsTotal.WithLabelValues("GET", "/weather/{city}", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/weather/{city}").Observe(0.01)
	HTTPErrorsTotal.WithLabelValues("location_not_found").Inc()
	WeatherAPICallsTotal.WithLabelValues("weather", "success").Inc()
	WeatherAPICallsTotal.WithLabelValues("forecast", "error").Inc()
	WeatherAPIDuration.WithLabelValues("geocode", "success").Observe(0.1)
	WeatherAPIErrorsTotal.WithLabelValues("timeout").Inc()
	ArchiveAPICallsTotal.WithLabelValues("success").Inc()
	ArchiveAPIDuration.Observe(0.2)
	CacheHitsTotal.WithLabelValues("fresh").Inc()
	CacheErrorsTotal.WithLabelValues("get", "timeout").Inc()
	CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(0.001)
	StaleCacheServesTotal.WithLabelValues("other").Inc()
	StaleCacheAgeSeconds.Observe(120)
	CacheStampedeDetectedTotal.WithLabelValues("other").Inc()
	CacheStampedeConcurrency.WithLabelValues("other").Observe(3)
	RequestCoalescingHitsTotal.WithLabelValues("other").Inc()
	RequestCoalescingWaitSeconds.Observe(0.05)
	CacheWarmingTotal.Inc()
	CacheWarmingErrorsTotal.Inc()
	CacheWarmingDurationSeconds.Observe(1)
	FarmerWeatherFetchesTotal.WithLabelValues("success").Inc()
	WeatherQueriesTotal.Inc()
	WeatherQueriesByLocationTotal.WithLabelValues("paris").Inc()
	WeatherQueriesByLocationTotal.WithLabelValues("other").Inc()
	ActiveAlerts.Set(2)
	AlertsGeneratedTotal.Inc()
	RecordShutdownInFlight(3)
}

func TestCircuitBreakerHelpers(t *testing.T) {
	SetCircuitBreakerStateGauge("openweather", CircuitBreakerStateValue(1))
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("openweather")); got != 1 {
		t.Errorf("circuitBreakerState = %v, want 1", got)
	}

	before := testutil.ToFloat64(CircuitBreakerTransitionsTotal.WithLabelValues("openweather", "closed", "open"))
	RecordCircuitBreakerTransition("openweather", "closed", "open")
	after := testutil.ToFloat64(CircuitBreakerTransitionsTotal.WithLabelValues("openweather", "closed", "open"))
	if after != before+1 {
		t.Errorf("transitions = %v, want %v", after, before+1)
	}
}

func TestRecordJobRun(t *testing.T) {
	okBefore := testutil.ToFloat64(SchedulerJobRunsTotal.WithLabelValues("alert_refresh", "success"))
	errBefore := testutil.ToFloat64(SchedulerJobRunsTotal.WithLabelValues("alert_refresh", "error"))

	RecordJobRun("alert_refresh", nil)
	RecordJobRun("alert_refresh", errors.New("upstream"))

	if got := testutil.ToFloat64(SchedulerJobRunsTotal.WithLabelValues("alert_refresh", "success")); got != okBefore+1 {
		t.Errorf("success runs = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(SchedulerJobRunsTotal.WithLabelValues("alert_refresh", "error")); got != errBefore+1 {
		t.Errorf("error runs = %v, want %v", got, errBefore+1)
	}
}

// TestSetTrackedLocations_and_RecordWeatherQuery verifies that SetTrackedLocations
// configures location allow-list and RecordWeatherQuery correctly labels tracked vs "other" locations.
func TestSetTrackedLocations_and_RecordWeatherQuery(t *testing.T) {
	SetTrackedLocations([]string{"Paris", "lyon"})
	defer SetTrackedLocations(nil)

	parisBefore := testutil.ToFloat64(WeatherQueriesByLocationTotal.WithLabelValues("paris"))
	otherBefore := testutil.ToFloat64(WeatherQueriesByLocationTotal.WithLabelValues("other"))

	RecordWeatherQuery(" PARIS ")
	RecordWeatherQuery("unknown-city")

	if got := testutil.ToFloat64(WeatherQueriesByLocationTotal.WithLabelValues("paris")); got != parisBefore+1 {
		t.Errorf("paris queries = %v, want %v", got, parisBefore+1)
	}
	if got := testutil.ToFloat64(WeatherQueriesByLocationTotal.WithLabelValues("other")); got != otherBefore+1 {
		t.Errorf("other queries = %v, want %v", got, otherBefore+1)
	}
}

func TestMetricLocationLabel(t *testing.T) {
	SetTrackedLocations([]string{"city:paris"})
	defer SetTrackedLocations(nil)

	if got := MetricLocationLabel("CITY:Paris"); got != "city:paris" {
		t.Errorf("MetricLocationLabel(tracked) = %q, want city:paris", got)
	}
	if got := MetricLocationLabel("city:brest"); got != "other" {
		t.Errorf("MetricLocationLabel(untracked) = %q, want other", got)
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
