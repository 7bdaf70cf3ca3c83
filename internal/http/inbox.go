package http

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
	"github.com/kjstillabower/agrimeteo-service/internal/validation"
)

// ListAlerts handles GET /alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	active, err := h.inbox.Active(r.Context())
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, active)
}

// CreateAlert handles POST /alerts.
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var a models.Alert
	if err := decodeJSON(w, r, &a); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	a.ID = strings.TrimSpace(a.ID)
	if a.ID == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_ALERT", "alert id is required")
		return
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = h.clock.Now().UTC()
	}
	if err := h.inbox.Add(r.Context(), a); err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GetUnreadCount handles GET /alerts/unread.
func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.inbox.UnreadCount(r.Context())
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// ListDismissed handles GET /alerts/dismissed.
func (h *Handler) ListDismissed(w http.ResponseWriter, r *http.Request) {
	dismissed, err := h.inbox.Dismissed(r.Context())
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dismissed)
}

// ClearDismissed handles DELETE /alerts/dismissed.
func (h *Handler) ClearDismissed(w http.ResponseWriter, r *http.Request) {
	if err := h.inbox.ClearDismissed(r.Context()); err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DismissAlert handles POST /alerts/{id}/dismiss.
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.inbox.Dismiss(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveDismissed handles DELETE /alerts/dismissed/{id}.
func (h *Handler) RemoveDismissed(w http.ResponseWriter, r *http.Request) {
	if err := h.inbox.RemoveDismissed(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllAsRead handles POST /alerts/read-all.
func (h *Handler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.inbox.MarkAllAsRead(r.Context()); err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type refreshResponse struct {
	Location string         `json:"location"`
	Added    []models.Alert `json:"added"`
	Unread   int            `json:"unread"`
}

// RefreshAlerts handles POST /alerts/refresh?city=&country=. Without a city the
// configured alert location is used.
func (h *Handler) RefreshAlerts(w http.ResponseWriter, r *http.Request) {
	loc := h.alertLocation
	q := r.URL.Query()
	if raw := q.Get("city"); raw != "" {
		city, err := validation.ValidateLocation(raw, 1, maxLocationLen)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
			return
		}
		loc = models.CityLocation(city, q.Get("country"))
	}
	if loc.City == "" && !loc.HasCoordinates {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", "no alert location configured")
		return
	}

	added, err := h.inbox.Refresh(r.Context(), loc)
	recordUpstreamOutcome(err)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	unread, err := h.inbox.UnreadCount(r.Context())
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	if added == nil {
		added = []models.Alert{}
	}
	writeJSON(w, http.StatusOK, refreshResponse{Location: loc.String(), Added: added, Unread: unread})
}
