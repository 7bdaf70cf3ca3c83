package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
)

// ListFarmers handles GET /farmers.
func (h *Handler) ListFarmers(w http.ResponseWriter, r *http.Request) {
	farmers, err := h.farmers.ListFarmers(r.Context())
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, farmers)
}

// CreateFarmer handles POST /farmers.
func (h *Handler) CreateFarmer(w http.ResponseWriter, r *http.Request) {
	var f models.Farmer
	if err := decodeJSON(w, r, &f); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	created, err := h.farmers.AddFarmer(r.Context(), f)
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetFarmer handles GET /farmers/{id}.
func (h *Handler) GetFarmer(w http.ResponseWriter, r *http.Request) {
	f, err := h.farmers.GetFarmer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// UpdateFarmer handles PUT /farmers/{id}. The path ID wins over the body.
func (h *Handler) UpdateFarmer(w http.ResponseWriter, r *http.Request) {
	var f models.Farmer
	if err := decodeJSON(w, r, &f); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	f.ID = mux.Vars(r)["id"]
	updated, err := h.farmers.UpdateFarmer(r.Context(), f)
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteFarmer handles DELETE /farmers/{id}.
func (h *Handler) DeleteFarmer(w http.ResponseWriter, r *http.Request) {
	if err := h.farmers.DeleteFarmer(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdatePreferences handles PUT /farmers/{id}/preferences.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var p models.Preferences
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	saved, err := h.farmers.UpdatePreferences(r.Context(), mux.Vars(r)["id"], p)
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type farmerWeatherResponse struct {
	FarmerID string                         `json:"farmerId"`
	Name     string                         `json:"name"`
	Location string                         `json:"location"`
	Weather  *models.AgricultureWeatherData `json:"weather,omitempty"`
	Error    string                         `json:"error,omitempty"`
}

// GetFarmersWeather handles GET /farmers/weather: current weather for every
// farmer's city, with per-farmer failures reported inline.
func (h *Handler) GetFarmersWeather(w http.ResponseWriter, r *http.Request) {
	farmers, err := h.farmers.ListFarmers(r.Context())
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	results := h.weather.GatherFarmerWeather(r.Context(), farmers)
	out := make([]farmerWeatherResponse, len(results))
	for i, res := range results {
		recordUpstreamOutcome(res.Err)
		out[i] = farmerWeatherResponse{
			FarmerID: res.FarmerID,
			Name:     farmers[i].FirstName + " " + farmers[i].LastName,
			Location: res.Location.String(),
		}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
			continue
		}
		weather := res.Weather
		out[i].Weather = &weather
	}
	writeJSON(w, http.StatusOK, out)
}

// ListParcelles handles GET /farmers/{id}/parcelles.
func (h *Handler) ListParcelles(w http.ResponseWriter, r *http.Request) {
	ps, err := h.farmers.ListParcelles(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// CreateParcelle handles POST /farmers/{id}/parcelles.
func (h *Handler) CreateParcelle(w http.ResponseWriter, r *http.Request) {
	var p models.Parcelle
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	created, err := h.farmers.AddParcelle(r.Context(), mux.Vars(r)["id"], p)
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetParcelle handles GET /farmers/{id}/parcelles/{pid}.
func (h *Handler) GetParcelle(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	p, err := h.farmers.GetParcelle(r.Context(), vars["id"], vars["pid"])
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateParcelle handles PUT /farmers/{id}/parcelles/{pid}.
func (h *Handler) UpdateParcelle(w http.ResponseWriter, r *http.Request) {
	var p models.Parcelle
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	vars := mux.Vars(r)
	p.ID = vars["pid"]
	updated, err := h.farmers.UpdateParcelle(r.Context(), vars["id"], p)
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteParcelle handles DELETE /farmers/{id}/parcelles/{pid}.
func (h *Handler) DeleteParcelle(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.farmers.DeleteParcelle(r.Context(), vars["id"], vars["pid"]); err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetParcelleWeather handles GET /farmers/{id}/parcelles/{pid}/weather. Plots
// without coordinates use the farmer's city.
func (h *Handler) GetParcelleWeather(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	f, err := h.farmers.GetFarmer(r.Context(), vars["id"])
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	p, err := h.farmers.GetParcelle(r.Context(), vars["id"], vars["pid"])
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	loc := f.Location()
	if c := p.Coordinates; c.Latitude != 0 || c.Longitude != 0 {
		loc = models.CoordinateLocation(c.Latitude, c.Longitude)
	}
	h.respondCurrent(w, r, loc)
}

// ListBesoins handles GET /farmers/{id}/besoins.
func (h *Handler) ListBesoins(w http.ResponseWriter, r *http.Request) {
	bs, err := h.farmers.ListBesoins(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bs)
}

// CreateBesoin handles POST /farmers/{id}/besoins.
func (h *Handler) CreateBesoin(w http.ResponseWriter, r *http.Request) {
	var b models.Besoin
	if err := decodeJSON(w, r, &b); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	created, err := h.farmers.AddBesoin(r.Context(), mux.Vars(r)["id"], b)
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetBesoin handles GET /farmers/{id}/besoins/{bid}.
func (h *Handler) GetBesoin(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	b, err := h.farmers.GetBesoin(r.Context(), vars["id"], vars["bid"])
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// UpdateBesoin handles PUT /farmers/{id}/besoins/{bid}.
func (h *Handler) UpdateBesoin(w http.ResponseWriter, r *http.Request) {
	var b models.Besoin
	if err := decodeJSON(w, r, &b); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	vars := mux.Vars(r)
	b.ID = vars["bid"]
	updated, err := h.farmers.UpdateBesoin(r.Context(), vars["id"], b)
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteBesoin handles DELETE /farmers/{id}/besoins/{bid}.
func (h *Handler) DeleteBesoin(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.farmers.DeleteBesoin(r.Context(), vars["id"], vars["bid"]); err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
