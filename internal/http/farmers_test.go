package http

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/kjstillabower/agrimeteo-service/internal/client"
	"github.com/kjstillabower/agrimeteo-service/internal/models"
)

const newFarmerJSON = `{"nom":"Petit","prenom":"Luc","email":"luc.petit@example.fr","ville":"Lyon","pays":"France"}`

func createFarmer(t *testing.T, e *testEnv) models.Farmer {
	t.Helper()
	w := e.do(t, http.MethodPost, "/farmers", newFarmerJSON)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /farmers status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	return decode[models.Farmer](t, w)
}

func TestHandler_Farmers_CRUD(t *testing.T) {
	e := newTestEnv(t)

	list := decode[[]models.Farmer](t, e.do(t, http.MethodGet, "/farmers", nil))
	if len(list) != 3 {
		t.Fatalf("seeded farmers = %d, want 3", len(list))
	}

	created := createFarmer(t, e)
	if created.ID == "" {
		t.Fatal("created farmer has no id")
	}
	if !created.RegistrationDate.Equal(testNow) {
		t.Errorf("registration date = %v, want %v", created.RegistrationDate, testNow)
	}

	got := decode[models.Farmer](t, e.do(t, http.MethodGet, "/farmers/"+created.ID, nil))
	if got.Email != "luc.petit@example.fr" {
		t.Errorf("email = %q, want luc.petit@example.fr", got.Email)
	}

	update := `{"id":"ignored","nom":"Petit","prenom":"Lucas","email":"lucas.petit@example.fr","ville":"Lyon","pays":"France"}`
	w := e.do(t, http.MethodPut, "/farmers/"+created.ID, update)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	updated := decode[models.Farmer](t, w)
	if updated.ID != created.ID || updated.FirstName != "Lucas" {
		t.Errorf("updated = %s/%s, want %s/Lucas", updated.ID, updated.FirstName, created.ID)
	}
	if !updated.RegistrationDate.Equal(testNow) {
		t.Errorf("registration date changed on update: %v", updated.RegistrationDate)
	}

	if w := e.do(t, http.MethodDelete, "/farmers/"+created.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", w.Code)
	}
	assertError(t, e.do(t, http.MethodGet, "/farmers/"+created.ID, nil), http.StatusNotFound, "FARMER_NOT_FOUND")
}

func TestHandler_Farmers_Invalid(t *testing.T) {
	e := newTestEnv(t)
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"malformed json", http.MethodPost, "/farmers", `{"nom":`, http.StatusBadRequest, "INVALID_JSON"},
		{"empty body", http.MethodPost, "/farmers", ``, http.StatusBadRequest, "INVALID_JSON"},
		{"missing email", http.MethodPost, "/farmers", `{"nom":"A","prenom":"B","ville":"Lyon","pays":"France"}`, http.StatusBadRequest, "INVALID_RECORD"},
		{"bad email", http.MethodPost, "/farmers", `{"nom":"A","prenom":"B","email":"nope","ville":"Lyon","pays":"France"}`, http.StatusBadRequest, "INVALID_RECORD"},
		{"update unknown", http.MethodPut, "/farmers/missing", newFarmerJSON, http.StatusNotFound, "FARMER_NOT_FOUND"},
		{"delete unknown", http.MethodDelete, "/farmers/missing", ``, http.StatusNotFound, "FARMER_NOT_FOUND"},
		{"bad preferences", http.MethodPut, "/farmers/1/preferences", `{"uniteTemperature":"kelvin"}`, http.StatusBadRequest, "INVALID_RECORD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, tt.method, tt.path, tt.body)
			assertError(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestHandler_UpdatePreferences(t *testing.T) {
	e := newTestEnv(t)
	body := `{"alertesMeteo":false,"frequenceNotifications":"hebdomadaire","uniteTemperature":"fahrenheit","culturesPreferees":["Maïs"],"languePreferee":"fr"}`

	w := e.do(t, http.MethodPut, "/farmers/1/preferences", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	f := decode[models.Farmer](t, e.do(t, http.MethodGet, "/farmers/1", nil))
	if f.Preferences.TemperatureUnit != "fahrenheit" || f.Preferences.WeatherAlerts {
		t.Errorf("preferences = %+v, want fahrenheit without alerts", f.Preferences)
	}
}

func TestHandler_Parcelles(t *testing.T) {
	e := newTestEnv(t)
	farmer := createFarmer(t, e)
	base := "/farmers/" + farmer.ID + "/parcelles"

	w := e.do(t, http.MethodPost, base, `{"nom":"Champ Nord","superficie":2.5,"culture":"Blé","coordonnees":{"latitude":45.76,"longitude":4.84}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	p := decode[models.Parcelle](t, w)
	if p.ID == "" {
		t.Fatal("parcelle has no id")
	}

	list := decode[[]models.Parcelle](t, e.do(t, http.MethodGet, base, nil))
	if len(list) != 1 {
		t.Fatalf("parcelles = %d, want 1", len(list))
	}

	w = e.do(t, http.MethodGet, base+"/"+p.ID+"/weather", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("parcelle weather status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if loc := e.client.lastLocation(); !loc.HasCoordinates || loc.Lat != 45.76 {
		t.Errorf("parcelle weather location = %+v, want plot coordinates", loc)
	}

	w = e.do(t, http.MethodPut, base+"/"+p.ID, `{"nom":"Champ Nord","superficie":3,"culture":"Orge"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	got := decode[models.Parcelle](t, e.do(t, http.MethodGet, base+"/"+p.ID, nil))
	if got.Crop != "Orge" || got.AreaHectares != 3 {
		t.Errorf("parcelle = %+v, want Orge on 3ha", got)
	}

	assertError(t, e.do(t, http.MethodPost, base, `{"nom":"X","superficie":0,"culture":"Blé"}`), http.StatusBadRequest, "INVALID_RECORD")

	if w := e.do(t, http.MethodDelete, base+"/"+p.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", w.Code)
	}
	assertError(t, e.do(t, http.MethodGet, base+"/"+p.ID, nil), http.StatusNotFound, "PARCELLE_NOT_FOUND")
	assertError(t, e.do(t, http.MethodGet, "/farmers/missing/parcelles", nil), http.StatusNotFound, "FARMER_NOT_FOUND")
}

func TestHandler_ParcelleWeather_FallsBackToFarmerCity(t *testing.T) {
	e := newTestEnv(t)
	farmer := createFarmer(t, e)
	p := decode[models.Parcelle](t, e.do(t, http.MethodPost, "/farmers/"+farmer.ID+"/parcelles", `{"nom":"Verger","superficie":1,"culture":"Pommes"}`))

	w := e.do(t, http.MethodGet, "/farmers/"+farmer.ID+"/parcelles/"+p.ID+"/weather", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if loc := e.client.lastLocation(); loc.Query() != "Lyon,France" {
		t.Errorf("location = %q, want Lyon,France", loc.Query())
	}
}

func TestHandler_Besoins(t *testing.T) {
	e := newTestEnv(t)
	farmer := createFarmer(t, e)
	base := "/farmers/" + farmer.ID + "/besoins"

	w := e.do(t, http.MethodPost, base, `{"type":"irrigation","description":"Arrosage du champ nord","priorite":"haute","statut":"nouveau"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	b := decode[models.Besoin](t, w)
	if b.ID == "" || !b.CreatedAt.Equal(testNow) {
		t.Errorf("besoin = %+v, want id and creation date %v", b, testNow)
	}

	w = e.do(t, http.MethodPut, base+"/"+b.ID, `{"type":"irrigation","description":"Arrosage du champ nord","priorite":"haute","statut":"resolu"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	got := decode[models.Besoin](t, e.do(t, http.MethodGet, base+"/"+b.ID, nil))
	if got.Status != models.StatusResolu {
		t.Errorf("status = %q, want resolu", got.Status)
	}

	assertError(t, e.do(t, http.MethodPost, base, `{"type":"vendange","description":"x","priorite":"haute","statut":"nouveau"}`), http.StatusBadRequest, "INVALID_RECORD")
	assertError(t, e.do(t, http.MethodPost, base, `{"type":"conseil","description":"x","priorite":"haute","statut":"nouveau","parcelleId":"nope"}`), http.StatusNotFound, "PARCELLE_NOT_FOUND")

	list := decode[[]models.Besoin](t, e.do(t, http.MethodGet, base, nil))
	if len(list) != 1 {
		t.Errorf("besoins = %d, want 1", len(list))
	}
	if w := e.do(t, http.MethodDelete, base+"/"+b.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", w.Code)
	}
	assertError(t, e.do(t, http.MethodDelete, base+"/"+b.ID, nil), http.StatusNotFound, "BESOIN_NOT_FOUND")
}

type farmerWeather struct {
	FarmerID string                         `json:"farmerId"`
	Name     string                         `json:"name"`
	Location string                         `json:"location"`
	Weather  *models.AgricultureWeatherData `json:"weather"`
	Error    string                         `json:"error"`
}

func TestHandler_GetFarmersWeather(t *testing.T) {
	e := newTestEnv(t)
	e.client.failFor = map[string]error{
		"city:lyon,france": fmt.Errorf("%w: HTTP 503", client.ErrUpstreamFailure),
	}

	w := e.do(t, http.MethodGet, "/farmers/weather", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	got := decode[[]farmerWeather](t, w)
	if len(got) != 3 {
		t.Fatalf("results = %d, want 3", len(got))
	}
	wantIDs := []string{"1", "2", "3"}
	for i, res := range got {
		if res.FarmerID != wantIDs[i] {
			t.Errorf("results[%d].farmerId = %q, want %q (input order)", i, res.FarmerID, wantIDs[i])
		}
	}
	if got[0].Weather == nil || got[0].Weather.Location != "Paris" {
		t.Errorf("Paris result = %+v, want weather", got[0])
	}
	if got[1].Weather != nil || got[1].Error == "" {
		t.Errorf("Lyon result = %+v, want an error and no weather", got[1])
	}
	if got[2].Weather == nil {
		t.Errorf("Bordeaux result = %+v, want weather", got[2])
	}
	if got[0].Name != "Jean Dupont" {
		t.Errorf("name = %q, want Jean Dupont", got[0].Name)
	}
}
