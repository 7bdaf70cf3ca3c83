package models

import "time"

// Farmer is a registered farmer with their plots and logged needs.
// JSON keys follow the records the dashboard already persists.
type Farmer struct {
	ID               string      `json:"id"`
	LastName         string      `json:"nom" validate:"required,max=100"`
	FirstName        string      `json:"prenom" validate:"required,max=100"`
	Email            string      `json:"email" validate:"required,email"`
	Phone            string      `json:"telephone" validate:"omitempty,max=30"`
	Address          string      `json:"adresse" validate:"omitempty,max=200"`
	PostalCode       string      `json:"codePostal" validate:"omitempty,max=12"`
	City             string      `json:"ville" validate:"required,max=100"`
	Country          string      `json:"pays" validate:"required,max=100"`
	RegistrationDate time.Time   `json:"dateInscription"`
	Parcelles        []Parcelle  `json:"parcelles"`
	Besoins          []Besoin    `json:"besoins"`
	Preferences      Preferences `json:"preferences"`
}

// Coordinates locate a parcelle.
type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Parcelle is a managed land plot.
type Parcelle struct {
	ID               string      `json:"id"`
	Name             string      `json:"nom" validate:"required,max=100"`
	AreaHectares     float64     `json:"superficie" validate:"gt=0"`
	Crop             string      `json:"culture" validate:"required,max=100"`
	PlantingDate     time.Time   `json:"datePlantation"`
	EstimatedHarvest time.Time   `json:"dateRecolteEstimee"`
	Coordinates      Coordinates `json:"coordonnees"`
	SoilType         string      `json:"typeSol" validate:"omitempty,max=100"`
	Irrigated        bool        `json:"irrigation"`
	CropHistory      []string    `json:"historiqueCultures,omitempty"`
}

// BesoinType classifies a farmer need.
type BesoinType string

const (
	BesoinIrrigation    BesoinType = "irrigation"
	BesoinTraitement    BesoinType = "traitement"
	BesoinFertilisation BesoinType = "fertilisation"
	BesoinRecolte       BesoinType = "recolte"
	BesoinConseil       BesoinType = "conseil"
	BesoinAutre         BesoinType = "autre"
)

// Besoin priorities and statuses.
const (
	PriorityFaible  = "faible"
	PriorityMoyenne = "moyenne"
	PriorityHaute   = "haute"

	StatusNouveau = "nouveau"
	StatusEnCours = "en_cours"
	StatusResolu  = "resolu"
)

// Besoin is a logged farmer need.
type Besoin struct {
	ID           string     `json:"id"`
	Type         BesoinType `json:"type" validate:"required,oneof=irrigation traitement fertilisation recolte conseil autre"`
	Description  string     `json:"description" validate:"required,max=1000"`
	CreatedAt    time.Time  `json:"dateCreation"`
	Priority     string     `json:"priorite" validate:"required,oneof=faible moyenne haute"`
	Status       string     `json:"statut" validate:"required,oneof=nouveau en_cours resolu"`
	ParcelleID   string     `json:"parcelleId,omitempty"`
	WeatherAlert bool       `json:"alerteMeteo,omitempty"`
}

// Preferences are a farmer's notification and display settings.
type Preferences struct {
	WeatherAlerts         bool     `json:"alertesMeteo"`
	NotificationFrequency string   `json:"frequenceNotifications" validate:"omitempty,oneof=quotidienne hebdomadaire mensuelle aucune"`
	TemperatureUnit       string   `json:"uniteTemperature" validate:"omitempty,oneof=celsius fahrenheit"`
	PreferredCrops        []string `json:"culturesPreferees"`
	Language              string   `json:"languePreferee" validate:"omitempty,max=10"`
}

// Location is the weather location of the farmer's registered city.
func (f Farmer) Location() Location {
	return CityLocation(f.City, f.Country)
}
