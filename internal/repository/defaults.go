package repository

import (
	"time"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
)

// DefaultFarmers is the demonstration data written to an empty store.
func DefaultFarmers() []models.Farmer {
	date := func(s string) time.Time {
		t, _ := time.Parse(time.DateOnly, s)
		return t
	}
	farmer := func(id, nom, prenom, email, tel, adresse, cp, ville, inscription, frequence string, cultures ...string) models.Farmer {
		return models.Farmer{
			ID:               id,
			LastName:         nom,
			FirstName:        prenom,
			Email:            email,
			Phone:            tel,
			Address:          adresse,
			PostalCode:       cp,
			City:             ville,
			Country:          "France",
			RegistrationDate: date(inscription),
			Parcelles:        []models.Parcelle{},
			Besoins:          []models.Besoin{},
			Preferences: models.Preferences{
				WeatherAlerts:         true,
				NotificationFrequency: frequence,
				TemperatureUnit:       "celsius",
				PreferredCrops:        cultures,
				Language:              "fr",
			},
		}
	}
	return []models.Farmer{
		farmer("1", "Dupont", "Jean", "jean.dupont@example.com", "06 12 34 56 78",
			"123 Rue des Agriculteurs", "75001", "Paris", "2022-01-15", "quotidienne",
			"Blé", "Maïs", "Tournesol"),
		farmer("2", "Martin", "Marie", "marie.martin@example.com", "06 98 76 54 32",
			"456 Avenue des Champs", "69002", "Lyon", "2022-03-22", "hebdomadaire",
			"Pommes", "Poires", "Prunes"),
		farmer("3", "Durand", "Pierre", "pierre.durand@example.com", "07 45 67 89 10",
			"789 Chemin des Vignes", "33000", "Bordeaux", "2021-11-05", "mensuelle",
			"Raisin", "Olivier"),
	}
}
