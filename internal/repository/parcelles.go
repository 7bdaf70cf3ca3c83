package repository

import (
	"context"
	"fmt"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
)

func (s *FarmerStore) ListParcelles(ctx context.Context, farmerID string) ([]models.Parcelle, error) {
	f, err := s.view(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	return f.Parcelles, nil
}

func (s *FarmerStore) GetParcelle(ctx context.Context, farmerID, parcelleID string) (models.Parcelle, error) {
	f, err := s.view(ctx, farmerID)
	if err != nil {
		return models.Parcelle{}, err
	}
	i := indexOfParcelle(f.Parcelles, parcelleID)
	if i < 0 {
		return models.Parcelle{}, fmt.Errorf("%w: %s", ErrParcelleNotFound, parcelleID)
	}
	return f.Parcelles[i], nil
}

func (s *FarmerStore) AddParcelle(ctx context.Context, farmerID string, p models.Parcelle) (models.Parcelle, error) {
	if err := s.check(p); err != nil {
		return models.Parcelle{}, err
	}
	p.ID = s.newID()
	err := s.mutate(ctx, farmerID, func(f *models.Farmer) error {
		f.Parcelles = append(f.Parcelles, p)
		return nil
	})
	if err != nil {
		return models.Parcelle{}, err
	}
	return p, nil
}

func (s *FarmerStore) UpdateParcelle(ctx context.Context, farmerID string, p models.Parcelle) (models.Parcelle, error) {
	if err := s.check(p); err != nil {
		return models.Parcelle{}, err
	}
	err := s.mutate(ctx, farmerID, func(f *models.Farmer) error {
		i := indexOfParcelle(f.Parcelles, p.ID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrParcelleNotFound, p.ID)
		}
		f.Parcelles[i] = p
		return nil
	})
	if err != nil {
		return models.Parcelle{}, err
	}
	return p, nil
}

// DeleteParcelle removes a parcelle and clears the link on besoins that pointed at it.
func (s *FarmerStore) DeleteParcelle(ctx context.Context, farmerID, parcelleID string) error {
	return s.mutate(ctx, farmerID, func(f *models.Farmer) error {
		i := indexOfParcelle(f.Parcelles, parcelleID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrParcelleNotFound, parcelleID)
		}
		f.Parcelles = append(f.Parcelles[:i], f.Parcelles[i+1:]...)
		// besoins on the removed parcelle stay with the farmer, unlinked
		for j := range f.Besoins {
			if f.Besoins[j].ParcelleID == parcelleID {
				f.Besoins[j].ParcelleID = ""
			}
		}
		return nil
	})
}

func indexOfParcelle(ps []models.Parcelle, id string) int {
	for i := range ps {
		if ps[i].ID == id {
			return i
		}
	}
	return -1
}
