package repository

import (
	"context"
	"fmt"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
)

func (s *FarmerStore) ListBesoins(ctx context.Context, farmerID string) ([]models.Besoin, error) {
	f, err := s.view(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	return f.Besoins, nil
}

func (s *FarmerStore) GetBesoin(ctx context.Context, farmerID, besoinID string) (models.Besoin, error) {
	f, err := s.view(ctx, farmerID)
	if err != nil {
		return models.Besoin{}, err
	}
	i := indexOfBesoin(f.Besoins, besoinID)
	if i < 0 {
		return models.Besoin{}, fmt.Errorf("%w: %s", ErrBesoinNotFound, besoinID)
	}
	return f.Besoins[i], nil
}

// AddBesoin assigns an ID and creation date; status defaults to nouveau and
// priority to moyenne. A besoin linked to a parcelle requires that parcelle to
// exist on the same farmer.
func (s *FarmerStore) AddBesoin(ctx context.Context, farmerID string, b models.Besoin) (models.Besoin, error) {
	if b.Status == "" {
		b.Status = models.StatusNouveau
	}
	if b.Priority == "" {
		b.Priority = models.PriorityMoyenne
	}
	if err := s.check(b); err != nil {
		return models.Besoin{}, err
	}
	b.ID = s.newID()
	b.CreatedAt = s.clock.Now().UTC()
	err := s.mutate(ctx, farmerID, func(f *models.Farmer) error {
		if err := checkParcelleLink(f, b.ParcelleID); err != nil {
			return err
		}
		f.Besoins = append(f.Besoins, b)
		return nil
	})
	if err != nil {
		return models.Besoin{}, err
	}
	return b, nil
}

// UpdateBesoin replaces a besoin. A zero creation date keeps the stored one.
// The parcelle link is only checked when it changes.
func (s *FarmerStore) UpdateBesoin(ctx context.Context, farmerID string, b models.Besoin) (models.Besoin, error) {
	if err := s.check(b); err != nil {
		return models.Besoin{}, err
	}
	err := s.mutate(ctx, farmerID, func(f *models.Farmer) error {
		i := indexOfBesoin(f.Besoins, b.ID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrBesoinNotFound, b.ID)
		}
		if b.ParcelleID != f.Besoins[i].ParcelleID {
			if err := checkParcelleLink(f, b.ParcelleID); err != nil {
				return err
			}
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = f.Besoins[i].CreatedAt
		}
		f.Besoins[i] = b
		return nil
	})
	if err != nil {
		return models.Besoin{}, err
	}
	return b, nil
}

func (s *FarmerStore) DeleteBesoin(ctx context.Context, farmerID, besoinID string) error {
	return s.mutate(ctx, farmerID, func(f *models.Farmer) error {
		i := indexOfBesoin(f.Besoins, besoinID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrBesoinNotFound, besoinID)
		}
		f.Besoins = append(f.Besoins[:i], f.Besoins[i+1:]...)
		return nil
	})
}

func checkParcelleLink(f *models.Farmer, parcelleID string) error {
	if parcelleID == "" {
		return nil
	}
	if indexOfParcelle(f.Parcelles, parcelleID) < 0 {
		return fmt.Errorf("%w: %s", ErrParcelleNotFound, parcelleID)
	}
	return nil
}

func indexOfBesoin(bs []models.Besoin, id string) int {
	for i := range bs {
		if bs[i].ID == id {
			return i
		}
	}
	return -1
}
