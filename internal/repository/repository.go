// Package repository manages farmer records on top of a storage.Backend.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
	"github.com/kjstillabower/agrimeteo-service/internal/storage"
)

var (
	ErrFarmerNotFound   = errors.New("farmer not found")
	ErrParcelleNotFound = errors.New("parcelle not found")
	ErrBesoinNotFound   = errors.New("besoin not found")
	ErrInvalidRecord    = errors.New("invalid record")
)

// FarmerRepository is the record store for farmers and their parcelles, besoins and preferences.
type FarmerRepository interface {
	ListFarmers(ctx context.Context) ([]models.Farmer, error)
	GetFarmer(ctx context.Context, id string) (models.Farmer, error)
	AddFarmer(ctx context.Context, f models.Farmer) (models.Farmer, error)
	UpdateFarmer(ctx context.Context, f models.Farmer) (models.Farmer, error)
	DeleteFarmer(ctx context.Context, id string) error
	UpdatePreferences(ctx context.Context, farmerID string, p models.Preferences) (models.Preferences, error)

	ListParcelles(ctx context.Context, farmerID string) ([]models.Parcelle, error)
	GetParcelle(ctx context.Context, farmerID, parcelleID string) (models.Parcelle, error)
	AddParcelle(ctx context.Context, farmerID string, p models.Parcelle) (models.Parcelle, error)
	UpdateParcelle(ctx context.Context, farmerID string, p models.Parcelle) (models.Parcelle, error)
	DeleteParcelle(ctx context.Context, farmerID, parcelleID string) error

	ListBesoins(ctx context.Context, farmerID string) ([]models.Besoin, error)
	GetBesoin(ctx context.Context, farmerID, besoinID string) (models.Besoin, error)
	AddBesoin(ctx context.Context, farmerID string, b models.Besoin) (models.Besoin, error)
	UpdateBesoin(ctx context.Context, farmerID string, b models.Besoin) (models.Besoin, error)
	DeleteBesoin(ctx context.Context, farmerID, besoinID string) error
}

// FarmerStore implements FarmerRepository. The whole collection is stored as
// one blob under storage.KeyFarmers; every mutation is a load-modify-save under
// a single lock.
type FarmerStore struct {
	mu       sync.Mutex
	backend  storage.Backend
	validate *validator.Validate
	clock    clockwork.Clock
	newID    func() string
	logger   *zap.Logger
}

// NewFarmerStore returns a store over backend. A nil clock uses the real clock.
func NewFarmerStore(backend storage.Backend, clock clockwork.Clock, logger *zap.Logger) *FarmerStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FarmerStore{
		backend:  backend,
		validate: validator.New(),
		clock:    clock,
		newID:    func() string { return uuid.New().String() },
		logger:   logger,
	}
}

// load reads the collection, seeding the default farmers when nothing is stored yet.
// Callers hold s.mu.
func (s *FarmerStore) load(ctx context.Context) ([]models.Farmer, error) {
	var farmers []models.Farmer
	found, err := storage.LoadJSON(ctx, s.backend, storage.KeyFarmers, &farmers)
	if err != nil {
		return nil, err
	}
	if !found {
		farmers = DefaultFarmers()
		if err := s.save(ctx, farmers); err != nil {
			return nil, err
		}
		s.logger.Info("seeded default farmers", zap.Int("count", len(farmers)))
	}
	for i := range farmers {
		normalize(&farmers[i])
	}
	return farmers, nil
}

func (s *FarmerStore) save(ctx context.Context, farmers []models.Farmer) error {
	return storage.SaveJSON(ctx, s.backend, storage.KeyFarmers, farmers)
}

// mutate runs fn on the farmer with id and persists the collection when fn succeeds.
func (s *FarmerStore) mutate(ctx context.Context, id string, fn func(f *models.Farmer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	farmers, err := s.load(ctx)
	if err != nil {
		return err
	}
	i := indexOfFarmer(farmers, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrFarmerNotFound, id)
	}
	if err := fn(&farmers[i]); err != nil {
		return err
	}
	return s.save(ctx, farmers)
}

// view runs fn on a copy of the farmer with id.
func (s *FarmerStore) view(ctx context.Context, id string) (models.Farmer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	farmers, err := s.load(ctx)
	if err != nil {
		return models.Farmer{}, err
	}
	i := indexOfFarmer(farmers, id)
	if i < 0 {
		return models.Farmer{}, fmt.Errorf("%w: %s", ErrFarmerNotFound, id)
	}
	return farmers[i], nil
}

func (s *FarmerStore) check(v interface{}) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", ErrInvalidRecord, describe(verrs))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

func (s *FarmerStore) ListFarmers(ctx context.Context) ([]models.Farmer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *FarmerStore) GetFarmer(ctx context.Context, id string) (models.Farmer, error) {
	return s.view(ctx, id)
}

// AddFarmer assigns a new ID and registration date and starts with no parcelles or besoins.
func (s *FarmerStore) AddFarmer(ctx context.Context, f models.Farmer) (models.Farmer, error) {
	if err := s.check(f); err != nil {
		return models.Farmer{}, err
	}
	f.ID = s.newID()
	f.RegistrationDate = s.clock.Now().UTC()
	f.Parcelles = []models.Parcelle{}
	f.Besoins = []models.Besoin{}

	s.mu.Lock()
	defer s.mu.Unlock()
	farmers, err := s.load(ctx)
	if err != nil {
		return models.Farmer{}, err
	}
	farmers = append(farmers, f)
	if err := s.save(ctx, farmers); err != nil {
		return models.Farmer{}, err
	}
	normalize(&f)
	return f, nil
}

// UpdateFarmer replaces the farmer's profile. Nil parcelle or besoin lists and a
// zero registration date keep the stored values.
func (s *FarmerStore) UpdateFarmer(ctx context.Context, f models.Farmer) (models.Farmer, error) {
	if err := s.check(f); err != nil {
		return models.Farmer{}, err
	}
	var out models.Farmer
	err := s.mutate(ctx, f.ID, func(cur *models.Farmer) error {
		if f.Parcelles == nil {
			f.Parcelles = cur.Parcelles
		}
		if f.Besoins == nil {
			f.Besoins = cur.Besoins
		}
		if f.RegistrationDate.IsZero() {
			f.RegistrationDate = cur.RegistrationDate
		}
		normalize(&f)
		*cur = f
		out = f
		return nil
	})
	return out, err
}

func (s *FarmerStore) DeleteFarmer(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	farmers, err := s.load(ctx)
	if err != nil {
		return err
	}
	i := indexOfFarmer(farmers, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrFarmerNotFound, id)
	}
	farmers = append(farmers[:i], farmers[i+1:]...)
	return s.save(ctx, farmers)
}

func (s *FarmerStore) UpdatePreferences(ctx context.Context, farmerID string, p models.Preferences) (models.Preferences, error) {
	if err := s.check(p); err != nil {
		return models.Preferences{}, err
	}
	err := s.mutate(ctx, farmerID, func(f *models.Farmer) error {
		f.Preferences = p
		return nil
	})
	if err != nil {
		return models.Preferences{}, err
	}
	return p, nil
}

func indexOfFarmer(farmers []models.Farmer, id string) int {
	for i := range farmers {
		if farmers[i].ID == id {
			return i
		}
	}
	return -1
}

// normalize replaces nil collections so they serialize as [].
func normalize(f *models.Farmer) {
	if f.Parcelles == nil {
		f.Parcelles = []models.Parcelle{}
	}
	if f.Besoins == nil {
		f.Besoins = []models.Besoin{}
	}
	if f.Preferences.PreferredCrops == nil {
		f.Preferences.PreferredCrops = []string{}
	}
}

func describe(errs validator.ValidationErrors) string {
	msg := ""
	for i, fe := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
	}
	return msg
}
