// Package scheduler runs the periodic background jobs: alert refresh for the
// configured alert location, cache warming for farmer cities and the in-memory
// cache sweep.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
	"github.com/kjstillabower/agrimeteo-service/internal/observability"
)

const (
	JobAlertRefresh = "alert_refresh"
	JobCacheWarm    = "cache_warm"
	JobCacheSweep   = "cache_sweep"
)

// AlertRefresher adds newly synthesized alerts for a location to the inbox.
type AlertRefresher interface {
	Refresh(ctx context.Context, loc models.Location) ([]models.Alert, error)
}

// Warmer prefetches weather for locations.
type Warmer interface {
	Warm(ctx context.Context, locations []models.Location) error
}

// Sweeper drops cache entries past their retention window.
type Sweeper interface {
	Sweep() int
}

// FarmerLister lists the registered farmers whose cities are warmed.
type FarmerLister interface {
	ListFarmers(ctx context.Context) ([]models.Farmer, error)
}

// Config holds job intervals. A zero interval disables that job.
type Config struct {
	AlertInterval time.Duration
	AlertLocation models.Location
	WarmInterval  time.Duration
	// Extra locations warmed alongside farmer cities.
	WarmLocations []models.Location
	SweepInterval time.Duration
	JobTimeout    time.Duration
}

// Scheduler wraps a gocron scheduler running in UTC.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cfg       Config
	alerts    AlertRefresher
	warmer    Warmer
	farmers   FarmerLister
	sweeper   Sweeper
	logger    *zap.Logger
}

// New creates a Scheduler. Any of alerts, warmer or farmers may be nil to skip
// the jobs that need them.
func New(cfg Config, alerts AlertRefresher, warmer Warmer, farmers FarmerLister, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		cfg:       cfg,
		alerts:    alerts,
		warmer:    warmer,
		farmers:   farmers,
		logger:    logger,
	}
}

// SetSweeper enables the cache sweep job. Call before Start.
func (s *Scheduler) SetSweeper(sw Sweeper) {
	s.sweeper = sw
}

// Start schedules the enabled jobs and starts the scheduler. Jobs run once
// immediately, then every interval.
func (s *Scheduler) Start() error {
	scheduled := 0
	if s.alerts != nil && s.cfg.AlertInterval > 0 {
		if _, err := s.scheduler.Every(s.cfg.AlertInterval).Tag(JobAlertRefresh).Do(s.runJob, JobAlertRefresh, s.RunAlertRefresh); err != nil {
			return err
		}
		scheduled++
	}
	if s.warmer != nil && s.cfg.WarmInterval > 0 {
		if _, err := s.scheduler.Every(s.cfg.WarmInterval).Tag(JobCacheWarm).Do(s.runJob, JobCacheWarm, s.RunCacheWarm); err != nil {
			return err
		}
		scheduled++
	}
	if s.sweeper != nil && s.cfg.SweepInterval > 0 {
		if _, err := s.scheduler.Every(s.cfg.SweepInterval).Tag(JobCacheSweep).Do(s.runJob, JobCacheSweep, s.RunCacheSweep); err != nil {
			return err
		}
		scheduled++
	}
	if scheduled == 0 {
		s.logger.Info("scheduler: no jobs enabled")
		return nil
	}
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started",
		zap.Int("jobs", scheduled),
		zap.Duration("alert_interval", s.cfg.AlertInterval),
		zap.Duration("warm_interval", s.cfg.WarmInterval),
		zap.Duration("sweep_interval", s.cfg.SweepInterval),
	)
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler.IsRunning() {
		s.scheduler.Stop()
	}
}

// Jobs reports the tags of the scheduled jobs.
func (s *Scheduler) Jobs() []string {
	var tags []string
	for _, j := range s.scheduler.Jobs() {
		tags = append(tags, j.Tags()...)
	}
	return tags
}

func (s *Scheduler) runJob(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()
	start := time.Now()
	err := fn(ctx)
	observability.RecordJobRun(name, err)
	if err != nil {
		s.logger.Warn("scheduled job failed", zap.String("job", name), zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	s.logger.Debug("scheduled job complete", zap.String("job", name), zap.Duration("duration", time.Since(start)))
}

// RunAlertRefresh refreshes the inbox for the configured alert location.
func (s *Scheduler) RunAlertRefresh(ctx context.Context) error {
	if s.alerts == nil {
		return errors.New("alert refresh: no inbox configured")
	}
	_, err := s.alerts.Refresh(ctx, s.cfg.AlertLocation)
	return err
}

// RunCacheWarm warms the configured locations plus every distinct farmer city.
func (s *Scheduler) RunCacheWarm(ctx context.Context) error {
	if s.warmer == nil {
		return errors.New("cache warm: no warmer configured")
	}
	locations, err := s.warmLocations(ctx)
	if err != nil {
		return err
	}
	return s.warmer.Warm(ctx, locations)
}

// RunCacheSweep removes expired cache entries that were never read again.
func (s *Scheduler) RunCacheSweep(ctx context.Context) error {
	if s.sweeper == nil {
		return errors.New("cache sweep: no sweeper configured")
	}
	if n := s.sweeper.Sweep(); n > 0 {
		s.logger.Debug("cache sweep", zap.Int("removed", n))
	}
	return nil
}

func (s *Scheduler) warmLocations(ctx context.Context) ([]models.Location, error) {
	seen := make(map[string]bool)
	var out []models.Location
	add := func(loc models.Location) {
		if loc.City == "" && !loc.HasCoordinates {
			return
		}
		if seen[loc.Key()] {
			return
		}
		seen[loc.Key()] = true
		out = append(out, loc)
	}
	for _, loc := range s.cfg.WarmLocations {
		add(loc)
	}
	if s.farmers != nil {
		farmers, err := s.farmers.ListFarmers(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range farmers {
			add(f.Location())
		}
	}
	return out, nil
}
