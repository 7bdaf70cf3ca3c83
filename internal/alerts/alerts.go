// Package alerts keeps the weather alert inbox: active alerts and the ones the
// user dismissed, both persisted through a storage.Backend.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
	"github.com/kjstillabower/agrimeteo-service/internal/observability"
	"github.com/kjstillabower/agrimeteo-service/internal/storage"
)

var (
	ErrAlertNotFound = errors.New("alert not found")
	ErrAlertExists   = errors.New("alert already exists")
)

// Source synthesizes alerts for a location.
type Source interface {
	GetWeatherAlerts(ctx context.Context, loc models.Location) ([]models.Alert, error)
}

// Inbox holds the active and dismissed alert lists. Every operation is a
// load-modify-save of both lists under one lock.
type Inbox struct {
	mu      sync.Mutex
	backend storage.Backend
	source  Source
	logger  *zap.Logger
}

type lists struct {
	active    []models.Alert
	dismissed []models.Alert
}

// NewInbox returns an inbox persisted in backend. source may be nil if Refresh is unused.
func NewInbox(backend storage.Backend, source Source, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{backend: backend, source: source, logger: logger}
}

func (in *Inbox) load(ctx context.Context) (lists, error) {
	var l lists
	if _, err := storage.LoadJSON(ctx, in.backend, storage.KeyActiveAlerts, &l.active); err != nil {
		return lists{}, fmt.Errorf("load active alerts: %w", err)
	}
	if _, err := storage.LoadJSON(ctx, in.backend, storage.KeyDismissedAlerts, &l.dismissed); err != nil {
		return lists{}, fmt.Errorf("load dismissed alerts: %w", err)
	}
	if l.active == nil {
		l.active = []models.Alert{}
	}
	if l.dismissed == nil {
		l.dismissed = []models.Alert{}
	}
	return l, nil
}

func (in *Inbox) save(ctx context.Context, l lists) error {
	if err := storage.SaveJSON(ctx, in.backend, storage.KeyActiveAlerts, l.active); err != nil {
		return fmt.Errorf("save active alerts: %w", err)
	}
	if err := storage.SaveJSON(ctx, in.backend, storage.KeyDismissedAlerts, l.dismissed); err != nil {
		return fmt.Errorf("save dismissed alerts: %w", err)
	}
	observability.ActiveAlerts.Set(float64(len(l.active)))
	return nil
}

func (in *Inbox) update(ctx context.Context, fn func(l *lists) error) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	l, err := in.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(&l); err != nil {
		return err
	}
	return in.save(ctx, l)
}

func (in *Inbox) read(ctx context.Context) (lists, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.load(ctx)
}

// Active returns the active alerts, newest first.
func (in *Inbox) Active(ctx context.Context) ([]models.Alert, error) {
	l, err := in.read(ctx)
	return l.active, err
}

// Dismissed returns the dismissed alerts, most recently dismissed first.
func (in *Inbox) Dismissed(ctx context.Context) ([]models.Alert, error) {
	l, err := in.read(ctx)
	return l.dismissed, err
}

// UnreadCount is the number of active alerts not flagged dismissed.
func (in *Inbox) UnreadCount(ctx context.Context) (int, error) {
	l, err := in.read(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range l.active {
		if !a.Dismissed {
			n++
		}
	}
	return n, nil
}

// Add appends an alert to the active list.
func (in *Inbox) Add(ctx context.Context, a models.Alert) error {
	if a.ID == "" {
		return fmt.Errorf("add alert: empty id")
	}
	return in.update(ctx, func(l *lists) error {
		if indexOf(l.active, a.ID) >= 0 {
			return fmt.Errorf("add alert %s: %w", a.ID, ErrAlertExists)
		}
		a.Dismissed = false
		l.active = append(l.active, a)
		return nil
	})
}

// Dismiss moves an active alert to the head of the dismissed list.
func (in *Inbox) Dismiss(ctx context.Context, id string) error {
	return in.update(ctx, func(l *lists) error {
		i := indexOf(l.active, id)
		if i < 0 {
			return fmt.Errorf("dismiss alert %s: %w", id, ErrAlertNotFound)
		}
		a := l.active[i]
		a.Dismissed = true
		l.active = append(l.active[:i:i], l.active[i+1:]...)
		l.dismissed = append([]models.Alert{a}, l.dismissed...)
		return nil
	})
}

// RemoveDismissed deletes a dismissed alert permanently.
func (in *Inbox) RemoveDismissed(ctx context.Context, id string) error {
	return in.update(ctx, func(l *lists) error {
		i := indexOf(l.dismissed, id)
		if i < 0 {
			return fmt.Errorf("remove dismissed alert %s: %w", id, ErrAlertNotFound)
		}
		l.dismissed = append(l.dismissed[:i:i], l.dismissed[i+1:]...)
		return nil
	})
}

// MarkAllAsRead dismisses every active alert, keeping their order at the head of
// the dismissed list.
func (in *Inbox) MarkAllAsRead(ctx context.Context) error {
	return in.update(ctx, func(l *lists) error {
		moved := make([]models.Alert, 0, len(l.active)+len(l.dismissed))
		for _, a := range l.active {
			a.Dismissed = true
			moved = append(moved, a)
		}
		l.dismissed = append(moved, l.dismissed...)
		l.active = []models.Alert{}
		return nil
	})
}

// ClearDismissed empties the dismissed list.
func (in *Inbox) ClearDismissed(ctx context.Context) error {
	return in.update(ctx, func(l *lists) error {
		l.dismissed = []models.Alert{}
		return nil
	})
}

// Refresh synthesizes alerts for loc and prepends those whose ID is neither active
// nor dismissed. It returns the alerts that were added.
func (in *Inbox) Refresh(ctx context.Context, loc models.Location) ([]models.Alert, error) {
	if in.source == nil {
		return nil, fmt.Errorf("refresh alerts: no source configured")
	}
	fresh, err := in.source.GetWeatherAlerts(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("refresh alerts for %s: %w", loc, err)
	}

	var added []models.Alert
	err = in.update(ctx, func(l *lists) error {
		seen := make(map[string]bool, len(l.active)+len(l.dismissed))
		for _, a := range l.active {
			seen[a.ID] = true
		}
		for _, a := range l.dismissed {
			seen[a.ID] = true
		}
		for _, a := range fresh {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			a.Dismissed = false
			added = append(added, a)
		}
		if len(added) > 0 {
			l.active = append(append([]models.Alert{}, added...), l.active...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	in.logger.Info("alerts refreshed",
		zap.String("location", loc.String()),
		zap.Int("synthesized", len(fresh)),
		zap.Int("added", len(added)),
	)
	return added, nil
}

func indexOf(alerts []models.Alert, id string) int {
	for i, a := range alerts {
		if a.ID == id {
			return i
		}
	}
	return -1
}
