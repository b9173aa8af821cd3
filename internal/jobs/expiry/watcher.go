// Package expiry warns owners whose elite reservations are about to end.
package expiry

import (
	"context"
	"math"
	"time"

	"estatecron/internal/clock"
	"estatecron/internal/domain"
	logx "estatecron/pkg/logx"
)

const (
	DefaultWarnWithin  = 48 * time.Hour
	DefaultDedupWindow = 24 * time.Hour
)

type Store interface {
	ExpiryCandidates(ctx context.Context, from, to time.Time) ([]domain.ExpiryCandidate, error)
}

type Deduper interface {
	HasRecent(ctx context.Context, userID string, typ domain.NotificationType, window time.Duration) (bool, error)
	Record(ctx context.Context, userID string, typ domain.NotificationType, payload any) (bool, error)
}

type Config struct {
	WarnWithin  time.Duration
	DedupWindow time.Duration
}

// Warning is the notification payload.
type Warning struct {
	ReservationID string      `json:"reservation_id"`
	PropertyID    string      `json:"property_id"`
	PropertyTitle string      `json:"property_title,omitempty"`
	Tier          domain.Tier `json:"tier"`
	EffectiveEnd  time.Time   `json:"effective_end"`
	DaysRemaining int         `json:"days_remaining"`
}

type Watcher struct {
	store Store
	dedup Deduper
	cfg   Config
	clock clock.Clock
	log   logx.Logger
}

func New(store Store, dedup Deduper, cfg Config, clk clock.Clock, log logx.Logger) *Watcher {
	if cfg.WarnWithin <= 0 {
		cfg.WarnWithin = DefaultWarnWithin
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if clk == nil {
		clk = clock.System{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{store: store, dedup: dedup, cfg: cfg, clock: clk, log: log.With(logx.String("comp", "expiry"))}
}

// Run is one sweep. It returns the number of warnings inserted.
//
// Each owner gets at most one warning per pass, for their soonest-ending
// reservation. An owner warned within the dedup window is skipped.
func (w *Watcher) Run(ctx context.Context) (int, error) {
	now := w.clock.Now()
	candidates, err := w.store.ExpiryCandidates(ctx, now, now.Add(w.cfg.WarnWithin))
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(candidates))
	sent := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if _, ok := seen[c.UserID]; ok {
			continue
		}
		seen[c.UserID] = struct{}{}

		recent, err := w.dedup.HasRecent(ctx, c.UserID, domain.NotificationEliteExpiryWarning, w.cfg.DedupWindow)
		if err != nil {
			return sent, err
		}
		if recent {
			continue
		}

		warn := Warning{
			ReservationID: c.ReservationID,
			PropertyID:    c.PropertyID,
			PropertyTitle: c.PropertyTitle,
			Tier:          c.Tier,
			EffectiveEnd:  c.EffectiveEnd,
			DaysRemaining: DaysRemaining(now, c.EffectiveEnd),
		}
		inserted, err := w.dedup.Record(ctx, c.UserID, domain.NotificationEliteExpiryWarning, warn)
		if err != nil {
			return sent, err
		}
		if !inserted {
			continue
		}
		sent++
		w.log.Debug("expiry warning recorded",
			logx.String("user", c.UserID),
			logx.String("reservation", c.ReservationID),
			logx.Int("days_remaining", warn.DaysRemaining),
		)
	}
	return sent, nil
}

// DaysRemaining is ceil((end-now) / 24h), never negative.
func DaysRemaining(now, end time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}
