// Package notify owns the notification ledger checks used by the jobs.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"estatecron/internal/clock"
	"estatecron/internal/domain"
	logx "estatecron/pkg/logx"
)

// Store is the slice of storage the deduper needs.
type Store interface {
	HasNotificationSince(ctx context.Context, userID string, typ domain.NotificationType, since time.Time) (bool, error)
	InsertNotification(ctx context.Context, n domain.Notification) (bool, error)
}

type Options struct {
	// RatePerSec paces inserts; 0 disables pacing.
	RatePerSec float64
	Clock      clock.Clock
	Log        logx.Logger
}

// Deduper answers "was this user already told" and records new notifications.
// It is a read/append view over the ledger and keeps no state of its own, so
// every process sharing the database sees the same answer.
type Deduper struct {
	store   Store
	clock   clock.Clock
	limiter *rate.Limiter
	log     logx.Logger
}

func NewDeduper(store Store, opt Options) *Deduper {
	d := &Deduper{store: store, clock: opt.Clock, log: opt.Log}
	if d.clock == nil {
		d.clock = clock.System{}
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	if opt.RatePerSec > 0 {
		burst := int(opt.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(opt.RatePerSec), burst)
	}
	return d
}

// HasRecent reports whether userID received a notification of typ within the
// trailing window, read or unread.
func (d *Deduper) HasRecent(ctx context.Context, userID string, typ domain.NotificationType, window time.Duration) (bool, error) {
	return d.store.HasNotificationSince(ctx, userID, typ, d.clock.Now().Add(-window))
}

// Record appends a notification. inserted is false when the store's per-day
// uniqueness rule suppressed it, which callers treat as already notified.
func (d *Deduper) Record(ctx context.Context, userID string, typ domain.NotificationType, payload any) (bool, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	n := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Payload:   b,
		CreatedAt: d.clock.Now(),
	}
	inserted, err := d.store.InsertNotification(ctx, n)
	if err != nil {
		return false, err
	}
	if !inserted {
		d.log.Debug("notification suppressed by day bucket", logx.String("user", userID), logx.String("type", string(typ)))
	}
	return inserted, nil
}
