// Package promotions drives promotion campaigns through draft -> active -> expired.
package promotions

import (
	"context"
	"time"

	"estatecron/internal/clock"
	logx "estatecron/pkg/logx"
)

type Store interface {
	ExpirePromotions(ctx context.Context, now time.Time) ([]string, error)
	ActivatePromotions(ctx context.Context, now time.Time) ([]string, error)
}

type Sweeper struct {
	store Store
	clock clock.Clock
	log   logx.Logger
}

func New(store Store, clk clock.Clock, log logx.Logger) *Sweeper {
	if clk == nil {
		clk = clock.System{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sweeper{store: store, clock: clk, log: log.With(logx.String("comp", "promotions"))}
}

// Run expires, then activates, both evaluated at the same instant. It returns
// expired + activated.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	now := s.clock.Now()

	expired, err := s.store.ExpirePromotions(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(expired) > 0 {
		s.log.Info("promotions expired", logx.Int("count", len(expired)), logx.Any("ids", expired))
	}

	activated, err := s.store.ActivatePromotions(ctx, now)
	if err != nil {
		return len(expired), err
	}
	if len(activated) > 0 {
		s.log.Info("promotions activated", logx.Int("count", len(activated)), logx.Any("ids", activated))
	}
	return len(expired) + len(activated), nil
}
