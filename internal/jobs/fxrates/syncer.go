package fxrates

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"estatecron/internal/clock"
	"estatecron/internal/domain"
	logx "estatecron/pkg/logx"
)

// DefaultCurrencies is the set the marketplace prices in.
var DefaultCurrencies = []string{"SAR", "AED", "EUR", "GBP", "KWD", "QAR", "BHD", "OMR", "EGP", "JOD"}

// inversePrecision is the number of decimal places kept for rate_to_usd.
const inversePrecision = 16

type Store interface {
	UpsertRates(ctx context.Context, rates []domain.ExchangeRate) error
}

type Syncer struct {
	provider   Provider
	store      Store
	currencies []string
	clock      clock.Clock
	log        logx.Logger
}

func NewSyncer(provider Provider, store Store, currencies []string, clk clock.Clock, log logx.Logger) *Syncer {
	if len(currencies) == 0 {
		currencies = DefaultCurrencies
	}
	norm := make([]string, 0, len(currencies))
	seen := map[string]struct{}{}
	for _, c := range currencies {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		norm = append(norm, c)
	}
	sort.Strings(norm)
	if clk == nil {
		clk = clock.System{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Syncer{provider: provider, store: store, currencies: norm, clock: clk, log: log.With(logx.String("comp", "fxrates"))}
}

// Run fetches a quote and upserts the configured currencies it contains.
//
// A failed fetch is not a job failure: it is logged at warn and Run returns
// (0, nil) without touching the table. Store errors are returned.
func (s *Syncer) Run(ctx context.Context) (int, error) {
	q, err := s.provider.Fetch(ctx)
	if err != nil {
		if IsTransient(err) {
			s.log.Warn("exchange rate fetch failed; keeping current rates", logx.Err(err))
			return 0, nil
		}
		return 0, err
	}

	now := s.clock.Now()
	rates := make([]domain.ExchangeRate, 0, len(s.currencies))
	for _, code := range s.currencies {
		from, ok := q[code]
		if !ok {
			continue
		}
		if !from.IsPositive() {
			s.log.Warn("ignoring non-positive rate", logx.String("currency", code), logx.String("rate", from.String()))
			continue
		}
		rates = append(rates, domain.ExchangeRate{
			CurrencyCode: code,
			RateFromUSD:  from,
			RateToUSD:    decimal.NewFromInt(1).DivRound(from, inversePrecision),
			UpdatedAt:    now,
		})
	}
	if len(rates) == 0 {
		s.log.Warn("quote contained none of the configured currencies", logx.Int("quoted", len(q)))
		return 0, nil
	}
	if err := s.store.UpsertRates(ctx, rates); err != nil {
		return 0, err
	}
	if missing := len(s.currencies) - len(rates); missing > 0 {
		s.log.Debug("some currencies not updated", logx.Int("missing", missing))
	}
	return len(rates), nil
}
