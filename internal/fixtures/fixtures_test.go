package fixtures

import (
	"context"
	"strings"
	"testing"
	"time"

	"estatecron/internal/domain"
)

type memStore struct {
	props  []domain.Property
	pers   []domain.Period
	res    []domain.Reservation
	promos []domain.Promotion
}

func (m *memStore) UpsertProperty(_ context.Context, p domain.Property) error {
	m.props = append(m.props, p)
	return nil
}
func (m *memStore) UpsertPeriod(_ context.Context, p domain.Period) error {
	m.pers = append(m.pers, p)
	return nil
}
func (m *memStore) UpsertReservation(_ context.Context, r domain.Reservation) error {
	m.res = append(m.res, r)
	return nil
}
func (m *memStore) UpsertPromotion(_ context.Context, p domain.Promotion, _ time.Time) error {
	m.promos = append(m.promos, p)
	return nil
}

const sample = `
properties:
  - {id: prop-1, owner_id: owner-1, title: Corniche villa}
periods:
  - {id: per-1, ends_at: "+36h"}
reservations:
  - {id: res-1, property_id: prop-1, user_id: owner-1, period_id: per-1, tier: top}
  - {id: res-2, property_id: prop-1, user_id: owner-1, period_id: per-1, tier: bottom, status: pending, ends_at: "2026-04-01T00:00:00Z"}
promotions:
  - {id: promo-1, code: RAMADAN, start_at: "-1h", end_at: "+72h", usage_limit_total: 100}
`

func TestLoad(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	doc, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	st := &memStore{}
	c, err := Load(context.Background(), st, doc, now)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.String() != "properties=1 periods=1 reservations=2 promotions=1" {
		t.Fatalf("counts = %s", c)
	}
	if !st.pers[0].EndsAt.Equal(now.Add(36 * time.Hour)) {
		t.Fatalf("relative ends_at = %v", st.pers[0].EndsAt)
	}
	if st.res[0].Status != domain.ReservationConfirmed || st.res[0].EndsAt != nil {
		t.Fatalf("res-1 = %+v", st.res[0])
	}
	if st.res[1].EndsAt == nil || !st.res[1].EndsAt.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("res-2 ends_at = %v", st.res[1].EndsAt)
	}
	p := st.promos[0]
	if p.Status != domain.PromotionDraft || !p.StartAt.Equal(now.Add(-time.Hour)) || p.UsageLimitTotal == nil || *p.UsageLimitTotal != 100 {
		t.Fatalf("promo = %+v", p)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse(strings.NewReader("listings: []\n")); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestLoadRejectsBadRows(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "bad tier", doc: "reservations:\n  - {id: r, tier: gold}\n", want: "unknown tier"},
		{name: "bad status", doc: "promotions:\n  - {id: p, status: paused}\n", want: "unknown promotion status"},
		{name: "period without end", doc: "periods:\n  - {id: per}\n", want: "ends_at required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(strings.NewReader(tt.doc))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if _, err := Load(context.Background(), &memStore{}, doc, time.Now()); err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load err = %v, want containing %q", err, tt.want)
			}
		})
	}
}
