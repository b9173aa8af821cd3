package extension

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"estatecron/internal/clock"
	"estatecron/internal/domain"
	"estatecron/internal/storage"
	logx "estatecron/pkg/logx"
)

var now = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store *storage.Store
	clock *clock.Manual
	wf    *Workflow
}

func newFixture(t *testing.T, opt Options) *fixture {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "x.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	clk := clock.NewManual(now)
	opt.Clock = clk
	return &fixture{store: st, clock: clk, wf: New(st, opt)}
}

func (f *fixture) reservation(t *testing.T, id string, status domain.ReservationStatus, periodEnd time.Time) {
	t.Helper()
	ctx := context.Background()
	if err := f.store.UpsertPeriod(ctx, domain.Period{ID: "per-" + id, EndsAt: periodEnd}); err != nil {
		t.Fatal(err)
	}
	err := f.store.UpsertReservation(ctx, domain.Reservation{
		ID: id, PropertyID: "prop-" + id, UserID: "owner", PeriodID: "per-" + id,
		Tier: domain.TierTop, Status: status, CreatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) effectiveEnd(t *testing.T, id string) time.Time {
	t.Helper()
	r, err := f.store.GetReservation(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return r.EffectiveEnd()
}

func TestApprovalScenario(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	periodEnd := now.Add(5 * 24 * time.Hour)
	f.reservation(t, "r1", domain.ReservationConfirmed, periodEnd)

	if _, err := f.wf.Create(ctx, "r1", 40, ""); !errors.Is(err, ErrInvalidDays) || !IsValidation(err) {
		t.Fatalf("Create(40) err = %v, want ValidationError(ErrInvalidDays)", err)
	}

	req, err := f.wf.Create(ctx, "r1", 10, "")
	if err != nil {
		t.Fatalf("Create(10): %v", err)
	}
	if req.Status != domain.ExtensionPending {
		t.Fatalf("status = %s, want pending", req.Status)
	}
	if !req.TotalAmount.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("total = %s, want 1500 (150/day, no VAT)", req.TotalAmount)
	}

	req, err = f.wf.Pay(ctx, req.ID)
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if req.Status != domain.ExtensionPaid || req.PaidAt == nil {
		t.Fatalf("after Pay = %+v", req)
	}
	if !f.effectiveEnd(t, "r1").Equal(periodEnd) {
		t.Fatal("Pay must not touch the reservation")
	}

	req, err = f.wf.Review(ctx, req.ID, domain.DecisionApproved, "welcome back")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if req.Status != domain.ExtensionApproved || req.AdminNote != "welcome back" {
		t.Fatalf("after Review = %+v", req)
	}
	if got, want := f.effectiveEnd(t, "r1"), periodEnd.Add(10*24*time.Hour); !got.Equal(want) {
		t.Fatalf("effective end = %v, want %v", got, want)
	}

	// A second approved extension stacks on the override, not the period.
	req2, err := f.wf.Create(ctx, "r1", 3, "again")
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if _, err := f.wf.Pay(ctx, req2.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.wf.Review(ctx, req2.ID, domain.DecisionApproved, ""); err != nil {
		t.Fatal(err)
	}
	if got, want := f.effectiveEnd(t, "r1"), periodEnd.Add(13*24*time.Hour); !got.Equal(want) {
		t.Fatalf("effective end = %v, want %v", got, want)
	}
}

func TestConflictWhileOpen(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.reservation(t, "r1", domain.ReservationConfirmed, now.Add(24*time.Hour))

	first, err := f.wf.Create(ctx, "r1", 5, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.wf.Create(ctx, "r1", 5, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("second Create err = %v, want ErrConflict", err)
	}
	if _, err := f.wf.Pay(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.wf.Create(ctx, "r1", 5, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("Create while paid err = %v, want ErrConflict", err)
	}
}

func TestConstraintBackstopMapsToConflict(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.reservation(t, "r1", domain.ReservationConfirmed, now.Add(24*time.Hour))

	// Simulate a racing create that slipped past the application check.
	err := f.store.CreateExtension(ctx, domain.ExtensionRequest{
		ID: "racer", ReservationID: "r1", RequestedDays: 1, Status: domain.ExtensionPending, CreatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	wf := New(hidingStore{Store: f.store}, Options{Clock: f.clock})
	if _, err := wf.Create(ctx, "r1", 2, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

// hidingStore hides existing requests so only the unique index can object.
type hidingStore struct{ Store }

func (hidingStore) ListExtensions(context.Context, string) ([]domain.ExtensionRequest, error) {
	return nil, nil
}

func TestRejectionFreesReservation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	periodEnd := now.Add(2 * 24 * time.Hour)
	f.reservation(t, "r1", domain.ReservationConfirmed, periodEnd)

	req, err := f.wf.Create(ctx, "r1", 7, "please")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.wf.Pay(ctx, req.ID); err != nil {
		t.Fatal(err)
	}
	req, err = f.wf.Review(ctx, req.ID, domain.DecisionRejected, "slot sold")
	if err != nil {
		t.Fatal(err)
	}
	if req.Status != domain.ExtensionRejected {
		t.Fatalf("status = %s", req.Status)
	}
	if !f.effectiveEnd(t, "r1").Equal(periodEnd) {
		t.Fatal("rejection changed effective end")
	}
	if _, err := f.wf.Create(ctx, "r1", 7, ""); err != nil {
		t.Fatalf("Create after rejection: %v", err)
	}
	list, err := f.wf.ListForReservation(ctx, "r1")
	if err != nil || len(list) != 2 {
		t.Fatalf("ListForReservation = %d, %v", len(list), err)
	}
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.reservation(t, "r1", domain.ReservationConfirmed, now.Add(24*time.Hour))
	f.reservation(t, "r2", domain.ReservationPending, now.Add(24*time.Hour))

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{name: "unknown reservation", run: func() error { _, err := f.wf.Create(ctx, "nope", 3, ""); return err }, want: ErrUnknownReservation},
		{name: "unconfirmed reservation", run: func() error { _, err := f.wf.Create(ctx, "r2", 3, ""); return err }, want: ErrReservationNotConfirmed},
		{name: "zero days", run: func() error { _, err := f.wf.Create(ctx, "r1", 0, ""); return err }, want: ErrInvalidDays},
		{name: "pay unknown", run: func() error { _, err := f.wf.Pay(ctx, "nope"); return err }, want: ErrUnknownRequest},
		{name: "review unknown", run: func() error { _, err := f.wf.Review(ctx, "nope", domain.DecisionApproved, ""); return err }, want: ErrUnknownRequest},
		{name: "bad decision", run: func() error { _, err := f.wf.Review(ctx, "nope", domain.Decision("maybe"), ""); return err }, want: ErrInvalidDecision},
	}
	for _, tt := range tests {
		err := tt.run()
		if !errors.Is(err, tt.want) || !IsValidation(err) {
			t.Fatalf("%s: err = %v, want ValidationError(%v)", tt.name, err, tt.want)
		}
	}

	req, err := f.wf.Create(ctx, "r1", 3, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.wf.Review(ctx, req.ID, domain.DecisionApproved, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("review pending err = %v", err)
	}
	if _, err := f.wf.Pay(ctx, req.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.wf.Pay(ctx, req.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pay twice err = %v", err)
	}
	if _, err := f.wf.Review(ctx, req.ID, domain.DecisionRejected, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.wf.Review(ctx, req.ID, domain.DecisionApproved, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("review twice err = %v", err)
	}
}

func TestQuoteWithVAT(t *testing.T) {
	wf := New(nil, Options{
		Prices: PriceList{domain.TierBottom: decimal.RequireFromString("33.33")},
		VAT:    FlatVAT{Rate: decimal.RequireFromString("0.15")},
	})
	q, err := wf.Quote(domain.TierBottom, 3)
	if err != nil {
		t.Fatal(err)
	}
	if q.PriceAmount.String() != "99.99" || q.VATAmount.String() != "15" || q.TotalAmount.String() != "114.99" {
		t.Fatalf("quote = %+v", q)
	}
	if _, err := wf.Quote(domain.TierTop, 3); err == nil {
		t.Fatal("expected error for unpriced tier")
	}
}
