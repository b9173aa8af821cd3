// Package extension implements the paid extension request for an elite
// reservation: pending -> paid -> approved | rejected.
//
// Approval is the only path that moves a reservation's effective end; it does
// so in the same transaction that marks the request approved.
package extension

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"estatecron/internal/clock"
	"estatecron/internal/domain"
	"estatecron/internal/storage"
	logx "estatecron/pkg/logx"
)

const (
	MinDays = 1
	MaxDays = 30
)

type Store interface {
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	CreateExtension(ctx context.Context, r domain.ExtensionRequest) error
	GetExtension(ctx context.Context, id string) (domain.ExtensionRequest, error)
	ListExtensions(ctx context.Context, reservationID string) ([]domain.ExtensionRequest, error)
	MarkExtensionPaid(ctx context.Context, id string, at time.Time) error
	ReviewExtension(ctx context.Context, id string, decision domain.Decision, note string, at time.Time) error
}

type Options struct {
	Prices PriceList
	VAT    VAT
	Clock  clock.Clock
	Log    logx.Logger
}

type Workflow struct {
	store  Store
	prices PriceList
	vat    VAT
	clock  clock.Clock
	log    logx.Logger
}

func New(store Store, opt Options) *Workflow {
	w := &Workflow{store: store, prices: opt.Prices, vat: opt.VAT, clock: opt.Clock, log: opt.Log}
	if len(w.prices) == 0 {
		w.prices = DefaultPriceList()
	}
	if w.clock == nil {
		w.clock = clock.System{}
	}
	if w.log.IsZero() {
		w.log = logx.Nop()
	}
	w.log = w.log.With(logx.String("comp", "extension"))
	return w
}

// Create opens a pending request to extend reservationID by days.
func (w *Workflow) Create(ctx context.Context, reservationID string, days int, note string) (domain.ExtensionRequest, error) {
	if days < MinDays || days > MaxDays {
		return domain.ExtensionRequest{}, invalid("days", ErrInvalidDays)
	}
	res, err := w.store.GetReservation(ctx, reservationID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.ExtensionRequest{}, invalid("reservation_id", ErrUnknownReservation)
	}
	if err != nil {
		return domain.ExtensionRequest{}, err
	}
	if res.Status != domain.ReservationConfirmed {
		return domain.ExtensionRequest{}, invalid("reservation_id", ErrReservationNotConfirmed)
	}

	existing, err := w.store.ListExtensions(ctx, reservationID)
	if err != nil {
		return domain.ExtensionRequest{}, err
	}
	for _, e := range existing {
		if e.Status.Open() {
			return domain.ExtensionRequest{}, ErrConflict
		}
	}

	perDay, err := w.prices.PerDay(res.Tier)
	if err != nil {
		return domain.ExtensionRequest{}, err
	}
	q := quote(perDay, days, w.vat)
	req := domain.ExtensionRequest{
		ID:            uuid.NewString(),
		ReservationID: reservationID,
		RequestedDays: days,
		PricePerDay:   q.PricePerDay,
		PriceAmount:   q.PriceAmount,
		VATAmount:     q.VATAmount,
		TotalAmount:   q.TotalAmount,
		Status:        domain.ExtensionPending,
		CustomerNote:  strings.TrimSpace(note),
		CreatedAt:     w.clock.Now().UTC(),
	}
	if err := w.store.CreateExtension(ctx, req); err != nil {
		// The partial unique index catches a racing create.
		if errors.Is(err, storage.ErrOpenExtensionExists) {
			return domain.ExtensionRequest{}, ErrConflict
		}
		return domain.ExtensionRequest{}, err
	}
	w.log.Info("extension requested",
		logx.String("request", req.ID),
		logx.String("reservation", reservationID),
		logx.Int("days", days),
		logx.String("total", req.TotalAmount.StringFixed(2)),
	)
	return req, nil
}

// Pay marks a pending request paid. The reservation is not touched.
func (w *Workflow) Pay(ctx context.Context, requestID string) (domain.ExtensionRequest, error) {
	req, err := w.Get(ctx, requestID)
	if err != nil {
		return domain.ExtensionRequest{}, err
	}
	if req.Status != domain.ExtensionPending {
		return domain.ExtensionRequest{}, invalid("status", ErrInvalidTransition)
	}
	if err := w.store.MarkExtensionPaid(ctx, requestID, w.clock.Now().UTC()); err != nil {
		return domain.ExtensionRequest{}, w.transitionErr(err)
	}
	w.log.Info("extension paid", logx.String("request", requestID))
	return w.Get(ctx, requestID)
}

// Review resolves a paid request. Approval extends the reservation by the
// requested days; rejection leaves it as is. Either frees the reservation for
// a new request.
func (w *Workflow) Review(ctx context.Context, requestID string, decision domain.Decision, adminNote string) (domain.ExtensionRequest, error) {
	if _, err := domain.ParseDecision(string(decision)); err != nil {
		return domain.ExtensionRequest{}, invalid("decision", ErrInvalidDecision)
	}
	req, err := w.Get(ctx, requestID)
	if err != nil {
		return domain.ExtensionRequest{}, err
	}
	if req.Status != domain.ExtensionPaid {
		return domain.ExtensionRequest{}, invalid("status", ErrInvalidTransition)
	}
	if err := w.store.ReviewExtension(ctx, requestID, decision, strings.TrimSpace(adminNote), w.clock.Now().UTC()); err != nil {
		return domain.ExtensionRequest{}, w.transitionErr(err)
	}
	w.log.Info("extension reviewed",
		logx.String("request", requestID),
		logx.String("reservation", req.ReservationID),
		logx.String("decision", string(decision)),
	)
	return w.Get(ctx, requestID)
}

func (w *Workflow) Get(ctx context.Context, requestID string) (domain.ExtensionRequest, error) {
	req, err := w.store.GetExtension(ctx, requestID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.ExtensionRequest{}, invalid("request_id", ErrUnknownRequest)
	}
	return req, err
}

func (w *Workflow) ListForReservation(ctx context.Context, reservationID string) ([]domain.ExtensionRequest, error) {
	return w.store.ListExtensions(ctx, reservationID)
}

// Quote prices an extension without creating it.
func (w *Workflow) Quote(tier domain.Tier, days int) (Quote, error) {
	if days < MinDays || days > MaxDays {
		return Quote{}, invalid("days", ErrInvalidDays)
	}
	perDay, err := w.prices.PerDay(tier)
	if err != nil {
		return Quote{}, err
	}
	return quote(perDay, days, w.vat), nil
}

func (w *Workflow) transitionErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrStaleTransition):
		return invalid("status", ErrInvalidTransition)
	case errors.Is(err, storage.ErrNotFound):
		return invalid("request_id", ErrUnknownRequest)
	}
	return err
}
