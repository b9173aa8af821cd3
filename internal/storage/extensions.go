package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"estatecron/internal/domain"
)

const extensionColumns = `id, reservation_id, requested_days, price_per_day, price_amount, vat_amount, total_amount,
       status, customer_note, admin_note, created_at, paid_at, reviewed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExtension(row rowScanner) (domain.ExtensionRequest, error) {
	var (
		r             domain.ExtensionRequest
		status        string
		createdAt     int64
		paidAt, revAt sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.ReservationID, &r.RequestedDays,
		&r.PricePerDay, &r.PriceAmount, &r.VATAmount, &r.TotalAmount,
		&status, &r.CustomerNote, &r.AdminNote, &createdAt, &paidAt, &revAt)
	if err != nil {
		return domain.ExtensionRequest{}, err
	}
	if r.Status, err = domain.ParseExtensionStatus(status); err != nil {
		return domain.ExtensionRequest{}, err
	}
	r.CreatedAt = fromMS(createdAt)
	r.PaidAt = timePtr(paidAt)
	r.ReviewedAt = timePtr(revAt)
	return r, nil
}

// CreateExtension inserts a pending request. A second open request for the same
// reservation fails with ErrOpenExtensionExists.
func (s *Store) CreateExtension(ctx context.Context, r domain.ExtensionRequest) error {
	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO extension_requests(`+extensionColumns+`)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		r.ID, r.ReservationID, r.RequestedDays,
		r.PricePerDay.StringFixed(2), r.PriceAmount.StringFixed(2), r.VATAmount.StringFixed(2), r.TotalAmount.StringFixed(2),
		string(r.Status), r.CustomerNote, r.AdminNote, ms(r.CreatedAt), nullMS(r.PaidAt), nullMS(r.ReviewedAt))
	if isUniqueViolation(err) {
		return wrap("extensions.create", ErrOpenExtensionExists)
	}
	return wrap("extensions.create", err)
}

func (s *Store) GetExtension(ctx context.Context, id string) (domain.ExtensionRequest, error) {
	r, err := scanExtension(s.db.QueryRowContext(ctx, s.q(`SELECT `+extensionColumns+` FROM extension_requests WHERE id = ?`), id))
	if err != nil {
		return domain.ExtensionRequest{}, wrap("extensions.get", err)
	}
	return r, nil
}

// ListExtensions returns a reservation's requests, oldest first.
func (s *Store) ListExtensions(ctx context.Context, reservationID string) ([]domain.ExtensionRequest, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+extensionColumns+`
FROM extension_requests WHERE reservation_id = ?
ORDER BY created_at ASC, id ASC`), reservationID)
	if err != nil {
		return nil, wrap("extensions.list", err)
	}
	defer rows.Close()

	var out []domain.ExtensionRequest
	for rows.Next() {
		r, err := scanExtension(rows)
		if err != nil {
			return nil, wrap("extensions.list", err)
		}
		out = append(out, r)
	}
	return out, wrap("extensions.list", rows.Err())
}

// MarkExtensionPaid moves a pending request to paid. ErrStaleTransition means
// the request was no longer pending.
func (s *Store) MarkExtensionPaid(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`
UPDATE extension_requests SET status = 'paid', paid_at = ?
WHERE id = ? AND status = 'pending'`), ms(at), id)
	if err != nil {
		return wrap("extensions.pay", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("extensions.pay", err)
	}
	if n == 0 {
		return wrap("extensions.pay", ErrStaleTransition)
	}
	return nil
}

// ReviewExtension resolves a paid request. On approval the reservation's
// effective end is pushed out by the requested days in the same transaction,
// so the request status and the new end date are never observed apart.
func (s *Store) ReviewExtension(ctx context.Context, id string, decision domain.Decision, note string, at time.Time) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			reservationID string
			days          int64
		)
		err := tx.QueryRowContext(ctx, s.q(`
UPDATE extension_requests SET status = ?, admin_note = ?, reviewed_at = ?
WHERE id = ? AND status = 'paid'
RETURNING reservation_id, requested_days`),
			string(decision.Status()), note, ms(at), id).Scan(&reservationID, &days)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStaleTransition
		}
		if err != nil {
			return err
		}
		if decision != domain.DecisionApproved {
			return nil
		}

		res, err := tx.ExecContext(ctx, s.q(`
UPDATE elite_reservations
SET reservation_ends_at = COALESCE(reservation_ends_at,
      (SELECT p.ends_at FROM elite_periods p WHERE p.id = elite_reservations.period_id)) + ?,
    updated_at = ?
WHERE id = ?`), days*int64(24*time.Hour/time.Millisecond), ms(at), reservationID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	return wrap("extensions.review", err)
}
