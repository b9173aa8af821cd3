package storage

import (
	"context"
	"database/sql"
	"time"

	"estatecron/internal/domain"
)

const expiryCandidatesSQL = `
SELECT r.id, r.property_id, COALESCE(pr.title, ''), r.user_id, r.tier,
       COALESCE(r.reservation_ends_at, p.ends_at) AS effective_end
FROM elite_reservations r
JOIN elite_periods p ON p.id = r.period_id
LEFT JOIN properties pr ON pr.id = r.property_id
WHERE r.status = 'confirmed'
  AND COALESCE(r.reservation_ends_at, p.ends_at) >= ?
  AND COALESCE(r.reservation_ends_at, p.ends_at) <= ?
ORDER BY effective_end ASC, r.id ASC`

// ExpiryCandidates returns confirmed reservations whose effective end lies in [from, to].
func (s *Store) ExpiryCandidates(ctx context.Context, from, to time.Time) ([]domain.ExpiryCandidate, error) {
	rows, err := s.db.QueryContext(ctx, s.q(expiryCandidatesSQL), ms(from), ms(to))
	if err != nil {
		return nil, wrap("reservations.expiry_candidates", err)
	}
	defer rows.Close()

	var out []domain.ExpiryCandidate
	for rows.Next() {
		var (
			c    domain.ExpiryCandidate
			tier string
			end  int64
		)
		if err := rows.Scan(&c.ReservationID, &c.PropertyID, &c.PropertyTitle, &c.UserID, &tier, &end); err != nil {
			return nil, wrap("reservations.expiry_candidates", err)
		}
		c.Tier = domain.Tier(tier)
		c.EffectiveEnd = fromMS(end)
		out = append(out, c)
	}
	return out, wrap("reservations.expiry_candidates", rows.Err())
}

const reservationSelectSQL = `
SELECT r.id, r.property_id, r.user_id, r.period_id, r.tier, r.status,
       r.reservation_ends_at, p.ends_at, r.created_at
FROM elite_reservations r
JOIN elite_periods p ON p.id = r.period_id
WHERE r.id = ?`

func (s *Store) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	return scanReservation(s.db.QueryRowContext(ctx, s.q(reservationSelectSQL), id))
}

func scanReservation(row *sql.Row) (domain.Reservation, error) {
	var (
		r              domain.Reservation
		tier, status   string
		endsAt         sql.NullInt64
		periodEnd, cAt int64
	)
	if err := row.Scan(&r.ID, &r.PropertyID, &r.UserID, &r.PeriodID, &tier, &status, &endsAt, &periodEnd, &cAt); err != nil {
		return domain.Reservation{}, wrap("reservations.get", err)
	}
	var err error
	if r.Tier, err = domain.ParseTier(tier); err != nil {
		return domain.Reservation{}, wrap("reservations.get", err)
	}
	if r.Status, err = domain.ParseReservationStatus(status); err != nil {
		return domain.Reservation{}, wrap("reservations.get", err)
	}
	r.EndsAt = timePtr(endsAt)
	r.PeriodEndsAt = fromMS(periodEnd)
	r.CreatedAt = fromMS(cAt)
	return r, nil
}

func (s *Store) UpsertProperty(ctx context.Context, p domain.Property) error {
	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO properties(id, owner_id, title, created_at) VALUES(?,?,?,?)
ON CONFLICT(id) DO UPDATE SET owner_id = excluded.owner_id, title = excluded.title`),
		p.ID, p.OwnerID, p.Title, ms(p.CreatedAt))
	return wrap("properties.upsert", err)
}

func (s *Store) UpsertPeriod(ctx context.Context, p domain.Period) error {
	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO elite_periods(id, ends_at) VALUES(?,?)
ON CONFLICT(id) DO UPDATE SET ends_at = excluded.ends_at`),
		p.ID, ms(p.EndsAt))
	return wrap("periods.upsert", err)
}

func (s *Store) UpsertReservation(ctx context.Context, r domain.Reservation) error {
	now := ms(r.CreatedAt)
	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO elite_reservations(id, property_id, user_id, period_id, tier, status, reservation_ends_at, created_at, updated_at)
VALUES(?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  property_id = excluded.property_id,
  user_id = excluded.user_id,
  period_id = excluded.period_id,
  tier = excluded.tier,
  status = excluded.status,
  reservation_ends_at = excluded.reservation_ends_at,
  updated_at = excluded.updated_at`),
		r.ID, r.PropertyID, r.UserID, r.PeriodID, string(r.Tier), string(r.Status), nullMS(r.EndsAt), now, now)
	return wrap("reservations.upsert", err)
}
