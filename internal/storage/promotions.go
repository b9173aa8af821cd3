package storage

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"estatecron/internal/domain"
)

// Expire runs before activate in a sweep; both predicates mirror
// domain.Promotion.ShouldExpire and ShouldActivate.
const (
	expirePromotionsSQL = `
UPDATE promotions SET status = 'expired', updated_at = ?
WHERE status = 'active'
  AND ((end_at IS NOT NULL AND end_at <= ?)
       OR (usage_limit_total IS NOT NULL AND current_usage >= usage_limit_total))
RETURNING id`

	activatePromotionsSQL = `
UPDATE promotions SET status = 'active', updated_at = ?
WHERE status = 'draft'
  AND start_at <= ?
  AND (end_at IS NULL OR end_at > ?)
  AND (usage_limit_total IS NULL OR current_usage < usage_limit_total)
RETURNING id`
)

// ExpirePromotions moves every active promotion that ended or ran out of uses
// to expired and returns the affected ids, sorted.
func (s *Store) ExpirePromotions(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(expirePromotionsSQL), ms(now), ms(now))
	if err != nil {
		return nil, wrap("promotions.expire", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, wrap("promotions.expire", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// ActivatePromotions moves every draft whose window is open to active and
// returns the affected ids, sorted.
func (s *Store) ActivatePromotions(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(activatePromotionsSQL), ms(now), ms(now), ms(now))
	if err != nil {
		return nil, wrap("promotions.activate", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, wrap("promotions.activate", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) GetPromotion(ctx context.Context, id string) (domain.Promotion, error) {
	var (
		p        domain.Promotion
		status   string
		startAt  int64
		endAt    sql.NullInt64
		limitTot sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, s.q(`
SELECT id, code, status, start_at, end_at, usage_limit_total, current_usage
FROM promotions WHERE id = ?`), id).
		Scan(&p.ID, &p.Code, &status, &startAt, &endAt, &limitTot, &p.CurrentUsage)
	if err != nil {
		return domain.Promotion{}, wrap("promotions.get", err)
	}
	if p.Status, err = domain.ParsePromotionStatus(status); err != nil {
		return domain.Promotion{}, wrap("promotions.get", err)
	}
	p.StartAt = fromMS(startAt)
	p.EndAt = timePtr(endAt)
	if limitTot.Valid {
		n := int(limitTot.Int64)
		p.UsageLimitTotal = &n
	}
	return p, nil
}

func (s *Store) UpsertPromotion(ctx context.Context, p domain.Promotion, now time.Time) error {
	var limit sql.NullInt64
	if p.UsageLimitTotal != nil {
		limit = sql.NullInt64{Int64: int64(*p.UsageLimitTotal), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO promotions(id, code, status, start_at, end_at, usage_limit_total, current_usage, updated_at)
VALUES(?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  code = excluded.code,
  status = excluded.status,
  start_at = excluded.start_at,
  end_at = excluded.end_at,
  usage_limit_total = excluded.usage_limit_total,
  current_usage = excluded.current_usage,
  updated_at = excluded.updated_at`),
		p.ID, p.Code, string(p.Status), ms(p.StartAt), nullMS(p.EndAt), limit, p.CurrentUsage, ms(now))
	return wrap("promotions.upsert", err)
}
