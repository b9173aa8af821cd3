package storage

import (
	"context"
	"database/sql"

	"estatecron/internal/domain"
)

const upsertRateSQL = `
INSERT INTO exchange_rates(currency_code, rate_to_usd, rate_from_usd, updated_at)
VALUES(?,?,?,?)
ON CONFLICT(currency_code) DO UPDATE SET
  rate_to_usd = excluded.rate_to_usd,
  rate_from_usd = excluded.rate_from_usd,
  updated_at = excluded.updated_at`

// UpsertRates writes all rates in one transaction: either every row is
// updated or none is.
func (s *Store) UpsertRates(ctx context.Context, rates []domain.ExchangeRate) error {
	if len(rates) == 0 {
		return nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.q(upsertRateSQL))
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rates {
			if _, err := stmt.ExecContext(ctx, r.CurrencyCode, r.RateToUSD.String(), r.RateFromUSD.String(), ms(r.UpdatedAt)); err != nil {
				return err
			}
		}
		return nil
	})
	return wrap("rates.upsert", err)
}

// ListRates returns the rate table ordered by currency code.
func (s *Store) ListRates(ctx context.Context) ([]domain.ExchangeRate, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT currency_code, rate_to_usd, rate_from_usd, updated_at
FROM exchange_rates ORDER BY currency_code`)
	if err != nil {
		return nil, wrap("rates.list", err)
	}
	defer rows.Close()

	var out []domain.ExchangeRate
	for rows.Next() {
		var (
			r  domain.ExchangeRate
			at int64
		)
		if err := rows.Scan(&r.CurrencyCode, &r.RateToUSD, &r.RateFromUSD, &at); err != nil {
			return nil, wrap("rates.list", err)
		}
		r.UpdatedAt = fromMS(at)
		out = append(out, r)
	}
	return out, wrap("rates.list", rows.Err())
}
