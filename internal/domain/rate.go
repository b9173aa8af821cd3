package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is a currency's rate against USD. Rows are upserted in place.
type ExchangeRate struct {
	CurrencyCode string
	RateToUSD    decimal.Decimal
	RateFromUSD  decimal.Decimal
	UpdatedAt    time.Time
}
