package extension

import (
	"fmt"

	"github.com/shopspring/decimal"

	"estatecron/internal/domain"
)

// VAT computes the tax due on a net amount.
type VAT interface {
	Amount(net decimal.Decimal) decimal.Decimal
}

// FlatVAT applies a single rate, rounded to cents. A zero rate yields zero tax.
type FlatVAT struct {
	Rate decimal.Decimal
}

func (v FlatVAT) Amount(net decimal.Decimal) decimal.Decimal {
	return net.Mul(v.Rate).Round(2)
}

// PriceList is the per-day extension price for each tier.
type PriceList map[domain.Tier]decimal.Decimal

// DefaultPriceList is used when no price list is configured.
func DefaultPriceList() PriceList {
	return PriceList{
		domain.TierTop:    decimal.NewFromInt(150),
		domain.TierMiddle: decimal.NewFromInt(100),
		domain.TierBottom: decimal.NewFromInt(50),
	}
}

func (p PriceList) PerDay(t domain.Tier) (decimal.Decimal, error) {
	v, ok := p[t]
	if !ok {
		return decimal.Zero, fmt.Errorf("no extension price for tier %q", t)
	}
	return v, nil
}

// Quote is the price breakdown of an extension.
type Quote struct {
	PricePerDay decimal.Decimal
	PriceAmount decimal.Decimal
	VATAmount   decimal.Decimal
	TotalAmount decimal.Decimal
}

func quote(perDay decimal.Decimal, days int, vat VAT) Quote {
	price := perDay.Mul(decimal.NewFromInt(int64(days))).Round(2)
	tax := decimal.Zero
	if vat != nil {
		tax = vat.Amount(price)
	}
	return Quote{
		PricePerDay: perDay,
		PriceAmount: price,
		VATAmount:   tax,
		TotalAmount: price.Add(tax),
	}
}
