// Package currency converts transaction-currency amounts into their
// base-currency mirrors. Real FX sourcing is out of scope; the rate is a
// caller-supplied input and defaults to 1.0.
package currency

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/otrixindiacloud/tradeflow/internal/shared"
)

// DefaultBase is the base currency used when no conversion is configured.
const DefaultBase = "BHD"

// ValidateCode checks the currency code against ISO 4217.
func ValidateCode(code string) error {
	if _, err := currency.ParseISO(code); err != nil {
		return fmt.Errorf("%w: unknown currency %q", shared.ErrValidation, code)
	}
	return nil
}

// Convert turns amount from one currency into another at the given rate,
// rounded to 2 decimal places. Same-currency conversions are identity
// regardless of rate.
func Convert(amount float64, from, to string, rate float64) float64 {
	if from == to {
		return amount
	}
	if rate == 0 {
		rate = 1.0
	}
	d := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(rate))
	f, _ := d.Round(2).Float64()
	return f
}

// Round2 rounds a computed monetary amount to 2 decimal places using
// decimal arithmetic, so summed line totals compare exactly.
func Round2(amount float64) float64 {
	f, _ := decimal.NewFromFloat(amount).Round(2).Float64()
	return f
}

// Amounts is the monetary portion of a document header that carries a
// base-currency mirror for every transaction-currency field.
type Amounts struct {
	Subtotal       float64
	DiscountAmount float64
	TaxAmount      float64
	TotalAmount    float64
}

// Mirror recomputes the base-currency side of a from the document's
// currency and rate.
func (a Amounts) Mirror(from, base string, rate float64) Amounts {
	return Amounts{
		Subtotal:       Convert(a.Subtotal, from, base, rate),
		DiscountAmount: Convert(a.DiscountAmount, from, base, rate),
		TaxAmount:      Convert(a.TaxAmount, from, base, rate),
		TotalAmount:    Convert(a.TotalAmount, from, base, rate),
	}
}
