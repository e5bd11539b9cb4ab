package shared

import "github.com/otrixindiacloud/tradeflow/internal/currency"

// CalculateLineTotals computes per-line discount, tax and line total from
// quantity, unit price and percentages, rounded to 2 decimal places.
func CalculateLineTotals(quantity, unitPrice, discountPercent, taxPercent float64) (discountAmount, taxAmount, lineTotal float64) {
	grossAmount := quantity * unitPrice
	discountAmount = currency.Round2(grossAmount * (discountPercent / 100))
	netAmount := grossAmount - discountAmount
	taxAmount = currency.Round2(netAmount * (taxPercent / 100))
	lineTotal = currency.Round2(netAmount + taxAmount)
	return
}

// DocumentTotals accumulates header totals across lines. Totals are always
// recomputed from lines; caller-supplied header amounts are never trusted.
type DocumentTotals struct {
	Subtotal       float64
	DiscountAmount float64
	TaxAmount      float64
	TotalAmount    float64
}

// AddLine folds one line into the running totals.
func (t *DocumentTotals) AddLine(quantity, unitPrice, discountPercent, taxPercent float64) (lineTotal float64) {
	discount, tax, total := CalculateLineTotals(quantity, unitPrice, discountPercent, taxPercent)
	t.Subtotal = currency.Round2(t.Subtotal + quantity*unitPrice - discount)
	t.DiscountAmount = currency.Round2(t.DiscountAmount + discount)
	t.TaxAmount = currency.Round2(t.TaxAmount + tax)
	t.TotalAmount = currency.Round2(t.TotalAmount + total)
	return total
}
