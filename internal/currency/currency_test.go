package currency

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/otrixindiacloud/tradeflow/internal/shared"
)

func TestConvertSameCurrencyIsIdentity(t *testing.T) {
	require.Equal(t, 123.45, Convert(123.45, "BHD", "BHD", 2.5))
}

func TestConvertAppliesRate(t *testing.T) {
	require.Equal(t, 265.95, Convert(100.36, "USD", "BHD", 2.65))
}

func TestConvertZeroRateDefaultsToPassThrough(t *testing.T) {
	require.Equal(t, 100.0, Convert(100, "USD", "BHD", 0))
}

func TestConvertRoundTripWithinTolerance(t *testing.T) {
	orig := 199.99
	rate := 0.376
	there := Convert(orig, "USD", "BHD", rate)
	back := Convert(there, "BHD", "USD", 1/rate)
	require.InDelta(t, orig, back, 0.02)
}

func TestValidateCode(t *testing.T) {
	require.NoError(t, ValidateCode("BHD"))
	require.NoError(t, ValidateCode("USD"))
	err := ValidateCode("XXXX")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestMirror(t *testing.T) {
	a := Amounts{Subtotal: 100, DiscountAmount: 10, TaxAmount: 4.5, TotalAmount: 94.5}
	m := a.Mirror("USD", "BHD", 0.376)
	require.Equal(t, 37.6, m.Subtotal)
	require.Equal(t, 3.76, m.DiscountAmount)
	require.Equal(t, 1.69, m.TaxAmount)
	require.Equal(t, 35.53, m.TotalAmount)

	// No conversion configured: base mirrors the transaction side.
	same := a.Mirror("BHD", "BHD", 1)
	require.Equal(t, a, same)
}
