package types

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Amount is a currency amount in display units (ETH, not wei). Decimals is the
// on-chain precision of Currency and drives conversion to base units.
type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
	Decimals int32           `json:"decimals"`
}

// NewAmount builds an Amount in the given currency.
func NewAmount(value decimal.Decimal, c CurrencyDescriptor) Amount {
	return Amount{Value: value, Currency: c.Symbol, Decimals: c.Decimals}
}

// AmountFromBaseUnits converts an on-chain integer (wei, token units) into display units.
func AmountFromBaseUnits(units *big.Int, c CurrencyDescriptor) Amount {
	if units == nil {
		units = new(big.Int)
	}
	return Amount{
		Value:    decimal.NewFromBigInt(units, -c.Decimals),
		Currency: c.Symbol,
		Decimals: c.Decimals,
	}
}

// BaseUnits converts the display amount into the on-chain integer, truncating
// anything below the currency's precision.
func (a Amount) BaseUnits() *big.Int {
	return a.Value.Shift(a.Decimals).Truncate(0).BigInt()
}

// Round returns the amount rounded to places decimal places.
func (a Amount) Round(places int32) Amount {
	a.Value = a.Value.Round(places)
	return a
}

// WithinTolerance reports whether |a - expected| <= expected * tolerance.
// Amounts in different currencies never match.
func (a Amount) WithinTolerance(expected Amount, tolerance decimal.Decimal) bool {
	if a.Currency != expected.Currency {
		return false
	}
	diff := a.Value.Sub(expected.Value).Abs()
	return diff.LessThanOrEqual(expected.Value.Mul(tolerance))
}

// IsZero reports whether the amount has no value.
func (a Amount) IsZero() bool {
	return a.Value.IsZero()
}

func (a Amount) String() string {
	return fmt.Sprintf("%s %s", a.Value.String(), a.Currency)
}
