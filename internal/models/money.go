package models

import "github.com/shopspring/decimal"

// CurrencyScale is the number of decimal places carried by every amount.
const CurrencyScale = 2

const DefaultCurrency = "INR"

var minorUnitsPerMajor = decimal.New(1, CurrencyScale)

// ValidAmount reports whether d is positive and fits the currency scale.
func ValidAmount(d decimal.Decimal) bool {
	if !d.IsPositive() {
		return false
	}
	return d.Equal(d.Truncate(CurrencyScale))
}

// FromMinorUnits converts paise to rupees.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-CurrencyScale)
}

// ToMinorUnits converts rupees to paise. Callers validate the scale first.
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(minorUnitsPerMajor).IntPart()
}
