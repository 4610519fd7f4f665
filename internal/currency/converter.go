package currency

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const SAR = "SAR"

// minorUnits maps ISO 4217 codes to the number of minor-unit digits.
var minorUnits = map[string]int32{
	"SAR": 2,
	"AED": 2,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
	"QAR": 2,
	"EGP": 2,
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"JPY": 0,
}

// Known reports whether the currency code is supported.
func Known(code string) bool {
	_, ok := minorUnits[code]
	return ok
}

// MinorUnits returns the number of decimal places for a currency.
func MinorUnits(code string) (int32, error) {
	units, ok := minorUnits[code]
	if !ok {
		return 0, fmt.Errorf("unsupported currency: %s", code)
	}
	return units, nil
}

// FromMinor converts an integer amount in minor units (e.g. halalas, cents)
// to a decimal amount in major units.
func FromMinor(minor int64, code string) (decimal.Decimal, error) {
	units, err := MinorUnits(code)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(minor, -units), nil
}

// Round rounds an amount to the currency's minor unit.
func Round(amount decimal.Decimal, code string) (decimal.Decimal, error) {
	units, err := MinorUnits(code)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Round(units), nil
}

// Parse reads a decimal amount string and rounds it to the currency's minor unit.
func Parse(s, code string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Round(d, code)
}
