package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "DZD"

// minorUnits lists ISO 4217 currencies whose minor unit is not two digits.
var minorUnits = map[string]int32{
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
	"CLP": 0, "ISK": 0, "JPY": 0, "KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0,
	"VND": 0, "XAF": 0, "XOF": 0,
}

// Money is an amount in a currency's major unit with exact decimal precision.
type Money = decimal.Decimal

// ParseMoney parses a decimal amount such as "5000.00".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, wrapInput(err, "parse amount %q", s)
	}
	return d, nil
}

// MustMoney is ParseMoney for constants.
func MustMoney(s string) Money {
	return decimal.RequireFromString(s)
}

// MinorUnits is the number of decimal places of currency. An empty currency
// means DefaultCurrency.
func MinorUnits(currency string) int32 {
	if currency == "" {
		currency = DefaultCurrency
	}
	if n, ok := minorUnits[strings.ToUpper(currency)]; ok {
		return n
	}
	return 2
}

// RoundMinor rounds an amount to the minor units of currency.
func RoundMinor(m Money, currency string) Money {
	return m.Round(MinorUnits(currency))
}

// FormatMoney renders m with the minor units of currency, keeping any
// further significant digits m carries.
func FormatMoney(m Money, currency string) string {
	places := MinorUnits(currency)
	s := m.String()
	if i := strings.IndexByte(s, '.'); i >= 0 && int32(len(s)-i-1) > places {
		places = int32(len(s) - i - 1)
	}
	return m.StringFixed(places)
}
