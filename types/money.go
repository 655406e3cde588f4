// Package types provides the value types shared by fulfill entities.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrOverflow is returned by the checked arithmetic when an amount leaves
// the int64 range.
var ErrOverflow = errors.New("types: money amount overflows")

// BasisPoints is the denominator for rates expressed in basis points.
// 1000 bps = 10%.
const BasisPoints = 10000

// Money represents a monetary value in the smallest currency unit.
// All arithmetic is integer-only, no floating point.
//
// Examples:
//   - USD(999) = $9.99
//   - EUR(1299) = €12.99
type Money struct {
	Amount   int64  `json:"amount"`   // Smallest unit (cents, pence, etc)
	Currency string `json:"currency"` // ISO 4217 lowercase: "usd", "eur", "gbp"
}

// New creates a Money value in the given currency.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(currency)}
}

// USD creates a Money value in US Dollars (cents).
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// EUR creates a Money value in Euros (cents).
func EUR(cents int64) Money { return Money{Amount: cents, Currency: "eur"} }

// GBP creates a Money value in British Pounds (pence).
func GBP(pence int64) Money { return Money{Amount: pence, Currency: "gbp"} }

// JPY creates a Money value in Japanese Yen (no decimal).
func JPY(yen int64) Money { return Money{Amount: yen, Currency: "jpy"} }

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return Money{Amount: 0, Currency: strings.ToLower(currency)} }

// ParseMajor parses a decimal string in major units ("9.99") into Money.
// It rejects more fractional digits than the currency carries.
func ParseMajor(s, currency string) (Money, error) {
	currency = strings.ToLower(currency)
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, fmt.Errorf("money: parse %q: empty amount", s)
	}

	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	decimals := currencyDecimals(currency)
	if len(frac) > decimals {
		return Money{}, fmt.Errorf("money: parse %q: %s allows %d decimal places", s, currency, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	if whole == "" {
		whole = "0"
	}
	digits := whole + frac
	amount, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	if negative {
		amount = -amount
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// Arithmetic operations

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Subtract subtracts another Money value. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// Multiply multiplies the Money by a quantity.
func (m Money) Multiply(qty int64) Money {
	return Money{Amount: m.Amount * qty, Currency: m.Currency}
}

// ApplyRate returns m × bps / 10000 rounded half away from zero to the
// smallest currency unit. ApplyRate(1000) on USD(999) is USD(100).
func (m Money) ApplyRate(bps int64) Money {
	whole := m.Amount / BasisPoints
	part := (m.Amount % BasisPoints) * bps
	return Money{Amount: whole*bps + roundBasisPoints(part), Currency: m.Currency}
}

// CheckedAdd is Add that reports ErrOverflow instead of wrapping.
func (m Money) CheckedAdd(other Money) (Money, error) {
	m.assertSameCurrency(other)
	sum, ok := addInt64(m.Amount, other.Amount)
	if !ok {
		return Money{}, fmt.Errorf("%w: %d + %d", ErrOverflow, m.Amount, other.Amount)
	}
	return Money{Amount: sum, Currency: m.Currency}, nil
}

// CheckedMultiply is Multiply that reports ErrOverflow instead of wrapping.
func (m Money) CheckedMultiply(qty int64) (Money, error) {
	product, ok := mulInt64(m.Amount, qty)
	if !ok {
		return Money{}, fmt.Errorf("%w: %d × %d", ErrOverflow, m.Amount, qty)
	}
	return Money{Amount: product, Currency: m.Currency}, nil
}

// CheckedApplyRate is ApplyRate that reports ErrOverflow instead of wrapping.
func (m Money) CheckedApplyRate(bps int64) (Money, error) {
	whole, ok := mulInt64(m.Amount/BasisPoints, bps)
	if !ok {
		return Money{}, fmt.Errorf("%w: %d at %d bps", ErrOverflow, m.Amount, bps)
	}
	part, ok := mulInt64(m.Amount%BasisPoints, bps)
	if !ok {
		return Money{}, fmt.Errorf("%w: %d at %d bps", ErrOverflow, m.Amount, bps)
	}
	amount, ok := addInt64(whole, roundBasisPoints(part))
	if !ok {
		return Money{}, fmt.Errorf("%w: %d at %d bps", ErrOverflow, m.Amount, bps)
	}
	return Money{Amount: amount, Currency: m.Currency}, nil
}

// roundBasisPoints divides p by BasisPoints, rounding half away from zero.
func roundBasisPoints(p int64) int64 {
	q := p / BasisPoints
	r := p % BasisPoints
	if r < 0 {
		r = -r
	}
	if r*2 >= BasisPoints {
		if p < 0 {
			q--
		} else {
			q++
		}
	}
	return q
}

func addInt64(a, b int64) (int64, bool) {
	c := a + b
	if (a > 0 && b > 0 && c < 0) || (a < 0 && b < 0 && c >= 0) {
		return 0, false
	}
	return c, true
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	c := a * b
	if c/b != a {
		return 0, false
	}
	return c, true
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal returns true if both Money values are equal (same amount and currency).
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// SameCurrency reports whether both values are in the same currency.
func (m Money) SameCurrency(other Money) bool {
	return m.Currency == other.Currency
}

// Formatting methods

// FormatMajor returns the major unit string without currency symbol.
// For currencies with 2 decimal places: "9.99" for USD(999).
// For currencies with 0 decimal places (JPY): "100" for JPY(100).
func (m Money) FormatMajor() string {
	decimals := currencyDecimals(m.Currency)
	if decimals == 0 {
		return strconv.FormatInt(m.Amount, 10)
	}

	divisor := int64(1)
	for i := 0; i < decimals; i++ {
		divisor *= 10
	}

	abs := m.Amount
	if abs < 0 {
		abs = -abs
	}

	result := fmt.Sprintf("%d.%0*d", abs/divisor, decimals, abs%divisor)
	if m.Amount < 0 {
		return "-" + result
	}
	return result
}

// String returns a human-readable string with currency symbol.
// Examples: "$9.99", "€12.99", "¥100"
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// Helper functions

// assertSameCurrency panics if currencies don't match.
func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

var symbols = map[string]string{
	"usd": "$",
	"eur": "€",
	"gbp": "£",
	"jpy": "¥",
	"cad": "C$",
	"aud": "A$",
}

// currencySymbol returns the symbol for a currency code.
func currencySymbol(currency string) string {
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

var zeroDecimal = map[string]bool{
	"jpy": true,
	"krw": true,
	"vnd": true,
	"clp": true,
}

// currencyDecimals returns the number of decimal places for a currency.
func currencyDecimals(currency string) int {
	if zeroDecimal[strings.ToLower(currency)] {
		return 0
	}
	return 2
}

// Sum adds values that all share one currency. An empty list sums to zero
// USD. It reports ErrOverflow instead of wrapping.
func Sum(values ...Money) (Money, error) {
	if len(values) == 0 {
		return Zero("usd"), nil
	}

	result := values[0]
	for i := 1; i < len(values); i++ {
		var err error
		if result, err = result.CheckedAdd(values[i]); err != nil {
			return Money{}, err
		}
	}
	return result, nil
}
