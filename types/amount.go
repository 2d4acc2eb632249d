// Package types provides the value types shared across fundme.
package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// NativeDecimals is the number of fractional digits of the native currency:
// one whole unit is 10^18 of the smallest unit.
const NativeDecimals = 18

// USDDecimals is the fixed-point precision used for USD-equivalent values.
const USDDecimals = 18

// Amount is an unsigned fixed-precision integer in the smallest unit of a
// currency. All arithmetic is integer-only and never mutates the receiver.
// The zero value is 0.
//
// Examples:
//   - Units(1, NativeDecimals) = 1 whole native unit (10^18)
//   - MustParseUnits("0.03", NativeDecimals) = 3 * 10^16
//   - Units(50, USDDecimals) = 50 USD in 18-digit fixed point
type Amount struct {
	v *big.Int
}

// Zero returns a zero Amount.
func Zero() Amount { return Amount{} }

// NewAmount creates an Amount from a count of smallest units.
func NewAmount(n uint64) Amount {
	return Amount{v: new(big.Int).SetUint64(n)}
}

// Units creates an Amount of n whole units at the given precision.
func Units(n uint64, decimals int) Amount {
	v := new(big.Int).SetUint64(n)
	return Amount{v: v.Mul(v, Pow10(decimals))}
}

// AmountFromBig copies b into an Amount. Negative values are rejected.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Zero(), nil
	}
	if b.Sign() < 0 {
		return Zero(), fmt.Errorf("amount: negative value %s", b.String())
	}
	return Amount{v: new(big.Int).Set(b)}, nil
}

// ParseAmount parses a base-10 integer count of smallest units.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero(), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Zero(), fmt.Errorf("amount: invalid integer %q", s)
	}
	return AmountFromBig(v)
}

// ParseUnits parses a decimal string of whole units ("0.03", "50", "1.5")
// into smallest units at the given precision. More fractional digits than
// decimals is an error rather than a silent truncation.
func ParseUnits(s string, decimals int) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero(), fmt.Errorf("amount: empty value")
	}
	if strings.HasPrefix(s, "-") {
		return Zero(), fmt.Errorf("amount: negative value %q", s)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > decimals {
		return Zero(), fmt.Errorf("amount: %q has more than %d fractional digits", s, decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))

	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Zero(), fmt.Errorf("amount: invalid decimal %q", s)
	}
	return Amount{v: v}, nil
}

// MustParseUnits is like ParseUnits but panics on error. Use for constants.
func MustParseUnits(s string, decimals int) Amount {
	a, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return a
}

// Pow10 returns 10^n as a new big.Int.
func Pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func (a Amount) bigInt() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Big returns a copy of the underlying integer.
func (a Amount) Big() *big.Int { return new(big.Int).Set(a.bigInt()) }

// Arithmetic operations

// Add returns a + other.
func (a Amount) Add(other Amount) Amount {
	return Amount{v: new(big.Int).Add(a.bigInt(), other.bigInt())}
}

// Sub returns a - other. Panics if the result would be negative.
func (a Amount) Sub(other Amount) Amount {
	r := new(big.Int).Sub(a.bigInt(), other.bigInt())
	if r.Sign() < 0 {
		panic(fmt.Sprintf("amount: %s - %s underflows", a, other))
	}
	return Amount{v: r}
}

// Mul returns a * other.
func (a Amount) Mul(other Amount) Amount {
	return Amount{v: new(big.Int).Mul(a.bigInt(), other.bigInt())}
}

// MulDiv returns a * mul / div, multiplying before dividing so no precision
// is lost ahead of the single truncating division.
func (a Amount) MulDiv(mul, div *big.Int) Amount {
	if div.Sign() == 0 {
		panic("amount: division by zero")
	}
	r := new(big.Int).Mul(a.bigInt(), mul)
	return Amount{v: r.Quo(r, div)}
}

// Comparison methods

// Cmp compares a and other and returns -1, 0 or +1.
func (a Amount) Cmp(other Amount) int { return a.bigInt().Cmp(other.bigInt()) }

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a.bigInt().Sign() == 0 }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return a.bigInt().Sign() > 0 }

// Equal returns true if both amounts are equal.
func (a Amount) Equal(other Amount) bool { return a.Cmp(other) == 0 }

// LessThan returns true if a < other.
func (a Amount) LessThan(other Amount) bool { return a.Cmp(other) < 0 }

// GreaterThan returns true if a > other.
func (a Amount) GreaterThan(other Amount) bool { return a.Cmp(other) > 0 }

// Sum adds up all values.
func Sum(values ...Amount) Amount {
	total := new(big.Int)
	for _, v := range values {
		total.Add(total, v.bigInt())
	}
	return Amount{v: total}
}

// Formatting methods

// FormatUnits renders the amount as whole units with the given precision,
// trimming trailing fractional zeros: FormatUnits(3e16, 18) == "0.03".
func (a Amount) FormatUnits(decimals int) string {
	if decimals <= 0 {
		return a.String()
	}

	q, r := new(big.Int).QuoRem(a.bigInt(), Pow10(decimals), new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}

	frac := r.String()
	frac = strings.Repeat("0", decimals-len(frac)) + frac
	return q.String() + "." + strings.TrimRight(frac, "0")
}

// String returns the base-10 count of smallest units.
func (a Amount) String() string { return a.bigInt().String() }

// MarshalJSON encodes the amount as a decimal string so large values survive
// JSON number handling.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or a bare JSON integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = Zero()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
