// Package money holds the integer minor-unit amount type used by the budget engine.
//
// Every amount inside the engine is a Money value: a signed count of cents.
// Decimal strings only appear at the edges (Parse, String) and are handled with
// shopspring/decimal so no float ever touches an amount.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units (cents).
type Money int64

const Zero Money = 0

var ErrInvalidAmount = errors.New("invalid amount")

var (
	maxMoney = decimal.New(1<<63-1, 0)
	minMoney = decimal.New(-1<<63, 0)
)

func Cents(c int64) Money {
	return Money(c)
}

func (m Money) Cents() int64 {
	return int64(m)
}

func (m Money) Neg() Money {
	return -m
}

func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

func Max(a, b Money) Money {
	if a > b {
		return a
	}
	return b
}

// CeilDiv divides m by a positive n rounding toward positive infinity.
func (m Money) CeilDiv(n int64) Money {
	if n <= 0 {
		panic("money: non-positive divisor")
	}
	q := int64(m) / n
	if int64(m)%n != 0 && m > 0 {
		q++
	}
	return Money(q)
}

// Parse reads a decimal amount such as "12.34", "-5" or "12,345" (comma as
// decimal separator) into cents, rounding half away from zero past two places.
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	cents := d.Shift(2).Round(0)
	if cents.GreaterThan(maxMoney) || cents.LessThan(minMoney) {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	return Money(cents.IntPart()), nil
}

// String formats m with two decimal places, e.g. "-12.05".
func (m Money) String() string {
	return decimal.New(int64(m), -2).StringFixed(2)
}
