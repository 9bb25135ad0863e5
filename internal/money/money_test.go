package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, Money(34), Money(100).CeilDiv(3))
	assert.Equal(t, Money(25), Money(100).CeilDiv(4))
	assert.Equal(t, Money(-33), Money(-100).CeilDiv(3))
	assert.Equal(t, Money(0), Money(0).CeilDiv(7))
}

func TestParse(t *testing.T) {
	cases := []struct {
		in  string
		out Money
		ok  bool
	}{
		{"1", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"-12.05", -1205, true},
		{"1.005", 101, true},
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{"0", 0, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"99999999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if tc.ok {
			require.NoError(t, err, tc.in)
			assert.Equal(t, tc.out, got, tc.in)
		} else {
			assert.ErrorIs(t, err, ErrInvalidAmount, tc.in)
		}
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "12.34", Money(1234).String())
	assert.Equal(t, "-0.05", Money(-5).String())
	assert.Equal(t, "0.00", Zero.String())
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, Money(5), Max(5, -3))
	assert.Equal(t, Money(7), Money(-7).Abs())
	assert.Equal(t, Money(-500), Money(500).Neg())
	assert.Equal(t, int64(42), Cents(42).Cents())
}
