package domain

import (
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10", "10"},
		{"10.5", "10.5"},
		{"10.505", "10.51"},
		{"-10.505", "-10.51"},
		{"$1,250.00", "1250"},
		{"  42.00 ", "42"},
		{"", "0"},
	}
	for _, tc := range tests {
		got, err := ParseMoney(tc.in)
		assert.NoError(t, err)
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)),
			"ParseMoney(%q) = %s, want %s", tc.in, got, tc.want)
	}

	_, err := ParseMoney("ten dollars")
	assert.Error(t, err)
}

func TestParseQuantityKeepsPrecision(t *testing.T) {
	got, err := ParseQuantity("2.505")
	assert.NoError(t, err)
	assert.Equal(t, "2.505", got.String())

	_, err = ParseQuantity("lots")
	assert.Error(t, err)
}

func TestRoundMoneyHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, "1.01", RoundMoney(decimal.RequireFromString("1.005")).String())
	assert.Equal(t, "-1.01", RoundMoney(decimal.RequireFromString("-1.005")).String())
	assert.Equal(t, "1", RoundMoney(decimal.RequireFromString("1.0049")).String())
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "10.00", FormatMoney(decimal.RequireFromString("10")))
	assert.Equal(t, "-0.50", FormatMoney(decimal.RequireFromString("-0.5")))
}
