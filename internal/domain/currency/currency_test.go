package currency

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "whole", input: "1", expected: "1000000000000000000"},
		{name: "fraction", input: "2.5", expected: "2500000000000000000"},
		{name: "zero", input: "0", expected: "0"},
		{name: "smallest unit", input: "0.000000000000000001", expected: "1"},
		{name: "trailing zeros beyond scale", input: "1.50000000000000000000", expected: "1500000000000000000"},
		{name: "surrounding spaces", input: " 3 ", expected: "3000000000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := ToBaseUnits(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, w.String())
		})
	}
}

func TestToBaseUnits_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "negative", input: "-1"},
		{name: "not a number", input: "abc"},
		{name: "infinity", input: "Inf"},
		{name: "too many fractional digits", input: "0.0000000000000000001"},
		{name: "overflow", input: "1" + strings.Repeat("0", 70)},
		{name: "huge exponent", input: "1e100000000"},
		{name: "huge negative exponent", input: "1e-100000000"},
		{name: "just above uint256", input: "1e60"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToBaseUnits(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidAmount))
		})
	}
}

func TestToBaseUnits_ZeroWithHugeExponent(t *testing.T) {
	w, err := ToBaseUnits("0e-100000000")
	require.NoError(t, err)
	assert.True(t, w.IsZero())
}

func TestToBaseUnits_LargestAmount(t *testing.T) {
	w, err := ToBaseUnits("1e59")
	require.NoError(t, err)
	assert.Equal(t, "1"+strings.Repeat("0", 77), w.String())
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("0010.500")
	require.NoError(t, err)
	assert.Equal(t, "10.5", d.String())

	_, err = ParseAmount("1e100000000")
	assert.True(t, errors.Is(err, ErrInvalidAmount))
}

func TestToDecimal(t *testing.T) {
	v, ok := new(big.Int).SetString("2500000000000000000", 10)
	require.True(t, ok)

	assert.Equal(t, "2.5", FormatDecimal(NewWei(v)))
	assert.Equal(t, "0", FormatDecimal(NewWei(nil)))
	assert.Equal(t, "0.000000000000000001", FormatDecimal(NewWei(big.NewInt(1))))
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"0", "1", "1.0", "0010.500", "123456789.123456789123456789",
		"0.000000000000000001", "999999999999", "42.42", "1e3", "7.100",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			w, err := ToBaseUnits(in)
			require.NoError(t, err)

			assert.Equal(t, decimal.RequireFromString(in).String(), FormatDecimal(w))
		})
	}
}

func TestFromDecimal_MatchesToBaseUnits(t *testing.T) {
	w1, err := FromDecimal(decimal.RequireFromString("0.75"))
	require.NoError(t, err)
	w2, err := ToBaseUnits("0.75")
	require.NoError(t, err)
	assert.Equal(t, 0, w1.Cmp(w2))
}

func TestWei_Copies(t *testing.T) {
	v := big.NewInt(10)
	w := NewWei(v)
	v.SetInt64(99)
	assert.Equal(t, "10", w.String())

	out := w.BigInt()
	out.SetInt64(1)
	assert.Equal(t, "10", w.String())
	assert.False(t, w.IsZero())
	assert.True(t, Wei{}.IsZero())
}

func TestNativeSymbol(t *testing.T) {
	symbol, ok := NativeSymbol(137)
	assert.True(t, ok)
	assert.Equal(t, "MATIC", symbol)

	_, ok = NativeSymbol(999999)
	assert.False(t, ok)

	assert.True(t, IsSupportedSymbol("ETH"))
	assert.False(t, IsSupportedSymbol("DOGE"))
}
