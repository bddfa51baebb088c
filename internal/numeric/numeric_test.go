package numeric

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDivByZeroIsZero(t *testing.T) {
	assert.True(t, Div(One, Zero).IsZero())
	assert.Equal(t, "0.5", Div(One, Two).String())
}

func TestScaled(t *testing.T) {
	assert.Equal(t, "1", Scaled(big.NewInt(1_000_000), 6).String())
	assert.True(t, Scaled(nil, 18).IsZero())

	raw, ok := new(big.Int).SetString("2500000000000000000", 10)
	require.True(t, ok)
	assert.Equal(t, "2.5", Scaled(raw, 18).String())
	assert.Equal(t, "2.5", Unscale(FromBig(raw), 18).String())
}

func TestGrowthRate(t *testing.T) {
	assert.True(t, GrowthRate(One, Zero).IsZero())
	got := GrowthRate(decimal.RequireFromString("1.0001"), One)
	assert.True(t, got.Equal(decimal.RequireFromString("0.0001")), got.String())
}

func TestParseFallbacks(t *testing.T) {
	assert.Equal(t, int64(0), ParseBig("nope").Int64())
	assert.Equal(t, int64(42), ParseBig("42").Int64())
	assert.True(t, ParseDecimal("x").IsZero())
}
