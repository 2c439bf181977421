package fee

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpay/internal/domain"
)

func TestSplit_TenPercent(t *testing.T) {
	f, p, err := Split(50000, DefaultRate)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), f)
	assert.Equal(t, int64(45000), p)
}

func TestSplit_RoundsHalfUp(t *testing.T) {
	cases := []struct {
		gross int64
		rate  string
		fee   int64
	}{
		{gross: 5, rate: "0.10", fee: 1},
		{gross: 4, rate: "0.10", fee: 0},
		{gross: 15, rate: "0.10", fee: 2},
		{gross: 1999, rate: "0.15", fee: 300},
		{gross: 0, rate: "0.10", fee: 0},
		{gross: 12345, rate: "0", fee: 0},
	}
	for _, tc := range cases {
		f, p, err := Split(tc.gross, decimal.RequireFromString(tc.rate))
		require.NoError(t, err)
		assert.Equal(t, tc.fee, f, "gross=%d rate=%s", tc.gross, tc.rate)
		assert.Equal(t, tc.gross, f+p)
	}
}

func TestSplit_SumAlwaysEqualsGross(t *testing.T) {
	rates := []string{"0", "0.01", "0.10", "0.125", "0.333", "0.9999"}
	for _, r := range rates {
		rate := decimal.RequireFromString(r)
		for gross := int64(0); gross < 2000; gross += 7 {
			f, p, err := Split(gross, rate)
			require.NoError(t, err)
			assert.Equal(t, gross, f+p)
			assert.GreaterOrEqual(t, f, int64(0))
			assert.GreaterOrEqual(t, p, int64(0))
		}
	}
}

func TestSplit_RejectsInvalidInput(t *testing.T) {
	_, _, err := Split(-1, DefaultRate)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, _, err = Split(100, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, _, err = Split(100, decimal.RequireFromString("-0.01"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestPolicy(t *testing.T) {
	_, err := NewPolicy(decimal.RequireFromString("1.5"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	p, err := NewPolicy(DefaultRate)
	require.NoError(t, err)
	b, err := p.Split(50000)
	require.NoError(t, err)
	assert.Equal(t, Breakdown{Gross: 50000, PlatformFee: 5000, RecipientAmount: 45000}, b)
}

func TestScaleFee(t *testing.T) {
	assert.Equal(t, int64(5000), ScaleFee(5000, 50000, 50000))
	assert.Equal(t, int64(2500), ScaleFee(5000, 50000, 25000))
	assert.Equal(t, int64(700), ScaleFee(700, 0, 100))
}
