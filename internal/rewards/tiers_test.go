package rewards

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardbridge/internal/types"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testEngine(t *testing.T) *TierEngine {
	t.Helper()
	e, err := NewTierEngine([]Band{
		{Tier: types.TierPlatinum, Min: dec("15000"), Amount: dec("100")},
		{Tier: types.TierBronze, Min: dec("0"), Amount: dec("10")},
		{Tier: types.TierGold, Min: dec("5000"), Amount: dec("50")},
		{Tier: types.TierSilver, Min: dec("1000"), Amount: dec("25")},
	}, map[string]decimal.Decimal{
		"Marketing": dec("1.2"),
		"Support":   dec("1.3"),
	})
	require.NoError(t, err)
	return e
}

func TestTierForTarget(t *testing.T) {
	e := testEngine(t)
	tests := []struct {
		target string
		dept   string
		want   types.RewardTier
	}{
		{"0", "", types.TierBronze},
		{"-50", "", types.TierBronze},
		{"999.99", "", types.TierBronze},
		{"1000", "", types.TierSilver},
		{"4999", "Sales", types.TierSilver},
		{"5000", "", types.TierGold},
		{"15000", "", types.TierPlatinum},
		{"900", "Marketing", types.TierSilver},
		{"12000", "Support", types.TierPlatinum},
		{"12000", "Unknown", types.TierGold},
	}
	for _, tt := range tests {
		got := e.TierForTarget(dec(tt.target), tt.dept)
		assert.Equal(t, tt.want, got, "target %s dept %q", tt.target, tt.dept)
	}
}

func TestAmountForTier(t *testing.T) {
	e := testEngine(t)
	assert.True(t, e.AmountForTier(types.TierGold).Equal(dec("50")))
	assert.True(t, e.AmountForTier("Diamond").Equal(dec("10")))
}

func TestBandsAreOrderedAndHalfOpen(t *testing.T) {
	bands := testEngine(t).Bands()
	require.Len(t, bands, 4)
	assert.Equal(t, types.TierBronze, bands[0].Tier)
	require.NotNil(t, bands[0].Max)
	assert.True(t, bands[0].Max.Equal(bands[1].Min))
	assert.Nil(t, bands[3].Max)
}

func TestNewTierEngineRejectsDuplicateMinimum(t *testing.T) {
	_, err := NewTierEngine([]Band{
		{Tier: types.TierBronze, Min: dec("0")},
		{Tier: types.TierSilver, Min: dec("0")},
	}, nil)
	assert.Error(t, err)

	_, err = NewTierEngine(nil, nil)
	assert.Error(t, err)
}

func TestAssess(t *testing.T) {
	a := testEngine(t).Assess(dec("1000"), "Marketing")
	assert.Equal(t, types.TierSilver, a.Tier)
	assert.True(t, a.Amount.Equal(dec("25")))
	assert.True(t, a.AdjustedValue.Equal(dec("1200")))
}
