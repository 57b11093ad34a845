// Package rewards maps performance targets onto reward tiers.
package rewards

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"rewardbridge/internal/types"
)

// Band is one tier. It covers [Min, next band's Min); the highest band is
// open-ended.
type Band struct {
	Tier   types.RewardTier `json:"tier"`
	Min    decimal.Decimal  `json:"min_value"`
	Max    *decimal.Decimal `json:"max_value,omitempty"`
	Amount decimal.Decimal  `json:"gift_card_amount"`
}

// TierEngine holds the ordered bands and per-department multipliers.
type TierEngine struct {
	bands       []Band
	multipliers map[string]decimal.Decimal
}

// NewTierEngine sorts bands by Min and fills in each band's Max from its
// successor. Overlapping minimums are rejected.
func NewTierEngine(bands []Band, multipliers map[string]decimal.Decimal) (*TierEngine, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("tier engine needs at least one band")
	}
	sorted := make([]Band, len(bands))
	copy(sorted, bands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min.LessThan(sorted[j].Min) })

	for i := range sorted {
		sorted[i].Max = nil
		if i+1 < len(sorted) {
			if sorted[i+1].Min.Equal(sorted[i].Min) {
				return nil, fmt.Errorf("tiers %s and %s share minimum %s", sorted[i].Tier, sorted[i+1].Tier, sorted[i].Min)
			}
			upper := sorted[i+1].Min
			sorted[i].Max = &upper
		}
	}

	m := make(map[string]decimal.Decimal, len(multipliers))
	for k, v := range multipliers {
		m[k] = v
	}
	return &TierEngine{bands: sorted, multipliers: m}, nil
}

// Multiplier returns the department's multiplier, 1 when unmapped.
func (e *TierEngine) Multiplier(department string) decimal.Decimal {
	if m, ok := e.multipliers[department]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

// AdjustedValue applies the department multiplier to a target value.
func (e *TierEngine) AdjustedValue(target decimal.Decimal, department string) decimal.Decimal {
	return target.Mul(e.Multiplier(department))
}

// TierForTarget returns the band containing the adjusted target value. A
// value on a boundary belongs to the higher band; a value below every band
// falls back to the lowest tier.
func (e *TierEngine) TierForTarget(target decimal.Decimal, department string) types.RewardTier {
	adjusted := e.AdjustedValue(target, department)
	tier := e.bands[0].Tier
	for _, b := range e.bands {
		if adjusted.GreaterThanOrEqual(b.Min) {
			tier = b.Tier
		}
	}
	return tier
}

// AmountForTier returns the gift-card amount for tier, or the lowest band's
// amount for an unknown tier.
func (e *TierEngine) AmountForTier(tier types.RewardTier) decimal.Decimal {
	if b, ok := e.Band(tier); ok {
		return b.Amount
	}
	return e.bands[0].Amount
}

// Band looks up a band by tier name.
func (e *TierEngine) Band(tier types.RewardTier) (Band, bool) {
	for _, b := range e.bands {
		if b.Tier == tier {
			return b, true
		}
	}
	return Band{}, false
}

// Bands returns a copy of the ordered bands.
func (e *TierEngine) Bands() []Band {
	out := make([]Band, len(e.bands))
	copy(out, e.bands)
	return out
}

// Assessment is the tier decision for one target.
type Assessment struct {
	Tier          types.RewardTier `json:"tier"`
	Amount        decimal.Decimal  `json:"amount"`
	AdjustedValue decimal.Decimal  `json:"adjusted_value"`
}

// Assess computes tier and amount together.
func (e *TierEngine) Assess(target decimal.Decimal, department string) Assessment {
	tier := e.TierForTarget(target, department)
	return Assessment{
		Tier:          tier,
		Amount:        e.AmountForTier(tier),
		AdjustedValue: e.AdjustedValue(target, department),
	}
}
