package staking

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/Jenola344/EvoNFT/internal/safemath"
)

// #region constants
const (
	// MaxUtilityMultiplier caps the utility bonus, in percent.
	MaxUtilityMultiplier = 300
	// YearSeconds is the reward period: 365 days.
	YearSeconds = 365 * 24 * 60 * 60
	// BasisPoints is the APY denominator.
	BasisPoints = 10000
	// DefaultStakeUnit is the notional principal of one staked asset.
	DefaultStakeUnit = 1000
)

// #endregion constants

// #region reward-input
// RewardInput is everything the reward formula depends on.
type RewardInput struct {
	Elapsed           time.Duration
	BaseAPY           uint64
	UtilityMultiplier uint64
	UtilityScore      uint64
	Accumulated       uint64
	StakeUnit         uint64
}

// #endregion reward-input

// #region formula
// EffectiveMultiplier returns min(score * poolMultiplier / 100, MaxUtilityMultiplier).
func EffectiveMultiplier(score, poolMultiplier uint64) uint64 {
	m := new(uint256.Int).Mul(uint256.NewInt(score), uint256.NewInt(poolMultiplier))
	m.Div(m, uint256.NewInt(100))
	if m.GtUint64(MaxUtilityMultiplier) {
		return MaxUtilityMultiplier
	}
	return m.Uint64()
}

// BaseRewards returns elapsed * stakeUnit * baseAPY / YearSeconds / BasisPoints,
// evaluated left to right with truncating division.
func BaseRewards(elapsed time.Duration, stakeUnit, baseAPY uint64) (*uint256.Int, error) {
	secs := uint64(0)
	if elapsed > 0 {
		secs = uint64(elapsed / time.Second)
	}
	base, err := safemath.MulU256(uint256.NewInt(secs), stakeUnit, baseAPY)
	if err != nil {
		return nil, err
	}
	base.Div(base, uint256.NewInt(YearSeconds))
	base.Div(base, uint256.NewInt(BasisPoints))
	return base, nil
}

// CalculateRewards evaluates
//
//	total = base * (100 + multiplier) / 100 + accumulated
//
// and fails with OVERFLOW when the total does not fit in uint64.
func CalculateRewards(in RewardInput) (uint64, error) {
	unit := in.StakeUnit
	if unit == 0 {
		unit = DefaultStakeUnit
	}
	base, err := BaseRewards(in.Elapsed, unit, in.BaseAPY)
	if err != nil {
		return 0, err
	}
	mult := EffectiveMultiplier(in.UtilityScore, in.UtilityMultiplier)

	total, err := safemath.MulU256(base, 100+mult)
	if err != nil {
		return 0, err
	}
	total.Div(total, uint256.NewInt(100))

	var overflow bool
	total, overflow = new(uint256.Int).AddOverflow(total, uint256.NewInt(in.Accumulated))
	if overflow {
		return 0, safemath.ErrOverflow
	}
	return safemath.ToUint64(total)
}

// #endregion formula
