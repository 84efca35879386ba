// Package safemath provides checked arithmetic for engine counters.
package safemath

import (
	"math"
	"math/bits"

	"github.com/holiman/uint256"

	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
)

// ErrOverflow is returned when a result does not fit its type.
var ErrOverflow = apperrors.New(apperrors.CodeOverflow, "arithmetic overflow")

// Add returns a+b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrOverflow when b > a.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return diff, nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// SaturatingAdd returns a+b, capped at math.MaxUint64.
func SaturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// AddCapped returns min(a+b, limit) for 32-bit bounded values.
func AddCapped(a, b, limit uint32) uint32 {
	sum := uint64(a) + uint64(b)
	if sum > uint64(limit) {
		return limit
	}
	return uint32(sum)
}

// ToUint64 narrows a 256-bit value, failing with ErrOverflow.
func ToUint64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, ErrOverflow
	}
	return v.Uint64(), nil
}

// MulU256 multiplies x by each factor in order, failing on 256-bit overflow.
func MulU256(x *uint256.Int, factors ...uint64) (*uint256.Int, error) {
	acc := new(uint256.Int).Set(x)
	for _, f := range factors {
		var overflow bool
		acc, overflow = new(uint256.Int).MulOverflow(acc, uint256.NewInt(f))
		if overflow {
			return nil, ErrOverflow
		}
	}
	return acc, nil
}
