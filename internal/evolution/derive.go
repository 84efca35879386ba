package evolution

import (
	"github.com/holiman/uint256"

	"github.com/Jenola344/EvoNFT/internal/asset"
)

const (
	traitBits = 16
	traitMask = 0xFFFF
	// weatherShift is the bit offset of the oracle-influenced trait.
	weatherShift = 64
)

// #region derive
// SelectNextStage picks path[word mod len(path)]. The path must be non-empty.
func SelectNextStage(path []uint64, word *uint256.Int) uint64 {
	n := uint256.NewInt(uint64(len(path)))
	idx := new(uint256.Int).Mod(word, n)
	return path[idx.Uint64()]
}

// DeriveTraits slices word into asset.TraitWidth bounded traits in [1,100].
// The first traits come from consecutive 16-bit fields; the last one mixes
// the field at bit 64 with the weather value.
func DeriveTraits(word *uint256.Int, weather int64) []uint32 {
	mask := uint256.NewInt(traitMask)
	traits := make([]uint32, asset.TraitWidth)
	for i := 0; i < asset.TraitWidth-1; i++ {
		field := new(uint256.Int).Rsh(word, uint(traitBits*i))
		field.And(field, mask)
		traits[i] = uint32(field.Uint64()%asset.MaxTrait) + asset.MinTrait
	}
	field := new(uint256.Int).Rsh(word, weatherShift)
	field.And(field, mask)
	traits[asset.TraitWidth-1] = uint32((field.Uint64()+uint64(weather))%asset.MaxTrait) + asset.MinTrait
	return traits
}

// NormalizeWeather substitutes NeutralWeather for a failed or non-positive reading.
func NormalizeWeather(v int64, err error) int64 {
	if err != nil || v <= 0 {
		return NeutralWeather
	}
	return v
}

// #endregion derive
