// Package asset implements the evolving-asset ledger: per-asset stage, XP,
// utility score and traits, plus the per-stage evolution requirements.
package asset

import (
	"context"
	"time"

	"github.com/Jenola344/EvoNFT/internal/auth"
	"github.com/Jenola344/EvoNFT/internal/gate"
)

// #region constants
const (
	// TraitWidth is the fixed length of every trait vector.
	TraitWidth = 5
	// MinTrait and MaxTrait bound generated trait values.
	MinTrait = 1
	MaxTrait = 100
	// InitialStage is the stage of a freshly minted asset.
	InitialStage = 1
)

// #endregion constants

// #region asset
// ID is an opaque, immutable asset identifier issued by the registry.
type ID uint64

// Asset is a snapshot of an evolving asset.
type Asset struct {
	ID                ID
	Stage             uint64
	UtilityScore      uint64
	ExperiencePoints  uint64
	LastEvolutionTime time.Time
	Traits            []uint32
	PersonalityHash   [32]byte
	EvolutionEnabled  bool
	MintedAt          time.Time
}

func (a *Asset) clone() Asset {
	out := *a
	out.Traits = append([]uint32(nil), a.Traits...)
	return out
}

// Requirement gates evolution out of a stage. A stage with no configured
// requirement is immediately eligible.
type Requirement = gate.Requirement

// #endregion asset

// #region registry
// Registry is the external owner of asset identity and custody.
type Registry interface {
	Mint(ctx context.Context, owner auth.Identity) (ID, error)
	OwnerOf(ctx context.Context, id ID) (auth.Identity, error)
	Transfer(ctx context.Context, from, to auth.Identity, id ID) error
}

// #endregion registry
