// Package personality implements the trait/personality learning engine:
// learned trait vectors, learning rate, experience, social connections and
// an append-only memory log per asset.
package personality

import (
	"time"

	"github.com/Jenola344/EvoNFT/internal/auth"
)

// #region constants
const (
	MaxTraitValue     = 100
	MaxLearningRate   = 50
	EvolutionRateGain = 5
	LevelUpThreshold  = 1000
)

// #endregion constants

// #region memory
// Memory is one opaque entry of the memory log.
type Memory struct {
	ID       string
	Data     []byte
	StoredAt time.Time
}

// #endregion memory

// #region state
// State is the per-asset personality record.
type State struct {
	Traits            []uint32
	LearningRate      uint32
	ExperienceLevel   uint64
	Stage             uint64
	InteractionCounts map[string]uint64
	SkillLevels       map[string]uint64
	SocialConnections map[auth.Identity]uint64
	Memories          []Memory
	InitializedAt     time.Time
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := s
	out.Traits = append([]uint32(nil), s.Traits...)
	out.InteractionCounts = cloneMap(s.InteractionCounts)
	out.SkillLevels = cloneMap(s.SkillLevels)
	out.SocialConnections = cloneMap(s.SocialConnections)
	out.Memories = make([]Memory, len(s.Memories))
	for i, m := range s.Memories {
		m.Data = append([]byte(nil), m.Data...)
		out.Memories[i] = m
	}
	return out
}

func cloneMap[K comparable](m map[K]uint64) map[K]uint64 {
	out := make(map[K]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// #endregion state
