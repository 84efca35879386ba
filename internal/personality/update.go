package personality

import (
	"github.com/Jenola344/EvoNFT/internal/auth"
	"github.com/Jenola344/EvoNFT/internal/safemath"
)

// #region interaction-result
// InteractionResult bundles everything returned by ApplyInteraction.
type InteractionResult struct {
	State         State
	SkillGain     uint64
	NewConnection bool
	LeveledUp     bool
}

// #endregion interaction-result

// #region apply-interaction
// ApplyInteraction is a pure function that computes the state after one
// interaction. The input state is not modified.
func ApplyInteraction(old State, interactionType string, counterpart auth.Identity, intensity uint64) (InteractionResult, error) {
	next := old.Clone()

	count, err := safemath.Add(next.InteractionCounts[interactionType], 1)
	if err != nil {
		return InteractionResult{}, err
	}
	strength, err := safemath.Add(next.SocialConnections[counterpart], intensity)
	if err != nil {
		return InteractionResult{}, err
	}
	scaled, err := safemath.Mul(intensity, uint64(next.LearningRate))
	if err != nil {
		return InteractionResult{}, err
	}
	skillGain := scaled / 100
	skill, err := safemath.Add(next.SkillLevels[interactionType], skillGain)
	if err != nil {
		return InteractionResult{}, err
	}
	experience, err := safemath.Add(next.ExperienceLevel, intensity)
	if err != nil {
		return InteractionResult{}, err
	}

	newConnection := next.SocialConnections[counterpart] == 0 && strength > 0

	next.InteractionCounts[interactionType] = count
	next.SocialConnections[counterpart] = strength
	next.SkillLevels[interactionType] = skill
	next.ExperienceLevel = experience

	leveled := checkLevelUp(&next)

	return InteractionResult{
		State:         next,
		SkillGain:     skillGain,
		NewConnection: newConnection,
		LeveledUp:     leveled,
	}, nil
}

// checkLevelUp raises the learning rate by one and resets experience once
// the level-up threshold is reached, until the rate cap.
func checkLevelUp(s *State) bool {
	if s.ExperienceLevel >= LevelUpThreshold && s.LearningRate < MaxLearningRate {
		s.LearningRate++
		s.ExperienceLevel = 0
		return true
	}
	return false
}

// #endregion apply-interaction

// #region apply-evolution
// ApplyEvolution adds bonus to the traits pairwise, clamping every trait to
// MaxTraitValue, and raises the learning rate by EvolutionRateGain up to the cap.
func ApplyEvolution(old State, newStage uint64, bonus []uint32) State {
	next := old.Clone()

	n := len(next.Traits)
	if len(bonus) < n {
		n = len(bonus)
	}
	for i := 0; i < n; i++ {
		next.Traits[i] = safemath.AddCapped(next.Traits[i], bonus[i], MaxTraitValue)
	}
	// Traits beyond the bonus length still honour the clamp.
	for i := n; i < len(next.Traits); i++ {
		if next.Traits[i] > MaxTraitValue {
			next.Traits[i] = MaxTraitValue
		}
	}

	next.LearningRate = safemath.AddCapped(next.LearningRate, EvolutionRateGain, MaxLearningRate)
	next.Stage = newStage
	return next
}

// #endregion apply-evolution
