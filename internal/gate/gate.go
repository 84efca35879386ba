package gate

import "fmt"

// #region evaluate
// Evaluate checks the enabled flag, the time gate and the XP gate for the
// asset's current stage. Every failing gate is reported.
func Evaluate(in Input) GateDecision {
	var vetoes []VetoSignal

	if !in.Enabled {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoDisabled,
			Reason: "evolution disabled by owner",
		})
	}

	readyAt := in.LastEvolutionTime.Add(in.Requirement.TimeRequired)
	if in.Now.Before(readyAt) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoCooldown,
			Reason: fmt.Sprintf("stage time gate opens in %s", readyAt.Sub(in.Now)),
		})
	}

	if in.ExperiencePoints < in.Requirement.XPRequired {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoExperience,
			Reason: fmt.Sprintf("experience %d below required %d", in.ExperiencePoints, in.Requirement.XPRequired),
		})
	}

	if len(vetoes) > 0 {
		return GateDecision{
			Eligible:    false,
			Reason:      vetoes[0].Reason,
			VetoSignals: vetoes,
			ReadyAt:     readyAt,
		}
	}

	return GateDecision{
		Eligible: true,
		Reason:   "all gates passed",
		ReadyAt:  readyAt,
	}
}

// #endregion evaluate
