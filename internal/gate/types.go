package gate

import "time"

// #region veto-type
// VetoType enumerates the reasons an asset may not evolve.
type VetoType string

const (
	VetoDisabled   VetoType = "evolution_disabled"
	VetoCooldown   VetoType = "time_not_elapsed"
	VetoExperience VetoType = "experience_insufficient"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a failed evolution gate.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region requirement
// Requirement holds the per-stage gate thresholds. The zero value means the
// stage is immediately eligible.
type Requirement struct {
	TimeRequired time.Duration
	XPRequired   uint64
}

// #endregion requirement

// #region input
// Input is the asset snapshot evaluated by the gate.
type Input struct {
	Enabled           bool
	LastEvolutionTime time.Time
	ExperiencePoints  uint64
	Requirement       Requirement
	Now               time.Time
}

// #endregion input

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Eligible    bool
	Reason      string
	VetoSignals []VetoSignal // non-empty if not eligible
	ReadyAt     time.Time    // earliest time the time gate passes
}

// Has reports whether the decision carries a veto of type v.
func (d GateDecision) Has(v VetoType) bool {
	for _, s := range d.VetoSignals {
		if s.Type == v {
			return true
		}
	}
	return false
}

// #endregion gate-decision
