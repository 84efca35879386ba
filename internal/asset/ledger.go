package asset

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Jenola344/EvoNFT/internal/auth"
	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
	"github.com/Jenola344/EvoNFT/internal/events"
	"github.com/Jenola344/EvoNFT/internal/gate"
	"github.com/Jenola344/EvoNFT/internal/safemath"
)

var (
	ErrNotFound           = apperrors.New(apperrors.CodeNotFound, "asset not found")
	ErrEvolutionDisabled  = apperrors.New(apperrors.CodeEvolutionDisabled, "evolution disabled")
	ErrRequirementsNotMet = apperrors.New(apperrors.CodeRequirementsNotMet, "evolution requirements not met")
	ErrNotOwner           = apperrors.New(apperrors.CodeNotOwner, "caller is not the asset owner")
)

// #region ledger-struct
// Ledger owns every asset record and the per-stage requirement table.
type Ledger struct {
	mu           sync.RWMutex
	registry     Registry
	authz        auth.Authorizer
	emitter      events.Emitter
	now          func() time.Time
	assets       map[ID]*Asset
	requirements map[uint64]Requirement
	interactions map[ID]map[auth.Identity]uint64
}

// #endregion ledger-struct

// #region constructor
// NewLedger creates an empty ledger backed by the given registry and authorizer.
func NewLedger(registry Registry, authz auth.Authorizer) *Ledger {
	return &Ledger{
		registry:     registry,
		authz:        authz,
		emitter:      events.NoopEmitter{},
		now:          time.Now,
		assets:       make(map[ID]*Asset),
		requirements: make(map[uint64]Requirement),
		interactions: make(map[ID]map[auth.Identity]uint64),
	}
}

// SetEmitter configures the notification emitter.
func (l *Ledger) SetEmitter(e events.Emitter) { l.emitter = events.OrNoop(e) }

// SetClock overrides the time source used for deterministic testing.
func (l *Ledger) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	l.now = now
}

// #endregion constructor

// #region mint
// Mint registers a new asset at stage 1 with zero XP and utility.
func (l *Ledger) Mint(ctx context.Context, caller, owner auth.Identity, traits []uint32, personalityHash [32]byte) (ID, error) {
	if err := auth.Require(l.authz, caller, auth.Minter); err != nil {
		return 0, err
	}
	if owner.Zero() {
		return 0, apperrors.New(apperrors.CodeInvalidArgument, "owner identity is empty")
	}
	if err := ValidateTraits(traits); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id, err := l.registry.Mint(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("registry mint: %w", err)
	}
	if _, exists := l.assets[id]; exists {
		return 0, apperrors.New(apperrors.CodeInternal, "registry reissued asset id "+formatID(id))
	}

	now := l.now()
	l.assets[id] = &Asset{
		ID:                id,
		Stage:             InitialStage,
		LastEvolutionTime: now,
		Traits:            append([]uint32(nil), traits...),
		PersonalityHash:   personalityHash,
		EvolutionEnabled:  true,
		MintedAt:          now,
	}

	l.emitter.Emit(ctx, events.New(events.NFTMinted, uint64(id), now, map[string]string{
		"owner": string(owner),
	}))
	return id, nil
}

// ValidateTraits checks the vector width and per-trait bounds.
func ValidateTraits(traits []uint32) error {
	if len(traits) != TraitWidth {
		return apperrors.New(apperrors.CodeInvalidArgument,
			fmt.Sprintf("expected %d traits, got %d", TraitWidth, len(traits)))
	}
	for i, v := range traits {
		if v < MinTrait || v > MaxTrait {
			return apperrors.New(apperrors.CodeInvalidArgument,
				fmt.Sprintf("trait %d value %d outside [%d,%d]", i, v, MinTrait, MaxTrait))
		}
	}
	return nil
}

// #endregion mint

// #region interactions
// RecordInteraction adds xpGain to the asset and tallies the counterpart.
// The counterpart must be a non-empty identity other than the owner.
func (l *Ledger) RecordInteraction(ctx context.Context, id ID, counterpart auth.Identity, xpGain uint64) error {
	if counterpart.Zero() {
		return apperrors.New(apperrors.CodeInvalidArgument, "counterpart identity is empty")
	}
	owner, err := l.registry.OwnerOf(ctx, id)
	if err != nil {
		return err
	}
	if owner == counterpart {
		return apperrors.New(apperrors.CodeInvalidArgument, "asset cannot interact with its owner")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[id]
	if !ok {
		return notFound(id)
	}
	xp, err := safemath.Add(a.ExperiencePoints, xpGain)
	if err != nil {
		return err
	}
	tally := l.interactions[id]
	count, err := safemath.Add(tally[counterpart], 1)
	if err != nil {
		return err
	}

	a.ExperiencePoints = xp
	if tally == nil {
		tally = make(map[auth.Identity]uint64)
		l.interactions[id] = tally
	}
	tally[counterpart] = count

	l.emitter.Emit(ctx, events.New(events.InteractionRecorded, uint64(id), l.now(), map[string]string{
		"counterpart": string(counterpart),
		"xp_gain":     strconv.FormatUint(xpGain, 10),
		"xp_total":    strconv.FormatUint(xp, 10),
	}))
	return nil
}

// InteractionCount returns how many interactions id recorded with counterpart.
func (l *Ledger) InteractionCount(id ID, counterpart auth.Identity) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.interactions[id][counterpart]
}

// #endregion interactions

// #region utility
// SetUtilityScore overwrites the asset's utility score.
func (l *Ledger) SetUtilityScore(ctx context.Context, caller auth.Identity, id ID, score uint64) error {
	if err := auth.Require(l.authz, caller, auth.Admin); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[id]
	if !ok {
		return notFound(id)
	}
	previous := a.UtilityScore
	a.UtilityScore = score

	l.emitter.Emit(ctx, events.New(events.UtilityScoreUpdated, uint64(id), l.now(), map[string]string{
		"previous": strconv.FormatUint(previous, 10),
		"score":    strconv.FormatUint(score, 10),
	}))
	return nil
}

// UtilityScore returns the asset's current utility score.
func (l *Ledger) UtilityScore(id ID) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[id]
	if !ok {
		return 0, notFound(id)
	}
	return a.UtilityScore, nil
}

// #endregion utility

// #region requirements
// SetRequirement configures the gate for leaving stage.
func (l *Ledger) SetRequirement(caller auth.Identity, stage uint64, req Requirement) error {
	if err := auth.Require(l.authz, caller, auth.Admin); err != nil {
		return err
	}
	if stage < InitialStage {
		return apperrors.New(apperrors.CodeInvalidArgument, "stage must be positive")
	}
	if req.TimeRequired < 0 {
		return apperrors.New(apperrors.CodeInvalidArgument, "time requirement must not be negative")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.requirements[stage] = req
	return nil
}

// Requirement returns the gate for leaving stage; unset stages return the zero requirement.
func (l *Ledger) Requirement(stage uint64) Requirement {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.requirements[stage]
}

// SetEvolutionEnabled lets the owner pause or resume evolution.
func (l *Ledger) SetEvolutionEnabled(ctx context.Context, caller auth.Identity, id ID, enabled bool) error {
	owner, err := l.registry.OwnerOf(ctx, id)
	if err != nil {
		return err
	}
	if owner != caller {
		return ErrNotOwner
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.assets[id]
	if !ok {
		return notFound(id)
	}
	a.EvolutionEnabled = enabled
	return nil
}

// #endregion requirements

// #region eligibility
// Eligibility evaluates the evolution gates for the asset's current stage.
func (l *Ledger) Eligibility(id ID) (gate.GateDecision, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[id]
	if !ok {
		return gate.GateDecision{}, notFound(id)
	}
	return l.evaluate(a), nil
}

// CanEvolve reports whether the asset exists and passes every gate.
func (l *Ledger) CanEvolve(id ID) bool {
	d, err := l.Eligibility(id)
	return err == nil && d.Eligible
}

// evaluate requires l.mu held.
func (l *Ledger) evaluate(a *Asset) gate.GateDecision {
	return gate.Evaluate(gate.Input{
		Enabled:           a.EvolutionEnabled,
		LastEvolutionTime: a.LastEvolutionTime,
		ExperiencePoints:  a.ExperiencePoints,
		Requirement:       l.requirements[a.Stage],
		Now:               l.now(),
	})
}

// #endregion eligibility

// #region trigger
// TriggerEvolution advances the asset by exactly one stage.
func (l *Ledger) TriggerEvolution(ctx context.Context, caller auth.Identity, id ID) (uint64, error) {
	return l.advance(caller, id, func(stage uint64) (uint64, error) {
		return safemath.Add(stage, 1)
	})
}

// AdvanceTo moves the asset directly to target, which must exceed the current stage.
// The gates of the current stage apply exactly as for TriggerEvolution.
func (l *Ledger) AdvanceTo(ctx context.Context, caller auth.Identity, id ID, target uint64) (uint64, error) {
	return l.advance(caller, id, func(stage uint64) (uint64, error) {
		if target <= stage {
			return 0, apperrors.WithMetadata(apperrors.CodeInvalidArgument,
				fmt.Sprintf("target stage %d does not exceed current stage %d", target, stage),
				map[string]string{"asset_id": formatID(id)})
		}
		return target, nil
	})
}

func (l *Ledger) advance(caller auth.Identity, id ID, next func(uint64) (uint64, error)) (uint64, error) {
	if err := auth.Require(l.authz, caller, auth.EvolutionManager); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[id]
	if !ok {
		return 0, notFound(id)
	}
	decision := l.evaluate(a)
	if !decision.Eligible {
		if decision.Has(gate.VetoDisabled) {
			return 0, apperrors.Wrap(apperrors.CodeEvolutionDisabled, "asset "+formatID(id), ErrEvolutionDisabled)
		}
		return 0, apperrors.WithMetadata(apperrors.CodeRequirementsNotMet, decision.Reason,
			map[string]string{"asset_id": formatID(id)})
	}

	stage, err := next(a.Stage)
	if err != nil {
		return 0, err
	}
	a.Stage = stage
	a.LastEvolutionTime = l.now()
	return stage, nil
}

// #endregion trigger

// #region reads
// Asset returns a snapshot of the asset record.
func (l *Ledger) Asset(id ID) (Asset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[id]
	if !ok {
		return Asset{}, notFound(id)
	}
	return a.clone(), nil
}

// Exists reports whether the ledger holds id.
func (l *Ledger) Exists(id ID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.assets[id]
	return ok
}

// OwnerOf resolves the current owner through the registry.
func (l *Ledger) OwnerOf(ctx context.Context, id ID) (auth.Identity, error) {
	return l.registry.OwnerOf(ctx, id)
}

// #endregion reads

func notFound(id ID) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound, "asset "+formatID(id)+" not found",
		map[string]string{"asset_id": formatID(id)})
}

func formatID(id ID) string {
	return strconv.FormatUint(uint64(id), 10)
}
