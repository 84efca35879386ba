package personality

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Jenola344/EvoNFT/internal/asset"
	"github.com/Jenola344/EvoNFT/internal/auth"
	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
	"github.com/Jenola344/EvoNFT/internal/events"
)

// #region engine-struct
// Engine owns the personality record of every initialized asset.
type Engine struct {
	mu      sync.RWMutex
	authz   auth.Authorizer
	emitter events.Emitter
	now     func() time.Time
	records map[asset.ID]*State
}

// NewEngine creates an engine with no records.
func NewEngine(authz auth.Authorizer) *Engine {
	return &Engine{
		authz:   authz,
		emitter: events.NoopEmitter{},
		now:     time.Now,
		records: make(map[asset.ID]*State),
	}
}

// SetEmitter configures the notification emitter.
func (e *Engine) SetEmitter(em events.Emitter) { e.emitter = events.OrNoop(em) }

// SetClock overrides the time source used for deterministic testing.
func (e *Engine) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.now = now
}

// #endregion engine-struct

// #region initialize
// InitializePersonality creates the record for id. It may run once per asset.
func (e *Engine) InitializePersonality(ctx context.Context, caller auth.Identity, id asset.ID, traits []uint32, learningRate uint32) error {
	if err := auth.Require(e.authz, caller, auth.PersonalityManager); err != nil {
		return err
	}
	if learningRate > MaxLearningRate {
		return apperrors.New(apperrors.CodeInvalidArgument,
			fmt.Sprintf("learning rate %d exceeds cap %d", learningRate, MaxLearningRate))
	}
	for i, v := range traits {
		if v > MaxTraitValue {
			return apperrors.New(apperrors.CodeInvalidArgument,
				fmt.Sprintf("trait %d value %d exceeds %d", i, v, MaxTraitValue))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.records[id]; exists {
		return apperrors.WithMetadata(apperrors.CodeAlreadyInitialized, "personality already initialized",
			map[string]string{"asset_id": formatID(id)})
	}
	e.records[id] = &State{
		Traits:            append([]uint32(nil), traits...),
		LearningRate:      learningRate,
		Stage:             asset.InitialStage,
		InteractionCounts: make(map[string]uint64),
		SkillLevels:       make(map[string]uint64),
		SocialConnections: make(map[auth.Identity]uint64),
		InitializedAt:     e.now(),
	}
	return nil
}

// #endregion initialize

// #region record-interaction
// RecordInteraction applies one interaction of the given type and intensity.
func (e *Engine) RecordInteraction(ctx context.Context, id asset.ID, interactionType string, counterpart auth.Identity, intensity uint64) error {
	interactionType = strings.TrimSpace(interactionType)
	if interactionType == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "interaction type is empty")
	}
	if counterpart.Zero() {
		return apperrors.New(apperrors.CodeInvalidArgument, "counterpart identity is empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.records[id]
	if !ok {
		return notFound(id)
	}
	result, err := ApplyInteraction(*cur, interactionType, counterpart, intensity)
	if err != nil {
		return err
	}
	*cur = result.State

	now := e.now()
	e.emitter.Emit(ctx, events.New(events.InteractionLearned, uint64(id), now, map[string]string{
		"interaction_type": interactionType,
		"counterpart":      string(counterpart),
		"intensity":        strconv.FormatUint(intensity, 10),
		"skill_gain":       strconv.FormatUint(result.SkillGain, 10),
	}))
	if result.NewConnection {
		e.emitter.Emit(ctx, events.New(events.SocialConnectionFormed, uint64(id), now, map[string]string{
			"counterpart": string(counterpart),
			"strength":    strconv.FormatUint(result.State.SocialConnections[counterpart], 10),
		}))
	}
	return nil
}

// #endregion record-interaction

// #region evolve
// EvolvePersonality applies an evolution bonus for newStage.
func (e *Engine) EvolvePersonality(ctx context.Context, caller auth.Identity, id asset.ID, newStage uint64, bonus []uint32) error {
	if err := auth.Require(e.authz, caller, auth.EvolutionManager); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.records[id]
	if !ok {
		return notFound(id)
	}
	*cur = ApplyEvolution(*cur, newStage, bonus)

	e.emitter.Emit(ctx, events.New(events.PersonalityEvolved, uint64(id), e.now(), map[string]string{
		"stage":         strconv.FormatUint(newStage, 10),
		"learning_rate": strconv.FormatUint(uint64(cur.LearningRate), 10),
		"traits":        formatTraits(cur.Traits),
	}))
	return nil
}

// #endregion evolve

// #region memories
// StoreMemory appends data to the memory log and returns the entry id.
// The log has no eviction.
func (e *Engine) StoreMemory(ctx context.Context, caller auth.Identity, id asset.ID, data []byte) (string, error) {
	if err := auth.Require(e.authz, caller, auth.PersonalityManager); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.records[id]
	if !ok {
		return "", notFound(id)
	}
	mem := Memory{
		ID:       uuid.NewString(),
		Data:     append([]byte(nil), data...),
		StoredAt: e.now(),
	}
	cur.Memories = append(cur.Memories, mem)

	e.emitter.Emit(ctx, events.New(events.MemoryStored, uint64(id), mem.StoredAt, map[string]string{
		"memory_id": mem.ID,
		"size":      strconv.Itoa(len(data)),
		"index":     strconv.Itoa(len(cur.Memories) - 1),
	}))
	return mem.ID, nil
}

// #endregion memories

// #region reads
// PersonalityData returns a snapshot of the record for id.
func (e *Engine) PersonalityData(id asset.ID) (State, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cur, ok := e.records[id]
	if !ok {
		return State{}, notFound(id)
	}
	return cur.Clone(), nil
}

// SocialConnection returns the accumulated strength between id and counterpart.
func (e *Engine) SocialConnection(id asset.ID, counterpart auth.Identity) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cur, ok := e.records[id]
	if !ok {
		return 0
	}
	return cur.SocialConnections[counterpart]
}

// SkillLevel returns the learned skill for one interaction type.
func (e *Engine) SkillLevel(id asset.ID, interactionType string) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cur, ok := e.records[id]
	if !ok {
		return 0
	}
	return cur.SkillLevels[interactionType]
}

// Has reports whether id has an initialized personality.
func (e *Engine) Has(id asset.ID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.records[id]
	return ok
}

// #endregion reads

func notFound(id asset.ID) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound, "personality for asset "+formatID(id)+" not initialized",
		map[string]string{"asset_id": formatID(id)})
}

func formatID(id asset.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func formatTraits(traits []uint32) string {
	parts := make([]string, len(traits))
	for i, v := range traits {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ",")
}
