// Package events defines the notifications produced by the engines and the
// emitters that deliver them. Delivery is informational and at-least-once.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// #region kinds
// Kind identifies a notification type.
type Kind string

const (
	NFTMinted              Kind = "NFTMinted"
	EvolutionRequested     Kind = "EvolutionRequested"
	EvolutionCompleted     Kind = "EvolutionCompleted"
	UtilityScoreUpdated    Kind = "UtilityScoreUpdated"
	InteractionRecorded    Kind = "InteractionRecorded"
	PersonalityEvolved     Kind = "PersonalityEvolved"
	InteractionLearned     Kind = "InteractionLearned"
	SocialConnectionFormed Kind = "SocialConnectionFormed"
	MemoryStored           Kind = "MemoryStored"
	TokenStaked            Kind = "TokenStaked"
	TokenUnstaked          Kind = "TokenUnstaked"
	RewardsClaimed         Kind = "RewardsClaimed"
	PoolCreated            Kind = "PoolCreated"
)

// #endregion kinds

// #region event
// Event is a single notification. AssetID is zero for events that do not
// concern one asset (PoolCreated).
type Event struct {
	ID         string
	Kind       Kind
	AssetID    uint64
	Attributes map[string]string
	At         time.Time
}

// New builds an event with a fresh id.
func New(kind Kind, assetID uint64, at time.Time, attrs map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		AssetID:    assetID,
		Attributes: attrs,
		At:         at.UTC(),
	}
}

// #endregion event

// #region emitter
// Emitter delivers events to subscribers.
type Emitter interface {
	Emit(ctx context.Context, evt Event)
}

// NoopEmitter drops every event.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(context.Context, Event) {}

// Multi fans an event out to every emitter in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(ctx context.Context, evt Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, evt)
		}
	}
}

// OrNoop returns e, or a NoopEmitter when e is nil.
func OrNoop(e Emitter) Emitter {
	if e == nil {
		return NoopEmitter{}
	}
	return e
}

// #endregion emitter

// #region recorder
// Recorder keeps every emitted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the recorded events of one kind.
func (r *Recorder) OfKind(kind Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// #endregion recorder
