// Package evolution implements the two-phase evolution protocol: an
// eligible asset issues a randomness request, and the later fulfillment
// derives the next stage and trait bonus and applies them to the ledger and
// the personality engine exactly once.
package evolution

import (
	"context"
	"time"

	"github.com/holiman/uint256"

	"github.com/Jenola344/EvoNFT/internal/asset"
	"github.com/Jenola344/EvoNFT/internal/auth"
	"github.com/Jenola344/EvoNFT/internal/gate"
)

// #region constants
const (
	// NeutralWeather replaces an unavailable or non-positive oracle value.
	NeutralWeather int64 = 50

	// DefaultWeatherSeries is the oracle series that influences the last trait.
	DefaultWeatherSeries = "weather"

	// MinWords is the number of random words a fulfillment must carry.
	MinWords = 2

	// DefaultExternalTimeout bounds a collaborator call when none is configured.
	DefaultExternalTimeout = 5 * time.Second
)

// #endregion constants

// #region stage-advance
// StageAdvance selects how a fulfillment moves the ledger stage.
type StageAdvance string

const (
	// AdvanceSingle advances the ledger by one stage; the selected path
	// stage is reported to the personality engine and the notification only.
	AdvanceSingle StageAdvance = "single"
	// AdvancePath moves the ledger directly to the selected path stage.
	AdvancePath StageAdvance = "path"
)

// Valid reports whether m is a known mode.
func (m StageAdvance) Valid() bool {
	return m == AdvanceSingle || m == AdvancePath
}

// #endregion stage-advance

// #region request
// Request is one in-flight randomness round-trip. An expired request was
// closed without fulfillment and can never be applied.
type Request struct {
	ID             string
	AssetID        asset.ID
	Requester      auth.Identity
	StageAtRequest uint64
	Fulfilled      bool
	Expired        bool
	CreatedAt      time.Time
	FulfilledAt    time.Time
}

// Outcome is the result of a successful fulfillment.
type Outcome struct {
	RequestID   string
	AssetID     asset.ID
	NextStage   uint64
	LedgerStage uint64
	Traits      []uint32
	Weather     int64
}

// #endregion request

// #region collaborators
// RandomnessRequest carries the parameters of one randomness request.
type RandomnessRequest struct {
	NumWords      uint32
	Confirmations uint32
}

// RandomnessProvider issues asynchronous randomness requests. The words are
// delivered later to a FulfillmentHandler under the returned id.
type RandomnessProvider interface {
	RequestRandomWords(ctx context.Context, req RandomnessRequest) (string, error)
}

// FulfillmentHandler receives random words for an earlier request.
type FulfillmentHandler interface {
	OnRandomnessFulfilled(ctx context.Context, requestID string, words []*uint256.Int) (Outcome, error)
}

// OracleFeed exposes the latest value of a named external data series.
type OracleFeed interface {
	LatestValue(ctx context.Context, series string) (int64, error)
}

// AssetLedger is the subset of the asset ledger the machine drives.
type AssetLedger interface {
	Asset(id asset.ID) (asset.Asset, error)
	Eligibility(id asset.ID) (gate.GateDecision, error)
	OwnerOf(ctx context.Context, id asset.ID) (auth.Identity, error)
	TriggerEvolution(ctx context.Context, caller auth.Identity, id asset.ID) (uint64, error)
	AdvanceTo(ctx context.Context, caller auth.Identity, id asset.ID, target uint64) (uint64, error)
}

// PersonalityEvolver is the subset of the personality engine the machine drives.
type PersonalityEvolver interface {
	Has(id asset.ID) bool
	EvolvePersonality(ctx context.Context, caller auth.Identity, id asset.ID, newStage uint64, bonus []uint32) error
}

// #endregion collaborators

// #region store
// RequestStore is the durable pending-request table keyed by request id.
type RequestStore interface {
	// Put inserts a new request. It fails with DUPLICATE_REQUEST when the id exists.
	Put(ctx context.Context, req Request) error
	Get(ctx context.Context, id string) (Request, error)
	// MarkFulfilled flips an unfulfilled request to fulfilled. It fails with
	// ALREADY_FULFILLED when the request was already fulfilled.
	MarkFulfilled(ctx context.Context, id string, at time.Time) error
	// Reopen reverts MarkFulfilled after a failed apply.
	Reopen(ctx context.Context, id string) error
	// Pending lists unfulfilled requests ordered by creation time.
	Pending(ctx context.Context) ([]Request, error)
}

// #endregion store
