package evolution

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Jenola344/EvoNFT/internal/asset"
	"github.com/Jenola344/EvoNFT/internal/auth"
	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
	"github.com/Jenola344/EvoNFT/internal/events"
	"github.com/Jenola344/EvoNFT/internal/gate"
)

const tracerName = "github.com/Jenola344/EvoNFT/internal/evolution"

// #region options
// Options configures a Machine.
type Options struct {
	// Identity is the caller the machine uses against the ledger and the
	// personality engine. It must hold EvolutionManager.
	Identity        auth.Identity
	StageAdvance    StageAdvance
	NumWords        uint32
	Confirmations   uint32
	WeatherSeries   string
	// ExternalTimeout bounds each call to the randomness provider and the
	// oracle. Both run under the machine lock.
	ExternalTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.StageAdvance == "" {
		o.StageAdvance = AdvanceSingle
	}
	if o.NumWords < MinWords {
		o.NumWords = MinWords
	}
	if o.WeatherSeries == "" {
		o.WeatherSeries = DefaultWeatherSeries
	}
	if o.ExternalTimeout <= 0 {
		o.ExternalTimeout = DefaultExternalTimeout
	}
	return o
}

// #endregion options

// #region machine-struct
// Machine runs the request/fulfillment protocol. Request issuance and
// fulfillment are serialized against each other.
type Machine struct {
	mu          sync.Mutex
	opts        Options
	authz       auth.Authorizer
	ledger      AssetLedger
	personality PersonalityEvolver
	randomness  RandomnessProvider
	oracle      OracleFeed
	store       RequestStore
	emitter     events.Emitter
	now         func() time.Time
	tracer      trace.Tracer

	pathMu sync.RWMutex
	paths  map[uint64][]uint64
}

var _ FulfillmentHandler = (*Machine)(nil)

// NewMachine wires a machine to its collaborators. A nil store selects an
// in-memory request table.
func NewMachine(opts Options, authz auth.Authorizer, ledger AssetLedger, personality PersonalityEvolver,
	randomness RandomnessProvider, oracle OracleFeed, store RequestStore) *Machine {
	if store == nil {
		store = NewMemoryRequestStore()
	}
	return &Machine{
		opts:        opts.withDefaults(),
		authz:       authz,
		ledger:      ledger,
		personality: personality,
		randomness:  randomness,
		oracle:      oracle,
		store:       store,
		emitter:     events.NoopEmitter{},
		now:         time.Now,
		tracer:      otel.Tracer(tracerName),
		paths:       make(map[uint64][]uint64),
	}
}

// SetEmitter configures the notification emitter.
func (m *Machine) SetEmitter(e events.Emitter) { m.emitter = events.OrNoop(e) }

// SetClock overrides the time source used for deterministic testing.
func (m *Machine) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	m.now = now
}

// Mode returns the configured stage advance mode.
func (m *Machine) Mode() StageAdvance { return m.opts.StageAdvance }

// #endregion machine-struct

// #region paths
// SetEvolutionPath configures the candidate next stages for stage.
func (m *Machine) SetEvolutionPath(caller auth.Identity, stage uint64, candidates []uint64) error {
	if err := auth.Require(m.authz, caller, auth.Admin); err != nil {
		return err
	}
	if len(candidates) == 0 {
		return apperrors.New(apperrors.CodeInvalidArgument, "evolution path must have at least one candidate")
	}
	m.pathMu.Lock()
	defer m.pathMu.Unlock()
	m.paths[stage] = append([]uint64(nil), candidates...)
	return nil
}

// EvolutionPath returns the candidates configured for stage.
func (m *Machine) EvolutionPath(stage uint64) []uint64 {
	m.pathMu.RLock()
	defer m.pathMu.RUnlock()
	return append([]uint64(nil), m.paths[stage]...)
}

// #endregion paths

// #region request
// RequestEvolution issues a randomness request for an eligible asset owned
// by caller and returns the request id. Completion is observed through the
// fulfillment callback.
func (m *Machine) RequestEvolution(ctx context.Context, caller auth.Identity, id asset.ID) (string, error) {
	ctx, span := m.tracer.Start(ctx, "evolution.RequestEvolution",
		trace.WithAttributes(attribute.Int64("asset_id", int64(id))))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	requestID, err := m.request(ctx, caller, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "request failed")
		return "", err
	}
	span.SetAttributes(attribute.String("request_id", requestID))
	return requestID, nil
}

func (m *Machine) request(ctx context.Context, caller auth.Identity, id asset.ID) (string, error) {
	a, err := m.ledger.Asset(id)
	if err != nil {
		return "", err
	}
	decision, err := m.ledger.Eligibility(id)
	if err != nil {
		return "", err
	}
	if !decision.Eligible {
		return "", apperrors.WithMetadata(apperrors.CodeNotEligible, "asset not eligible: "+decision.Reason,
			map[string]string{"asset_id": formatID(id), "vetoes": formatVetoes(decision.VetoSignals)})
	}
	owner, err := m.ledger.OwnerOf(ctx, id)
	if err != nil {
		return "", err
	}
	if owner != caller {
		return "", apperrors.WithMetadata(apperrors.CodeNotOwner, "caller does not own asset "+formatID(id),
			map[string]string{"asset_id": formatID(id), "caller": string(caller)})
	}

	callCtx, cancel := context.WithTimeout(ctx, m.opts.ExternalTimeout)
	requestID, err := m.randomness.RequestRandomWords(callCtx, RandomnessRequest{
		NumWords:      m.opts.NumWords,
		Confirmations: m.opts.Confirmations,
	})
	timedOut := callCtx.Err() == context.DeadlineExceeded
	cancel()
	if err != nil {
		if timedOut {
			err = apperrors.Wrap(apperrors.CodeExternalUnavailable, "randomness request timed out", err)
		} else if apperrors.GetCode(err) == apperrors.CodeUnknown {
			err = apperrors.Wrap(apperrors.CodeExternalUnavailable, "randomness request failed", err)
		}
		return "", err
	}

	now := m.now()
	req := Request{
		ID:             requestID,
		AssetID:        id,
		Requester:      caller,
		StageAtRequest: a.Stage,
		CreatedAt:      now,
	}
	if err := m.store.Put(ctx, req); err != nil {
		return "", err
	}

	m.emitter.Emit(ctx, events.New(events.EvolutionRequested, uint64(id), now, map[string]string{
		"request_id": requestID,
		"requester":  string(caller),
		"stage":      strconv.FormatUint(a.Stage, 10),
	}))
	return requestID, nil
}

// #endregion request

// #region fulfill
// OnRandomnessFulfilled applies the outcome of a randomness request. Each
// request id is accepted at most once; a request whose preconditions fail
// before any mutation stays pending and may be delivered again.
func (m *Machine) OnRandomnessFulfilled(ctx context.Context, requestID string, words []*uint256.Int) (Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "evolution.OnRandomnessFulfilled",
		trace.WithAttributes(attribute.String("request_id", requestID)))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	out, err := m.fulfill(ctx, requestID, words)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "fulfillment failed")
		return Outcome{}, err
	}
	span.SetAttributes(
		attribute.Int64("asset_id", int64(out.AssetID)),
		attribute.Int64("next_stage", int64(out.NextStage)),
		attribute.Int64("ledger_stage", int64(out.LedgerStage)),
	)
	return out, nil
}

func (m *Machine) fulfill(ctx context.Context, requestID string, words []*uint256.Int) (Outcome, error) {
	req, err := m.store.Get(ctx, requestID)
	if err != nil {
		return Outcome{}, err
	}
	if req.Fulfilled {
		return Outcome{}, alreadyFulfilled(requestID)
	}
	if req.Expired {
		return Outcome{}, staleRequest(requestID, "evolution request "+requestID+" expired before fulfillment")
	}
	if len(words) < MinWords {
		return Outcome{}, apperrors.New(apperrors.CodeInvalidArgument,
			fmt.Sprintf("fulfillment carries %d random words, need %d", len(words), MinWords))
	}
	for i, w := range words[:MinWords] {
		if w == nil {
			return Outcome{}, apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("random word %d is nil", i))
		}
	}

	// Preflight: nothing below mutates until every check passes.
	path := m.EvolutionPath(req.StageAtRequest)
	if len(path) == 0 {
		return Outcome{}, apperrors.WithMetadata(apperrors.CodeNoEvolutionPath,
			"no evolution path configured for stage "+strconv.FormatUint(req.StageAtRequest, 10),
			map[string]string{"request_id": requestID, "stage": strconv.FormatUint(req.StageAtRequest, 10)})
	}
	nextStage := SelectNextStage(path, words[0])

	current, err := m.ledger.Asset(req.AssetID)
	if err != nil {
		return Outcome{}, err
	}
	if req.CreatedAt.Before(current.MintedAt) {
		return Outcome{}, staleRequest(requestID,
			"evolution request "+requestID+" predates asset "+formatID(req.AssetID))
	}
	if m.opts.StageAdvance == AdvancePath && nextStage <= current.Stage {
		return Outcome{}, apperrors.WithMetadata(apperrors.CodeInvalidArgument,
			fmt.Sprintf("selected stage %d does not exceed current stage %d", nextStage, current.Stage),
			map[string]string{"request_id": requestID})
	}
	decision, err := m.ledger.Eligibility(req.AssetID)
	if err != nil {
		return Outcome{}, err
	}
	if !decision.Eligible {
		code := apperrors.CodeRequirementsNotMet
		if decision.Has(gate.VetoDisabled) {
			code = apperrors.CodeEvolutionDisabled
		}
		return Outcome{}, apperrors.WithMetadata(code, decision.Reason,
			map[string]string{"request_id": requestID, "asset_id": formatID(req.AssetID)})
	}
	if !m.personality.Has(req.AssetID) {
		return Outcome{}, apperrors.WithMetadata(apperrors.CodeNotFound,
			"personality for asset "+formatID(req.AssetID)+" not initialized",
			map[string]string{"request_id": requestID, "asset_id": formatID(req.AssetID)})
	}

	weather := m.weather(ctx)
	traits := DeriveTraits(words[1], weather)

	now := m.now()
	if err := m.store.MarkFulfilled(ctx, requestID, now); err != nil {
		return Outcome{}, err
	}

	var ledgerStage uint64
	if m.opts.StageAdvance == AdvancePath {
		ledgerStage, err = m.ledger.AdvanceTo(ctx, m.opts.Identity, req.AssetID, nextStage)
	} else {
		ledgerStage, err = m.ledger.TriggerEvolution(ctx, m.opts.Identity, req.AssetID)
	}
	if err != nil {
		if rerr := m.store.Reopen(ctx, requestID); rerr != nil {
			log.Printf("evolution: reopen request %s after failed advance: %v", requestID, rerr)
		}
		return Outcome{}, err
	}

	if err := m.personality.EvolvePersonality(ctx, m.opts.Identity, req.AssetID, nextStage, traits); err != nil {
		// The ledger stage has already moved; the request stays fulfilled.
		log.Printf("evolution: personality update for asset %d failed after ledger advance: %v", req.AssetID, err)
		return Outcome{}, apperrors.Wrap(apperrors.CodeInternal, "personality update failed after ledger advance", err)
	}

	out := Outcome{
		RequestID:   requestID,
		AssetID:     req.AssetID,
		NextStage:   nextStage,
		LedgerStage: ledgerStage,
		Traits:      traits,
		Weather:     weather,
	}
	m.emitter.Emit(ctx, events.New(events.EvolutionCompleted, uint64(req.AssetID), now, map[string]string{
		"request_id":   requestID,
		"next_stage":   strconv.FormatUint(nextStage, 10),
		"ledger_stage": strconv.FormatUint(ledgerStage, 10),
		"traits":       formatTraits(traits),
	}))
	return out, nil
}

// weather reads the oracle series, falling back to NeutralWeather.
func (m *Machine) weather(ctx context.Context) int64 {
	if m.oracle == nil {
		return NeutralWeather
	}
	ctx, cancel := context.WithTimeout(ctx, m.opts.ExternalTimeout)
	defer cancel()
	v, err := m.oracle.LatestValue(ctx, m.opts.WeatherSeries)
	if err != nil {
		log.Printf("evolution: oracle series %q unavailable, using %d: %v", m.opts.WeatherSeries, NeutralWeather, err)
	}
	return NormalizeWeather(v, err)
}

// #endregion fulfill

// #region reads
// Request returns the stored request for id.
func (m *Machine) Request(ctx context.Context, id string) (Request, error) {
	return m.store.Get(ctx, id)
}

// Pending lists the unfulfilled requests.
func (m *Machine) Pending(ctx context.Context) ([]Request, error) {
	return m.store.Pending(ctx)
}

// #endregion reads

func formatID(id asset.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func staleRequest(id, msg string) error {
	return apperrors.WithMetadata(apperrors.CodeRequestStale, msg, map[string]string{"request_id": id})
}

func formatTraits(traits []uint32) string {
	parts := make([]string, len(traits))
	for i, v := range traits {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ",")
}

func formatVetoes(vetoes []gate.VetoSignal) string {
	parts := make([]string, len(vetoes))
	for i, v := range vetoes {
		parts[i] = string(v.Type)
	}
	return strings.Join(parts, ",")
}
