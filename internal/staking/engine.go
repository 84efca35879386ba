// Package staking implements utility-linked staking: append-only reward
// pools, one custody-backed position per staked asset, and time and
// utility weighted reward accrual paid through a token ledger.
package staking

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Jenola344/EvoNFT/internal/asset"
	"github.com/Jenola344/EvoNFT/internal/auth"
	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
	"github.com/Jenola344/EvoNFT/internal/events"
	"github.com/Jenola344/EvoNFT/internal/safemath"
	"github.com/Jenola344/EvoNFT/internal/token"
)

const tracerName = "github.com/Jenola344/EvoNFT/internal/staking"

// #region types
// Pool is a staking configuration. Pool ids start at 1.
type Pool struct {
	ID                uint64
	BaseAPY           uint64
	UtilityMultiplier uint64
	TotalStaked       uint64
	Active            bool
	CreatedAt         time.Time
}

// Position is the record of one staked asset.
type Position struct {
	AssetID            asset.ID
	PoolID             uint64
	Staker             auth.Identity
	StakedAt           time.Time
	LastClaimAt        time.Time
	AccumulatedRewards uint64
}

// UtilitySource reports the current utility score of an asset.
type UtilitySource interface {
	UtilityScore(id asset.ID) (uint64, error)
}

// Options configures an Engine.
type Options struct {
	// Custodian is the registry identity that holds staked assets.
	Custodian auth.Identity
	StakeUnit uint64
}

// #endregion types

// #region engine-struct
// Engine owns pools and positions. Every mutation holds the engine lock
// for its full duration, including the custody and payout calls.
type Engine struct {
	mu        sync.RWMutex
	opts      Options
	authz     auth.Authorizer
	registry  asset.Registry
	utility   UtilitySource
	tokens    token.Ledger
	emitter   events.Emitter
	now       func() time.Time
	tracer    trace.Tracer
	pools     []*Pool
	positions map[asset.ID]*Position
	index     map[auth.Identity][]asset.ID
}

// NewEngine creates an engine with no pools.
func NewEngine(opts Options, authz auth.Authorizer, registry asset.Registry, utility UtilitySource, tokens token.Ledger) *Engine {
	if opts.StakeUnit == 0 {
		opts.StakeUnit = DefaultStakeUnit
	}
	return &Engine{
		opts:      opts,
		authz:     authz,
		registry:  registry,
		utility:   utility,
		tokens:    tokens,
		emitter:   events.NoopEmitter{},
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
		positions: make(map[asset.ID]*Position),
		index:     make(map[auth.Identity][]asset.ID),
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

// #region pools
// CreatePool appends an active pool and returns its id.
func (e *Engine) CreatePool(ctx context.Context, caller auth.Identity, baseAPY, utilityMultiplier uint64) (uint64, error) {
	if err := auth.Require(e.authz, caller, auth.StakingManager); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p := &Pool{
		ID:                uint64(len(e.pools)) + 1,
		BaseAPY:           baseAPY,
		UtilityMultiplier: utilityMultiplier,
		Active:            true,
		CreatedAt:         e.now(),
	}
	e.pools = append(e.pools, p)

	e.emitter.Emit(ctx, events.New(events.PoolCreated, 0, p.CreatedAt, map[string]string{
		"pool_id":            strconv.FormatUint(p.ID, 10),
		"base_apy":           strconv.FormatUint(baseAPY, 10),
		"utility_multiplier": strconv.FormatUint(utilityMultiplier, 10),
	}))
	return p.ID, nil
}

// SetPoolActive toggles whether a pool accepts new stakes. Existing
// positions are unaffected.
func (e *Engine) SetPoolActive(ctx context.Context, caller auth.Identity, poolID uint64, active bool) error {
	if err := auth.Require(e.authz, caller, auth.StakingManager); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.pool(poolID)
	if err != nil {
		return err
	}
	p.Active = active
	return nil
}

// Pool returns a snapshot of one pool.
func (e *Engine) Pool(poolID uint64) (Pool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, err := e.pool(poolID)
	if err != nil {
		return Pool{}, err
	}
	return *p, nil
}

// Pools returns a snapshot of every pool in id order.
func (e *Engine) Pools() []Pool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Pool, len(e.pools))
	for i, p := range e.pools {
		out[i] = *p
	}
	return out
}

// pool requires e.mu held.
func (e *Engine) pool(poolID uint64) (*Pool, error) {
	if poolID == 0 || poolID > uint64(len(e.pools)) {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound, "pool "+strconv.FormatUint(poolID, 10)+" not found",
			map[string]string{"pool_id": strconv.FormatUint(poolID, 10)})
	}
	return e.pools[poolID-1], nil
}

// #endregion pools

// #region stake
// Stake moves custody of the asset to the engine and opens a position.
func (e *Engine) Stake(ctx context.Context, caller auth.Identity, id asset.ID, poolID uint64) error {
	ctx, span := e.tracer.Start(ctx, "staking.Stake", trace.WithAttributes(
		attribute.Int64("asset_id", int64(id)),
		attribute.Int64("pool_id", int64(poolID)),
	))
	defer span.End()

	err := e.stake(ctx, caller, id, poolID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "stake failed")
	}
	return err
}

func (e *Engine) stake(ctx context.Context, caller auth.Identity, id asset.ID, poolID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.pool(poolID)
	if err != nil {
		return err
	}
	if !p.Active {
		return apperrors.WithMetadata(apperrors.CodePoolInactive, "pool "+strconv.FormatUint(poolID, 10)+" is inactive",
			map[string]string{"pool_id": strconv.FormatUint(poolID, 10)})
	}
	if _, staked := e.positions[id]; staked {
		return apperrors.WithMetadata(apperrors.CodeAlreadyStaked, "asset "+formatID(id)+" already staked",
			map[string]string{"asset_id": formatID(id)})
	}
	owner, err := e.registry.OwnerOf(ctx, id)
	if err != nil {
		return err
	}
	if owner != caller {
		return notOwner(id, caller)
	}
	total, err := safemath.Add(p.TotalStaked, 1)
	if err != nil {
		return err
	}

	if err := e.registry.Transfer(ctx, caller, e.opts.Custodian, id); err != nil {
		return err
	}

	now := e.now()
	e.positions[id] = &Position{
		AssetID:     id,
		PoolID:      poolID,
		Staker:      caller,
		StakedAt:    now,
		LastClaimAt: now,
	}
	p.TotalStaked = total
	e.index[caller] = append(e.index[caller], id)

	e.emitter.Emit(ctx, events.New(events.TokenStaked, uint64(id), now, map[string]string{
		"pool_id": strconv.FormatUint(poolID, 10),
		"staker":  string(caller),
	}))
	return nil
}

// #endregion stake

// #region rewards
// CalculateRewards returns the rewards the position would pay now. It does
// not mutate state.
func (e *Engine) CalculateRewards(id asset.ID) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, err := e.position(id)
	if err != nil {
		return 0, err
	}
	return e.rewardsAt(pos, e.now())
}

// rewardsAt requires e.mu held.
func (e *Engine) rewardsAt(pos *Position, now time.Time) (uint64, error) {
	p, err := e.pool(pos.PoolID)
	if err != nil {
		return 0, err
	}
	score, err := e.utility.UtilityScore(pos.AssetID)
	if err != nil {
		return 0, err
	}
	return CalculateRewards(RewardInput{
		Elapsed:           now.Sub(pos.LastClaimAt),
		BaseAPY:           p.BaseAPY,
		UtilityMultiplier: p.UtilityMultiplier,
		UtilityScore:      score,
		Accumulated:       pos.AccumulatedRewards,
		StakeUnit:         e.opts.StakeUnit,
	})
}

// ClaimRewards pays the accrued rewards to the staker and resets accrual.
func (e *Engine) ClaimRewards(ctx context.Context, caller auth.Identity, id asset.ID) (uint64, error) {
	ctx, span := e.tracer.Start(ctx, "staking.ClaimRewards", trace.WithAttributes(attribute.Int64("asset_id", int64(id))))
	defer span.End()

	amount, err := e.claim(ctx, caller, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "claim failed")
		return 0, err
	}
	span.SetAttributes(attribute.Int64("amount", int64(amount)))
	return amount, nil
}

func (e *Engine) claim(ctx context.Context, caller auth.Identity, id asset.ID) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.position(id)
	if err != nil {
		return 0, err
	}
	if pos.Staker != caller {
		return 0, notOwner(id, caller)
	}
	now := e.now()
	amount, err := e.rewardsAt(pos, now)
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, apperrors.WithMetadata(apperrors.CodeNoRewardsAvailable, "no rewards accrued for asset "+formatID(id),
			map[string]string{"asset_id": formatID(id)})
	}

	prev := *pos
	pos.LastClaimAt = now
	pos.AccumulatedRewards = 0

	if err := e.tokens.Transfer(ctx, pos.Staker, amount); err != nil {
		*pos = prev
		return 0, payoutFailed(err)
	}

	e.emitter.Emit(ctx, events.New(events.RewardsClaimed, uint64(id), now, map[string]string{
		"staker": string(pos.Staker),
		"amount": strconv.FormatUint(amount, 10),
	}))
	return amount, nil
}

// #endregion rewards

// #region unstake
// Unstake pays the accrued rewards, returns custody to the staker and
// deletes the position. A zero reward is not sent to the token ledger.
func (e *Engine) Unstake(ctx context.Context, caller auth.Identity, id asset.ID) (uint64, error) {
	ctx, span := e.tracer.Start(ctx, "staking.Unstake", trace.WithAttributes(attribute.Int64("asset_id", int64(id))))
	defer span.End()

	amount, err := e.unstake(ctx, caller, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "unstake failed")
		return 0, err
	}
	span.SetAttributes(attribute.Int64("amount", int64(amount)))
	return amount, nil
}

func (e *Engine) unstake(ctx context.Context, caller auth.Identity, id asset.ID) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.position(id)
	if err != nil {
		return 0, err
	}
	if pos.Staker != caller {
		return 0, notOwner(id, caller)
	}
	p, err := e.pool(pos.PoolID)
	if err != nil {
		return 0, err
	}
	now := e.now()
	amount, err := e.rewardsAt(pos, now)
	if err != nil {
		return 0, err
	}

	// Internal state first, external effects after, rolled back on failure.
	prevIndex := append([]asset.ID(nil), e.index[pos.Staker]...)
	prevTotal := p.TotalStaked
	delete(e.positions, id)
	e.removeFromIndex(pos.Staker, id)
	if p.TotalStaked > 0 {
		p.TotalStaked--
	}
	restore := func() {
		e.positions[id] = pos
		e.index[pos.Staker] = prevIndex
		p.TotalStaked = prevTotal
	}

	if err := e.registry.Transfer(ctx, e.opts.Custodian, pos.Staker, id); err != nil {
		restore()
		return 0, err
	}
	if amount > 0 {
		if err := e.tokens.Transfer(ctx, pos.Staker, amount); err != nil {
			if rerr := e.registry.Transfer(ctx, pos.Staker, e.opts.Custodian, id); rerr != nil {
				log.Printf("staking: custody rollback for asset %d failed: %v", id, rerr)
			}
			restore()
			return 0, payoutFailed(err)
		}
	}

	e.emitter.Emit(ctx, events.New(events.TokenUnstaked, uint64(id), now, map[string]string{
		"pool_id": strconv.FormatUint(pos.PoolID, 10),
		"staker":  string(pos.Staker),
		"rewards": strconv.FormatUint(amount, 10),
	}))
	return amount, nil
}

// removeFromIndex swaps the last entry into the removed slot.
func (e *Engine) removeFromIndex(staker auth.Identity, id asset.ID) {
	ids := e.index[staker]
	for i, v := range ids {
		if v == id {
			last := len(ids) - 1
			ids[i] = ids[last]
			ids = ids[:last]
			break
		}
	}
	if len(ids) == 0 {
		delete(e.index, staker)
		return
	}
	e.index[staker] = ids
}

// #endregion unstake

// #region reads
// Position returns a snapshot of the position for id.
func (e *Engine) Position(id asset.ID) (Position, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, err := e.position(id)
	if err != nil {
		return Position{}, err
	}
	return *pos, nil
}

// IsStaked reports whether id has an active position.
func (e *Engine) IsStaked(id asset.ID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.positions[id]
	return ok
}

// StakedAssets lists the assets staked by staker. The index is unbounded
// and unordered.
func (e *Engine) StakedAssets(staker auth.Identity) []asset.ID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]asset.ID(nil), e.index[staker]...)
}

// position requires e.mu held.
func (e *Engine) position(id asset.ID) (*Position, error) {
	pos, ok := e.positions[id]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeNotStaked, "asset "+formatID(id)+" is not staked",
			map[string]string{"asset_id": formatID(id)})
	}
	return pos, nil
}

// #endregion reads

func notOwner(id asset.ID, caller auth.Identity) error {
	return apperrors.WithMetadata(apperrors.CodeNotOwner, "caller does not own asset "+formatID(id),
		map[string]string{"asset_id": formatID(id), "caller": string(caller)})
}

func payoutFailed(err error) error {
	if apperrors.KindOf(err) == apperrors.KindExternalUnavailable {
		return err
	}
	return apperrors.Wrap(apperrors.CodeExternalUnavailable, "reward payout failed", err)
}

func formatID(id asset.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}
