package api

import (
	"context"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Jenola344/EvoNFT/internal/asset"
	"github.com/Jenola344/EvoNFT/internal/auth"
	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
	"github.com/Jenola344/EvoNFT/internal/evolution"
	"github.com/Jenola344/EvoNFT/internal/gateway"
	"github.com/Jenola344/EvoNFT/internal/staking"
)

func reply(fields map[string]interface{}) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "encode response", err)
	}
	return out, nil
}

func empty() (*structpb.Struct, error) { return &structpb.Struct{}, nil }

// #region ledger
func (s *Service) Mint(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	owner, err := stringField(in, "owner")
	if err != nil {
		return nil, err
	}
	traits, err := traitList(in, "traits")
	if err != nil {
		return nil, err
	}
	hash, err := hashField(in, "personality_hash")
	if err != nil {
		return nil, err
	}
	id, err := s.b.Composite.Mint(ctx, CallerFrom(ctx), auth.Identity(owner), traits, hash)
	if err != nil {
		return nil, err
	}
	return reply(map[string]interface{}{"asset_id": float64(id)})
}

func (s *Service) GetAsset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := assetField(in)
	if err != nil {
		return nil, err
	}
	a, err := s.b.Ledger.Asset(id)
	if err != nil {
		return nil, err
	}
	owner, err := s.b.Registry.OwnerOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return reply(map[string]interface{}{
		"asset_id":            float64(a.ID),
		"owner":               string(owner),
		"stage":               float64(a.Stage),
		"utility_score":       amount(a.UtilityScore),
		"experience_points":   amount(a.ExperiencePoints),
		"traits":              numbers(a.Traits),
		"evolution_enabled":   a.EvolutionEnabled,
		"last_evolution_time": stamp(a.LastEvolutionTime),
		"minted_at":           stamp(a.MintedAt),
		"staked":              s.b.Staking.IsStaked(id),
	})
}

func (s *Service) TransferAsset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := assetField(in)
	if err != nil {
		return nil, err
	}
	to, err := stringField(in, "to")
	if err != nil {
		return nil, err
	}
	if !s.b.Ledger.Exists(id) {
		return nil, apperrors.New(apperrors.CodeNotFound, "asset "+strconv.FormatUint(uint64(id), 10)+" not found")
	}
	if err := s.b.Registry.Transfer(ctx, CallerFrom(ctx), auth.Identity(to), id); err != nil {
		return nil, err
	}
	return empty()
}

// RecordInteraction credits XP to an asset for an interaction with the caller.
func (s *Service) RecordInteraction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := assetField(in)
	if err != nil {
		return nil, err
	}
	xp, err := uintField(in, "xp")
	if err != nil {
		return nil, err
	}
	caller := CallerFrom(ctx)
	if err := s.b.Ledger.RecordInteraction(ctx, id, caller, xp); err != nil {
		return nil, err
	}
	return reply(map[string]interface{}{
		"interaction_count": amount(s.b.Ledger.InteractionCount(id, caller)),
	})
}

func (s *Service) SetUtilityScore(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := assetField(in)
	if err != nil {
		return nil, err
	}
	score, err := uintField(in, "score")
	if err != nil {
		return nil, err
	}
	if err := s.b.Ledger.SetUtilityScore(ctx, CallerFrom(ctx), id, score); err != nil {
		return nil, err
	}
	return empty()
}

func (s *Service) SetRequirement(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	stage, err := uintField(in, "stage")
	if err != nil {
		return nil, err
	}
	wait, err := durationField(in, "time_required")
	if err != nil {
		return nil, err
	}
	xp, err := optionalUint(in, "xp_required")
	if err != nil {
		return nil, err
	}
	req := asset.Requirement{TimeRequired: wait, XPRequired: xp}
	if err := s.b.Ledger.SetRequirement(CallerFrom(ctx), stage, req); err != nil {
		return nil, err
	}
	return empty()
}

func (s *Service) SetEvolutionEnabled(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := assetField(in)
	if err != nil {
		return nil, err
	}
	enabled, err := boolField(in, "enabled")
	if err != nil {
		return nil, err
	}
	if err := s.b.Ledger.SetEvolutionEnabled(ctx, CallerFrom(ctx), id, enabled); err != nil {
		return nil, err
	}
	return empty()
}

func (s *Service) GetEligibility(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := assetField(in)
	if err != nil {
		return nil, err
	}
	d, err := s.b.Ledger.Eligibility(id)
	if err != nil {
		return nil, err
	}
	vetoes := make([]interface{}, len(d.VetoSignals))
	for i, v := range d.VetoSignals {
		vetoes[i] = map[string]interface{}{"type": string(v.Type), "reason": v.Reason}
	}
	return reply(map[string]interface{}{
		"eligible": d.Eligible,
		"reason":   d.Reason,
		"vetoes":   vetoes,
		"ready_at": stamp(d.ReadyAt),
	})
}

// #endregion ledger

// #region evolution
func (s *Service) SetEvolutionPath(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	stage, err := uintField(in, "stage")
	if err != nil {
		return nil, err
	}
	candidates, err := uintList(in, "candidates")
	if err != nil {
		return nil, err
	}
	if err := s.b.Machine.SetEvolutionPath(CallerFrom(ctx), stage, candidates); err != nil {
		return nil, err
	}
	return empty()
}

func (s *Service) RequestEvolution(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := assetField(in)
	if err != nil {
		return nil, err
	}
	reqID, err := s.b.Machine.RequestEvolution(ctx, CallerFrom(ctx), id)
	if err != nil {
		return nil, err
	}
	return reply(map[string]interface{}{"request_id": reqID})
}

// FulfillRandomWords is the callback a remote randomness gateway uses to
// deliver words. The caller must hold EvolutionManager.
func (s *Service) FulfillRandomWords(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := auth.Require(s.b.Roles, CallerFrom(ctx), auth.EvolutionManager); err != nil {
		return nil, err
	}
	reqID, err := stringField(in, "request_id")
	if err != nil {
		return nil, err
	}
	words, err := gateway.DecodeWords(in.GetFields()["words"].GetListValue())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "decode random words", err)
	}
	out, err := s.b.Machine.OnRandomnessFulfilled(ctx, reqID, words)
	if err != nil {
		return nil, err
	}
	return reply(map[string]interface{}{
		"request_id":   out.RequestID,
		"asset_id":     float64(out.AssetID),
		"next_stage":   float64(out.NextStage),
		"ledger_stage": float64(out.LedgerStage),
		"traits":       numbers(out.Traits),
		"weather":      float64(out.Weather),
	})
}

func requestFields(r evolution.Request) map[string]interface{} {
	return map[string]interface{}{
		"request_id":       r.ID,
		"asset_id":         float64(r.AssetID),
		"requester":        string(r.Requester),
		"stage_at_request": float64(r.StageAtRequest),
		"fulfilled":        r.Fulfilled,
		"expired":          r.Expired,
		"created_at":       stamp(r.CreatedAt),
		"fulfilled_at":     stamp(r.FulfilledAt),
	}
}

func (s *Service) GetRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	reqID, err := stringField(in, "request_id")
	if err != nil {
		return nil, err
	}
	r, err := s.b.Machine.Request(ctx, reqID)
	if err != nil {
		return nil, err
	}
	return reply(requestFields(r))
}

func (s *Service) ListPendingRequests(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	pending, err := s.b.Machine.Pending(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]interface{}, len(pending))
	for i, r := range pending {
		list[i] = requestFields(r)
	}
	return reply(map[string]interface{}{"requests": list})
}

// #endregion evolution

// #region personality
// LearnInteraction feeds an interaction with the caller to the personality engine.
func (s *Service) LearnInteraction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := assetField(in)
	if err != nil {
		return nil, err
	}
	kind, err := stringField(in, "interaction_type")
	if err != nil {
		return nil, err
	}
	intensity, err := uintField(in, "intensity")
	if err != nil {
		return nil, err
	}
	caller := CallerFrom(ctx)
	if err := s.b.Personality.RecordInteraction(ctx, id, kind, caller, intensity); err != nil {
		return nil, err
	}
	return reply(map[string]interface{}{
		"skill_level":         amount(s.b.Personality.SkillLevel(id, kind)),
		"connection_strength": amount(s.b.Personality.SocialConnection(id, caller)),
	})
}

func (s *Service) StoreMemory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := assetField(in)
	if err != nil {
		return nil, err
	}
	data := in.GetFields()["data"].GetStringValue()
	memID, err := s.b.Personality.StoreMemory(ctx, CallerFrom(ctx), id, []byte(data))
	if err != nil {
		return nil, err
	}
	return reply(map[string]interface{}{"memory_id": memID})
}

func (s *Service) GetPersonality(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := assetField(in)
	if err != nil {
		return nil, err
	}
	p, err := s.b.Personality.PersonalityData(id)
	if err != nil {
		return nil, err
	}
	skills := make(map[string]interface{}, len(p.SkillLevels))
	for k, v := range p.SkillLevels {
		skills[k] = amount(v)
	}
	return reply(map[string]interface{}{
		"traits":             numbers(p.Traits),
		"learning_rate":      float64(p.LearningRate),
		"experience_level":   amount(p.ExperienceLevel),
		"stage":              float64(p.Stage),
		"skill_levels":       skills,
		"social_connections": float64(len(p.SocialConnections)),
		"memories":           float64(len(p.Memories)),
	})
}

// #endregion personality

// #region staking
func (s *Service) CreatePool(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	apy, err := uintField(in, "base_apy")
	if err != nil {
		return nil, err
	}
	mult, err := uintField(in, "utility_multiplier")
	if err != nil {
		return nil, err
	}
	id, err := s.b.Staking.CreatePool(ctx, CallerFrom(ctx), apy, mult)
	if err != nil {
		return nil, err
	}
	return reply(map[string]interface{}{"pool_id": float64(id)})
}

func (s *Service) SetPoolActive(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	poolID, err := uintField(in, "pool_id")
	if err != nil {
		return nil, err
	}
	active, err := boolField(in, "active")
	if err != nil {
		return nil, err
	}
	if err := s.b.Staking.SetPoolActive(ctx, CallerFrom(ctx), poolID, active); err != nil {
		return nil, err
	}
	return empty()
}

func poolFields(p staking.Pool) map[string]interface{} {
	return map[string]interface{}{
		"pool_id":            float64(p.ID),
		"base_apy":           float64(p.BaseAPY),
		"utility_multiplier": float64(p.UtilityMultiplier),
		"total_staked":       amount(p.TotalStaked),
		"active":             p.Active,
		"created_at":         stamp(p.CreatedAt),
	}
}

func (s *Service) ListPools(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	pools := s.b.Staking.Pools()
	list := make([]interface{}, len(pools))
	for i, p := range pools {
		list[i] = poolFields(p)
	}
	return reply(map[string]interface{}{"pools": list})
}

func (s *Service) Stake(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := assetField(in)
	if err != nil {
		return nil, err
	}
	poolID, err := uintField(in, "pool_id")
	if err != nil {
		return nil, err
	}
	if err := s.b.Staking.Stake(ctx, CallerFrom(ctx), id, poolID); err != nil {
		return nil, err
	}
	return empty()
}

func (s *Service) CalculateRewards(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := assetField(in)
	if err != nil {
		return nil, err
	}
	r, err := s.b.Staking.CalculateRewards(id)
	if err != nil {
		return nil, err
	}
	return reply(map[string]interface{}{"rewards": amount(r)})
}

func (s *Service) ClaimRewards(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := assetField(in)
	if err != nil {
		return nil, err
	}
	r, err := s.b.Staking.ClaimRewards(ctx, CallerFrom(ctx), id)
	if err != nil {
		return nil, err
	}
	return reply(map[string]interface{}{"rewards": amount(r)})
}

func (s *Service) Unstake(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := assetField(in)
	if err != nil {
		return nil, err
	}
	r, err := s.b.Staking.Unstake(ctx, CallerFrom(ctx), id)
	if err != nil {
		return nil, err
	}
	return reply(map[string]interface{}{"rewards": amount(r)})
}

func (s *Service) GetPosition(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := assetField(in)
	if err != nil {
		return nil, err
	}
	p, err := s.b.Staking.Position(id)
	if err != nil {
		return nil, err
	}
	return reply(map[string]interface{}{
		"asset_id":            float64(p.AssetID),
		"pool_id":             float64(p.PoolID),
		"staker":              string(p.Staker),
		"staked_at":           stamp(p.StakedAt),
		"last_claim_at":       stamp(p.LastClaimAt),
		"accumulated_rewards": amount(p.AccumulatedRewards),
	})
}

// #endregion staking

// #region admin
func capabilityArgs(in *structpb.Struct) (auth.Identity, auth.Capability, error) {
	target, err := stringField(in, "target")
	if err != nil {
		return "", "", err
	}
	c, err := stringField(in, "capability")
	if err != nil {
		return "", "", err
	}
	switch capability := auth.Capability(c); capability {
	case auth.Admin, auth.Minter, auth.EvolutionManager, auth.StakingManager, auth.PersonalityManager:
		return auth.Identity(target), capability, nil
	default:
		return "", "", badField("capability", "is not a known capability")
	}
}

func (s *Service) GrantCapability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	target, c, err := capabilityArgs(in)
	if err != nil {
		return nil, err
	}
	if err := s.b.Roles.Grant(CallerFrom(ctx), target, c); err != nil {
		return nil, err
	}
	return empty()
}

func (s *Service) RevokeCapability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	target, c, err := capabilityArgs(in)
	if err != nil {
		return nil, err
	}
	if err := s.b.Roles.Revoke(CallerFrom(ctx), target, c); err != nil {
		return nil, err
	}
	return empty()
}

// SetOracleValue updates the local oracle feed. It is unavailable when a
// remote gateway serves oracle values.
func (s *Service) SetOracleValue(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := auth.Require(s.b.Roles, CallerFrom(ctx), auth.Admin); err != nil {
		return nil, err
	}
	if s.b.Oracle == nil {
		return nil, apperrors.New(apperrors.CodeExternalUnavailable, "oracle values are served by the remote gateway")
	}
	series, err := stringField(in, "series")
	if err != nil {
		return nil, err
	}
	raw, ok := in.GetFields()["value"]
	if !ok {
		return nil, badField("value", "is required")
	}
	var v int64
	switch k := raw.GetKind().(type) {
	case *structpb.Value_NumberValue:
		v = int64(k.NumberValue)
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(k.StringValue, 10, 64)
		if err != nil {
			return nil, badField("value", "must be an integer")
		}
		v = n
	default:
		return nil, badField("value", "must be an integer")
	}
	s.b.Oracle.Set(series, v)
	return empty()
}

func (s *Service) TokenBalance(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	who, err := stringField(in, "identity")
	if err != nil {
		return nil, err
	}
	return reply(map[string]interface{}{"balance": amount(s.b.Treasury.BalanceOf(auth.Identity(who)))})
}

// #endregion admin
