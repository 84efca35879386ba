// Package api exposes the engines over gRPC. Messages are
// google.protobuf.Struct values so the service needs no generated code; the
// descriptor below mirrors proto/evonft/v1/evo.proto.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Jenola344/EvoNFT/internal/asset"
	"github.com/Jenola344/EvoNFT/internal/auth"
	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
	"github.com/Jenola344/EvoNFT/internal/evolution"
	"github.com/Jenola344/EvoNFT/internal/gateway"
	"github.com/Jenola344/EvoNFT/internal/personality"
	"github.com/Jenola344/EvoNFT/internal/registry"
	"github.com/Jenola344/EvoNFT/internal/staking"
	"github.com/Jenola344/EvoNFT/internal/token"
)

const ServiceName = "evonft.v1.EvoService"

// #region server-interface
// EvoServer is the full RPC surface.
type EvoServer interface {
	// ledger
	Mint(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAsset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransferAsset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordInteraction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetUtilityScore(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetRequirement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetEvolutionEnabled(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetEligibility(context.Context, *structpb.Struct) (*structpb.Struct, error)

	// evolution
	SetEvolutionPath(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestEvolution(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FulfillRandomWords(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPendingRequests(context.Context, *structpb.Struct) (*structpb.Struct, error)

	// personality
	LearnInteraction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StoreMemory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPersonality(context.Context, *structpb.Struct) (*structpb.Struct, error)

	// staking
	CreatePool(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetPoolActive(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPools(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stake(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CalculateRewards(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClaimRewards(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Unstake(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPosition(context.Context, *structpb.Struct) (*structpb.Struct, error)

	// administration
	GrantCapability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RevokeCapability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetOracleValue(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TokenBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// #endregion server-interface

// #region backend
// Composer performs the operations that span several engines.
type Composer interface {
	Mint(ctx context.Context, caller, owner auth.Identity, traits []uint32, personalityHash [32]byte) (asset.ID, error)
}

// Backend holds the engines served by the API. Oracle is nil when a
// remote gateway provides oracle values.
type Backend struct {
	Roles       *auth.RoleTable
	Registry    *registry.MemoryRegistry
	Ledger      *asset.Ledger
	Personality *personality.Engine
	Machine     *evolution.Machine
	Staking     *staking.Engine
	Treasury    *token.Treasury
	Oracle      *gateway.StaticOracle
	Composite   Composer
}

// Service implements EvoServer on top of a Backend.
type Service struct {
	b Backend
}

var _ EvoServer = (*Service)(nil)

// NewService creates the RPC service.
func NewService(b Backend) *Service {
	return &Service{b: b}
}

// Register registers svc on s.
func Register(s grpc.ServiceRegistrar, svc EvoServer) {
	s.RegisterService(&serviceDesc, svc)
}

// #endregion backend

// #region service-desc
type method struct {
	name string
	call func(EvoServer, context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var methods = []method{
	{"Mint", EvoServer.Mint},
	{"GetAsset", EvoServer.GetAsset},
	{"TransferAsset", EvoServer.TransferAsset},
	{"RecordInteraction", EvoServer.RecordInteraction},
	{"SetUtilityScore", EvoServer.SetUtilityScore},
	{"SetRequirement", EvoServer.SetRequirement},
	{"SetEvolutionEnabled", EvoServer.SetEvolutionEnabled},
	{"GetEligibility", EvoServer.GetEligibility},
	{"SetEvolutionPath", EvoServer.SetEvolutionPath},
	{"RequestEvolution", EvoServer.RequestEvolution},
	{"FulfillRandomWords", EvoServer.FulfillRandomWords},
	{"GetRequest", EvoServer.GetRequest},
	{"ListPendingRequests", EvoServer.ListPendingRequests},
	{"LearnInteraction", EvoServer.LearnInteraction},
	{"StoreMemory", EvoServer.StoreMemory},
	{"GetPersonality", EvoServer.GetPersonality},
	{"CreatePool", EvoServer.CreatePool},
	{"SetPoolActive", EvoServer.SetPoolActive},
	{"ListPools", EvoServer.ListPools},
	{"Stake", EvoServer.Stake},
	{"CalculateRewards", EvoServer.CalculateRewards},
	{"ClaimRewards", EvoServer.ClaimRewards},
	{"Unstake", EvoServer.Unstake},
	{"GetPosition", EvoServer.GetPosition},
	{"GrantCapability", EvoServer.GrantCapability},
	{"RevokeCapability", EvoServer.RevokeCapability},
	{"SetOracleValue", EvoServer.SetOracleValue},
	{"TokenBalance", EvoServer.TokenBalance},
}

var serviceDesc = buildDesc()

func buildDesc() grpc.ServiceDesc {
	desc := grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*EvoServer)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "evonft/v1/evo.proto",
	}
	for _, m := range methods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: m.name,
			Handler:    unaryHandler(FullMethod(m.name), m.call),
		})
	}
	return desc
}

// FullMethod returns the gRPC path of the named method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unaryHandler decodes the request, runs call and maps domain errors to
// gRPC statuses.
func unaryHandler(fullMethod string, call func(EvoServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	invoke := func(srv interface{}, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
		out, err := call(srv.(EvoServer), ctx, in)
		if err != nil {
			return nil, apperrors.HandleError(err)
		}
		return out, nil
	}
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return invoke(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return invoke(srv, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// #endregion service-desc

// #region client
// Client calls the service by method name.
type Client struct {
	cc     grpc.ClientConnInterface
	caller auth.Identity
}

// NewClient returns a client that sends caller with every call.
func NewClient(cc grpc.ClientConnInterface, caller auth.Identity) *Client {
	return &Client{cc: cc, caller: caller}
}

// Call invokes the named method with fields as the request body. Errors are
// translated back into domain errors.
func (c *Client) Call(ctx context.Context, name string, fields map[string]interface{}) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "encode request", err)
	}
	if c.caller != "" {
		ctx = WithCaller(ctx, c.caller)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(name), in, out); err != nil {
		return nil, apperrors.FromStatus(err)
	}
	return out, nil
}

// #endregion client
