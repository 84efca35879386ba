// Package app wires the engines, their collaborators and the gRPC server
// from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Jenola344/EvoNFT/internal/api"
	"github.com/Jenola344/EvoNFT/internal/asset"
	"github.com/Jenola344/EvoNFT/internal/auth"
	"github.com/Jenola344/EvoNFT/internal/config"
	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
	"github.com/Jenola344/EvoNFT/internal/events"
	"github.com/Jenola344/EvoNFT/internal/evolution"
	"github.com/Jenola344/EvoNFT/internal/gateway"
	"github.com/Jenola344/EvoNFT/internal/logging"
	"github.com/Jenola344/EvoNFT/internal/personality"
	"github.com/Jenola344/EvoNFT/internal/registry"
	"github.com/Jenola344/EvoNFT/internal/staking"
	"github.com/Jenola344/EvoNFT/internal/state"
	"github.com/Jenola344/EvoNFT/internal/token"
)

// #region app-struct
// App owns every component of a running node.
type App struct {
	cfg config.Config

	Store       *state.Store
	Roles       *auth.RoleTable
	Registry    *registry.MemoryRegistry
	Ledger      *asset.Ledger
	Personality *personality.Engine
	Machine     *evolution.Machine
	Staking     *staking.Engine
	Treasury    *token.Treasury

	// Exactly one of Simulator/Oracle and Gateway is set.
	Simulator *gateway.Simulator
	Oracle    *gateway.StaticOracle
	Gateway   *gateway.Client
}

var _ api.Composer = (*App)(nil)

// #endregion app-struct

// #region constructor
// New builds a node from cfg. The caller must Close it.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := state.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{cfg: cfg, Store: store}
	if err := a.grantRoles(); err != nil {
		store.Close()
		return nil, err
	}

	emitter := events.Multi{logging.NewJournal(store.DB())}

	a.Registry = registry.NewMemoryRegistry()
	a.Ledger = asset.NewLedger(a.Registry, a.Roles)
	a.Ledger.SetEmitter(emitter)
	a.Personality = personality.NewEngine(a.Roles)
	a.Personality.SetEmitter(emitter)

	var (
		randomness evolution.RandomnessProvider
		oracle     evolution.OracleFeed
	)
	if cfg.GatewayAddr != "" {
		client, err := gateway.NewClient(cfg.GatewayAddr)
		if err != nil {
			store.Close()
			return nil, err
		}
		a.Gateway = client
		randomness, oracle = client, client
	} else {
		a.Simulator = gateway.NewSimulator(cfg.Simulator.Delay)
		a.Oracle = gateway.NewStaticOracle(map[string]int64{cfg.Evolution.WeatherSeries: cfg.Simulator.Weather})
		randomness, oracle = a.Simulator, a.Oracle
	}

	a.Machine = evolution.NewMachine(evolution.Options{
		Identity:        auth.Identity(cfg.Evolution.EngineIdentity),
		StageAdvance:    evolution.StageAdvance(cfg.Evolution.StageAdvance),
		NumWords:        cfg.Evolution.NumWords,
		Confirmations:   cfg.Evolution.Confirmations,
		WeatherSeries:   cfg.Evolution.WeatherSeries,
		ExternalTimeout: cfg.Evolution.ExternalTimeout,
	}, a.Roles, a.Ledger, a.Personality, randomness, oracle, store)
	a.Machine.SetEmitter(emitter)
	if a.Simulator != nil {
		a.Simulator.SetHandler(a.Machine)
	}

	a.Treasury = token.NewTreasury(auth.Identity(cfg.Treasury.Identity), cfg.Treasury.InitialBalance)
	a.Staking = staking.NewEngine(staking.Options{
		Custodian: auth.Identity(cfg.Staking.EngineIdentity),
		StakeUnit: cfg.Staking.StakeUnit,
	}, a.Roles, a.Registry, a.Ledger, a.Treasury)
	a.Staking.SetEmitter(emitter)

	if err := a.expireStale(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// grantRoles gives the engine identities the capabilities their calls need.
func (a *App) grantRoles() error {
	admin := auth.Identity(a.cfg.Admin)
	a.Roles = auth.NewRoleTable(admin)
	evo := auth.Identity(a.cfg.Evolution.EngineIdentity)
	for _, c := range []auth.Capability{auth.EvolutionManager, auth.PersonalityManager} {
		if err := a.Roles.Grant(admin, evo, c); err != nil {
			return fmt.Errorf("grant %s: %w", c, err)
		}
	}
	return nil
}

// expireStale closes the requests left pending by an earlier process. The
// ledger starts empty, so their asset ids now name different assets.
func (a *App) expireStale() error {
	n, err := a.Store.ExpirePending(context.Background())
	if err != nil {
		return fmt.Errorf("expire stale requests: %w", err)
	}
	if n > 0 {
		log.Printf("app: expired %d evolution requests left by a previous run", n)
	}
	return nil
}

// SetClock replaces the clock of every engine.
func (a *App) SetClock(now func() time.Time) {
	a.Ledger.SetClock(now)
	a.Personality.SetClock(now)
	a.Machine.SetClock(now)
	a.Staking.SetClock(now)
}

// Close stops the randomness source and releases the store.
func (a *App) Close() error {
	if a.Simulator != nil {
		a.Simulator.Close()
	}
	var errs []error
	if a.Gateway != nil {
		errs = append(errs, a.Gateway.Close())
	}
	errs = append(errs, a.Store.Close())
	return errors.Join(errs...)
}

// #endregion constructor

// #region composite
// Mint mints on the ledger and initializes the personality with the same
// traits and the configured learning rate.
func (a *App) Mint(ctx context.Context, caller, owner auth.Identity, traits []uint32, personalityHash [32]byte) (asset.ID, error) {
	id, err := a.Ledger.Mint(ctx, caller, owner, traits, personalityHash)
	if err != nil {
		return 0, err
	}
	keeper := auth.Identity(a.cfg.Evolution.EngineIdentity)
	if err := a.Personality.InitializePersonality(ctx, keeper, id, traits, a.cfg.Personality.DefaultLearningRate); err != nil {
		log.Printf("app: asset %d minted without personality: %v", id, err)
		return id, apperrors.Wrap(apperrors.CodeInternal, "initialize personality", err)
	}
	return id, nil
}

// Backend exposes the components to the API layer.
func (a *App) Backend() api.Backend {
	return api.Backend{
		Roles:       a.Roles,
		Registry:    a.Registry,
		Ledger:      a.Ledger,
		Personality: a.Personality,
		Machine:     a.Machine,
		Staking:     a.Staking,
		Treasury:    a.Treasury,
		Oracle:      a.Oracle,
		Composite:   a,
	}
}

// #endregion composite

// #region server
// NewServer returns a gRPC server with the API and health services registered.
func (a *App) NewServer() *grpc.Server {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	api.Register(srv, api.NewService(a.Backend()))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// Serve runs the gRPC server on lis until ctx is cancelled, then stops
// gracefully.
func (a *App) Serve(ctx context.Context, lis net.Listener) error {
	srv := a.NewServer()
	errCh := make(chan error, 1)
	go func() {
		log.Printf("app: serving %s on %s", api.ServiceName, lis.Addr())
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		log.Printf("app: shutting down")
		srv.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("grpc serve: %w", err)
	}
}

// #endregion server
