// Package config loads the server configuration from a YAML file and
// EVONFT_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "EVONFT_"

type Config struct {
	DBPath      string `yaml:"db_path" env:"DB_PATH"`
	GRPCAddr    string `yaml:"grpc_addr" env:"GRPC_ADDR"`
	GatewayAddr string `yaml:"gateway_addr" env:"GATEWAY_ADDR"`
	Admin       string `yaml:"admin" env:"ADMIN"`

	OTel        OTelConfig        `yaml:"otel" envPrefix:"OTEL_"`
	Evolution   EvolutionConfig   `yaml:"evolution" envPrefix:"EVOLUTION_"`
	Staking     StakingConfig     `yaml:"staking" envPrefix:"STAKING_"`
	Personality PersonalityConfig `yaml:"personality" envPrefix:"PERSONALITY_"`
	Simulator   SimulatorConfig   `yaml:"simulator" envPrefix:"SIMULATOR_"`
	Treasury    TreasuryConfig    `yaml:"treasury" envPrefix:"TREASURY_"`
}

type OTelConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

type EvolutionConfig struct {
	EngineIdentity  string        `yaml:"engine_identity" env:"ENGINE_IDENTITY"`
	StageAdvance    string        `yaml:"stage_advance" env:"STAGE_ADVANCE"`
	NumWords        uint32        `yaml:"num_words" env:"NUM_WORDS"`
	Confirmations   uint32        `yaml:"confirmations" env:"CONFIRMATIONS"`
	WeatherSeries   string        `yaml:"weather_series" env:"WEATHER_SERIES"`
	// ExternalTimeout bounds each randomness request and oracle read.
	ExternalTimeout time.Duration `yaml:"external_timeout" env:"EXTERNAL_TIMEOUT"`
}

type StakingConfig struct {
	EngineIdentity string `yaml:"engine_identity" env:"ENGINE_IDENTITY"`
	StakeUnit      uint64 `yaml:"stake_unit" env:"STAKE_UNIT"`
}

type PersonalityConfig struct {
	DefaultLearningRate uint32 `yaml:"default_learning_rate" env:"DEFAULT_LEARNING_RATE"`
}

type SimulatorConfig struct {
	Delay   time.Duration `yaml:"delay" env:"DELAY"`
	Weather int64         `yaml:"weather" env:"WEATHER"`
}

type TreasuryConfig struct {
	Identity       string `yaml:"identity" env:"IDENTITY"`
	InitialBalance uint64 `yaml:"initial_balance" env:"INITIAL_BALANCE"`
}

func Default() Config {
	return Config{
		DBPath:   "evonft.db",
		GRPCAddr: ":50061",
		Admin:    "admin",
		OTel: OTelConfig{
			ServiceName: "evonft",
		},
		Evolution: EvolutionConfig{
			EngineIdentity:  "evolution-engine",
			StageAdvance:    "single",
			NumWords:        2,
			Confirmations:   3,
			WeatherSeries:   "weather",
			ExternalTimeout: 5 * time.Second,
		},
		Staking: StakingConfig{
			EngineIdentity: "staking-engine",
			StakeUnit:      1000,
		},
		Personality: PersonalityConfig{
			DefaultLearningRate: 10,
		},
		Simulator: SimulatorConfig{
			Delay:   2 * time.Second,
			Weather: 50,
		},
		Treasury: TreasuryConfig{
			Identity:       "treasury",
			InitialBalance: 1_000_000,
		},
	}
}

// LoadFile overlays the YAML file at path onto Default.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays any EVONFT_* variables that are set.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.DBPath) == "" {
		problems = append(problems, "db_path is required")
	}
	if strings.TrimSpace(c.GRPCAddr) == "" {
		problems = append(problems, "grpc_addr is required")
	}
	if strings.TrimSpace(c.Admin) == "" {
		problems = append(problems, "admin is required")
	}
	switch c.Evolution.StageAdvance {
	case "single", "path":
	default:
		problems = append(problems, fmt.Sprintf("evolution.stage_advance %q must be single or path", c.Evolution.StageAdvance))
	}
	if c.Evolution.NumWords < 2 {
		problems = append(problems, "evolution.num_words must be at least 2")
	}
	if c.Evolution.EngineIdentity == "" || c.Staking.EngineIdentity == "" {
		problems = append(problems, "engine identities are required")
	}
	if c.Evolution.EngineIdentity == c.Admin || c.Staking.EngineIdentity == c.Admin {
		problems = append(problems, "engine identities must differ from admin")
	}
	if c.Personality.DefaultLearningRate > 50 {
		problems = append(problems, "personality.default_learning_rate must not exceed 50")
	}
	if c.Evolution.ExternalTimeout <= 0 {
		problems = append(problems, "evolution.external_timeout must be positive")
	}
	if c.Simulator.Delay < 0 {
		problems = append(problems, "simulator.delay must not be negative")
	}
	if c.Treasury.Identity == "" {
		problems = append(problems, "treasury.identity is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
