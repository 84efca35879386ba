package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Jenola344/EvoNFT/internal/app"
	"github.com/Jenola344/EvoNFT/internal/config"
	"github.com/Jenola344/EvoNFT/internal/telemetry"
)

// #region main
func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, cfg.OTel.ServiceName, cfg.OTel.Endpoint)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	node, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer node.Close()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen %s: %v", cfg.GRPCAddr, err)
	}

	randomness := "simulator"
	if cfg.GatewayAddr != "" {
		randomness = cfg.GatewayAddr
	}
	log.Printf("EvoNFT node ready. DB: %s | gRPC: %s | randomness: %s | stage advance: %s",
		cfg.DBPath, cfg.GRPCAddr, randomness, cfg.Evolution.StageAdvance)

	if err := node.Serve(ctx, lis); err != nil {
		log.Printf("serve: %v", err)
	}
}

// #endregion main
