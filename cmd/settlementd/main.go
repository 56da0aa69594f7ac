// Package main runs the settlement service: HTTP API, event fan-out and
// metrics.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana-intent-settlement/internal/app"
	"solana-intent-settlement/internal/config"
)

func main() {
	// Load .env file if exists
	config.LoadEnvFile(".env")

	configPath := flag.String("config", os.Getenv("SETTLEMENT_CONFIG"), "Path to YAML config file")
	httpAddr := flag.String("http-addr", "", "HTTP listen address (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics address (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	migrate := flag.Bool("migrate", false, "Apply database migrations on start")
	openOperator := flag.Bool("open-operator-routes", false, "Mount fee and provisioning routes without JWT (in-memory only)")
	flag.Parse()

	logger := log.New(os.Stdout, "[settlementd] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		logger.Fatalf("Failed to apply environment: %v", err)
	}
	if *httpAddr != "" {
		cfg.API.HTTP.Addr = *httpAddr
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *useMemory {
		cfg.App.UseMemory = true
	}
	if *openOperator {
		cfg.Security.OpenOperatorRoutes = true
	}
	if *migrate {
		cfg.Stores.Postgres.MigrateOnStart = true
		cfg.Stores.ClickHouse.MigrateOnStart = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	// Channel to signal completion
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(cfg.App.ShutdownTimeout + 5*time.Second):
			logger.Println("Graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = a.Run(ctx)
	close(done)
	if err != nil {
		logger.Printf("Server error: %v", err)
		a.Close()
		os.Exit(1)
	}

	logger.Println("Shutdown complete")
}
