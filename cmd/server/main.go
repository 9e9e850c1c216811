// Paygate - x402 payment facilitator and atomic settlement engine
package main

import (
	"context"
	"os"

	"github.com/mbd888/paygate/internal/config"
	"github.com/mbd888/paygate/internal/logging"
	"github.com/mbd888/paygate/internal/paywall"
	"github.com/mbd888/paygate/internal/policy"
	"github.com/mbd888/paygate/internal/server"
	"github.com/mbd888/paygate/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "text")

	logger.Info("starting paygate",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"chain_id", cfg.ChainID,
		"network", cfg.Network,
		"usdc_contract", cfg.USDCContract,
	)

	ctx := context.Background()

	// Tracing (no-op unless OTEL_EXPORTER_OTLP_ENDPOINT is set)
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTraces(context.Background()); err != nil {
			logger.Warn("trace shutdown error", "error", err)
		}
	}()

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	registerPaidRoutes(srv, cfg)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// registerPaidRoutes exposes the built-in paid resources. Providers for
// each kind are registered at runtime via POST /v1/providers.
func registerPaidRoutes(srv *server.Server, cfg *config.Config) {
	srv.RegisterPaidRoute("/weather", paywall.Route{
		Kind:        "weather",
		Price:       cfg.DefaultPrice,
		Description: "Current conditions and forecast for a location",
		MimeType:    "application/json",
	}, policy.NewJSONResult("weather", []string{"temperature"}, []string{"error"}))

	srv.RegisterPaidRoute("/fx", paywall.Route{
		Kind:        "fx",
		Price:       cfg.DefaultPrice,
		Description: "Spot exchange rate for a currency pair",
		MimeType:    "application/json",
	}, policy.NewJSONResult("fx", []string{"rate"}, []string{"error"}))
}
