package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retireplan/internal/identity"
	"retireplan/internal/platform/config"
	"retireplan/internal/platform/logger"
	"retireplan/internal/platform/metrics"
	"retireplan/pkg/domain"
)

var version = "dev"

// main loads configuration, wires the services and runs until SIGINT or
// SIGTERM. Business logic lives in the internal service packages.
func main() {
	configDir := flag.String("config", ".", "directory holding an optional config.yaml")
	devToken := flag.String("dev-token", "", "print a 24h bearer token for this email and exit")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	if *devToken != "" {
		tokens := identity.NewTokenService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
		token, err := tokens.Issue(domain.Identity{UID: "dev-" + *devToken, Email: *devToken}, 24*time.Hour)
		if err != nil {
			log.Error("failed to issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	metrics.SetBuildInfo(version)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.close()

	log.Info("starting retireplan",
		"addr", cfg.Server.Addr,
		"version", version,
		"audit_store", cfg.Audit.Store,
		"audit_feed", cfg.Audit.Feed,
		"docs_store", cfg.Docs.Store,
		"claims_store", cfg.Claims.Store,
	)
	if err := app.run(ctx, cfg.Server.ShutdownTimeout); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
