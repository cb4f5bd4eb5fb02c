// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

// Package main is the entry point for the ToolGate gateway service.
//
// The gateway authenticates virtual-key bearer tokens, enforces per-account
// rate limits, executes tool calls through the governor pipeline, streams
// run events to clients over SSE, and commits usage facts to the billing
// ledger.
//
// Usage:
//
//	./gateway -config /etc/toolgate/gateway.yaml
//
// Environment variables referenced in the config file with ${VAR} syntax
// are expanded at load time.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"toolgate/platform/gateway"
	"toolgate/platform/governor"
	"toolgate/platform/ledger"
	"toolgate/platform/tools"
)

func main() {
	configPath := flag.String("config", "gateway.yaml", "path to the gateway config file")
	flag.Parse()

	cfg, err := gateway.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, cleanup, err := build(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to build gateway: %v", err)
	}
	defer cleanup()

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatalf("gateway exited: %v", err)
	}
}

// build wires config into a runnable server
func build(ctx context.Context, cfg *gateway.Config) (*gateway.Server, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Ledger store: Postgres when configured, in-memory otherwise
	var store ledger.Store = ledger.NewMemoryStore()
	var opts []gateway.ServerOption
	var queryDB *sql.DB

	if cfg.Ledger.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.Ledger.DatabaseURL)
		if err != nil {
			return nil, cleanup, err
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, cleanup, err
		}
		cleanups = append(cleanups, func() { _ = db.Close() })

		pg := ledger.NewPostgresStore(db)
		store = pg
		opts = append(opts, gateway.WithStorePinger(pg))
		queryDB = db
	}

	pricing := ledger.CreditsPricing{
		MarkupPercent: cfg.Ledger.MarkupPercent,
		CreditsPerUSD: cfg.Ledger.CreditsPerUSD,
	}
	led := ledger.New(store, pricing.Func(),
		ledger.WithDeferringSources(cfg.Ledger.DeferringSources...))

	// Rate limiter: Redis when configured, in-memory otherwise
	if cfg.Redis.URL != "" {
		limiter, err := gateway.NewRedisRateLimiter(cfg.Redis.URL)
		if err != nil {
			return nil, cleanup, err
		}
		cleanups = append(cleanups, func() { _ = limiter.Close() })
		opts = append(opts, gateway.WithRateLimiter(limiter))
	}

	registry, err := buildRegistry(cfg, queryDB)
	if err != nil {
		return nil, cleanup, err
	}

	gov := governor.New(registry, governor.NewAllowlistPolicy())
	srv := gateway.NewServer(cfg, registry, gov, led, ledger.NewPricingConfig(), opts...)
	return srv, cleanup, nil
}

// buildRegistry registers the built-in tools
func buildRegistry(cfg *gateway.Config, queryDB *sql.DB) (*governor.Registry, error) {
	registry := governor.NewRegistry()

	echoContract, err := tools.EchoContract()
	if err != nil {
		return nil, err
	}
	if err := registry.Register(echoContract, tools.EchoImplementation()); err != nil {
		return nil, err
	}

	fetchOpts := []tools.HTTPFetchOption{
		tools.WithFetchTimeout(cfg.Tools.FetchTimeout()),
		tools.WithMaxResponseSize(cfg.Tools.FetchMaxBodyBytes),
	}
	if cfg.Tools.DisablePrivateSSRF {
		fetchOpts = append(fetchOpts, tools.WithAllowPrivateIPs())
	}
	fetch := tools.NewHTTPFetchTool(cfg.Tools.FetchAllowedHosts, fetchOpts...)
	fetchContract, err := fetch.Contract()
	if err != nil {
		return nil, err
	}
	if err := registry.Register(fetchContract, fetch); err != nil {
		return nil, err
	}

	// pg_query is only available when a query database is configured
	if cfg.Tools.QueryDatabaseURL != "" || queryDB != nil {
		db := queryDB
		if cfg.Tools.QueryDatabaseURL != "" {
			var err error
			db, err = sql.Open("postgres", cfg.Tools.QueryDatabaseURL)
			if err != nil {
				return nil, err
			}
		}
		pgTool := tools.NewPostgresQueryTool(db)
		pgContract, err := pgTool.Contract()
		if err != nil {
			return nil, err
		}
		if err := registry.Register(pgContract, pgTool); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func init() {
	// Structured log lines are emitted by the component loggers; keep the
	// stdlib prefix plain for the few bootstrap messages above.
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags)
}
