// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package app wires configuration, Postgres, Redis and the upstream client
// into a ready Orchestrator. Both binaries start from here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lexdesk/procmon/internal/alert"
	"github.com/lexdesk/procmon/internal/api"
	"github.com/lexdesk/procmon/internal/config"
	"github.com/lexdesk/procmon/internal/datajud"
	"github.com/lexdesk/procmon/internal/dedup"
	"github.com/lexdesk/procmon/internal/ingest"
	"github.com/lexdesk/procmon/internal/jobs"
	"github.com/lexdesk/procmon/internal/ownership"
	"github.com/lexdesk/procmon/internal/queue"
	"github.com/lexdesk/procmon/internal/scan"
	"github.com/lexdesk/procmon/internal/store"
)

// App holds the live connections and the orchestrator built on them.
type App struct {
	Config       *config.Config
	Orchestrator *jobs.Orchestrator
	Store        *store.Store
	Publisher    *queue.Publisher

	pool *pgxpool.Pool
	rdb  *redis.Client
}

// SetupLogging installs the JSON slog handler. LOG_LEVEL=debug lowers the
// level.
func SetupLogging() {
	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

// New connects to every dependency, applies migrations and builds the
// orchestrator. A missing judicial-records API key does not fail startup:
// the sync flow reports it as a configuration error when invoked.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := store.Migrate(ctx, cfg.DatabaseURL); err != nil {
		return nil, err
	}

	// --- Connect to PostgreSQL ---
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	publisher := queue.NewPublisher(rdb, cfg.AlertsQueue)
	if err := publisher.Ping(ctx); err != nil {
		pool.Close()
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	slog.Info("connected to Redis")

	db := store.New(pool)
	deps := jobs.Deps{
		Scanner:  scan.New(db, cfg.Monitor.TerminalStatuses),
		Resolver: ownership.NewDefault(db),
		Assigner: db,
		Raiser:   alert.NewPolicy(db, dedup.NewGuard(rdb), publisher),
		Monitor:  cfg.Monitor,
	}

	// --- Judicial-records client ---
	client, err := datajud.NewClient(datajud.Options{
		BaseURL:        cfg.Datajud.BaseURL,
		APIKey:         cfg.Datajud.APIKey,
		Timeout:        cfg.Datajud.Timeout,
		PageSize:       cfg.Datajud.PageSize,
		MaxSystems:     cfg.Datajud.MaxSystems,
		FallbackCourts: cfg.Datajud.FallbackCourts,
	})
	if err != nil {
		slog.Warn("on-demand sync disabled", "error", err)
		deps.SyncErr = err
	} else {
		deps.Syncer = ingest.NewService(client, db, cfg.Monitor.MaxEventsPerCase, cfg.Monitor.MaxOwnerResults)
	}

	return &App{
		Config:       cfg,
		Orchestrator: jobs.New(deps),
		Store:        db,
		Publisher:    publisher,
		pool:         pool,
		rdb:          rdb,
	}, nil
}

// HealthChecks returns the dependencies /health pings.
func (a *App) HealthChecks() map[string]api.Pinger {
	return map[string]api.Pinger{
		"postgres": a.Store,
		"redis":    a.Publisher,
	}
}

// Close releases the connections.
func (a *App) Close() {
	if err := a.rdb.Close(); err != nil {
		slog.Debug("redis close failed", "error", err)
	}
	a.pool.Close()
}
