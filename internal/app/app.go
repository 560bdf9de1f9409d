// Package app assembles the application from its parts: configuration,
// logging, telemetry, storage, providers, tools, and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/lethehaiau/floatplane-zero-agent/api"
	"github.com/lethehaiau/floatplane-zero-agent/db"
	"github.com/lethehaiau/floatplane-zero-agent/internal/blob"
	"github.com/lethehaiau/floatplane-zero-agent/internal/chat"
	"github.com/lethehaiau/floatplane-zero-agent/internal/config"
	"github.com/lethehaiau/floatplane-zero-agent/internal/log"
	"github.com/lethehaiau/floatplane-zero-agent/internal/provider"
	"github.com/lethehaiau/floatplane-zero-agent/internal/store"
	"github.com/lethehaiau/floatplane-zero-agent/internal/telemetry"
	"github.com/lethehaiau/floatplane-zero-agent/internal/tools"
)

// Outbound provider call throttle, shared across all turns.
const (
	llmRequestsPerSecond = 2
	llmBurst             = 5
)

// ErrNoProviders indicates no provider credential was configured.
var ErrNoProviders = errors.New("no LLM provider configured: set an OpenAI or Google API key")

// App holds the assembled application.
type App struct {
	Config       *config.Config
	Logger       log.Logger
	Pool         *pgxpool.Pool
	Store        *store.Store
	Blobs        *blob.Store
	Orchestrator *chat.Orchestrator

	stopTracing func(context.Context) error
}

// Setup builds the application: runs migrations, opens the database pool,
// registers every provider with a configured credential, and wires the
// orchestrator.
func Setup(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	stopTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	blobs, err := blob.NewStore(cfg.UploadsDir)
	if err != nil {
		pool.Close()
		return nil, err
	}

	registry, err := buildProviders(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	searcher := tools.NewSearcher(cfg.Search.SearXNGURL, cfg.Search.MaxResults, logger)

	st := store.New(pool, logger)
	orch := chat.New(
		st,
		registry,
		tools.NewRegistry(searcher),
		rate.NewLimiter(rate.Limit(llmRequestsPerSecond), llmBurst),
		provider.Params{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
		logger,
	)

	logger.Info("application ready", "providers", registry.IDs())

	return &App{
		Config:       cfg,
		Logger:       logger,
		Pool:         pool,
		Store:        st,
		Blobs:        blobs,
		Orchestrator: orch,
		stopTracing:  stopTracing,
	}, nil
}

// Server builds the HTTP server over the assembled application.
func (a *App) Server() *api.Server {
	return api.NewServer(api.Deps{
		Sessions:    a.Store,
		Files:       a.Store,
		Chat:        a.Orchestrator,
		Blobs:       a.Blobs,
		DB:          a.Pool,
		CORSOrigins: a.Config.CORSOrigins,
		Logger:      a.Logger,
	})
}

// Close releases the application's resources.
func (a *App) Close(ctx context.Context) error {
	a.Pool.Close()
	if a.stopTracing != nil {
		return a.stopTracing(ctx)
	}
	return nil
}

func buildProviders(ctx context.Context, cfg *config.Config, logger log.Logger) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	if cfg.OpenAI.APIKey != "" {
		registry.Register("openai", provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
		}, logger))
	}
	if cfg.Google.APIKey != "" {
		google, err := provider.NewGoogle(ctx, provider.GoogleConfig{APIKey: cfg.Google.APIKey}, logger)
		if err != nil {
			return nil, err
		}
		registry.Register("google", google)
	}

	if len(registry.IDs()) == 0 {
		return nil, ErrNoProviders
	}
	return registry, nil
}
