package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/pushkal/server/internal/analysis/cache"
	"github.com/pushkal/server/internal/analysis/graph"
	"github.com/pushkal/server/internal/analysis/model"
	"github.com/pushkal/server/internal/analysis/oracle"
	"github.com/pushkal/server/internal/analysis/repo"
	"github.com/pushkal/server/internal/analysis/sandbox"
	"github.com/pushkal/server/internal/analysis/validator"
	"github.com/pushkal/server/internal/core"
	logx "github.com/pushkal/server/pkg/logger"
	pkgredis "github.com/pushkal/server/pkg/redis"
	"github.com/pushkal/server/pkg/tabular"
)

var envFile string

// AppConfig defines all configurable parameters of the CLI, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Analysis configs
	Planner   model.PlannerModelConfig
	Explainer model.ExplainerModelConfig
	Workflow  model.WorkflowConfig
	Cache     model.CacheConfig
	RateLimit model.RateLimitConfig
	History   model.HistoryConfig
}

func loadConfig() (*AppConfig, error) {
	dotenvErr := godotenv.Load(envFile)

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	logx.Init(logx.LoggerOpts{Environment: cfg.Environment, Level: cfg.LogLevel})
	if dotenvErr != nil && !errors.Is(dotenvErr, fs.ErrNotExist) {
		logx.Warn().Err(dotenvErr).Str("file", envFile).Msg("could not load env file")
	}
	return &cfg, nil
}

// app bundles the collaborators shared by the subcommands.
type app struct {
	cfg     *AppConfig
	rdb     *redis.Client
	cache   *cache.Cache
	history *repo.RedisHistoryRepository
}

// connect opens Redis. Without Redis the cache, rate limiter and history are
// disabled rather than failing the command.
func connect(ctx context.Context, cfg *AppConfig) *app {
	a := &app{cfg: cfg}
	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		logx.Warn().Err(err).Msg("redis unavailable, running without cache and history")
		a.cache = cache.New(nil, cfg.Cache)
		return a
	}
	a.rdb = rdb
	a.cache = cache.New(rdb, cfg.Cache)
	a.history = repo.NewRedisHistoryRepository(rdb, cfg.History.TTL)
	return a
}

func (a *app) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			logx.Warn().Err(err).Msg("redis close failed")
		}
	}
}

// engine wires the Gemini-backed oracle and the local collaborators into an
// analysis engine.
func (a *app) engine(ctx context.Context) (*graph.Engine, error) {
	cms, err := oracle.NewChatModels(ctx, oracle.ChatModelConfig{
		APIKey:    a.cfg.APIKey,
		BaseURL:   a.cfg.BaseURL,
		Planner:   &a.cfg.Planner,
		Explainer: &a.cfg.Explainer,
	})
	if err != nil {
		return nil, err
	}
	return graph.New(ctx, graph.Config{
		Oracle:    oracle.NewFromChatModels(cms),
		Validator: validator.New(),
		Sandbox:   sandbox.New(a.cfg.Workflow.ExecTimeout),
		Previews:  tabular.NewLoader(a.cfg.Cache.PreviewSize, a.cfg.Cache.FileMetadataTTL),
		Cache:     a.cache,
		Limiter:   a.cache,
		Workflow:  a.cfg.Workflow,
		RateLimit: a.cfg.RateLimit,
	})
}
