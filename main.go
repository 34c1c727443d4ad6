package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/clara-care/server/internal/agent/completion"
	"github.com/clara-care/server/internal/agent/conversations"
	"github.com/clara-care/server/internal/agent/model"
	"github.com/clara-care/server/internal/agent/observers"
	"github.com/clara-care/server/internal/agent/orchestrator"
	"github.com/clara-care/server/internal/agent/repo"
	"github.com/clara-care/server/internal/agent/tools"
	"github.com/clara-care/server/internal/core"
	"github.com/clara-care/server/internal/server"
	logx "github.com/clara-care/server/pkg/logger"
	"github.com/clara-care/server/pkg/metrics"
	"github.com/clara-care/server/pkg/postgres"
	pkgredis "github.com/clara-care/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the chat service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Env         core.Environment `envconfig:"APP_ENV" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`
	AutoMigrate bool             `envconfig:"DB_AUTO_MIGRATE" default:"false"`

	// Infrastructure
	HTTP     server.Config
	Postgres postgres.Config
	Redis    pkgredis.Config

	// Agent configs
	Agent      model.AgentConfig
	Completion model.CompletionConfig
	Pipeline   model.PipelineConfig
	Checkout   model.CheckoutConfig
	Lead       model.LeadConfig
	Cache      model.CacheConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load(".env")

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Init()
		logx.Fatal().Err(err).Msg("failed to process environment config")
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Env, Level: cfg.LogLevel})
	if envErr != nil {
		logx.Debug().Err(envErr).Msg("no .env file loaded")
	}

	// Prices go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	db, err := cfg.Postgres.Open(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			logx.Warn().Err(err).Msg("failed to close postgres")
		}
	}()
	logx.Info().Msg("connected to postgres")

	if cfg.AutoMigrate {
		if err := repo.AutoMigrate(db); err != nil {
			logx.Fatal().Err(err).Msg("failed to migrate schema")
		}
	}

	m := metrics.New()
	callbacks.AppendGlobalHandlers(observers.NewHandler())

	var profiles model.ProfileLoader = repo.NewProfileLoader(repo.NewGormAgentRepository(db))
	if cfg.Redis.Enabled() {
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			logx.Fatal().Err(err).Msg("failed to initialise redis client")
		}
		defer rdb.Close()
		logx.Info().Dur("ttl", cfg.Cache.ProfileTTL).Msg("connected to redis, agent profile cache on")
		cache := repo.NewCachedProfileLoader(profiles, rdb, cfg.Cache.ProfileTTL)
		profiles = cache

		// SIGHUP drops the cached profile after an agent configuration edit.
		reload := make(chan os.Signal, 1)
		signal.Notify(reload, syscall.SIGHUP)
		defer signal.Stop(reload)
		go cache.InvalidateOn(ctx, reload, cfg.Agent.Name)
	}

	completer, err := newCompleter(ctx, cfg.Completion, m)
	if err != nil {
		logx.Fatal().Err(err).Str("provider", cfg.Completion.Provider).Msg("failed to build completion client")
	}

	dispatcher := tools.NewDispatcher(tools.Deps{
		Catalog:            repo.NewGormCatalogRepository(db),
		Leads:              repo.NewGormLeadRepository(db),
		Checkout:           tools.NewHTTPCheckoutClient(cfg.Checkout.URL, cfg.Checkout.APIKey, cfg.Checkout.Timeout),
		LeadSourceFallback: cfg.Lead.SourceFallback,
		Metrics:            m,
	})

	recorder := conversations.NewRecorder(
		repo.NewGormConversationRepository(db),
		repo.NewGormAnalyticsRepository(db),
		cfg.Pipeline.RecordTimeout,
		m,
	)

	pipeline, err := orchestrator.New(orchestrator.Config{
		AgentName:          cfg.Agent.Name,
		DisplayName:        cfg.Agent.DisplayName,
		Profiles:           profiles,
		Completer:          completer,
		Tools:              dispatcher,
		Recorder:           recorder,
		CompletionTimeout:  cfg.Completion.Timeout,
		ToolTimeout:        cfg.Pipeline.ToolTimeout,
		StoreTimeout:       cfg.Pipeline.StoreTimeout,
		KnowledgeMaxChars:  cfg.Pipeline.KnowledgeMaxChars,
		HistoryMaxMessages: cfg.Pipeline.HistoryMaxMessages,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build chat pipeline")
	}

	health := func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}

	srv := server.New(cfg.HTTP, cfg.Agent.Name, pipeline, health, m)
	if err := srv.Run(ctx); err != nil {
		logx.Error().Err(err).Msg("http server stopped with error")
	}
}

func newCompleter(ctx context.Context, cfg model.CompletionConfig, m *metrics.Metrics) (completion.Completer, error) {
	switch cfg.Provider {
	case "gemini":
		client, err := completion.NewGeminiClient(ctx, completion.GeminiConfig{
			APIKey:         cfg.GeminiAPIKey,
			BaseURL:        cfg.GeminiBaseURL,
			DefaultModel:   cfg.GeminiModel,
			ThinkingBudget: cfg.GeminiThinkingBudget,
		}, m)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return completion.NewGatewayClient(cfg.GatewayURL, cfg.APIKey, cfg.Timeout, m), nil
	}
}
