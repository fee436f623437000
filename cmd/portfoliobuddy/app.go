package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/portfoliobuddy/internal/assistant"
	"github.com/ajitpratap0/portfoliobuddy/internal/breaker"
	"github.com/ajitpratap0/portfoliobuddy/internal/config"
	"github.com/ajitpratap0/portfoliobuddy/internal/db"
	"github.com/ajitpratap0/portfoliobuddy/internal/events"
	"github.com/ajitpratap0/portfoliobuddy/internal/llm"
	"github.com/ajitpratap0/portfoliobuddy/internal/market"
	"github.com/ajitpratap0/portfoliobuddy/internal/metrics"
	"github.com/ajitpratap0/portfoliobuddy/internal/news"
	"github.com/ajitpratap0/portfoliobuddy/internal/portfolio"
	"github.com/ajitpratap0/portfoliobuddy/internal/recommend"
)

// app holds every long-lived component a command may need.
type app struct {
	cfg *config.Config

	breakers *breaker.Manager
	quotes   *market.Gateway
	news     *news.Gateway
	ledger   portfolio.LedgerFile
	enricher *portfolio.Enricher
	analyzer *recommend.Analyzer

	// chat is nil when the app was built without a model.
	chat   *assistant.Orchestrator
	store  assistant.SessionStore
	memory *assistant.MemoryStore

	redis       *redis.Client
	database    *db.DB
	transcripts *db.Transcripts
	bus         *events.Bus
	janitor     *cron.Cron

	metricsServer *metrics.Server
	updater       *metrics.Updater
}

// buildApp wires the assistant. withChat builds the model clients and the
// orchestrator; analysis-only callers (the MCP tools without a model) skip
// them.
func buildApp(ctx context.Context, cfg *config.Config, withChat bool) (*app, error) {
	a := &app{
		cfg:      cfg,
		breakers: cfg.Breakers.BreakerManager(),
		ledger:   portfolio.LedgerFile(cfg.Ledger.Path),
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.GetRedisAddr(), err)
		}
		a.redis = client
		log.Info().Str("addr", cfg.Redis.GetRedisAddr()).Msg("Connected to Redis")
	}

	a.quotes = newQuoteGateway(cfg, a.redis, a.breakers.Market())
	a.news = newNewsGateway(cfg, a.breakers.News())
	a.enricher = portfolio.NewEnricher(a.quotes)
	a.analyzer = recommend.NewAnalyzer(a.quotes, a.news, cfg.News.DaysBack)

	if !withChat {
		return a, nil
	}

	if err := a.buildChat(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newQuoteGateway(cfg *config.Config, client *redis.Client, cb *gobreaker.CircuitBreaker) *market.Gateway {
	yahoo := market.NewYahooClient(market.YahooConfig{
		BaseURL:           cfg.Market.BaseURL,
		Timeout:           cfg.Market.Timeout,
		RequestsPerSecond: cfg.Market.RequestsPerSecond,
	})

	var cache *market.RedisQuoteCache
	if cfg.Market.CacheEnabled && client != nil {
		cache = market.NewRedisQuoteCache(client, cfg.Market.CacheTTL)
	}

	return market.NewGateway(yahoo, market.GatewayConfig{
		Cache:       cache,
		Breaker:     cb,
		Timeout:     cfg.Market.Timeout,
		Concurrency: cfg.Market.Concurrency,
	})
}

func newNewsGateway(cfg *config.Config, cb *gobreaker.CircuitBreaker) *news.Gateway {
	gw := news.GatewayConfig{
		Fallback: news.NewYahooRSS(cfg.News.RSSURL, cfg.News.Timeout),
		Breaker:  cb,
	}
	if cfg.News.APIKey != "" {
		gw.Primary = news.NewNewsAPIClient(news.NewsAPIConfig{
			BaseURL: cfg.News.BaseURL,
			APIKey:  cfg.News.APIKey,
			Timeout: cfg.News.Timeout,
		})
	} else {
		log.Info().Msg("NEWS_API_KEY not set, headlines come from the Yahoo RSS feed")
	}
	return news.NewGateway(gw)
}

// newOracle builds the configured model client behind the LLM breaker.
func newOracle(ctx context.Context, cfg config.LLMConfig, cb *gobreaker.CircuitBreaker) (llm.Oracle, error) {
	var oracle llm.Oracle

	switch cfg.Provider {
	case "openai":
		oracle = llm.NewClient(llm.ClientConfig{
			Endpoint:    cfg.Endpoint,
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	case "gemini":
		client, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		oracle = client
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	log.Info().Str("provider", cfg.Provider).Msg("Language model configured")
	return llm.WithBreaker(oracle, cb), nil
}

func (a *app) buildChat(ctx context.Context) error {
	cfg := a.cfg

	oracle, err := newOracle(ctx, cfg.LLM, a.breakers.LLM())
	if err != nil {
		return err
	}

	if err := a.buildStore(); err != nil {
		return err
	}

	var sinks []assistant.TurnSink
	if cfg.Database.Enabled {
		if err := a.connectDatabase(ctx); err != nil {
			return err
		}
		a.transcripts = db.NewTranscripts(a.database.Pool())
		sinks = append(sinks, a.transcripts)
	}
	if cfg.NATS.Enabled {
		bus, err := events.Connect(events.Config{
			URL:    cfg.NATS.URL,
			Prefix: cfg.NATS.Prefix,
			Name:   cfg.App.Name,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.bus = bus
		sinks = append(sinks, bus)
	}

	a.chat = assistant.NewOrchestrator(assistant.Deps{
		Store:      a.store,
		Classifier: assistant.NewClassifier(oracle),
		Ledger:     a.ledger,
		Enricher:   a.enricher,
		Analyzer:   a.analyzer,
		Responder:  assistant.NewSynthesizer(oracle),
		Sinks:      sinks,
		Timeouts:   cfg.Pipeline.StepTimeouts(),
	})
	return nil
}

func (a *app) buildStore() error {
	switch a.cfg.Session.Store {
	case "redis":
		if a.redis == nil {
			return errors.New("redis session store requires redis.enabled")
		}
		a.store = assistant.NewRedisStore(a.redis, a.cfg.Session.IdleTTL)
	default:
		a.memory = assistant.NewMemoryStore(a.cfg.Session.EvictionPolicy())
		a.store = a.memory
		janitor, err := assistant.StartJanitor(a.memory, a.cfg.Session.JanitorSchedule)
		if err != nil {
			return fmt.Errorf("failed to start session janitor: %w", err)
		}
		a.janitor = janitor
	}
	log.Info().Str("store", a.cfg.Session.Store).Msg("Session store ready")
	return nil
}

// connectDatabase opens the pool and applies pending transcript
// migrations.
func (a *app) connectDatabase(ctx context.Context) error {
	database, err := db.New(ctx, a.cfg.Database.Config)
	if err != nil {
		return err
	}
	a.database = database

	applied, err := db.NewMigrator(database.Pool()).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate transcripts schema: %w", err)
	}
	if applied > 0 {
		log.Info().Int("applied", applied).Msg("Transcript migrations applied")
	}
	return nil
}

// history returns the transcript store for read paths, or nil so callers
// can tell the feature is off.
func (a *app) history() *db.Transcripts {
	return a.transcripts
}

// startMonitoring serves /metrics and refreshes the gauges until ctx ends.
func (a *app) startMonitoring(ctx context.Context) error {
	if !a.cfg.Monitoring.Enabled {
		return nil
	}

	a.metricsServer = metrics.NewServer(a.cfg.Monitoring.MetricsPort, config.Version, config.NewLogger("metrics"))
	if err := a.metricsServer.Start(); err != nil {
		return err
	}

	var (
		pool     metrics.PoolStatter
		sessions metrics.SessionCounter
	)
	if a.database != nil {
		pool = a.database
	}
	if a.memory != nil {
		sessions = a.memory
	}
	a.updater = metrics.NewUpdater(pool, sessions, a.cfg.Monitoring.UpdateInterval)
	go a.updater.Start(ctx)
	return nil
}

// Close releases everything buildApp and startMonitoring opened.
func (a *app) Close() {
	if a.updater != nil {
		a.updater.Stop()
	}
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
		cancel()
	}
	if a.janitor != nil {
		<-a.janitor.Stop().Done()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to drain NATS connection")
		}
	}
	if a.database != nil {
		a.database.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
}
