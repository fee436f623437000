package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/portfoliobuddy/internal/api"
	"github.com/ajitpratap0/portfoliobuddy/internal/assistant"
	"github.com/ajitpratap0/portfoliobuddy/internal/breaker"
	"github.com/ajitpratap0/portfoliobuddy/internal/db"
	"github.com/ajitpratap0/portfoliobuddy/internal/telegram"
)

// EnvPrefix prefixes every environment override, e.g.
// PORTFOLIOBUDDY_MARKET_CACHE_TTL.
const EnvPrefix = "PORTFOLIOBUDDY"

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Telegram   telegram.Config  `mapstructure:"telegram"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Market     MarketConfig     `mapstructure:"market"`
	News       NewsConfig       `mapstructure:"news"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	API        api.Config       `mapstructure:"api"`
	Session    SessionConfig    `mapstructure:"session"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Breakers   BreakersConfig   `mapstructure:"breakers"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // json or console
}

// LLMConfig selects and configures the language model
type LLMConfig struct {
	Provider     string        `mapstructure:"provider"` // gemini or openai
	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
	GeminiModel  string        `mapstructure:"gemini_model"`
	OpenAIAPIKey string        `mapstructure:"openai_api_key"`
	Endpoint     string        `mapstructure:"endpoint"` // OpenAI-compatible chat completions URL
	Model        string        `mapstructure:"model"`
	Temperature  float64       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// LedgerConfig points at the holdings CSV
type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

// MarketConfig configures the quote provider and its cache
type MarketConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Concurrency       int           `mapstructure:"concurrency"`
	CacheEnabled      bool          `mapstructure:"cache_enabled"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// NewsConfig configures the headline sources
type NewsConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	RSSURL   string        `mapstructure:"rss_url"`
	DaysBack int           `mapstructure:"days_back"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig enables transcript persistence in PostgreSQL
type DatabaseConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	db.Config `mapstructure:",squash"`
}

// NATSConfig enables turn events on NATS
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Prefix  string `mapstructure:"prefix"`
}

// SessionConfig selects the session store and its eviction policy
type SessionConfig struct {
	Store           string        `mapstructure:"store"` // memory or redis
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	MaxSessions     int           `mapstructure:"max_sessions"`
	JanitorSchedule string        `mapstructure:"janitor_schedule"`
}

// PipelineConfig bounds each conversation step
type PipelineConfig struct {
	ClassifyTimeout time.Duration `mapstructure:"classify_timeout"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	AnalyzeTimeout  time.Duration `mapstructure:"analyze_timeout"`
	RespondTimeout  time.Duration `mapstructure:"respond_timeout"`
	SinkTimeout     time.Duration `mapstructure:"sink_timeout"`
}

// BreakersConfig tunes the circuit breakers. Zero fields use the breaker
// package defaults.
type BreakersConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Market  breaker.Settings `mapstructure:"market"`
	News    breaker.Settings `mapstructure:"news"`
	LLM     breaker.Settings `mapstructure:"llm"`
}

// MonitoringConfig contains metrics settings
type MonitoringConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	MetricsPort    int           `mapstructure:"metrics_port"`
	UpdateInterval time.Duration `mapstructure:"update_interval"`
}

// legacyEnv maps config keys to the plain environment names the assistant
// has always read. The prefixed form wins when both are set.
var legacyEnv = map[string]string{
	"llm.gemini_api_key": "GEMINI_API_KEY",
	"llm.openai_api_key": "OPENAI_API_KEY",
	"telegram.bot_token": "TELEGRAM_BOT_TOKEN",
	"ledger.path":        "PORTFOLIO_CSV_PATH",
	"news.api_key":       "NEWS_API_KEY",
	"database.url":       "DATABASE_URL",
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, then validates it. configPath can be empty to search
// ./configs and the working directory for config.yaml.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Defaults and environment only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "PortfolioBuddy")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.gemini_model", "gemini-2.5-flash-lite")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", "30s")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.webhook_listen", ":8443")
	v.SetDefault("telegram.polling_timeout", 60)
	v.SetDefault("telegram.turn_timeout", "2m")
	v.SetDefault("telegram.debug", false)

	v.SetDefault("ledger.path", "portfolio.csv")

	v.SetDefault("market.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("market.timeout", "10s")
	v.SetDefault("market.requests_per_second", 5.0)
	v.SetDefault("market.concurrency", 4)
	v.SetDefault("market.cache_enabled", false)
	v.SetDefault("market.cache_ttl", "60s")

	v.SetDefault("news.api_key", "")
	v.SetDefault("news.base_url", "https://newsapi.org/v2")
	v.SetDefault("news.rss_url", "https://feeds.finance.yahoo.com/rss/2.0/headline")
	v.SetDefault("news.days_back", 7)
	v.SetDefault("news.timeout", "10s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.url", "postgres://postgres@localhost:5432/portfoliobuddy?sslmode=disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.prefix", "portfoliobuddy.")

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.allowed_origins", []string{"*"})
	v.SetDefault("api.request_timeout", "2m")
	v.SetDefault("api.auth.enabled", false)
	v.SetDefault("api.auth.header_name", "X-API-Key")
	v.SetDefault("api.auth.key_hashes", []string{})

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.idle_ttl", "24h")
	v.SetDefault("session.max_sessions", 10000)
	v.SetDefault("session.janitor_schedule", "@every 5m")

	v.SetDefault("pipeline.classify_timeout", assistant.DefaultStepTimeouts.Classify.String())
	v.SetDefault("pipeline.fetch_timeout", assistant.DefaultStepTimeouts.Fetch.String())
	v.SetDefault("pipeline.analyze_timeout", assistant.DefaultStepTimeouts.Analyze.String())
	v.SetDefault("pipeline.respond_timeout", assistant.DefaultStepTimeouts.Respond.String())
	v.SetDefault("pipeline.sink_timeout", assistant.DefaultStepTimeouts.Sink.String())

	v.SetDefault("breakers.enabled", true)
	for _, service := range []string{breaker.ServiceMarket, breaker.ServiceNews, breaker.ServiceLLM} {
		v.SetDefault("breakers."+service+".min_requests", 0)
		v.SetDefault("breakers."+service+".failure_ratio", 0.0)
		v.SetDefault("breakers."+service+".open_timeout", "0s")
		v.SetDefault("breakers."+service+".half_open_max_requests", 0)
		v.SetDefault("breakers."+service+".count_interval", "0s")
	}

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_port", 9090)
	v.SetDefault("monitoring.update_interval", "15s")
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the API server address
func (c *Config) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// StepTimeouts converts the pipeline section for the orchestrator
func (c *PipelineConfig) StepTimeouts() assistant.StepTimeouts {
	return assistant.StepTimeouts{
		Classify: c.ClassifyTimeout,
		Fetch:    c.FetchTimeout,
		Analyze:  c.AnalyzeTimeout,
		Respond:  c.RespondTimeout,
		Sink:     c.SinkTimeout,
	}
}

// EvictionPolicy builds the in-memory store policy from the session section
func (c *SessionConfig) EvictionPolicy() assistant.EvictionPolicy {
	return assistant.Policies{
		assistant.IdleTTL{TTL: c.IdleTTL},
		assistant.MaxSessions{Max: c.MaxSessions},
	}
}

// BreakerManager builds the circuit breakers, or passthrough breakers when
// they are disabled
func (c *BreakersConfig) BreakerManager() *breaker.Manager {
	if !c.Enabled {
		return breaker.NewPassthroughManager()
	}
	return breaker.NewManagerWithSettings(&c.Market, &c.News, &c.LLM)
}
