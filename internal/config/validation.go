package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

var (
	validEnvironments = []string{"development", "staging", "production"}
	validLogLevels    = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	validLogFormats   = []string{"json", "console"}
	validProviders    = []string{"gemini", "openai"}
	validStores       = []string{"memory", "redis"}
)

// Validate performs comprehensive configuration validation. Credentials
// are only checked in production here; commands that need one call
// RequireLLM or RequireTelegram.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateLLM()...)
	errors = append(errors, c.validateTelegram()...)
	errors = append(errors, c.validateLedger()...)
	errors = append(errors, c.validateMarket()...)
	errors = append(errors, c.validateNews()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateNATS()...)
	errors = append(errors, c.validateAPI()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validatePipeline()...)
	errors = append(errors, c.validateMonitoring()...)
	errors = append(errors, c.validateEnvironmentRequirements()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	if !slices.Contains(validEnvironments, c.App.Environment) {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvironments),
		})
	}

	if !slices.Contains(validLogLevels, strings.ToLower(c.App.LogLevel)) {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: fmt.Sprintf("Invalid log level '%s'. Must be one of: %v", c.App.LogLevel, validLogLevels),
		})
	}

	if !slices.Contains(validLogFormats, c.App.LogFormat) {
		errors = append(errors, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("Invalid log format '%s'. Must be one of: %v", c.App.LogFormat, validLogFormats),
		})
	}

	return errors
}

func (c *Config) validateLLM() ValidationErrors {
	var errors ValidationErrors

	if !slices.Contains(validProviders, c.LLM.Provider) {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("Invalid LLM provider '%s'. Must be one of: %v", c.LLM.Provider, validProviders),
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("Temperature must be between 0 and 2 (got %.2f)", c.LLM.Temperature),
		})
	}

	if c.LLM.MaxTokens <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "Max tokens must be positive",
		})
	}

	if c.LLM.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout",
			Message: "LLM timeout must be positive",
		})
	}

	return errors
}

func (c *Config) validateTelegram() ValidationErrors {
	var errors ValidationErrors

	if c.Telegram.WebhookURL != "" && !strings.HasPrefix(c.Telegram.WebhookURL, "https://") {
		errors = append(errors, ValidationError{
			Field:   "telegram.webhook_url",
			Message: "Webhook URL must use https",
		})
	}

	if c.Telegram.PollingTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "telegram.polling_timeout",
			Message: "Polling timeout cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateLedger() ValidationErrors {
	if strings.TrimSpace(c.Ledger.Path) == "" {
		return ValidationErrors{{
			Field:   "ledger.path",
			Message: "Portfolio CSV path is required (PORTFOLIO_CSV_PATH)",
		}}
	}
	return nil
}

func (c *Config) validateMarket() ValidationErrors {
	var errors ValidationErrors

	if c.Market.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "market.timeout",
			Message: "Market data timeout must be positive",
		})
	}

	if c.Market.RequestsPerSecond <= 0 {
		errors = append(errors, ValidationError{
			Field:   "market.requests_per_second",
			Message: "Rate limit must be positive",
		})
	}

	if c.Market.Concurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "market.concurrency",
			Message: "Concurrency must be at least 1",
		})
	}

	if c.Market.CacheEnabled {
		if !c.Redis.Enabled {
			errors = append(errors, ValidationError{
				Field:   "market.cache_enabled",
				Message: "Quote cache requires redis.enabled",
			})
		}
		if c.Market.CacheTTL <= 0 {
			errors = append(errors, ValidationError{
				Field:   "market.cache_ttl",
				Message: "Cache TTL must be positive",
			})
		}
	}

	return errors
}

func (c *Config) validateNews() ValidationErrors {
	var errors ValidationErrors

	if c.News.DaysBack < 1 {
		errors = append(errors, ValidationError{
			Field:   "news.days_back",
			Message: "News window must be at least 1 day",
		})
	}

	if c.News.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "news.timeout",
			Message: "News timeout must be positive",
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if !c.Redis.Enabled {
		return nil
	}

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required",
		})
	}

	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("Invalid Redis port %d. Must be between 1 and 65535", c.Redis.Port),
		})
	}

	if c.Redis.DB < 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.db",
			Message: "Redis DB index cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if !c.Database.Enabled {
		return nil
	}

	if c.Database.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "Database URL is required when transcripts are enabled (DATABASE_URL)",
		})
	}

	if c.Database.MaxConns <= 0 {
		errors = append(errors, ValidationError{
			Field:   "database.max_conns",
			Message: "Max connections must be positive",
		})
	}

	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		errors = append(errors, ValidationError{
			Field:   "database.min_conns",
			Message: fmt.Sprintf("Min connections must be between 0 and max_conns (%d)", c.Database.MaxConns),
		})
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	if !c.NATS.Enabled {
		return nil
	}

	var errors ValidationErrors
	if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: fmt.Sprintf("Invalid NATS URL '%s'. Must start with nats:// or tls://", c.NATS.URL),
		})
	}
	if c.NATS.Prefix == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.prefix",
			Message: "Subject prefix is required",
		})
	}
	return errors
}

func (c *Config) validateAPI() ValidationErrors {
	var errors ValidationErrors

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "api.port",
			Message: fmt.Sprintf("Invalid API port %d. Must be between 1 and 65535", c.API.Port),
		})
	}

	if c.API.Auth.Enabled && len(c.API.Auth.KeyHashes) == 0 {
		errors = append(errors, ValidationError{
			Field:   "api.auth.key_hashes",
			Message: "At least one API key hash is required when auth is enabled",
		})
	}

	for i, hash := range c.API.Auth.KeyHashes {
		if len(hash) != 64 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("api.auth.key_hashes[%d]", i),
				Message: "API key hash must be a hex encoded SHA-256 digest",
			})
		}
	}

	return errors
}

func (c *Config) validateSession() ValidationErrors {
	var errors ValidationErrors

	if !slices.Contains(validStores, c.Session.Store) {
		errors = append(errors, ValidationError{
			Field:   "session.store",
			Message: fmt.Sprintf("Invalid session store '%s'. Must be one of: %v", c.Session.Store, validStores),
		})
	}

	if c.Session.Store == "redis" && !c.Redis.Enabled {
		errors = append(errors, ValidationError{
			Field:   "session.store",
			Message: "Redis session store requires redis.enabled",
		})
	}

	if c.Session.IdleTTL < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.idle_ttl",
			Message: "Idle TTL cannot be negative",
		})
	}

	if c.Session.MaxSessions < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.max_sessions",
			Message: "Max sessions cannot be negative",
		})
	}

	if c.Session.Store == "memory" {
		if _, err := cron.ParseStandard(c.Session.JanitorSchedule); err != nil {
			errors = append(errors, ValidationError{
				Field:   "session.janitor_schedule",
				Message: fmt.Sprintf("Invalid cron schedule '%s': %v", c.Session.JanitorSchedule, err),
			})
		}
	}

	return errors
}

func (c *Config) validatePipeline() ValidationErrors {
	var errors ValidationErrors

	steps := map[string]bool{
		"pipeline.classify_timeout": c.Pipeline.ClassifyTimeout < 0,
		"pipeline.fetch_timeout":    c.Pipeline.FetchTimeout < 0,
		"pipeline.analyze_timeout":  c.Pipeline.AnalyzeTimeout < 0,
		"pipeline.respond_timeout":  c.Pipeline.RespondTimeout < 0,
		"pipeline.sink_timeout":     c.Pipeline.SinkTimeout < 0,
	}
	for _, field := range sortedKeys(steps) {
		if steps[field] {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "Step timeout cannot be negative",
			})
		}
	}

	return errors
}

func (c *Config) validateMonitoring() ValidationErrors {
	var errors ValidationErrors

	if !c.Monitoring.Enabled {
		return nil
	}

	if c.Monitoring.MetricsPort <= 0 || c.Monitoring.MetricsPort > 65535 {
		errors = append(errors, ValidationError{
			Field:   "monitoring.metrics_port",
			Message: fmt.Sprintf("Invalid metrics port %d. Must be between 1 and 65535", c.Monitoring.MetricsPort),
		})
	} else if c.Monitoring.MetricsPort == c.API.Port {
		errors = append(errors, ValidationError{
			Field:   "monitoring.metrics_port",
			Message: fmt.Sprintf("Metrics port conflicts with api.port (%d)", c.API.Port),
		})
	}

	if c.Monitoring.UpdateInterval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "monitoring.update_interval",
			Message: "Update interval must be positive",
		})
	}

	return errors
}

func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	var errors ValidationErrors

	if c.App.Environment != "production" {
		return nil
	}

	errors = append(errors, ValidateProductionSecrets(c)...)

	if !c.API.Auth.Enabled {
		errors = append(errors, ValidationError{
			Field:   "api.auth.enabled",
			Message: "API authentication must be enabled in production",
		})
	}

	if c.Database.Enabled && strings.Contains(c.Database.URL, "sslmode=disable") {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "SSL must be enabled for database in production",
		})
	}

	return errors
}

// RequireLLM checks that the selected model provider has a credential.
func (c *Config) RequireLLM() error {
	var errors ValidationErrors

	switch c.LLM.Provider {
	case "gemini":
		if strings.TrimSpace(c.LLM.GeminiAPIKey) == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.gemini_api_key",
				Message: "Gemini API key is required (GEMINI_API_KEY)",
			})
		}
	case "openai":
		if strings.TrimSpace(c.LLM.OpenAIAPIKey) == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.openai_api_key",
				Message: "OpenAI API key is required (OPENAI_API_KEY)",
			})
		}
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

// RequireTelegram checks that the bot token is set.
func (c *Config) RequireTelegram() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return ValidationErrors{{
			Field:   "telegram.bot_token",
			Message: "Telegram bot token is required (TELEGRAM_BOT_TOKEN)",
		}}
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
