package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// SecretStrength represents the strength level of a secret
type SecretStrength int

const (
	SecretStrengthWeak SecretStrength = iota
	SecretStrengthMedium
	SecretStrengthStrong
)

func (s SecretStrength) String() string {
	switch s {
	case SecretStrengthWeak:
		return "Weak"
	case SecretStrengthMedium:
		return "Medium"
	case SecretStrengthStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Placeholder values copied from .env.example files and docs
var commonPlaceholders = []string{
	"changeme",
	"please_change_me",
	"your_api_key",
	"your_gemini_api_key",
	"your_telegram_bot_token",
	"your_news_api_key",
	"your_secret",
	"password",
	"secret",
	"example",
	"sample",
	"demo",
	"default",
	"xxx",
}

// SecretValidationResult contains the result of secret validation
type SecretValidationResult struct {
	IsValid  bool
	Strength SecretStrength
	Errors   []string
}

// ValidateSecret checks a secret for placeholders and length. With
// requireStrong, passwords must also mix at least three character classes.
// Provider-issued API keys are checked without requireStrong.
func ValidateSecret(secret string, name string, minLength int, requireStrong bool) SecretValidationResult {
	result := SecretValidationResult{IsValid: true, Strength: SecretStrengthStrong}

	fail := func(msg string) SecretValidationResult {
		result.IsValid = false
		result.Strength = SecretStrengthWeak
		result.Errors = append(result.Errors, msg)
		return result
	}

	if secret == "" {
		return fail(fmt.Sprintf("%s cannot be empty", name))
	}

	lower := strings.ToLower(secret)
	for _, placeholder := range commonPlaceholders {
		if strings.Contains(lower, placeholder) {
			return fail(fmt.Sprintf("%s appears to be a placeholder value (%s)", name, placeholder))
		}
	}

	if len(secret) < minLength {
		return fail(fmt.Sprintf("%s must be at least %d characters (got %d)", name, minLength, len(secret)))
	}

	var upper, lowerCase, digit, special bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lowerCase = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	classes := 0
	for _, has := range []bool{upper, lowerCase, digit, special} {
		if has {
			classes++
		}
	}

	switch {
	case classes >= 3:
		result.Strength = SecretStrengthStrong
	case classes == 2:
		result.Strength = SecretStrengthMedium
	default:
		result.Strength = SecretStrengthWeak
	}

	if requireStrong && result.Strength != SecretStrengthStrong {
		result.IsValid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("%s is %s: include at least 3 of uppercase, lowercase, digits, special characters", name, result.Strength))
	}

	return result
}

// ValidateProductionSecrets validates all configured secrets for production use
func ValidateProductionSecrets(cfg *Config) ValidationErrors {
	var errors ValidationErrors

	check := func(field, value, name string, minLength int, requireStrong bool) {
		if value == "" {
			return
		}
		result := ValidateSecret(value, name, minLength, requireStrong)
		for _, msg := range result.Errors {
			errors = append(errors, ValidationError{Field: field, Message: msg})
		}
	}

	// Provider keys are long random strings; only placeholders and
	// truncation are caught here.
	check("llm.gemini_api_key", cfg.LLM.GeminiAPIKey, "Gemini API key", 20, false)
	check("llm.openai_api_key", cfg.LLM.OpenAIAPIKey, "OpenAI API key", 20, false)
	check("telegram.bot_token", cfg.Telegram.BotToken, "Telegram bot token", 30, false)
	check("news.api_key", cfg.News.APIKey, "NewsAPI key", 20, false)
	check("redis.password", cfg.Redis.Password, "Redis password", 12, true)

	return errors
}

// ================================================
// HashiCorp Vault Integration
// ================================================

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled    bool   // Enable Vault integration
	Address    string // Vault server address (e.g., "https://vault.example.com:8200")
	Token      string // Vault authentication token
	AuthMethod string // Authentication method: "token", "kubernetes", "approle"
	MountPath  string // KV v2 mount path (default: "secret")
	SecretPath string // Base path for PortfolioBuddy secrets (e.g., "portfoliobuddy/production")
	Namespace  string // Vault namespace (for Vault Enterprise)
}

// VaultClient wraps HashiCorp Vault client for secrets management
type VaultClient struct {
	client *vault.Client
	config VaultConfig
}

// NewVaultClient creates a new Vault client from configuration
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("vault is not enabled in configuration")
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	switch cfg.AuthMethod {
	case "token", "":
		if cfg.Token == "" {
			cfg.Token = os.Getenv("VAULT_TOKEN")
		}
		if cfg.Token == "" {
			return nil, fmt.Errorf("VAULT_TOKEN not set for token authentication")
		}
		client.SetToken(cfg.Token)

	case "kubernetes":
		if err := authenticateKubernetes(client); err != nil {
			return nil, fmt.Errorf("kubernetes authentication failed: %w", err)
		}

	case "approle":
		if err := authenticateAppRole(client); err != nil {
			return nil, fmt.Errorf("AppRole authentication failed: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported Vault auth method: %s", cfg.AuthMethod)
	}

	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}

	log.Info().
		Str("address", cfg.Address).
		Str("auth_method", cfg.AuthMethod).
		Str("mount_path", cfg.MountPath).
		Str("secret_path", cfg.SecretPath).
		Msg("Vault client initialized successfully")

	return &VaultClient{
		client: client,
		config: cfg,
	}, nil
}

// GetSecret retrieves a secret from Vault
// path is relative to the configured SecretPath
func (vc *VaultClient) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	fullPath := fmt.Sprintf("%s/data/%s/%s", vc.config.MountPath, vc.config.SecretPath, path)

	log.Debug().Str("path", fullPath).Msg("Reading secret from Vault")

	secret, err := vc.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}

	if secret == nil {
		return nil, fmt.Errorf("secret not found at path: %s", fullPath)
	}

	// KV v2 nests the payload under "data"
	if data, ok := secret.Data["data"].(map[string]interface{}); ok {
		return data, nil
	}

	return secret.Data, nil
}

// GetSecretString retrieves a single string value from Vault
func (vc *VaultClient) GetSecretString(ctx context.Context, path string, key string) (string, error) {
	data, err := vc.GetSecret(ctx, path)
	if err != nil {
		return "", err
	}

	value, ok := data[key].(string)
	if !ok {
		return "", fmt.Errorf("secret key '%s' not found or not a string at path: %s", key, path)
	}

	return value, nil
}

// vaultSecret maps one key under a Vault path onto a config field.
type vaultSecret struct {
	path   string
	key    string
	target func(*Config) *string
	label  string
}

var vaultSecrets = []vaultSecret{
	{"llm", "gemini_api_key", func(c *Config) *string { return &c.LLM.GeminiAPIKey }, "Gemini API key"},
	{"llm", "openai_api_key", func(c *Config) *string { return &c.LLM.OpenAIAPIKey }, "OpenAI API key"},
	{"telegram", "telegram_bot_token", func(c *Config) *string { return &c.Telegram.BotToken }, "Telegram bot token"},
	{"news", "news_api_key", func(c *Config) *string { return &c.News.APIKey }, "NewsAPI key"},
	{"redis", "password", func(c *Config) *string { return &c.Redis.Password }, "Redis password"},
	{"database", "url", func(c *Config) *string { return &c.Database.URL }, "Database URL"},
}

// LoadSecretsFromVault overlays Vault secrets onto cfg. A missing path or
// key keeps the value from the environment.
func LoadSecretsFromVault(ctx context.Context, cfg *Config, vaultCfg VaultConfig) error {
	if !vaultCfg.Enabled {
		log.Info().Msg("Vault integration disabled - using environment variables for secrets")
		return nil
	}

	log.Info().Msg("Loading secrets from HashiCorp Vault...")

	vaultClient, err := NewVaultClient(vaultCfg)
	if err != nil {
		return fmt.Errorf("failed to create Vault client: %w", err)
	}

	return loadSecrets(ctx, vaultClient, cfg)
}

func loadSecrets(ctx context.Context, vc *VaultClient, cfg *Config) error {
	cache := make(map[string]map[string]interface{})
	loaded := 0

	for _, s := range vaultSecrets {
		data, seen := cache[s.path]
		if !seen {
			var err error
			data, err = vc.GetSecret(ctx, s.path)
			if err != nil {
				log.Warn().Err(err).Str("path", s.path).Msg("Failed to load secrets from Vault")
			}
			cache[s.path] = data
		}

		if value, ok := data[s.key].(string); ok && value != "" {
			*s.target(cfg) = value
			loaded++
			log.Info().Msgf("✓ Loaded %s from Vault", s.label)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("loading secrets from Vault: %w", err)
	}

	log.Info().Int("loaded", loaded).Msg("Secrets loaded from Vault")
	return nil
}

// authenticateKubernetes performs Kubernetes service account authentication
func authenticateKubernetes(client *vault.Client) error {
	jwt, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/token")
	if err != nil {
		return fmt.Errorf("failed to read service account token: %w", err)
	}

	role := getEnvOrDefault("VAULT_K8S_ROLE", "portfoliobuddy")

	secret, err := client.Logical().Write("auth/kubernetes/login", map[string]interface{}{
		"jwt":  string(jwt),
		"role": role,
	})
	if err != nil {
		return fmt.Errorf("failed to login with Kubernetes auth: %w", err)
	}
	if secret == nil || secret.Auth == nil {
		return fmt.Errorf("kubernetes authentication returned no token")
	}

	client.SetToken(secret.Auth.ClientToken)
	log.Info().Str("role", role).Msg("Authenticated to Vault using Kubernetes service account")
	return nil
}

// authenticateAppRole performs AppRole authentication
func authenticateAppRole(client *vault.Client) error {
	roleID := os.Getenv("VAULT_ROLE_ID")
	secretID := os.Getenv("VAULT_SECRET_ID")

	if roleID == "" || secretID == "" {
		return fmt.Errorf("VAULT_ROLE_ID and VAULT_SECRET_ID must be set for AppRole authentication")
	}

	secret, err := client.Logical().Write("auth/approle/login", map[string]interface{}{
		"role_id":   roleID,
		"secret_id": secretID,
	})
	if err != nil {
		return fmt.Errorf("failed to login with AppRole: %w", err)
	}
	if secret == nil || secret.Auth == nil {
		return fmt.Errorf("AppRole authentication returned no token")
	}

	client.SetToken(secret.Auth.ClientToken)
	log.Info().Msg("Authenticated to Vault using AppRole")
	return nil
}

// GetVaultConfigFromEnv creates VaultConfig from environment variables
func GetVaultConfigFromEnv() VaultConfig {
	if os.Getenv("VAULT_ENABLED") != "true" {
		return VaultConfig{Enabled: false}
	}

	return VaultConfig{
		Enabled:    true,
		Address:    getEnvOrDefault("VAULT_ADDR", "http://localhost:8200"),
		Token:      os.Getenv("VAULT_TOKEN"),
		AuthMethod: getEnvOrDefault("VAULT_AUTH_METHOD", "token"),
		MountPath:  getEnvOrDefault("VAULT_MOUNT_PATH", "secret"),
		SecretPath: getEnvOrDefault("VAULT_SECRET_PATH", "portfoliobuddy/production"),
		Namespace:  os.Getenv("VAULT_NAMESPACE"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
