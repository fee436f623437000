package config

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSecret(t *testing.T) {
	tests := []struct {
		name          string
		secret        string
		minLength     int
		requireStrong bool
		valid         bool
		strength      SecretStrength
		errContains   string
	}{
		{name: "empty", secret: "", minLength: 8, errContains: "cannot be empty"},
		{name: "placeholder", secret: "changeme", minLength: 4, errContains: "placeholder"},
		{name: "embedded placeholder", secret: "YOUR_API_KEY_GOES_HERE", minLength: 4, errContains: "placeholder"},
		{name: "too short", secret: "Ab1!", minLength: 12, errContains: "at least 12 characters"},
		{name: "api key without strength", secret: "aizasyabcdefghijklmnop", minLength: 20, valid: true, strength: SecretStrengthWeak},
		{name: "medium rejected when strong required", secret: "lowercase12345", minLength: 8, requireStrong: true, strength: SecretStrengthMedium, errContains: "Medium"},
		{name: "strong", secret: "Tr0ub4dor&3-horse", minLength: 12, requireStrong: true, valid: true, strength: SecretStrengthStrong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateSecret(tt.secret, "Secret", tt.minLength, tt.requireStrong)
			assert.Equal(t, tt.valid, result.IsValid)
			if tt.valid {
				assert.Empty(t, result.Errors)
				assert.Equal(t, tt.strength, result.Strength)
				return
			}
			require.NotEmpty(t, result.Errors)
			assert.Contains(t, strings.Join(result.Errors, "\n"), tt.errContains)
		})
	}
}

func TestSecretStrengthString(t *testing.T) {
	assert.Equal(t, "Weak", SecretStrengthWeak.String())
	assert.Equal(t, "Medium", SecretStrengthMedium.String())
	assert.Equal(t, "Strong", SecretStrengthStrong.String())
	assert.Equal(t, "Unknown", SecretStrength(9).String())
}

func TestValidateProductionSecrets(t *testing.T) {
	cfg := getValidConfig()
	assert.Empty(t, ValidateProductionSecrets(cfg))

	cfg.Telegram.BotToken = "short"
	cfg.Redis.Password = "onlylowercaseletters"
	errs := ValidateProductionSecrets(cfg)
	require.Len(t, errs, 2)
	assert.Equal(t, "telegram.bot_token", errs[0].Field)
	assert.Equal(t, "redis.password", errs[1].Field)
}

// vaultServer fakes the KV v2 read endpoint.
func vaultServer(t *testing.T, token string, secrets map[string]map[string]any) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var reads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != token {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}
		reads.Add(1)
		const prefix = "/v1/secret/data/portfoliobuddy/test/"
		data, ok := secrets[strings.TrimPrefix(r.URL.Path, prefix)]
		if !strings.HasPrefix(r.URL.Path, prefix) || !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"data":     data,
				"metadata": map[string]any{"version": 1},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &reads
}

func testVaultConfig(addr string) VaultConfig {
	return VaultConfig{
		Enabled:    true,
		Address:    addr,
		Token:      "root-token",
		AuthMethod: "token",
		MountPath:  "secret",
		SecretPath: "portfoliobuddy/test",
	}
}

func TestVaultGetSecret(t *testing.T) {
	srv, _ := vaultServer(t, "root-token", map[string]map[string]any{
		"llm": {"gemini_api_key": "gemini-from-vault", "max_tokens": 10},
	})

	vc, err := NewVaultClient(testVaultConfig(srv.URL))
	require.NoError(t, err)

	data, err := vc.GetSecret(context.Background(), "llm")
	require.NoError(t, err)
	assert.Equal(t, "gemini-from-vault", data["gemini_api_key"])

	value, err := vc.GetSecretString(context.Background(), "llm", "gemini_api_key")
	require.NoError(t, err)
	assert.Equal(t, "gemini-from-vault", value)

	_, err = vc.GetSecretString(context.Background(), "llm", "max_tokens")
	assert.ErrorContains(t, err, "not a string")

	_, err = vc.GetSecret(context.Background(), "missing")
	assert.ErrorContains(t, err, "secret not found")
}

func TestLoadSecretsFromVault(t *testing.T) {
	srv, reads := vaultServer(t, "root-token", map[string]map[string]any{
		"llm":      {"gemini_api_key": "gemini-from-vault", "openai_api_key": "openai-from-vault"},
		"telegram": {"telegram_bot_token": "telegram-from-vault"},
		"news":     {"news_api_key": ""},
	})

	cfg := getValidConfig()
	cfg.News.APIKey = "news-from-env"

	err := LoadSecretsFromVault(context.Background(), cfg, testVaultConfig(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, "gemini-from-vault", cfg.LLM.GeminiAPIKey)
	assert.Equal(t, "openai-from-vault", cfg.LLM.OpenAIAPIKey)
	assert.Equal(t, "telegram-from-vault", cfg.Telegram.BotToken)
	assert.Equal(t, "news-from-env", cfg.News.APIKey, "empty vault values keep the environment value")
	assert.Empty(t, cfg.Redis.Password)

	// llm, telegram, news, redis, database: each path is read once
	assert.Equal(t, int32(5), reads.Load())
}

func TestLoadSecretsFromVaultDisabled(t *testing.T) {
	cfg := getValidConfig()
	before := *cfg
	require.NoError(t, LoadSecretsFromVault(context.Background(), cfg, VaultConfig{Enabled: false}))
	assert.Equal(t, before, *cfg)
}

func TestNewVaultClientErrors(t *testing.T) {
	_, err := NewVaultClient(VaultConfig{Enabled: false})
	assert.ErrorContains(t, err, "not enabled")

	t.Setenv("VAULT_TOKEN", "")
	_, err = NewVaultClient(VaultConfig{Enabled: true, Address: "http://127.0.0.1:1", AuthMethod: "token"})
	assert.ErrorContains(t, err, "VAULT_TOKEN not set")

	_, err = NewVaultClient(VaultConfig{Enabled: true, Address: "http://127.0.0.1:1", AuthMethod: "ldap"})
	assert.ErrorContains(t, err, "unsupported Vault auth method")

	t.Setenv("VAULT_ROLE_ID", "")
	_, err = NewVaultClient(VaultConfig{Enabled: true, Address: "http://127.0.0.1:1", AuthMethod: "approle"})
	assert.ErrorContains(t, err, "VAULT_ROLE_ID and VAULT_SECRET_ID")
}

func TestGetVaultConfigFromEnv(t *testing.T) {
	t.Setenv("VAULT_ENABLED", "false")
	assert.False(t, GetVaultConfigFromEnv().Enabled)

	t.Setenv("VAULT_ENABLED", "true")
	t.Setenv("VAULT_ADDR", "https://vault.internal:8200")
	t.Setenv("VAULT_TOKEN", "s.token")
	t.Setenv("VAULT_SECRET_PATH", "")

	cfg := GetVaultConfigFromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "https://vault.internal:8200", cfg.Address)
	assert.Equal(t, "s.token", cfg.Token)
	assert.Equal(t, "token", cfg.AuthMethod)
	assert.Equal(t, "secret", cfg.MountPath)
	assert.Equal(t, "portfoliobuddy/production", cfg.SecretPath)
}
