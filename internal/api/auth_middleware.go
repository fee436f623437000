package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// AuthConfig contains authentication configuration. Keys holds SHA-256
// hex digests of the accepted API keys, never the keys themselves.
type AuthConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	HeaderName string   `mapstructure:"header_name"`
	KeyHashes  []string `mapstructure:"key_hashes"`
}

func (a AuthConfig) headerName() string {
	if a.HeaderName == "" {
		return "X-API-Key"
	}
	return a.HeaderName
}

// HashAPIKey creates a SHA-256 hash of an API key
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

func (a AuthConfig) valid(key string) bool {
	digest := []byte(HashAPIKey(key))
	ok := false
	for _, h := range a.KeyHashes {
		if subtle.ConstantTimeCompare(digest, []byte(strings.ToLower(h))) == 1 {
			ok = true
		}
	}
	return ok
}

// AuthMiddleware accepts requests carrying a known key in the configured
// header or as an Authorization bearer token. It is a no-op when disabled.
func AuthMiddleware(config AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.Enabled {
			c.Next()
			return
		}

		apiKey := c.GetHeader(config.headerName())
		if apiKey == "" {
			if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				apiKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "authentication required",
				Message: "Provide API key via " + config.headerName() + " header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if !config.valid(apiKey) {
			log.Warn().Str("client_ip", c.ClientIP()).Msg("Rejected invalid API key")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid API key"})
			c.Abort()
			return
		}

		c.Next()
	}
}
