package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/portfoliobuddy/internal/assistant"
)

const (
	defaultTranscriptLimit = 20
	maxTranscriptLimit     = 100
)

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// ErrorResponse is returned for every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "PortfolioBuddy API",
		"version": s.deps.Version,
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"version":   s.deps.Version,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.started).Seconds(),
		"components": gin.H{
			"assistant":   configured(s.deps.Chat != nil),
			"sessions":    configured(s.deps.Sessions != nil),
			"transcripts": configured(s.deps.History != nil),
		},
	})
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not_configured"
}

func (s *Server) handleChat(c *gin.Context) {
	if s.deps.Chat == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "assistant not configured"})
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: "user_id and message must not be blank"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()

	reply, err := s.deps.Chat.HandleMessage(ctx, req.UserID, req.Message)
	if err != nil {
		log.Warn().Err(err).Str("user_id", req.UserID).Msg("Chat request rejected")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, reply)
}

func (s *Server) handleGetSession(c *gin.Context) {
	if s.deps.Sessions == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "sessions not configured"})
		return
	}

	userID := c.Param("user_id")
	session, err := s.deps.Sessions.Get(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, assistant.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load session")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load session"})
		return
	}

	c.JSON(http.StatusOK, session)
}

func (s *Server) handleListTranscripts(c *gin.Context) {
	if s.deps.History == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "transcripts not configured"})
		return
	}

	limit := defaultTranscriptLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = min(n, maxTranscriptLimit)
	}

	userID := c.Param("user_id")
	turns, err := s.deps.History.Recent(c.Request.Context(), userID, limit)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load transcripts")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load transcripts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":     userID,
		"transcripts": turns,
		"count":       len(turns),
	})
}
