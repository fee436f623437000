// Package assistant runs a conversation turn: it classifies the message,
// optionally values the portfolio and analyzes symbols, then asks the
// language model for a reply.
package assistant

import (
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/portfoliobuddy/internal/portfolio"
	"github.com/ajitpratap0/portfoliobuddy/internal/recommend"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a session.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is the per-turn classification and analysis state. It is reset
// at the start of every turn.
type Context struct {
	Intent            Intent               `json:"intent"`
	Symbols           []string             `json:"symbols"`
	RequiresPortfolio bool                 `json:"requires_portfolio"`
	Analyses          []recommend.Analysis `json:"analyses,omitempty"`
}

// Session is the durable conversational state for one user.
type Session struct {
	UserID     string              `json:"user_id"`
	Turns      []Turn              `json:"turns"`
	Portfolio  *portfolio.Snapshot `json:"portfolio,omitempty"`
	Analysis   *recommend.Analysis `json:"analysis,omitempty"`
	Context    Context             `json:"context"`
	LastAction string              `json:"last_action,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// NewSession returns an empty session for userID.
func NewSession(userID string) *Session {
	now := time.Now()
	return &Session{
		UserID:    userID,
		Turns:     []Turn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Session) appendTurn(role Role, text string) Turn {
	t := Turn{
		ID:        uuid.New().String(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
	s.Turns = append(s.Turns, t)
	s.UpdatedAt = t.Timestamp
	return t
}

// resetTurnState clears everything that must not outlive a single turn.
func (s *Session) resetTurnState() {
	s.Portfolio = nil
	s.Analysis = nil
	s.Context = Context{}
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Turns = append([]Turn(nil), s.Turns...)
	c.Context.Symbols = append([]string(nil), s.Context.Symbols...)
	c.Context.Analyses = append([]recommend.Analysis(nil), s.Context.Analyses...)
	return &c
}
