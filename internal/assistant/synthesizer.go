package assistant

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/portfoliobuddy/internal/llm"
	"github.com/ajitpratap0/portfoliobuddy/internal/portfolio"
	"github.com/ajitpratap0/portfoliobuddy/internal/recommend"
)

// Apology is the only failure text a user ever sees.
const Apology = "Sorry, I encountered an error processing your request. Please try again."

// ResponseInput is what the synthesizer needs for one reply.
type ResponseInput struct {
	Message   string
	Intent    Intent
	Portfolio *portfolio.Snapshot
	Analysis  *recommend.Analysis
}

// Synthesizer writes the user-facing reply.
type Synthesizer struct {
	oracle llm.Oracle
}

func NewSynthesizer(oracle llm.Oracle) *Synthesizer {
	return &Synthesizer{oracle: oracle}
}

// Respond returns the model's reply, or Apology when the model fails.
func (s *Synthesizer) Respond(ctx context.Context, in ResponseInput) string {
	intent := in.Intent
	if intent == "" {
		intent = IntentGeneralQuestion
	}

	prompt := responsePrompt(in.Message, intent, contextBlock(in.Portfolio, in.Analysis))
	reply, err := s.oracle.Generate(ctx, prompt)
	if err != nil {
		log.Error().Err(err).Msg("Response synthesis failed")
		return Apology
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		log.Error().Msg("Response synthesis returned empty text")
		return Apology
	}
	return reply
}
