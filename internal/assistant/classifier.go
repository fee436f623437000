package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/portfoliobuddy/internal/llm"
	"github.com/ajitpratap0/portfoliobuddy/internal/metrics"
)

// Intent is what the user wants from a turn.
type Intent string

const (
	IntentPortfolioQuery  Intent = "portfolio_query"
	IntentStockAnalysis   Intent = "stock_analysis"
	IntentGeneralQuestion Intent = "general_question"
	IntentGreeting        Intent = "greeting"
)

// Known reports whether i is one of the four recognised intents.
func (i Intent) Known() bool {
	switch i {
	case IntentPortfolioQuery, IntentStockAnalysis, IntentGeneralQuestion, IntentGreeting:
		return true
	}
	return false
}

// Classification is the classifier's verdict.
type Classification struct {
	Intent            Intent   `json:"intent"`
	Symbols           []string `json:"symbols"`
	RequiresPortfolio bool     `json:"requires_portfolio"`
}

// fallbackClassification is used whenever the model's answer is unusable.
func fallbackClassification() Classification {
	return Classification{Intent: IntentGeneralQuestion, Symbols: []string{}}
}

// classificationRecord is the wire shape the model is asked to emit. All
// fields are pointers so absence can be told apart from zero values.
type classificationRecord struct {
	Intent            *string   `json:"intent"`
	Symbols           *[]string `json:"symbols"`
	RequiresPortfolio *bool     `json:"requires_portfolio"`
}

func (r *classificationRecord) Validate() error {
	switch {
	case r.Intent == nil:
		return errors.New("missing intent")
	case r.Symbols == nil:
		return errors.New("missing symbols")
	case r.RequiresPortfolio == nil:
		return errors.New("missing requires_portfolio")
	}
	if !Intent(*r.Intent).Known() {
		return fmt.Errorf("unknown intent %q", *r.Intent)
	}
	return nil
}

// Classifier asks the oracle what a message is about.
type Classifier struct {
	oracle llm.Oracle
}

func NewClassifier(oracle llm.Oracle) *Classifier {
	return &Classifier{oracle: oracle}
}

// Classify never fails; any problem yields a general_question verdict.
func (c *Classifier) Classify(ctx context.Context, text string) Classification {
	reply, err := c.oracle.Generate(ctx, classificationPrompt(text))
	if err != nil {
		log.Error().Err(err).Msg("Intent classification failed")
		metrics.RecordClassifierFallback()
		return fallbackClassification()
	}

	res := llm.ParseRecord[classificationRecord](reply)
	if !res.OK() {
		log.Warn().Err(res.Err).Str("reply", truncate(reply, 200)).Msg("Unparseable classification, using fallback")
		metrics.RecordClassifierFallback()
		return fallbackClassification()
	}

	return Classification{
		Intent:            Intent(*res.Record.Intent),
		Symbols:           normalizeSymbols(*res.Record.Symbols),
		RequiresPortfolio: *res.Record.RequiresPortfolio,
	}
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
