package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/portfoliobuddy/internal/llm"
	"github.com/ajitpratap0/portfoliobuddy/internal/news"
	"github.com/ajitpratap0/portfoliobuddy/internal/portfolio"
	"github.com/ajitpratap0/portfoliobuddy/internal/recommend"
	"github.com/ajitpratap0/portfoliobuddy/internal/sentiment"
)

func pct(v float64) *float64 { return &v }

func TestFormatMoney(t *testing.T) {
	tests := map[float64]string{
		0:          "$0.00",
		12.5:       "$12.50",
		999.999:    "$1,000.00",
		1234567.89: "$1,234,567.89",
		-4321.1:    "-$4,321.10",
		-0.001:     "$0.00",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatMoney(in), "input %v", in)
	}
}

func TestContextBlock_Portfolio(t *testing.T) {
	snap := &portfolio.Snapshot{
		TotalValue:           15234.5,
		TotalGainLoss:        -1200,
		TotalGainLossPercent: -7.3,
		Holdings: []portfolio.Holding{
			{Symbol: "AAPL", GainLossPercent: pct(12.34)},
			{Symbol: "TSLA", GainLossPercent: pct(-30)},
			{Symbol: "MSFT"},
			{Symbol: "NVDA", GainLossPercent: pct(55)},
		},
	}

	got := contextBlock(snap, nil)

	assert.Contains(t, got, "Portfolio Summary:\n- Total Value: $15,234.50\n- Total Gain/Loss: -$1,200.00 (-7.3%)\n- Holdings: 4 stocks")
	assert.Contains(t, got, "Top Performers:\n- NVDA: 55.0%\n- AAPL: 12.3%\n- MSFT: 0.0%")
	assert.Contains(t, got, "Worst Performers:\n- TSLA: -30.0%\n- MSFT: 0.0%\n- AAPL: 12.3%")
}

func TestContextBlock_EmptyPortfolioHasNoPerformers(t *testing.T) {
	got := contextBlock(&portfolio.Snapshot{}, nil)
	assert.Contains(t, got, "Holdings: 0 stocks")
	assert.NotContains(t, got, "Top Performers")
}

func TestContextBlock_Analysis(t *testing.T) {
	a := &recommend.Analysis{
		Symbol:       "AAPL",
		CurrentPrice: 189.5,
		Sentiment:    sentiment.Positive,
		Action:       recommend.Buy,
		Confidence:   0.9,
		Reasoning:    "Price is up 8.0%. Positive news sentiment.",
		News: []news.Item{
			{Title: "Apple beats"},
			{Title: "iPhone record"},
			{Title: "Third headline"},
		},
	}

	got := contextBlock(nil, a)

	assert.Contains(t, got, "Analysis for AAPL:\n- Current Price: $189.50\n- Sentiment: 🟢 positive\n- Recommendation: 📈 BUY\n- Confidence: 90.0%\n- Reasoning: Price is up 8.0%. Positive news sentiment.")
	assert.Contains(t, got, "Recent News:\n- Apple beats\n- iPhone record")
	assert.NotContains(t, got, "Third headline")
}

func TestResponsePrompt(t *testing.T) {
	p := responsePrompt("How am I doing?", IntentPortfolioQuery, "")

	assert.True(t, strings.HasPrefix(p, "You are PortfolioBuddy, a friendly and knowledgeable investment assistant."))
	assert.Contains(t, p, `User Message: "How am I doing?"`)
	assert.Contains(t, p, "User Intent: portfolio_query")
	assert.Contains(t, p, "No portfolio data available.")
	assert.Contains(t, p, "7. Never give financial advice, only provide analysis and information")
	assert.True(t, strings.HasSuffix(p, "Response:"))
}

func TestSynthesizer_Respond(t *testing.T) {
	var prompt string
	s := NewSynthesizer(llm.OracleFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "  Hi there! 👋  ", nil
	}))

	got := s.Respond(context.Background(), ResponseInput{Message: "hello"})
	assert.Equal(t, "Hi there! 👋", got)
	assert.Contains(t, prompt, "User Intent: general_question")
}

func TestSynthesizer_Apology(t *testing.T) {
	assert.Equal(t, Apology, NewSynthesizer(staticOracle("", errors.New("down"))).Respond(context.Background(), ResponseInput{Message: "x"}))
	assert.Equal(t, Apology, NewSynthesizer(staticOracle("   ", nil)).Respond(context.Background(), ResponseInput{Message: "x"}))
}
