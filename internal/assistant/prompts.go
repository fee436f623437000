package assistant

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Rhymond/go-money"

	"github.com/ajitpratap0/portfoliobuddy/internal/portfolio"
	"github.com/ajitpratap0/portfoliobuddy/internal/recommend"
)

const (
	performersShown = 3
	headlinesShown  = 2
	noDataContext   = "No portfolio data available."
)

func classificationPrompt(message string) string {
	return fmt.Sprintf(`Analyze this user message about their investment portfolio:
"%s"

Classify the intent as one of:
1. "portfolio_query" - User wants to know about their portfolio performance
2. "stock_analysis" - User wants analysis of specific stocks
3. "general_question" - General investment question
4. "greeting" - Simple greeting

Also extract any stock symbols mentioned (format: AAPL, GOOGL, etc.)

Respond in JSON format:
{
    "intent": "intent_type",
    "symbols": ["SYMBOL1", "SYMBOL2"],
    "requires_portfolio": true/false
}`, message)
}

const responseInstructions = `Instructions:
1. Respond in a friendly, conversational tone
2. Keep responses concise but informative
3. Use emojis to indicate sentiment (🟢 positive, 🟡 neutral, 🔴 negative)
4. Use action emojis for recommendations (📈 BUY, 📉 SELL, ⏸️ HOLD, 👀 WATCH)
5. Focus on the most important information
6. End with a helpful question or suggestion
7. Never give financial advice, only provide analysis and information`

func responsePrompt(message string, intent Intent, contextBlock string) string {
	if contextBlock == "" {
		contextBlock = noDataContext
	}
	return fmt.Sprintf(`You are PortfolioBuddy, a friendly and knowledgeable investment assistant. You help users understand their portfolio performance and make informed decisions.

User Message: "%s"
User Intent: %s

%s

%s

Response:`, message, intent, contextBlock, responseInstructions)
}

// contextBlock renders the portfolio and analysis facts given to the model.
func contextBlock(snap *portfolio.Snapshot, analysis *recommend.Analysis) string {
	var parts []string

	if snap != nil {
		parts = append(parts, fmt.Sprintf("Portfolio Summary:\n- Total Value: %s\n- Total Gain/Loss: %s (%.1f%%)\n- Holdings: %d stocks",
			formatMoney(snap.TotalValue),
			formatMoney(snap.TotalGainLoss),
			snap.TotalGainLossPercent,
			len(snap.Holdings),
		))

		if len(snap.Holdings) > 0 {
			parts = append(parts, "Top Performers:")
			for _, h := range rankHoldings(snap.Holdings, true) {
				parts = append(parts, fmt.Sprintf("- %s: %.1f%%", h.Symbol, returnOf(h)))
			}
			parts = append(parts, "Worst Performers:")
			for _, h := range rankHoldings(snap.Holdings, false) {
				parts = append(parts, fmt.Sprintf("- %s: %.1f%%", h.Symbol, returnOf(h)))
			}
		}
	}

	if analysis != nil {
		parts = append(parts, fmt.Sprintf("Analysis for %s:\n- Current Price: $%.2f\n- Sentiment: %s %s\n- Recommendation: %s %s\n- Confidence: %.1f%%\n- Reasoning: %s",
			analysis.Symbol,
			analysis.CurrentPrice,
			analysis.Sentiment.Emoji(), analysis.Sentiment,
			analysis.Action.Emoji(), analysis.Action.Upper(),
			analysis.Confidence*100,
			analysis.Reasoning,
		))

		if len(analysis.News) > 0 {
			parts = append(parts, "Recent News:")
			for i, item := range analysis.News {
				if i == headlinesShown {
					break
				}
				parts = append(parts, "- "+item.Title)
			}
		}
	}

	return strings.Join(parts, "\n")
}

func returnOf(h portfolio.Holding) float64 {
	if h.GainLossPercent == nil {
		return 0
	}
	return *h.GainLossPercent
}

func rankHoldings(holdings []portfolio.Holding, best bool) []portfolio.Holding {
	sorted := append([]portfolio.Holding(nil), holdings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if best {
			return returnOf(sorted[i]) > returnOf(sorted[j])
		}
		return returnOf(sorted[i]) < returnOf(sorted[j])
	})
	if len(sorted) > performersShown {
		sorted = sorted[:performersShown]
	}
	return sorted
}

// formatMoney renders v as US dollars, rounded to the cent.
func formatMoney(v float64) string {
	cents := int64(math.Round(v * 100))
	return money.New(cents, money.USD).Display()
}
