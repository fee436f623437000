package recommend

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/portfoliobuddy/internal/market"
	"github.com/ajitpratap0/portfoliobuddy/internal/metrics"
	"github.com/ajitpratap0/portfoliobuddy/internal/news"
	"github.com/ajitpratap0/portfoliobuddy/internal/portfolio"
	"github.com/ajitpratap0/portfoliobuddy/internal/sentiment"
)

// SummaryItems is how many headlines an Analysis keeps.
const SummaryItems = 3

const noQuoteReasoning = "Unable to fetch market data"

// Indicators are the quote fields surfaced alongside a recommendation.
type Indicators struct {
	ChangePercent *float64 `json:"change_percent,omitempty"`
	Volume        *int64   `json:"volume,omitempty"`
	PERatio       *float64 `json:"pe_ratio,omitempty"`
}

// Analysis is the full result for one symbol.
type Analysis struct {
	Symbol       string              `json:"symbol"`
	CurrentPrice float64             `json:"current_price"`
	Sentiment    sentiment.Sentiment `json:"sentiment"`
	News         []news.Item         `json:"news_summary"`
	Indicators   Indicators          `json:"technical_indicators"`
	Action       Action              `json:"recommendation"`
	Confidence   float64             `json:"confidence"`
	Reasoning    string              `json:"reasoning"`
}

// QuoteSource is satisfied by *market.Gateway.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) *market.Quote
}

// NewsSource is satisfied by *news.Gateway.
type NewsSource interface {
	News(ctx context.Context, symbol string, daysBack int) []news.Item
}

// Analyzer gathers inputs for the engine and assembles an Analysis.
type Analyzer struct {
	quotes   QuoteSource
	news     NewsSource
	daysBack int
}

func NewAnalyzer(quotes QuoteSource, newsSource NewsSource, daysBack int) *Analyzer {
	if daysBack <= 0 {
		daysBack = news.DefaultDaysBack
	}
	return &Analyzer{quotes: quotes, news: newsSource, daysBack: daysBack}
}

// Analyze never fails. Without a quote the result is a zero-confidence
// WATCH and no news is fetched.
func (a *Analyzer) Analyze(ctx context.Context, symbol string, holding *portfolio.Holding) Analysis {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	q := a.quotes.Quote(ctx, symbol)
	if q == nil {
		log.Info().Str("symbol", symbol).Msg("No quote available, recommending watch")
		metrics.RecordRecommendation(Watch.String())
		return Analysis{
			Symbol:     symbol,
			Sentiment:  sentiment.Neutral,
			News:       []news.Item{},
			Action:     Watch,
			Confidence: 0,
			Reasoning:  noQuoteReasoning,
		}
	}

	items := a.news.News(ctx, symbol, a.daysBack)
	labels := make([]sentiment.Sentiment, 0, len(items))
	for _, item := range items {
		labels = append(labels, item.Sentiment)
	}
	mood := sentiment.Aggregate(labels)

	rec := Recommend(*q, mood, items, holding)
	metrics.RecordRecommendation(rec.Action.String())

	summary := items
	if len(summary) > SummaryItems {
		summary = summary[:SummaryItems]
	}

	changePct := q.ChangePercent
	volume := q.Volume

	log.Debug().
		Str("symbol", symbol).
		Str("action", rec.Action.String()).
		Float64("confidence", rec.Confidence).
		Str("sentiment", mood.String()).
		Int("news", len(items)).
		Msg("Symbol analyzed")

	return Analysis{
		Symbol:       symbol,
		CurrentPrice: q.Price,
		Sentiment:    mood,
		News:         append([]news.Item{}, summary...),
		Indicators: Indicators{
			ChangePercent: &changePct,
			Volume:        &volume,
			PERatio:       q.PERatio,
		},
		Action:     rec.Action,
		Confidence: rec.Confidence,
		Reasoning:  rec.Reasoning,
	}
}
