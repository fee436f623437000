package news

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/portfoliobuddy/internal/metrics"
	"github.com/ajitpratap0/portfoliobuddy/internal/sentiment"
)

const (
	// MaxItems caps the number of headlines returned per symbol.
	MaxItems = 10
	// DefaultDaysBack is the lookback window when none is given.
	DefaultDaysBack = 7
)

// Gateway fetches scored headlines. It never returns an error: when the
// primary source fails it falls back to the secondary source, and when
// that fails too it returns an empty list.
type Gateway struct {
	primary  Source
	fallback Source
	analyzer sentiment.Analyzer
	breaker  *gobreaker.CircuitBreaker
	now      func() time.Time
}

// GatewayConfig wires the sources. Primary may be nil, in which case the
// fallback is always used.
type GatewayConfig struct {
	Primary  Source
	Fallback Source
	Analyzer sentiment.Analyzer
	Breaker  *gobreaker.CircuitBreaker
}

func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Analyzer == nil {
		cfg.Analyzer = sentiment.NewLexicon()
	}
	return &Gateway{
		primary:  cfg.Primary,
		fallback: cfg.Fallback,
		analyzer: cfg.Analyzer,
		breaker:  cfg.Breaker,
		now:      time.Now,
	}
}

// News returns at most MaxItems headlines about symbol from the last
// daysBack days, in the order the source returned them. daysBack <= 0
// means DefaultDaysBack.
func (g *Gateway) News(ctx context.Context, symbol string, daysBack int) []Item {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return []Item{}
	}
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}

	to := g.now()
	from := to.AddDate(0, 0, -daysBack)

	if g.primary != nil {
		articles, err := g.fetchPrimary(ctx, symbol, from, to)
		if err == nil {
			return g.score(symbol, articles)
		}
		log.Warn().
			Err(err).
			Str("symbol", symbol).
			Str("source", g.primary.Name()).
			Msg("Primary news source failed, using fallback")
		metrics.RecordGatewayFailure(metrics.GatewayNews)
	}

	if g.fallback == nil {
		return []Item{}
	}

	articles, err := g.fallback.Articles(ctx, symbol, from, to)
	if err != nil {
		if !errors.Is(err, ErrNoArticles) {
			log.Warn().
				Err(err).
				Str("symbol", symbol).
				Str("source", g.fallback.Name()).
				Msg("Fallback news source failed")
			metrics.RecordGatewayFailure(metrics.GatewayNews)
		}
		return []Item{}
	}
	return g.score(symbol, articles)
}

func (g *Gateway) fetchPrimary(ctx context.Context, symbol string, from, to time.Time) ([]Article, error) {
	if g.breaker == nil {
		return g.primary.Articles(ctx, symbol, from, to)
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.primary.Articles(ctx, symbol, from, to)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Article), nil
}

func (g *Gateway) score(symbol string, articles []Article) []Item {
	if len(articles) > MaxItems {
		articles = articles[:MaxItems]
	}

	items := make([]Item, 0, len(articles))
	for _, a := range articles {
		text := a.Title + " " + a.Description
		items = append(items, Item{
			Title:       a.Title,
			Content:     a.Description,
			Source:      a.Source,
			URL:         a.URL,
			PublishedAt: a.PublishedAt,
			Sentiment:   sentiment.Classify(g.analyzer.Polarity(text)),
			Relevance:   Relevance(text, symbol),
		})
	}
	return items
}
