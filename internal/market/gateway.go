package market

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/portfoliobuddy/internal/metrics"
)

// Gateway turns provider errors into absent quotes. Callers never see an
// error: a failed symbol is simply missing.
type Gateway struct {
	provider    Provider
	cache       *RedisQuoteCache
	breaker     *gobreaker.CircuitBreaker
	timeout     time.Duration
	concurrency int
}

// GatewayConfig holds the optional collaborators of a Gateway.
type GatewayConfig struct {
	Cache       *RedisQuoteCache
	Breaker     *gobreaker.CircuitBreaker
	Timeout     time.Duration
	Concurrency int
}

// NewGateway wraps a provider.
func NewGateway(provider Provider, cfg GatewayConfig) *Gateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Gateway{
		provider:    provider,
		cache:       cfg.Cache,
		breaker:     cfg.Breaker,
		timeout:     cfg.Timeout,
		concurrency: cfg.Concurrency,
	}
}

// Quote returns the latest quote for symbol, or nil when it cannot be
// fetched.
func (g *Gateway) Quote(ctx context.Context, symbol string) *Quote {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil
	}

	if q, ok := g.cache.Get(ctx, symbol); ok {
		metrics.RecordQuoteCache(true)
		return q
	}
	if g.cache != nil {
		metrics.RecordQuoteCache(false)
	}

	q, err := g.fetch(ctx, symbol)
	if err == nil && q == nil {
		err = ErrNoQuote
	}
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch quote")
		metrics.RecordGatewayFailure(metrics.GatewayMarket)
		return nil
	}

	if g.cache != nil {
		_ = g.cache.Set(ctx, q)
	}
	return q
}

// QuoteMany fetches every symbol independently. Symbols that fail are
// omitted from the result.
func (g *Gateway) QuoteMany(ctx context.Context, symbols []string) map[string]Quote {
	unique := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		unique = append(unique, s)
	}

	var (
		mu     sync.Mutex
		quotes = make(map[string]Quote, len(unique))
		eg     errgroup.Group
	)
	eg.SetLimit(g.concurrency)

	for _, symbol := range unique {
		eg.Go(func() error {
			q := g.Quote(ctx, symbol)
			if q == nil {
				return nil
			}
			mu.Lock()
			quotes[symbol] = *q
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	log.Debug().
		Int("requested", len(unique)).
		Int("fetched", len(quotes)).
		Msg("Batch quote fetch complete")

	return quotes
}

func (g *Gateway) fetch(ctx context.Context, symbol string) (*Quote, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if g.breaker == nil {
		return g.provider.FetchQuote(fetchCtx, symbol)
	}

	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.provider.FetchQuote(fetchCtx, symbol)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Quote), nil
}
