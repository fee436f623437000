package news

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/portfoliobuddy/internal/sentiment"
)

type stubSource struct {
	name     string
	articles []Article
	err      error
	calls    int
	from, to time.Time
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Articles(_ context.Context, _ string, from, to time.Time) ([]Article, error) {
	s.calls++
	s.from, s.to = from, to
	return s.articles, s.err
}

type fixedPolarity map[string]float64

func (f fixedPolarity) Polarity(text string) float64 { return f[text] }

func articles(n int) []Article {
	out := make([]Article, n)
	for i := range out {
		out[i] = Article{Title: fmt.Sprintf("headline %d", i), Source: "wire"}
	}
	return out
}

func TestGateway_UsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubSource{name: "primary", articles: []Article{
		{Title: "AAPL stock soars", Description: "", Source: "Reuters"},
	}}
	fallback := &stubSource{name: "fallback"}

	gw := NewGateway(GatewayConfig{
		Primary:  primary,
		Fallback: fallback,
		Analyzer: fixedPolarity{"AAPL stock soars ": 0.5},
	})

	items := gw.News(context.Background(), "aapl", 0)
	require.Len(t, items, 1)
	assert.Equal(t, "Reuters", items[0].Source)
	assert.Equal(t, sentiment.Positive, items[0].Sentiment)
	assert.InDelta(t, 1.0, items[0].Relevance, 1e-9)
	assert.Equal(t, 0, fallback.calls)
}

func TestGateway_DefaultWindow(t *testing.T) {
	primary := &stubSource{name: "primary"}
	gw := NewGateway(GatewayConfig{Primary: primary})
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	gw.now = func() time.Time { return now }

	gw.News(context.Background(), "AAPL", 0)
	assert.Equal(t, now.AddDate(0, 0, -7), primary.from)
	assert.Equal(t, now, primary.to)

	gw.News(context.Background(), "AAPL", 3)
	assert.Equal(t, now.AddDate(0, 0, -3), primary.from)
}

func TestGateway_FallsBackOnPrimaryError(t *testing.T) {
	primary := &stubSource{name: "primary", err: errors.New("boom")}
	fallback := &stubSource{name: "fallback", articles: articles(2)}

	gw := NewGateway(GatewayConfig{Primary: primary, Fallback: fallback})
	items := gw.News(context.Background(), "MSFT", 7)

	assert.Len(t, items, 2)
	assert.Equal(t, 1, fallback.calls)
}

func TestGateway_NoPrimaryUsesFallback(t *testing.T) {
	fallback := &stubSource{name: "fallback", articles: articles(1)}
	gw := NewGateway(GatewayConfig{Fallback: fallback})

	assert.Len(t, gw.News(context.Background(), "MSFT", 7), 1)
}

func TestGateway_BothFailYieldsEmpty(t *testing.T) {
	gw := NewGateway(GatewayConfig{
		Primary:  &stubSource{name: "primary", err: errors.New("down")},
		Fallback: &stubSource{name: "fallback", err: errors.New("also down")},
	})

	items := gw.News(context.Background(), "MSFT", 7)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestGateway_CapsAndKeepsOrder(t *testing.T) {
	primary := &stubSource{name: "primary", articles: articles(25)}
	gw := NewGateway(GatewayConfig{Primary: primary})

	items := gw.News(context.Background(), "AAPL", 7)
	require.Len(t, items, MaxItems)
	for i, item := range items {
		assert.Equal(t, fmt.Sprintf("headline %d", i), item.Title)
	}
}

func TestGateway_EmptySymbol(t *testing.T) {
	primary := &stubSource{name: "primary", articles: articles(1)}
	gw := NewGateway(GatewayConfig{Primary: primary})

	assert.Empty(t, gw.News(context.Background(), "  ", 7))
	assert.Equal(t, 0, primary.calls)
}

func TestGateway_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &stubSource{name: "primary", err: errors.New("down")}
	fallback := &stubSource{name: "fallback", articles: articles(1)}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "news-test",
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	gw := NewGateway(GatewayConfig{Primary: primary, Fallback: fallback, Breaker: cb})
	for i := 0; i < 3; i++ {
		assert.Len(t, gw.News(context.Background(), "AAPL", 7), 1)
	}
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 3, fallback.calls)
}

func TestGateway_EndToEndWithHTTPSources(t *testing.T) {
	newsAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"bad key"}`))
	}))
	defer newsAPI.Close()

	rss := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer rss.Close()

	gw := NewGateway(GatewayConfig{
		Primary:  NewNewsAPIClient(NewsAPIConfig{BaseURL: newsAPI.URL, APIKey: "k"}),
		Fallback: NewYahooRSS(rss.URL, time.Second),
	})

	items := gw.News(context.Background(), "AAPL", 7)
	require.Len(t, items, 2)
	assert.Equal(t, "Apple shares surge on record iPhone sales", items[0].Title)
}
