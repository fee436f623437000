// Package breaker builds the circuit breakers that guard the assistant's
// external dependencies: the market data provider, the news providers and
// the language model.
package breaker

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/portfoliobuddy/internal/metrics"
)

const (
	ServiceMarket = "market"
	ServiceNews   = "news"
	ServiceLLM    = "llm"
)

// Defaults per service.
const (
	MarketMinRequests     = 5
	MarketFailureRatio    = 0.6
	MarketOpenTimeout     = 30 * time.Second
	MarketHalfOpenMaxReqs = 3
	MarketCountInterval   = 10 * time.Second

	NewsMinRequests     = 5
	NewsFailureRatio    = 0.6
	NewsOpenTimeout     = 60 * time.Second
	NewsHalfOpenMaxReqs = 2
	NewsCountInterval   = 30 * time.Second

	// Model calls are slow and quota-bound, so the breaker stays open longer.
	LLMMinRequests     = 3
	LLMFailureRatio    = 0.6
	LLMOpenTimeout     = 60 * time.Second
	LLMHalfOpenMaxReqs = 2
	LLMCountInterval   = 10 * time.Second
)

// Settings configures one breaker.
type Settings struct {
	MinRequests     uint32        `mapstructure:"min_requests"`
	FailureRatio    float64       `mapstructure:"failure_ratio"`
	OpenTimeout     time.Duration `mapstructure:"open_timeout"`
	HalfOpenMaxReqs uint32        `mapstructure:"half_open_max_requests"`
	CountInterval   time.Duration `mapstructure:"count_interval"`
}

// Manager owns one breaker per external service.
type Manager struct {
	market *gobreaker.CircuitBreaker
	news   *gobreaker.CircuitBreaker
	llm    *gobreaker.CircuitBreaker
}

// NewManager creates a manager with the default settings.
func NewManager() *Manager {
	return NewManagerWithSettings(nil, nil, nil)
}

// NewManagerWithSettings creates a manager. Nil or zero fields fall back
// to the defaults above.
func NewManagerWithSettings(market, news, llm *Settings) *Manager {
	m := &Manager{}
	m.market = newBreaker(ServiceMarket, withDefaults(market, Settings{
		MinRequests:     MarketMinRequests,
		FailureRatio:    MarketFailureRatio,
		OpenTimeout:     MarketOpenTimeout,
		HalfOpenMaxReqs: MarketHalfOpenMaxReqs,
		CountInterval:   MarketCountInterval,
	}))
	m.news = newBreaker(ServiceNews, withDefaults(news, Settings{
		MinRequests:     NewsMinRequests,
		FailureRatio:    NewsFailureRatio,
		OpenTimeout:     NewsOpenTimeout,
		HalfOpenMaxReqs: NewsHalfOpenMaxReqs,
		CountInterval:   NewsCountInterval,
	}))
	m.llm = newBreaker(ServiceLLM, withDefaults(llm, Settings{
		MinRequests:     LLMMinRequests,
		FailureRatio:    LLMFailureRatio,
		OpenTimeout:     LLMOpenTimeout,
		HalfOpenMaxReqs: LLMHalfOpenMaxReqs,
		CountInterval:   LLMCountInterval,
	}))
	return m
}

// NewPassthroughManager creates breakers that never trip. Used in tests and
// when breakers are disabled in configuration.
func NewPassthroughManager() *Manager {
	neverTrip := func(gobreaker.Counts) bool { return false }
	build := func(name string) *gobreaker.CircuitBreaker {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name + "_passthrough",
			MaxRequests: 1000,
			Timeout:     time.Millisecond,
			ReadyToTrip: neverTrip,
		})
	}
	return &Manager{
		market: build(ServiceMarket),
		news:   build(ServiceNews),
		llm:    build(ServiceLLM),
	}
}

func (m *Manager) Market() *gobreaker.CircuitBreaker { return m.market }

func (m *Manager) News() *gobreaker.CircuitBreaker { return m.news }

func (m *Manager) LLM() *gobreaker.CircuitBreaker { return m.llm }

func withDefaults(s *Settings, def Settings) Settings {
	if s == nil {
		return def
	}
	out := *s
	if out.MinRequests == 0 {
		out.MinRequests = def.MinRequests
	}
	if out.FailureRatio <= 0 {
		out.FailureRatio = def.FailureRatio
	}
	if out.OpenTimeout <= 0 {
		out.OpenTimeout = def.OpenTimeout
	}
	if out.HalfOpenMaxReqs == 0 {
		out.HalfOpenMaxReqs = def.HalfOpenMaxReqs
	}
	if out.CountInterval <= 0 {
		out.CountInterval = def.CountInterval
	}
	return out
}

func newBreaker(service string, s Settings) *gobreaker.CircuitBreaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        service,
		MaxRequests: s.HalfOpenMaxReqs,
		Interval:    s.CountInterval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			updateMetrics(service, to)
			if to == gobreaker.StateOpen {
				metrics.RecordCircuitBreakerTrip(service)
			}
		},
	})
	updateMetrics(service, cb.State())
	return cb
}

func updateMetrics(service string, state gobreaker.State) {
	var value int
	switch state {
	case gobreaker.StateClosed:
		value = 0
	case gobreaker.StateOpen:
		value = 1
	case gobreaker.StateHalfOpen:
		value = 2
	}
	metrics.UpdateCircuitBreaker(service, value)
}
