package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded label values. Anything else is folded into "other" so label
// cardinality stays fixed.
const (
	GatewayMarket = "market"
	GatewayNews   = "news"
	GatewayOracle = "oracle"

	StageClassify = "classify"
	StageFetch    = "fetch"
	StageAnalyze  = "analyze"
	StageRespond  = "respond"

	OracleErrorTimeout     = "timeout"
	OracleErrorRateLimit   = "rate_limit"
	OracleErrorAuth        = "authentication"
	OracleErrorNetwork     = "network"
	OracleErrorServerError = "server_error"
	OracleErrorBreakerOpen = "breaker_open"
	OracleErrorOther       = "other"

	labelOther = "other"
)

var knownIntents = map[string]bool{
	"portfolio_query":  true,
	"stock_analysis":   true,
	"general_question": true,
	"greeting":         true,
}

var knownStages = map[string]bool{
	StageClassify: true,
	StageFetch:    true,
	StageAnalyze:  true,
	StageRespond:  true,
}

var knownGateways = map[string]bool{
	GatewayMarket: true,
	GatewayNews:   true,
	GatewayOracle: true,
}

func bounded(value string, known map[string]bool) string {
	if known[value] {
		return value
	}
	return labelOther
}

// NormalizeOracleError maps a language model error to a bounded label.
func NormalizeOracleError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "circuit breaker is open") || strings.Contains(errStr, "too many requests"):
		return OracleErrorBreakerOpen
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return OracleErrorTimeout
	case strings.Contains(errStr, "rate") || strings.Contains(errStr, "429"):
		return OracleErrorRateLimit
	case strings.Contains(errStr, "auth") || strings.Contains(errStr, "401") || strings.Contains(errStr, "403"):
		return OracleErrorAuth
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection"):
		return OracleErrorNetwork
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503"):
		return OracleErrorServerError
	default:
		return OracleErrorOther
	}
}

// Conversation metrics
var (
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfoliobuddy_turns_total",
		Help: "Conversation turns handled, by classified intent",
	}, []string{"intent"})

	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "portfoliobuddy_turn_duration_ms",
		Help:    "End-to-end turn latency in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portfoliobuddy_stage_duration_ms",
		Help:    "Pipeline stage latency in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"stage"})

	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfoliobuddy_stage_failures_total",
		Help: "Pipeline stages that failed or panicked",
	}, []string{"stage"})

	ClassifierFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portfoliobuddy_classifier_fallbacks_total",
		Help: "Classifications that fell back to general_question",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portfoliobuddy_active_sessions",
		Help: "Number of sessions held by the session store",
	})

	RecommendationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfoliobuddy_recommendations_total",
		Help: "Recommendations produced, by action",
	}, []string{"action"})
)

// External dependency metrics
var (
	GatewayFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfoliobuddy_gateway_failures_total",
		Help: "Failed calls to external data sources",
	}, []string{"gateway"})

	QuoteCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfoliobuddy_quote_cache_lookups_total",
		Help: "Quote cache lookups by result",
	}, []string{"result"})

	OracleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfoliobuddy_oracle_errors_total",
		Help: "Language model errors by category",
	}, []string{"kind"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portfoliobuddy_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
	}, []string{"service"})

	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfoliobuddy_circuit_breaker_trips_total",
		Help: "Number of times a circuit breaker opened",
	}, []string{"service"})
)

// Infrastructure metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfoliobuddy_api_requests_total",
		Help: "HTTP API requests",
	}, []string{"method", "path", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portfoliobuddy_api_request_duration_ms",
		Help:    "HTTP API request latency in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"method", "path"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portfoliobuddy_database_connections_active",
		Help: "Acquired database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portfoliobuddy_database_connections_idle",
		Help: "Idle database connections",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfoliobuddy_events_published_total",
		Help: "Turn events published to the message bus",
	}, []string{"result"})
)

func RecordTurn(intent string, durationMs float64) {
	TurnsTotal.WithLabelValues(bounded(intent, knownIntents)).Inc()
	TurnDuration.Observe(durationMs)
}

func RecordStage(stage string, durationMs float64, failed bool) {
	stage = bounded(stage, knownStages)
	StageDuration.WithLabelValues(stage).Observe(durationMs)
	if failed {
		StageFailures.WithLabelValues(stage).Inc()
	}
}

func RecordClassifierFallback() {
	ClassifierFallbacks.Inc()
}

func UpdateActiveSessions(count int) {
	ActiveSessions.Set(float64(count))
}

// RecordRecommendation counts a recommendation; action is lower-cased.
func RecordRecommendation(action string) {
	RecommendationsTotal.WithLabelValues(strings.ToLower(action)).Inc()
}

func RecordGatewayFailure(gateway string) {
	GatewayFailures.WithLabelValues(bounded(gateway, knownGateways)).Inc()
}

func RecordQuoteCache(hit bool) {
	if hit {
		QuoteCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	QuoteCacheLookups.WithLabelValues("miss").Inc()
}

func RecordOracleError(err error) {
	if err == nil {
		return
	}
	OracleErrors.WithLabelValues(NormalizeOracleError(err)).Inc()
}

// UpdateCircuitBreaker sets the state gauge. state is 0 closed, 1 open,
// 2 half-open.
func UpdateCircuitBreaker(service string, state int) {
	CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

func RecordCircuitBreakerTrip(service string) {
	CircuitBreakerTrips.WithLabelValues(service).Inc()
}

func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, path).Observe(durationMs)
}

func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}

func RecordEventPublish(err error) {
	if err != nil {
		EventsPublished.WithLabelValues("error").Inc()
		return
	}
	EventsPublished.WithLabelValues("ok").Inc()
}
