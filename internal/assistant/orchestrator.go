package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/portfoliobuddy/internal/metrics"
	"github.com/ajitpratap0/portfoliobuddy/internal/portfolio"
	"github.com/ajitpratap0/portfoliobuddy/internal/recommend"
)

// State is a step of the turn pipeline.
type State int

const (
	StateClassify State = iota
	StateFetchPortfolio
	StateAnalyze
	StateRespond
	StateDone
)

func (s State) String() string {
	switch s {
	case StateClassify:
		return metrics.StageClassify
	case StateFetchPortfolio:
		return metrics.StageFetch
	case StateAnalyze:
		return metrics.StageAnalyze
	case StateRespond:
		return metrics.StageRespond
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// next is the transition function of the pipeline.
func next(s State, c Classification) State {
	switch s {
	case StateClassify:
		if c.RequiresPortfolio || c.Intent == IntentPortfolioQuery || c.Intent == IntentStockAnalysis {
			return StateFetchPortfolio
		}
		return StateRespond
	case StateFetchPortfolio:
		return StateAnalyze
	case StateAnalyze:
		return StateRespond
	default:
		return StateDone
	}
}

// Collaborators. The concrete types live in their own packages.
type (
	IntentClassifier interface {
		Classify(ctx context.Context, text string) Classification
	}
	LedgerReader interface {
		Read(ctx context.Context) portfolio.Snapshot
	}
	PortfolioEnricher interface {
		Enrich(ctx context.Context, snap portfolio.Snapshot) portfolio.Snapshot
	}
	SymbolAnalyzer interface {
		Analyze(ctx context.Context, symbol string, holding *portfolio.Holding) recommend.Analysis
	}
	Responder interface {
		Respond(ctx context.Context, in ResponseInput) string
	}
)

// TurnEvent describes a completed turn for sinks such as the event bus
// and the transcript store.
type TurnEvent struct {
	TurnID     string        `json:"turn_id"`
	UserID     string        `json:"user_id"`
	Intent     Intent        `json:"intent"`
	Symbols    []string      `json:"symbols"`
	UserText   string        `json:"user_text"`
	ReplyText  string        `json:"reply_text"`
	Action     string        `json:"action,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
}

// TurnSink receives completed turns. Sink failures never affect replies.
type TurnSink interface {
	RecordTurn(ctx context.Context, ev TurnEvent) error
}

// StepTimeouts bound each pipeline step.
type StepTimeouts struct {
	Classify time.Duration
	Fetch    time.Duration
	Analyze  time.Duration
	Respond  time.Duration
	Sink     time.Duration
}

// DefaultStepTimeouts are used for zero fields.
var DefaultStepTimeouts = StepTimeouts{
	Classify: 20 * time.Second,
	Fetch:    30 * time.Second,
	Analyze:  45 * time.Second,
	Respond:  30 * time.Second,
	Sink:     5 * time.Second,
}

func (t StepTimeouts) withDefaults() StepTimeouts {
	if t.Classify <= 0 {
		t.Classify = DefaultStepTimeouts.Classify
	}
	if t.Fetch <= 0 {
		t.Fetch = DefaultStepTimeouts.Fetch
	}
	if t.Analyze <= 0 {
		t.Analyze = DefaultStepTimeouts.Analyze
	}
	if t.Respond <= 0 {
		t.Respond = DefaultStepTimeouts.Respond
	}
	if t.Sink <= 0 {
		t.Sink = DefaultStepTimeouts.Sink
	}
	return t
}

// Reply is the outcome of one turn.
type Reply struct {
	TurnID   string              `json:"turn_id"`
	Text     string              `json:"text"`
	Intent   Intent              `json:"intent"`
	Symbols  []string            `json:"symbols"`
	Analysis *recommend.Analysis `json:"analysis,omitempty"`
}

// Orchestrator runs conversation turns.
type Orchestrator struct {
	store      SessionStore
	classifier IntentClassifier
	ledger     LedgerReader
	enricher   PortfolioEnricher
	analyzer   SymbolAnalyzer
	responder  Responder
	sinks      []TurnSink
	timeouts   StepTimeouts
	locks      *userLocks
}

// Deps wires an Orchestrator.
type Deps struct {
	Store      SessionStore
	Classifier IntentClassifier
	Ledger     LedgerReader
	Enricher   PortfolioEnricher
	Analyzer   SymbolAnalyzer
	Responder  Responder
	Sinks      []TurnSink
	Timeouts   StepTimeouts
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Store == nil {
		d.Store = NewMemoryStore(nil)
	}
	return &Orchestrator{
		store:      d.Store,
		classifier: d.Classifier,
		ledger:     d.Ledger,
		enricher:   d.Enricher,
		analyzer:   d.Analyzer,
		responder:  d.Responder,
		sinks:      d.Sinks,
		timeouts:   d.Timeouts.withDefaults(),
		locks:      newUserLocks(),
	}
}

// Store exposes the session store for read-only callers such as the API.
func (o *Orchestrator) Store() SessionStore { return o.store }

// HandleMessage runs one turn for userID and returns the reply. Turns of
// the same user are serialized. The only error is invalid input; every
// downstream failure degrades into a reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID, text string) (Reply, error) {
	userID = strings.TrimSpace(userID)
	text = strings.TrimSpace(text)
	if userID == "" {
		return Reply{}, errors.New("user id is required")
	}
	if text == "" {
		return Reply{}, errors.New("message text is required")
	}

	unlock := o.locks.lock(userID)
	defer unlock()

	start := time.Now()

	session, err := GetOrCreate(ctx, o.store, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Session store unavailable, using a transient session")
		session = NewSession(userID)
	}

	session.resetTurnState()
	userTurn := session.appendTurn(RoleUser, text)

	var reply string
	for state := StateClassify; state != StateDone; state = next(state, classificationOf(session)) {
		o.step(ctx, state, session, text, &reply)
	}

	session.LastAction = string(session.Context.Intent)
	assistantTurn := session.appendTurn(RoleAssistant, reply)

	if err := o.store.Put(ctx, session); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to save session")
	}

	elapsed := time.Since(start)
	metrics.RecordTurn(string(session.Context.Intent), float64(elapsed.Milliseconds()))

	out := Reply{
		TurnID:   assistantTurn.ID,
		Text:     reply,
		Intent:   session.Context.Intent,
		Symbols:  session.Context.Symbols,
		Analysis: session.Analysis,
	}

	o.notify(ctx, TurnEvent{
		TurnID:    userTurn.ID,
		UserID:    userID,
		Intent:    out.Intent,
		Symbols:   out.Symbols,
		UserText:  text,
		ReplyText: reply,
		Duration:  elapsed,
		Timestamp: assistantTurn.Timestamp,
	}, session.Analysis)

	log.Info().
		Str("user_id", userID).
		Str("intent", string(out.Intent)).
		Strs("symbols", out.Symbols).
		Dur("duration", elapsed).
		Msg("Turn completed")

	return out, nil
}

func classificationOf(s *Session) Classification {
	return Classification{
		Intent:            s.Context.Intent,
		Symbols:           s.Context.Symbols,
		RequiresPortfolio: s.Context.RequiresPortfolio,
	}
}

// step runs one state inside a boundary that recovers panics and enforces
// the step timeout. A failed step leaves its outputs at their defaults.
func (o *Orchestrator) step(ctx context.Context, state State, s *Session, text string, reply *string) {
	stepCtx, cancel := context.WithTimeout(ctx, o.timeoutFor(state))
	defer cancel()

	start := time.Now()
	failed := false
	defer func() {
		if r := recover(); r != nil {
			failed = true
			log.Error().
				Str("user_id", s.UserID).
				Str("stage", state.String()).
				Interface("panic", r).
				Msg("Pipeline step panicked")
			o.applyStepDefaults(state, s, reply)
		}
		metrics.RecordStage(state.String(), float64(time.Since(start).Milliseconds()), failed)
	}()

	switch state {
	case StateClassify:
		c := o.classifier.Classify(stepCtx, text)
		if !c.Intent.Known() {
			c = fallbackClassification()
		}
		s.Context.Intent = c.Intent
		s.Context.Symbols = c.Symbols
		s.Context.RequiresPortfolio = c.RequiresPortfolio

	case StateFetchPortfolio:
		snap := o.ledger.Read(stepCtx)
		snap = o.enricher.Enrich(stepCtx, snap)
		s.Portfolio = &snap

	case StateAnalyze:
		o.analyze(stepCtx, s)

	case StateRespond:
		*reply = o.responder.Respond(stepCtx, ResponseInput{
			Message:   text,
			Intent:    s.Context.Intent,
			Portfolio: s.Portfolio,
			Analysis:  s.Analysis,
		})
	}
}

func (o *Orchestrator) analyze(ctx context.Context, s *Session) {
	if s.Portfolio == nil {
		return
	}

	targets := s.Context.Symbols
	if len(targets) == 0 {
		targets = s.Portfolio.Symbols()
	}

	analyses := make([]recommend.Analysis, 0, len(targets))
	for _, sym := range targets {
		analyses = append(analyses, o.analyzer.Analyze(ctx, sym, s.Portfolio.Holding(sym)))
	}

	if len(analyses) > 0 {
		first := analyses[0]
		s.Analysis = &first
		s.Context.Analyses = analyses
	}
}

func (o *Orchestrator) applyStepDefaults(state State, s *Session, reply *string) {
	switch state {
	case StateClassify:
		c := fallbackClassification()
		s.Context.Intent, s.Context.Symbols, s.Context.RequiresPortfolio = c.Intent, c.Symbols, c.RequiresPortfolio
	case StateFetchPortfolio:
		s.Portfolio = nil
	case StateAnalyze:
		s.Analysis = nil
		s.Context.Analyses = nil
	case StateRespond:
		*reply = Apology
	}
}

func (o *Orchestrator) timeoutFor(state State) time.Duration {
	switch state {
	case StateClassify:
		return o.timeouts.Classify
	case StateFetchPortfolio:
		return o.timeouts.Fetch
	case StateAnalyze:
		return o.timeouts.Analyze
	default:
		return o.timeouts.Respond
	}
}

func (o *Orchestrator) notify(ctx context.Context, ev TurnEvent, analysis *recommend.Analysis) {
	if len(o.sinks) == 0 {
		return
	}
	if analysis != nil {
		ev.Action = analysis.Action.String()
		ev.Confidence = analysis.Confidence
	}

	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeouts.Sink)
	defer cancel()

	for _, sink := range o.sinks {
		if err := sink.RecordTurn(sinkCtx, ev); err != nil {
			log.Warn().Err(err).Str("user_id", ev.UserID).Msg("Failed to record turn")
		}
	}
}
