package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/portfoliobuddy/internal/portfolio"
	"github.com/ajitpratap0/portfoliobuddy/internal/recommend"
)

type stubClassifier struct {
	result Classification
	panics bool
}

func (s stubClassifier) Classify(context.Context, string) Classification {
	if s.panics {
		panic("classifier exploded")
	}
	return s.result
}

type stubLedger struct {
	snap  portfolio.Snapshot
	reads atomic.Int32
}

func (s *stubLedger) Read(context.Context) portfolio.Snapshot {
	s.reads.Add(1)
	return s.snap
}

type passEnricher struct{}

func (passEnricher) Enrich(_ context.Context, snap portfolio.Snapshot) portfolio.Snapshot {
	return snap
}

type stubAnalyzer struct {
	mu      sync.Mutex
	symbols []string
	held    map[string]bool
}

func (s *stubAnalyzer) Analyze(_ context.Context, symbol string, h *portfolio.Holding) recommend.Analysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols = append(s.symbols, symbol)
	if s.held == nil {
		s.held = map[string]bool{}
	}
	s.held[symbol] = h != nil
	return recommend.Analysis{Symbol: symbol, Action: recommend.Hold, Confidence: 0.5}
}

type recordingResponder struct {
	mu     sync.Mutex
	inputs []ResponseInput
	reply  string
	delay  time.Duration
	panics bool
}

func (r *recordingResponder) Respond(_ context.Context, in ResponseInput) string {
	if r.panics {
		panic("responder exploded")
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, in)
	if r.reply == "" {
		return "ok"
	}
	return r.reply
}

func (r *recordingResponder) last() ResponseInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputs[len(r.inputs)-1]
}

type sinkFunc func(ctx context.Context, ev TurnEvent) error

func (f sinkFunc) RecordTurn(ctx context.Context, ev TurnEvent) error { return f(ctx, ev) }

func testSnapshot() portfolio.Snapshot {
	return portfolio.Snapshot{
		Holdings: []portfolio.Holding{
			{Symbol: "AAPL", Quantity: 10, AvgCost: 150},
			{Symbol: "MSFT", Quantity: 5, AvgCost: 300},
		},
	}
}

func TestNext(t *testing.T) {
	greeting := Classification{Intent: IntentGreeting}
	stock := Classification{Intent: IntentStockAnalysis}
	needsPortfolio := Classification{Intent: IntentGeneralQuestion, RequiresPortfolio: true}

	assert.Equal(t, StateRespond, next(StateClassify, greeting))
	assert.Equal(t, StateFetchPortfolio, next(StateClassify, stock))
	assert.Equal(t, StateFetchPortfolio, next(StateClassify, Classification{Intent: IntentPortfolioQuery}))
	assert.Equal(t, StateFetchPortfolio, next(StateClassify, needsPortfolio))
	assert.Equal(t, StateAnalyze, next(StateFetchPortfolio, stock))
	assert.Equal(t, StateRespond, next(StateAnalyze, stock))
	assert.Equal(t, StateDone, next(StateRespond, stock))
	assert.Equal(t, "classify", StateClassify.String())
}

func TestHandleMessage_GeneralQuestionSkipsPortfolio(t *testing.T) {
	ledger := &stubLedger{snap: testSnapshot()}
	responder := &recordingResponder{reply: "Diversification spreads risk."}
	o := NewOrchestrator(Deps{
		Classifier: NewClassifier(staticOracle("no json here", nil)),
		Ledger:     ledger,
		Enricher:   passEnricher{},
		Analyzer:   &stubAnalyzer{},
		Responder:  responder,
	})

	reply, err := o.HandleMessage(context.Background(), "1", "What is diversification?")
	require.NoError(t, err)

	assert.Equal(t, "Diversification spreads risk.", reply.Text)
	assert.Equal(t, IntentGeneralQuestion, reply.Intent)
	assert.Empty(t, reply.Symbols)
	assert.Zero(t, ledger.reads.Load())
	assert.Nil(t, responder.last().Portfolio)
	assert.Nil(t, responder.last().Analysis)
}

func TestHandleMessage_StockAnalysis(t *testing.T) {
	ledger := &stubLedger{snap: testSnapshot()}
	analyzer := &stubAnalyzer{}
	responder := &recordingResponder{}
	o := NewOrchestrator(Deps{
		Classifier: stubClassifier{result: Classification{Intent: IntentStockAnalysis, Symbols: []string{"TSLA", "AAPL"}}},
		Ledger:     ledger,
		Enricher:   passEnricher{},
		Analyzer:   analyzer,
		Responder:  responder,
	})

	reply, err := o.HandleMessage(context.Background(), "1", "Compare TSLA and AAPL")
	require.NoError(t, err)

	assert.Equal(t, []string{"TSLA", "AAPL"}, analyzer.symbols)
	assert.False(t, analyzer.held["TSLA"])
	assert.True(t, analyzer.held["AAPL"])

	require.NotNil(t, reply.Analysis)
	assert.Equal(t, "TSLA", reply.Analysis.Symbol)
	assert.Equal(t, int32(1), ledger.reads.Load())
	assert.NotNil(t, responder.last().Portfolio)
	assert.Equal(t, "TSLA", responder.last().Analysis.Symbol)

	s, err := o.Store().Get(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, s.Context.Analyses, 2)
	assert.Equal(t, string(IntentStockAnalysis), s.LastAction)
	require.Len(t, s.Turns, 2)
	assert.Equal(t, RoleUser, s.Turns[0].Role)
	assert.Equal(t, RoleAssistant, s.Turns[1].Role)
	assert.Equal(t, reply.TurnID, s.Turns[1].ID)
}

func TestHandleMessage_PortfolioQueryAnalyzesHoldings(t *testing.T) {
	analyzer := &stubAnalyzer{}
	o := NewOrchestrator(Deps{
		Classifier: stubClassifier{result: Classification{Intent: IntentPortfolioQuery, Symbols: []string{}, RequiresPortfolio: true}},
		Ledger:     &stubLedger{snap: testSnapshot()},
		Enricher:   passEnricher{},
		Analyzer:   analyzer,
		Responder:  &recordingResponder{},
	})

	reply, err := o.HandleMessage(context.Background(), "1", "How is my portfolio doing?")
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, analyzer.symbols)
	assert.Equal(t, "AAPL", reply.Analysis.Symbol)
}

func TestHandleMessage_EmptyPortfolioHasNoAnalysis(t *testing.T) {
	analyzer := &stubAnalyzer{}
	responder := &recordingResponder{}
	o := NewOrchestrator(Deps{
		Classifier: stubClassifier{result: Classification{Intent: IntentPortfolioQuery, Symbols: []string{}}},
		Ledger:     &stubLedger{},
		Enricher:   passEnricher{},
		Analyzer:   analyzer,
		Responder:  responder,
	})

	reply, err := o.HandleMessage(context.Background(), "1", "portfolio?")
	require.NoError(t, err)

	assert.Empty(t, analyzer.symbols)
	assert.Nil(t, reply.Analysis)
	assert.NotNil(t, responder.last().Portfolio)
}

func TestHandleMessage_ResetsStatePerTurn(t *testing.T) {
	classifier := &switchingClassifier{results: []Classification{
		{Intent: IntentStockAnalysis, Symbols: []string{"AAPL"}},
		{Intent: IntentGreeting, Symbols: []string{}},
	}}
	responder := &recordingResponder{}
	o := NewOrchestrator(Deps{
		Classifier: classifier,
		Ledger:     &stubLedger{snap: testSnapshot()},
		Enricher:   passEnricher{},
		Analyzer:   &stubAnalyzer{},
		Responder:  responder,
	})
	ctx := context.Background()

	first, err := o.HandleMessage(ctx, "1", "Analyze AAPL")
	require.NoError(t, err)
	require.NotNil(t, first.Analysis)

	second, err := o.HandleMessage(ctx, "1", "Hello")
	require.NoError(t, err)

	assert.Nil(t, second.Analysis)
	assert.Nil(t, responder.last().Portfolio)
	assert.Nil(t, responder.last().Analysis)

	s, err := o.Store().Get(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, s.Turns, 4)
	assert.Nil(t, s.Portfolio)
	assert.Empty(t, s.Context.Analyses)
}

type switchingClassifier struct {
	mu      sync.Mutex
	results []Classification
	n       int
}

func (c *switchingClassifier) Classify(context.Context, string) Classification {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.results[c.n%len(c.results)]
	c.n++
	return r
}

func TestHandleMessage_PanicsDegrade(t *testing.T) {
	t.Run("responder panic yields apology", func(t *testing.T) {
		o := NewOrchestrator(Deps{
			Classifier: stubClassifier{result: Classification{Intent: IntentGreeting}},
			Responder:  &recordingResponder{panics: true},
		})

		reply, err := o.HandleMessage(context.Background(), "1", "hi")
		require.NoError(t, err)
		assert.Equal(t, Apology, reply.Text)
	})

	t.Run("classifier panic falls back to general question", func(t *testing.T) {
		responder := &recordingResponder{}
		o := NewOrchestrator(Deps{
			Classifier: stubClassifier{panics: true},
			Responder:  responder,
		})

		reply, err := o.HandleMessage(context.Background(), "1", "hi")
		require.NoError(t, err)
		assert.Equal(t, IntentGeneralQuestion, reply.Intent)
		assert.Equal(t, "ok", reply.Text)
	})
}

func TestHandleMessage_InvalidInput(t *testing.T) {
	o := NewOrchestrator(Deps{})

	_, err := o.HandleMessage(context.Background(), "", "hi")
	assert.Error(t, err)
	_, err = o.HandleMessage(context.Background(), "1", "   ")
	assert.Error(t, err)
}

type failingStore struct{}

func (failingStore) Create(context.Context, string) (*Session, error) {
	return nil, errors.New("down")
}
func (failingStore) Get(context.Context, string) (*Session, error) { return nil, errors.New("down") }
func (failingStore) Put(context.Context, *Session) error          { return errors.New("down") }

func TestHandleMessage_StoreFailureStillReplies(t *testing.T) {
	o := NewOrchestrator(Deps{
		Store:      failingStore{},
		Classifier: stubClassifier{result: Classification{Intent: IntentGreeting}},
		Responder:  &recordingResponder{reply: "Hello!"},
	})

	reply, err := o.HandleMessage(context.Background(), "1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply.Text)
}

func TestHandleMessage_SerializesSameUser(t *testing.T) {
	var active, maxActive atomic.Int32
	responder := &recordingResponder{}
	o := NewOrchestrator(Deps{
		Classifier: stubClassifier{result: Classification{Intent: IntentGreeting}},
		Responder: respondFunc(func(ctx context.Context, in ResponseInput) string {
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			active.Add(-1)
			return responder.Respond(ctx, in)
		}),
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.HandleMessage(context.Background(), "same", "hi")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Zero(t, o.locks.size())

	s, err := o.Store().Get(context.Background(), "same")
	require.NoError(t, err)
	assert.Len(t, s.Turns, 10)
}

func TestHandleMessage_KeepsArrivalOrder(t *testing.T) {
	o := NewOrchestrator(Deps{
		Classifier: stubClassifier{result: Classification{Intent: IntentGreeting}},
		Responder:  &recordingResponder{},
	})

	// Hold the user's lock so every message queues behind it in launch order.
	release := o.locks.lock("same")

	const messages = 20
	var wg sync.WaitGroup
	for i := 0; i < messages; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := o.HandleMessage(context.Background(), "same", fmt.Sprintf("message %d", i))
			assert.NoError(t, err)
		}(i)
		require.Eventually(t, func() bool { return o.locks.waiting("same") == i+1 }, time.Second, time.Millisecond)
	}

	release()
	wg.Wait()

	s, err := o.Store().Get(context.Background(), "same")
	require.NoError(t, err)

	var got []string
	for _, turn := range s.Turns {
		if turn.Role == RoleUser {
			got = append(got, turn.Text)
		}
	}
	require.Len(t, got, messages)
	for i, text := range got {
		assert.Equal(t, fmt.Sprintf("message %d", i), text)
	}
	assert.Zero(t, o.locks.size())
}

type respondFunc func(ctx context.Context, in ResponseInput) string

func (f respondFunc) Respond(ctx context.Context, in ResponseInput) string { return f(ctx, in) }

func TestHandleMessage_NotifiesSinks(t *testing.T) {
	var got []TurnEvent
	var mu sync.Mutex
	record := sinkFunc(func(_ context.Context, ev TurnEvent) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
		return nil
	})
	broken := sinkFunc(func(context.Context, TurnEvent) error { return errors.New("nats down") })

	o := NewOrchestrator(Deps{
		Classifier: stubClassifier{result: Classification{Intent: IntentStockAnalysis, Symbols: []string{"AAPL"}}},
		Ledger:     &stubLedger{snap: testSnapshot()},
		Enricher:   passEnricher{},
		Analyzer:   &stubAnalyzer{},
		Responder:  &recordingResponder{reply: "AAPL looks steady."},
		Sinks:      []TurnSink{broken, record},
	})

	reply, err := o.HandleMessage(context.Background(), "9", "Analyze AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL looks steady.", reply.Text)

	require.Len(t, got, 1)
	ev := got[0]
	assert.Equal(t, "9", ev.UserID)
	assert.Equal(t, IntentStockAnalysis, ev.Intent)
	assert.Equal(t, "Analyze AAPL", ev.UserText)
	assert.Equal(t, "AAPL looks steady.", ev.ReplyText)
	assert.Equal(t, "hold", ev.Action)
	assert.InDelta(t, 0.5, ev.Confidence, 1e-9)
	assert.NotEmpty(t, ev.TurnID)
}

func TestUserLocks_ReleasesEntries(t *testing.T) {
	l := newUserLocks()
	unlockA := l.lock("a")
	unlockB := l.lock("b")
	assert.Equal(t, 2, l.size())
	unlockA()
	unlockB()
	assert.Zero(t, l.size())
}

func TestUserLocks_FIFOHandoff(t *testing.T) {
	l := newUserLocks()
	unlock := l.lock("a")

	order := make(chan int, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release := l.lock("a")
			order <- i
			release()
		}(i)
		require.Eventually(t, func() bool { return l.waiting("a") == i+1 }, time.Second, time.Millisecond)
	}

	unlock()
	unlock()
	wg.Wait()
	close(order)

	var got []int
	for i := range order {
		got = append(got, i)
	}
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Zero(t, l.size())
}
