package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/portfoliobuddy/internal/breaker"
	"github.com/ajitpratap0/portfoliobuddy/internal/config"
	"github.com/ajitpratap0/portfoliobuddy/internal/llm"
)

// fakeModel serves an OpenAI-compatible endpoint: classification prompts
// get a general_question record, everything else gets reply.
func fakeModel(t *testing.T, reply string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req llm.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		content := reply
		if len(req.Messages) > 0 && strings.Contains(req.Messages[0].Content, "Classify the intent") {
			content = `{"intent": "general_question", "symbols": [], "requires_portfolio": false}`
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-test",
			"model": req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// isolateEnv points every external dependency at nothing so tests never
// reach real services.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("VAULT_ENABLED", "false")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("NEWS_API_KEY", "")
	t.Setenv("PORTFOLIO_CSV_PATH", t.TempDir()+"/missing.csv")
	t.Setenv("PORTFOLIOBUDDY_MONITORING_ENABLED", "false")
	t.Setenv("PORTFOLIOBUDDY_APP_LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "PortfolioBuddy "+config.Version+"\n", out)
}

func TestAskCommand(t *testing.T) {
	isolateEnv(t)
	model, calls := fakeModel(t, "Diversification spreads risk across assets.")
	t.Setenv("PORTFOLIOBUDDY_LLM_PROVIDER", "openai")
	t.Setenv("PORTFOLIOBUDDY_LLM_ENDPOINT", model.URL)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	out, err := run(t, "ask", "--plain", "What", "is", "diversification?")
	require.NoError(t, err)

	assert.Equal(t, "Diversification spreads risk across assets.\n", out)
	assert.Equal(t, int32(2), calls.Load(), "one classification call and one response call")
}

func TestAskRequiresModelCredential(t *testing.T) {
	isolateEnv(t)

	_, err := run(t, "ask", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestInvalidLogLevelFlag(t *testing.T) {
	isolateEnv(t)

	_, err := run(t, "--log-level", "loud", "ask", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --log-level")
}

func TestPrintReply(t *testing.T) {
	var plain bytes.Buffer
	require.NoError(t, printReply(&plain, "**HOLD** AAPL", true, "dark"))
	assert.Equal(t, "**HOLD** AAPL\n", plain.String())

	var rendered bytes.Buffer
	require.NoError(t, printReply(&rendered, "**HOLD** AAPL", false, "dark"))
	assert.Contains(t, rendered.String(), "HOLD")
	assert.NotContains(t, rendered.String(), "**")

	var fallback bytes.Buffer
	require.NoError(t, printReply(&fallback, "**HOLD** AAPL", false, "/no/such/style.json"))
	assert.Equal(t, "**HOLD** AAPL\n", fallback.String())
}

func TestBuildAppWithoutChat(t *testing.T) {
	isolateEnv(t)
	cfg, err := config.Load("")
	require.NoError(t, err)

	a, err := buildApp(context.Background(), cfg, false)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.chat)
	assert.Nil(t, a.store)
	assert.Nil(t, a.history())
	require.NotNil(t, a.analyzer)

	snap := a.enricher.Enrich(context.Background(), a.ledger.Read(context.Background()))
	assert.Empty(t, snap.Holdings)
}

func TestBuildAppWithChat(t *testing.T) {
	isolateEnv(t)
	model, _ := fakeModel(t, "ok")
	t.Setenv("PORTFOLIOBUDDY_LLM_PROVIDER", "openai")
	t.Setenv("PORTFOLIOBUDDY_LLM_ENDPOINT", model.URL)
	t.Setenv("PORTFOLIOBUDDY_SESSION_MAX_SESSIONS", "5")

	cfg, err := config.Load("")
	require.NoError(t, err)

	a, err := buildApp(context.Background(), cfg, true)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.chat)
	require.NotNil(t, a.memory)
	assert.NotNil(t, a.janitor)
	assert.Same(t, a.memory, a.chat.Store())

	reply, err := a.chat.HandleMessage(context.Background(), "u1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Text)
	assert.Equal(t, 1, a.memory.Len())
}

func TestNewOracle(t *testing.T) {
	cb := breaker.NewPassthroughManager().LLM()

	oracle, err := newOracle(context.Background(), config.LLMConfig{Provider: "openai", OpenAIAPIKey: "sk"}, cb)
	require.NoError(t, err)
	assert.IsType(t, &llm.BreakerOracle{}, oracle)

	_, err = newOracle(context.Background(), config.LLMConfig{Provider: "gemini"}, cb)
	assert.ErrorContains(t, err, "gemini api key is required")

	_, err = newOracle(context.Background(), config.LLMConfig{Provider: "bifrost"}, cb)
	assert.ErrorContains(t, err, "unsupported llm provider")
}

func TestBotMode(t *testing.T) {
	assert.Equal(t, "polling", botMode(""))
	assert.Equal(t, "webhook", botMode("https://bot.example.com/hook"))
}
