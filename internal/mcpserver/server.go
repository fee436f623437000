// Package mcpserver exposes the assistant as Model Context Protocol tools
// so that other agents can chat with it or reuse its analysis.
package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/portfoliobuddy/internal/assistant"
	"github.com/ajitpratap0/portfoliobuddy/internal/portfolio"
	"github.com/ajitpratap0/portfoliobuddy/internal/recommend"
)

// Chatter runs one conversation turn.
type Chatter interface {
	HandleMessage(ctx context.Context, userID, text string) (assistant.Reply, error)
}

// Deps are the services behind the tools. Nil dependencies disable the
// tools that need them.
type Deps struct {
	Chat     Chatter
	Ledger   assistant.LedgerReader
	Enricher assistant.PortfolioEnricher
	Analyzer assistant.SymbolAnalyzer
}

// Server wraps an mcp.Server with the PortfolioBuddy tools registered.
type Server struct {
	mcp  *mcp.Server
	deps Deps
}

// New registers every tool whose dependencies are present.
func New(version string, deps Deps) *Server {
	s := &Server{
		mcp:  mcp.NewServer(&mcp.Implementation{Name: "portfoliobuddy", Version: version}, nil),
		deps: deps,
	}

	if deps.Chat != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "chat",
			Description: "Send a message to PortfolioBuddy and get its reply. Conversation state is kept per user_id.",
		}, s.chat)
	}
	if deps.Analyzer != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "analyze_symbol",
			Description: "Analyze one stock: current price, news sentiment and a BUY/SELL/HOLD/WATCH recommendation.",
		}, s.analyzeSymbol)
	}
	if deps.Ledger != nil && deps.Enricher != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "portfolio_summary",
			Description: "Value the portfolio ledger at current market prices.",
		}, s.portfolioSummary)
	}
	return s
}

// MCP returns the underlying server, e.g. to connect in-memory transports.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Run serves over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	log.Info().Msg("MCP server ready, listening on stdio")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// ChatInput is the chat tool's argument.
type ChatInput struct {
	UserID  string `json:"user_id" jsonschema:"stable identifier of the conversation"`
	Message string `json:"message" jsonschema:"the user's message"`
}

// ChatOutput is the chat tool's result.
type ChatOutput struct {
	TurnID  string   `json:"turn_id"`
	Text    string   `json:"text"`
	Intent  string   `json:"intent"`
	Symbols []string `json:"symbols"`
}

func (s *Server) chat(ctx context.Context, _ *mcp.CallToolRequest, in ChatInput) (*mcp.CallToolResult, ChatOutput, error) {
	reply, err := s.deps.Chat.HandleMessage(ctx, in.UserID, in.Message)
	if err != nil {
		return nil, ChatOutput{}, err
	}
	symbols := reply.Symbols
	if symbols == nil {
		symbols = []string{}
	}
	return nil, ChatOutput{
		TurnID:  reply.TurnID,
		Text:    reply.Text,
		Intent:  string(reply.Intent),
		Symbols: symbols,
	}, nil
}

// AnalyzeInput is the analyze_symbol tool's argument.
type AnalyzeInput struct {
	Symbol string `json:"symbol" jsonschema:"ticker symbol such as AAPL"`
}

// AnalysisOutput is the analyze_symbol tool's result.
type AnalysisOutput struct {
	Symbol         string   `json:"symbol"`
	CurrentPrice   float64  `json:"current_price"`
	Sentiment      string   `json:"sentiment"`
	Recommendation string   `json:"recommendation"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	Headlines      []string `json:"headlines"`
	ChangePercent  *float64 `json:"change_percent,omitempty"`
	PERatio        *float64 `json:"pe_ratio,omitempty"`
	Held           bool     `json:"held"`
}

func (s *Server) analyzeSymbol(ctx context.Context, _ *mcp.CallToolRequest, in AnalyzeInput) (*mcp.CallToolResult, AnalysisOutput, error) {
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if symbol == "" {
		return nil, AnalysisOutput{}, fmt.Errorf("symbol is required")
	}

	var holding *portfolio.Holding
	if s.deps.Ledger != nil {
		snap := s.deps.Ledger.Read(ctx)
		holding = snap.Holding(symbol)
	}

	a := s.deps.Analyzer.Analyze(ctx, symbol, holding)
	return nil, analysisOutput(a, holding != nil), nil
}

func analysisOutput(a recommend.Analysis, held bool) AnalysisOutput {
	headlines := make([]string, 0, len(a.News))
	for _, item := range a.News {
		headlines = append(headlines, item.Title)
	}
	return AnalysisOutput{
		Symbol:         a.Symbol,
		CurrentPrice:   a.CurrentPrice,
		Sentiment:      a.Sentiment.String(),
		Recommendation: a.Action.Upper(),
		Confidence:     a.Confidence,
		Reasoning:      a.Reasoning,
		Headlines:      headlines,
		ChangePercent:  a.Indicators.ChangePercent,
		PERatio:        a.Indicators.PERatio,
		Held:           held,
	}
}

// PortfolioInput is the portfolio_summary tool's (empty) argument.
type PortfolioInput struct{}

// HoldingOutput is one enriched position.
type HoldingOutput struct {
	Symbol          string   `json:"symbol"`
	Quantity        float64  `json:"quantity"`
	AvgCost         float64  `json:"avg_cost"`
	CurrentPrice    *float64 `json:"current_price,omitempty"`
	Value           *float64 `json:"value,omitempty"`
	GainLoss        *float64 `json:"gain_loss,omitempty"`
	GainLossPercent *float64 `json:"gain_loss_percent,omitempty"`
}

// PortfolioOutput is the portfolio_summary tool's result.
type PortfolioOutput struct {
	TotalValue           float64         `json:"total_value"`
	TotalGainLoss        float64         `json:"total_gain_loss"`
	TotalGainLossPercent float64         `json:"total_gain_loss_percent"`
	Holdings             []HoldingOutput `json:"holdings"`
	LastUpdated          string          `json:"last_updated"`
}

func (s *Server) portfolioSummary(ctx context.Context, _ *mcp.CallToolRequest, _ PortfolioInput) (*mcp.CallToolResult, PortfolioOutput, error) {
	snap := s.deps.Enricher.Enrich(ctx, s.deps.Ledger.Read(ctx))

	holdings := make([]HoldingOutput, 0, len(snap.Holdings))
	for _, h := range snap.Holdings {
		holdings = append(holdings, HoldingOutput{
			Symbol:          h.Symbol,
			Quantity:        h.Quantity,
			AvgCost:         h.AvgCost,
			CurrentPrice:    h.CurrentPrice,
			Value:           h.Value,
			GainLoss:        h.GainLoss,
			GainLossPercent: h.GainLossPercent,
		})
	}

	return nil, PortfolioOutput{
		TotalValue:           snap.TotalValue,
		TotalGainLoss:        snap.TotalGainLoss,
		TotalGainLossPercent: snap.TotalGainLossPercent,
		Holdings:             holdings,
		LastUpdated:          snap.LastUpdated.UTC().Format(time.RFC3339),
	}, nil
}
