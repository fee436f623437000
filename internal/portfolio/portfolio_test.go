package portfolio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/portfoliobuddy/internal/market"
)

func writeLedger(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portfolio.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadLedger(t *testing.T) {
	path := writeLedger(t, "Symbol,Quantity,Average Cost\n"+
		" aapl ,10,150.5\n"+
		"MSFT,5,300\n")

	snap := ReadLedger(path)
	require.Len(t, snap.Holdings, 2)

	assert.Equal(t, "AAPL", snap.Holdings[0].Symbol)
	assert.Equal(t, 10.0, snap.Holdings[0].Quantity)
	assert.Equal(t, 150.5, snap.Holdings[0].AvgCost)
	assert.Nil(t, snap.Holdings[0].CurrentPrice)
	assert.Nil(t, snap.Holdings[0].GainLossPercent)
	assert.Zero(t, snap.TotalValue)
	assert.False(t, snap.LastUpdated.IsZero())
}

func TestReadLedger_ColumnOrderIsFree(t *testing.T) {
	path := writeLedger(t, "Average Cost,Notes,Symbol,Quantity\n100,long term,nvda,2\n")

	snap := ReadLedger(path)
	require.Len(t, snap.Holdings, 1)
	assert.Equal(t, Holding{Symbol: "NVDA", Quantity: 2, AvgCost: 100}, snap.Holdings[0])
}

func TestReadLedger_SkipsBadRows(t *testing.T) {
	path := writeLedger(t, "Symbol,Quantity,Average Cost\n"+
		"AAPL,ten,150\n"+
		",5,10\n"+
		"TSLA,-3,200\n"+
		"GOOG,1\n"+
		"AMZN,4,abc\n"+
		"MSFT,5,300\n")

	snap := ReadLedger(path)
	require.Len(t, snap.Holdings, 1)
	assert.Equal(t, "MSFT", snap.Holdings[0].Symbol)
}

func TestReadLedger_MissingColumn(t *testing.T) {
	path := writeLedger(t, "Symbol,Quantity\nAAPL,10\n")
	assert.Empty(t, ReadLedger(path).Holdings)
}

func TestReadLedger_MissingFile(t *testing.T) {
	snap := ReadLedger(filepath.Join(t.TempDir(), "nope.csv"))

	assert.NotNil(t, snap.Holdings)
	assert.Empty(t, snap.Holdings)
	assert.Zero(t, snap.TotalValue)
	assert.Zero(t, snap.TotalGainLoss)
	assert.Zero(t, snap.TotalGainLossPercent)
}

func TestReadLedger_EmptyFile(t *testing.T) {
	assert.Empty(t, ReadLedger(writeLedger(t, "")).Holdings)
}

type stubQuotes map[string]market.Quote

func (s stubQuotes) QuoteMany(_ context.Context, symbols []string) map[string]market.Quote {
	out := map[string]market.Quote{}
	for _, sym := range symbols {
		if q, ok := s[sym]; ok {
			out[sym] = q
		}
	}
	return out
}

func TestEnrich_Formulas(t *testing.T) {
	snap := Snapshot{Holdings: []Holding{{Symbol: "AAPL", Quantity: 10, AvgCost: 100}}}
	e := NewEnricher(stubQuotes{"AAPL": {Symbol: "AAPL", Price: 125}})

	out := e.Enrich(context.Background(), snap)
	h := out.Holdings[0]

	require.True(t, h.Enriched())
	assert.Equal(t, 125.0, *h.CurrentPrice)
	assert.Equal(t, 1250.0, *h.Value)
	assert.Equal(t, 250.0, *h.GainLoss)
	assert.Equal(t, (125.0-100.0)/100.0*100, *h.GainLossPercent)

	assert.Equal(t, 1250.0, out.TotalValue)
	assert.Equal(t, 250.0, out.TotalGainLoss)
	assert.InDelta(t, 25.0, out.TotalGainLossPercent, 1e-9)
}

func TestEnrich_PartialBatch(t *testing.T) {
	snap := Snapshot{Holdings: []Holding{
		{Symbol: "AAPL", Quantity: 10, AvgCost: 100},
		{Symbol: "MSFT", Quantity: 5, AvgCost: 300},
		{Symbol: "GOOG", Quantity: 2, AvgCost: 50},
	}}
	e := NewEnricher(stubQuotes{
		"AAPL": {Symbol: "AAPL", Price: 110},
		"GOOG": {Symbol: "GOOG", Price: 40},
	})

	out := e.Enrich(context.Background(), snap)

	assert.True(t, out.Holdings[0].Enriched())
	assert.False(t, out.Holdings[1].Enriched())
	assert.Nil(t, out.Holdings[1].Value)
	assert.Nil(t, out.Holdings[1].GainLossPercent)
	assert.True(t, out.Holdings[2].Enriched())

	assert.Equal(t, 1100.0+80.0, out.TotalValue)
	assert.Equal(t, 100.0-20.0, out.TotalGainLoss)
}

func TestEnrich_ZeroCostBasis(t *testing.T) {
	snap := Snapshot{Holdings: []Holding{{Symbol: "GIFT", Quantity: 3, AvgCost: 0}}}
	out := NewEnricher(stubQuotes{"GIFT": {Symbol: "GIFT", Price: 10}}).Enrich(context.Background(), snap)

	h := out.Holdings[0]
	assert.Equal(t, 30.0, *h.Value)
	assert.Equal(t, 30.0, *h.GainLoss)
	assert.Nil(t, h.GainLossPercent)
	// total value equals total gain, so the aggregate percent guard applies
	assert.Zero(t, out.TotalGainLossPercent)
}

func TestEnrich_DoesNotMutateInput(t *testing.T) {
	snap := Snapshot{Holdings: []Holding{{Symbol: "AAPL", Quantity: 1, AvgCost: 1}}}
	NewEnricher(stubQuotes{"AAPL": {Price: 2}}).Enrich(context.Background(), snap)

	assert.Nil(t, snap.Holdings[0].CurrentPrice)
}

func TestEnrich_EmptySnapshot(t *testing.T) {
	e := NewEnricher(stubQuotes{})
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	out := e.Enrich(context.Background(), Snapshot{})
	assert.Empty(t, out.Holdings)
	assert.Equal(t, fixed, out.LastUpdated)
}

func TestSnapshotHelpers(t *testing.T) {
	snap := Snapshot{Holdings: []Holding{{Symbol: "AAPL"}, {Symbol: "MSFT"}}}

	assert.Equal(t, []string{"AAPL", "MSFT"}, snap.Symbols())
	require.NotNil(t, snap.Holding("MSFT"))
	assert.Nil(t, snap.Holding("TSLA"))
}

func TestLedgerFile_Read(t *testing.T) {
	path := writeLedger(t, "Symbol,Quantity,Average Cost\nAMD,3,90\n")
	snap := LedgerFile(path).Read(context.Background())
	require.Len(t, snap.Holdings, 1)
	assert.Equal(t, "AMD", snap.Holdings[0].Symbol)
}
