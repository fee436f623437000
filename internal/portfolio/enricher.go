package portfolio

import (
	"context"
	"time"

	"github.com/ajitpratap0/portfoliobuddy/internal/market"
)

// QuoteBatcher fetches quotes for many symbols. Symbols that could not be
// fetched are absent from the result.
type QuoteBatcher interface {
	QuoteMany(ctx context.Context, symbols []string) map[string]market.Quote
}

// Enricher values snapshots against live quotes.
type Enricher struct {
	quotes QuoteBatcher
	now    func() time.Time
}

// NewEnricher values holdings with prices from quotes.
func NewEnricher(quotes QuoteBatcher) *Enricher {
	return &Enricher{quotes: quotes, now: time.Now}
}

// Enrich returns a copy of snap with derived fields filled for every
// holding that has a quote. Holdings without a quote keep nil derived
// fields and are left out of the totals.
func (e *Enricher) Enrich(ctx context.Context, snap Snapshot) Snapshot {
	out := Snapshot{
		Holdings:    make([]Holding, len(snap.Holdings)),
		LastUpdated: e.now(),
	}
	copy(out.Holdings, snap.Holdings)

	if len(out.Holdings) == 0 {
		return out
	}

	quotes := e.quotes.QuoteMany(ctx, snap.Symbols())

	for i := range out.Holdings {
		h := &out.Holdings[i]
		q, ok := quotes[h.Symbol]
		if !ok {
			h.CurrentPrice, h.Value, h.GainLoss, h.GainLossPercent = nil, nil, nil, nil
			continue
		}
		value(h, q.Price)
		out.TotalValue += *h.Value
		out.TotalGainLoss += *h.GainLoss
	}

	if out.TotalValue != out.TotalGainLoss {
		out.TotalGainLossPercent = out.TotalGainLoss / (out.TotalValue - out.TotalGainLoss) * 100
	}
	return out
}

func value(h *Holding, price float64) {
	v := h.Quantity * price
	gl := (price - h.AvgCost) * h.Quantity

	h.CurrentPrice = &price
	h.Value = &v
	h.GainLoss = &gl
	h.GainLossPercent = nil
	if h.AvgCost != 0 {
		pct := (price - h.AvgCost) / h.AvgCost * 100
		h.GainLossPercent = &pct
	}
}
