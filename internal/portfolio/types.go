// Package portfolio reads the holdings ledger and values it against live
// quotes.
package portfolio

import "time"

// Holding is one ledger line. The pointer fields are nil until the holding
// has been valued against a quote.
type Holding struct {
	Symbol          string   `json:"symbol"`
	Quantity        float64  `json:"quantity"`
	AvgCost         float64  `json:"avg_cost"`
	CurrentPrice    *float64 `json:"current_price,omitempty"`
	Value           *float64 `json:"value,omitempty"`
	GainLoss        *float64 `json:"gain_loss,omitempty"`
	GainLossPercent *float64 `json:"gain_loss_percent,omitempty"`
}

// Enriched reports whether the holding has been valued.
func (h Holding) Enriched() bool {
	return h.CurrentPrice != nil
}

// Snapshot is the portfolio at a point in time.
type Snapshot struct {
	Holdings             []Holding `json:"holdings"`
	TotalValue           float64   `json:"total_value"`
	TotalGainLoss        float64   `json:"total_gain_loss"`
	TotalGainLossPercent float64   `json:"total_gain_loss_percent"`
	LastUpdated          time.Time `json:"last_updated"`
}

// Symbols returns the held symbols in ledger order.
func (s Snapshot) Symbols() []string {
	out := make([]string, 0, len(s.Holdings))
	for _, h := range s.Holdings {
		out = append(out, h.Symbol)
	}
	return out
}

// Holding returns the holding for symbol, or nil when it is not held.
func (s Snapshot) Holding(symbol string) *Holding {
	for i := range s.Holdings {
		if s.Holdings[i].Symbol == symbol {
			h := s.Holdings[i]
			return &h
		}
	}
	return nil
}

func emptySnapshot() Snapshot {
	return Snapshot{Holdings: []Holding{}, LastUpdated: time.Now()}
}
