package market

import (
	"context"
	"errors"
)

// ErrNoQuote is returned by providers when a symbol has no usable price.
var ErrNoQuote = errors.New("no quote available")

// Quote is a single market reading for one symbol.
type Quote struct {
	Symbol        string   `json:"symbol"`
	Price         float64  `json:"price"`
	Change        float64  `json:"change"`
	ChangePercent float64  `json:"change_percent"`
	Volume        int64    `json:"volume"`
	MarketCap     *float64 `json:"market_cap,omitempty"`
	PERatio       *float64 `json:"pe_ratio,omitempty"`
	DayHigh       *float64 `json:"day_high,omitempty"`
	DayLow        *float64 `json:"day_low,omitempty"`
}

// Provider fetches a quote from an upstream market data source.
type Provider interface {
	FetchQuote(ctx context.Context, symbol string) (*Quote, error)
}

// optional turns an upstream zero into an absent value.
func optional(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

// priceChange derives absolute and percent change against the previous
// close. A zero previous close yields no change.
func priceChange(price, previousClose float64) (float64, float64) {
	if previousClose == 0 {
		return 0, 0
	}
	change := price - previousClose
	return change, change / previousClose * 100
}
