package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooClient fetches quotes from Yahoo Finance.
type YahooClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// YahooConfig configures a YahooClient.
type YahooConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
}

var _ Provider = (*YahooClient)(nil)

// NewYahooClient creates a rate limited Yahoo Finance client.
func NewYahooClient(cfg YahooConfig) *YahooClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultYahooBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 5
	}

	return &YahooClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []yahooQuote `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

type yahooQuote struct {
	Symbol                     string  `json:"symbol"`
	RegularMarketPrice         float64 `json:"regularMarketPrice"`
	RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
	RegularMarketDayHigh       float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow        float64 `json:"regularMarketDayLow"`
	RegularMarketVolume        int64   `json:"regularMarketVolume"`
	MarketCap                  float64 `json:"marketCap"`
	TrailingPE                 float64 `json:"trailingPE"`
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string  `json:"symbol"`
				RegularMarketPrice   float64 `json:"regularMarketPrice"`
				ChartPreviousClose   float64 `json:"chartPreviousClose"`
				PreviousClose        float64 `json:"previousClose"`
				RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
				RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
				RegularMarketVolume  int64   `json:"regularMarketVolume"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// errUnauthorized marks a quote endpoint that wants a session cookie.
var errUnauthorized = errors.New("quote endpoint requires authorization")

// FetchQuote returns the latest trading session data for symbol. The v7
// quote endpoint is tried first because it carries P/E and market cap; when
// it refuses anonymous access the v8 chart metadata is used instead.
func (c *YahooClient) FetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	q, err := c.fetchQuoteV7(ctx, symbol)
	if errors.Is(err, errUnauthorized) {
		log.Debug().Str("symbol", symbol).Msg("Yahoo quote endpoint refused, using chart metadata")
		return c.fetchChartMeta(ctx, symbol)
	}
	return q, err
}

func (c *YahooClient) fetchQuoteV7(ctx context.Context, symbol string) (*Quote, error) {
	var payload yahooQuoteResponse
	endpoint := fmt.Sprintf("%s/v7/finance/quote?symbols=%s", c.baseURL, url.QueryEscape(symbol))
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	if e := payload.QuoteResponse.Error; e != nil {
		return nil, fmt.Errorf("quote API error: %s", e.Description)
	}
	if len(payload.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}

	r := payload.QuoteResponse.Result[0]
	if r.RegularMarketPrice <= 0 {
		return nil, fmt.Errorf("%w: %s has no price", ErrNoQuote, symbol)
	}

	change, changePercent := priceChange(r.RegularMarketPrice, r.RegularMarketPreviousClose)

	return &Quote{
		Symbol:        symbol,
		Price:         r.RegularMarketPrice,
		Change:        change,
		ChangePercent: changePercent,
		Volume:        r.RegularMarketVolume,
		MarketCap:     optional(r.MarketCap),
		PERatio:       optional(r.TrailingPE),
		DayHigh:       optional(r.RegularMarketDayHigh),
		DayLow:        optional(r.RegularMarketDayLow),
	}, nil
}

// fetchChartMeta reads the quote fields of the v8 chart response. It has
// no P/E or market cap.
func (c *YahooClient) fetchChartMeta(ctx context.Context, symbol string) (*Quote, error) {
	var payload yahooChartResponse
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=5d", c.baseURL, url.PathEscape(symbol))
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	if e := payload.Chart.Error; e != nil {
		return nil, fmt.Errorf("chart API error: %s", e.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}

	m := payload.Chart.Result[0].Meta
	if m.RegularMarketPrice <= 0 {
		return nil, fmt.Errorf("%w: %s has no price", ErrNoQuote, symbol)
	}

	previousClose := m.PreviousClose
	if previousClose == 0 {
		previousClose = m.ChartPreviousClose
	}
	change, changePercent := priceChange(m.RegularMarketPrice, previousClose)

	return &Quote{
		Symbol:        symbol,
		Price:         m.RegularMarketPrice,
		Change:        change,
		ChangePercent: changePercent,
		Volume:        m.RegularMarketVolume,
		DayHigh:       optional(m.RegularMarketDayHigh),
		DayLow:        optional(m.RegularMarketDayLow),
	}, nil
}

func (c *YahooClient) getJSON(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "portfoliobuddy/1.0")

	log.Debug().Str("endpoint", endpoint).Msg("Fetching from Yahoo Finance")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("quote request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("Failed to close response body")
		}
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d", errUnauthorized, resp.StatusCode)
	default:
		return fmt.Errorf("quote API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode quote response: %w", err)
	}
	return nil
}
