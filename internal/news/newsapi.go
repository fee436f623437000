package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultNewsAPIURL = "https://newsapi.org/v2"

// NewsAPIClient queries the NewsAPI "everything" endpoint.
type NewsAPIClient struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
}

// NewsAPIConfig configures a NewsAPIClient.
type NewsAPIConfig struct {
	BaseURL  string
	APIKey   string
	PageSize int
	Timeout  time.Duration
}

func NewNewsAPIClient(cfg NewsAPIConfig) *NewsAPIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultNewsAPIURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = MaxItems
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &NewsAPIClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		pageSize:   cfg.PageSize,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *NewsAPIClient) Name() string { return "newsapi" }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

func (c *NewsAPIClient) Articles(ctx context.Context, symbol string, from, to time.Time) ([]Article, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("newsapi: api key not configured")
	}

	params := url.Values{}
	params.Set("q", fmt.Sprintf(`"%s" stock OR "%s" shares OR "%s" trading`, symbol, symbol, symbol))
	params.Set("language", "en")
	params.Set("sortBy", "relevancy")
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))
	params.Set("pageSize", strconv.Itoa(c.pageSize))
	params.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("Failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("newsapi returned status %d: %s", resp.StatusCode, string(body))
	}

	var result newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode newsapi response: %w", err)
	}
	if result.Status == "error" {
		return nil, fmt.Errorf("newsapi error %s: %s", result.Code, result.Message)
	}

	articles := make([]Article, 0, len(result.Articles))
	for _, a := range result.Articles {
		published, err := time.Parse(time.RFC3339, a.PublishedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid publishedAt %q: %w", a.PublishedAt, err)
		}
		articles = append(articles, Article{
			Title:       a.Title,
			Description: a.Description,
			Source:      a.Source.Name,
			URL:         a.URL,
			PublishedAt: published,
		})
	}
	return articles, nil
}
