package news

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const defaultYahooRSSURL = "https://feeds.finance.yahoo.com/rss/2.0/headline"

// YahooRSS reads the Yahoo Finance headline feed for a ticker.
type YahooRSS struct {
	feedURL string
	timeout time.Duration
	parser  *gofeed.Parser
}

func NewYahooRSS(feedURL string, timeout time.Duration) *YahooRSS {
	if feedURL == "" {
		feedURL = defaultYahooRSSURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &YahooRSS{
		feedURL: feedURL,
		timeout: timeout,
		parser:  gofeed.NewParser(),
	}
}

func (y *YahooRSS) Name() string { return "yahoo_rss" }

// Articles ignores the date window; the feed only carries recent items.
func (y *YahooRSS) Articles(ctx context.Context, symbol string, _, _ time.Time) ([]Article, error) {
	params := url.Values{}
	params.Set("s", symbol)
	params.Set("region", "US")
	params.Set("lang", "en-US")

	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	feed, err := y.parser.ParseURLWithContext(y.feedURL+"?"+params.Encode(), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse yahoo rss: %w", err)
	}
	if len(feed.Items) == 0 {
		return nil, ErrNoArticles
	}

	source := "Yahoo Finance"
	if feed.Title != "" {
		source = feed.Title
	}

	articles := make([]Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		a := Article{
			Title:       strings.TrimSpace(item.Title),
			Description: cleanHTML(item.Description),
			Source:      source,
			URL:         item.Link,
		}
		if item.PublishedParsed != nil {
			a.PublishedAt = *item.PublishedParsed
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// cleanHTML strips markup from a feed description.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}
