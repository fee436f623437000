// Package news fetches recent headlines for a ticker and scores each one
// for sentiment and relevance.
package news

import (
	"context"
	"errors"
	"time"

	"github.com/ajitpratap0/portfoliobuddy/internal/sentiment"
)

// ErrNoArticles is returned by a Source that answered but had nothing.
var ErrNoArticles = errors.New("no articles")

// Item is a scored headline.
type Item struct {
	Title       string              `json:"title"`
	Content     string              `json:"content"`
	Source      string              `json:"source"`
	URL         string              `json:"url"`
	PublishedAt time.Time           `json:"published_at"`
	Sentiment   sentiment.Sentiment `json:"sentiment"`
	Relevance   float64             `json:"relevance_score"`
}

// Article is an unscored headline as returned by a Source.
type Article struct {
	Title       string
	Description string
	Source      string
	URL         string
	PublishedAt time.Time
}

// Source returns headlines about symbol published in [from, to].
type Source interface {
	Name() string
	Articles(ctx context.Context, symbol string, from, to time.Time) ([]Article, error)
}
