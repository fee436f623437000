// Package sentiment scores the polarity of news text and aggregates
// per-article labels into a single market mood.
package sentiment

import (
	"fmt"
	"strings"
)

// Sentiment is a three-valued polarity label.
type Sentiment int

const (
	Neutral Sentiment = iota
	Positive
	Negative
)

// Polarity thresholds. Scores strictly above PositiveThreshold are positive,
// strictly below NegativeThreshold are negative.
const (
	PositiveThreshold = 0.1
	NegativeThreshold = -0.1
)

func (s Sentiment) String() string {
	switch s {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	case Neutral:
		return "neutral"
	}
	return fmt.Sprintf("sentiment(%d)", int(s))
}

// Emoji returns the display marker used in replies.
func (s Sentiment) Emoji() string {
	switch s {
	case Positive:
		return "🟢"
	case Negative:
		return "🔴"
	case Neutral:
		return "🟡"
	}
	return ""
}

// Parse converts a label back into a Sentiment.
func Parse(label string) (Sentiment, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "positive":
		return Positive, nil
	case "negative":
		return Negative, nil
	case "neutral", "":
		return Neutral, nil
	}
	return Neutral, fmt.Errorf("unknown sentiment %q", label)
}

// MarshalText implements encoding.TextMarshaler.
func (s Sentiment) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Sentiment) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Classify maps a polarity score in [-1, 1] onto a label.
func Classify(polarity float64) Sentiment {
	switch {
	case polarity > PositiveThreshold:
		return Positive
	case polarity < NegativeThreshold:
		return Negative
	default:
		return Neutral
	}
}

// Aggregate takes a majority vote over labels. Ties and empty input are
// neutral.
func Aggregate(labels []Sentiment) Sentiment {
	var pos, neg int
	for _, l := range labels {
		switch l {
		case Positive:
			pos++
		case Negative:
			neg++
		}
	}
	switch {
	case pos > neg:
		return Positive
	case neg > pos:
		return Negative
	default:
		return Neutral
	}
}
