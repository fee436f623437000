package recommend

import (
	"fmt"
	"math"
	"strings"

	"github.com/ajitpratap0/portfoliobuddy/internal/market"
	"github.com/ajitpratap0/portfoliobuddy/internal/news"
	"github.com/ajitpratap0/portfoliobuddy/internal/portfolio"
	"github.com/ajitpratap0/portfoliobuddy/internal/sentiment"
)

const (
	// MovementThreshold is the absolute daily change percent that turns a
	// hold into a buy or sell.
	MovementThreshold = 5.0
	// GainThreshold and LossThreshold are the holding returns, in percent,
	// at which the holder's position is called out.
	GainThreshold = 20.0
	LossThreshold = -20.0

	MinConfidence = 0.1
	MaxConfidence = 1.0
)

// Recommendation is the engine's output.
type Recommendation struct {
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Recommend is a pure function of its inputs. The headlines are accepted
// but the rules only use the aggregated mood. holding may be nil.
func Recommend(q market.Quote, mood sentiment.Sentiment, _ []news.Item, holding *portfolio.Holding) Recommendation {
	var (
		action     Action
		confidence float64
		reasons    []string
	)

	switch {
	case q.ChangePercent > MovementThreshold:
		action, confidence = Buy, 0.7
		reasons = append(reasons, fmt.Sprintf("Price is up %.1f%%", q.ChangePercent))
	case q.ChangePercent < -MovementThreshold:
		action, confidence = Sell, 0.7
		reasons = append(reasons, fmt.Sprintf("Price is down %.1f%%", math.Abs(q.ChangePercent)))
	default:
		action, confidence = Hold, 0.5
		reasons = append(reasons, "Price is relatively stable")
	}

	switch mood {
	case sentiment.Positive:
		switch action {
		case Buy:
			confidence = math.Min(confidence+0.2, 1.0)
		case Sell:
			action = Hold
			confidence = math.Max(confidence-0.2, 0.1)
		}
		reasons = append(reasons, "Positive news sentiment")
	case sentiment.Negative:
		switch action {
		case Sell:
			confidence = math.Min(confidence+0.2, 1.0)
		case Buy:
			action = Hold
			confidence = math.Max(confidence-0.2, 0.1)
		}
		reasons = append(reasons, "Negative news sentiment")
	}

	if holding != nil && holding.GainLossPercent != nil {
		pct := *holding.GainLossPercent
		switch {
		case pct > GainThreshold:
			reasons = append(reasons, fmt.Sprintf("You have %.1f%% gains", pct))
			if action == Buy {
				action = Hold
				confidence = math.Max(confidence-0.1, 0.3)
			}
		case pct < LossThreshold:
			reasons = append(reasons, fmt.Sprintf("You have %.1f%% losses", math.Abs(pct)))
		}
	}

	return Recommendation{
		Action:     action,
		Confidence: clamp(confidence, MinConfidence, MaxConfidence),
		Reasoning:  strings.Join(reasons, ". ") + ".",
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
