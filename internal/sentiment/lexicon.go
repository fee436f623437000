package sentiment

import (
	"strings"
	"unicode"
)

// Analyzer scores free text on a [-1, 1] polarity scale.
type Analyzer interface {
	Polarity(text string) float64
}

// Lexicon is a word-polarity analyzer. The score is the mean polarity of
// every lexicon hit, after intensifier and negation modifiers are applied.
type Lexicon struct {
	words        map[string]float64
	intensifiers map[string]float64
	negators     map[string]struct{}
}

var _ Analyzer = (*Lexicon)(nil)

var financialWords = map[string]float64{
	// bullish
	"good": 0.7, "great": 0.8, "excellent": 1.0, "strong": 0.43, "stronger": 0.5,
	"positive": 0.23, "gain": 0.4, "gains": 0.4, "gained": 0.4, "rise": 0.3,
	"rises": 0.3, "rising": 0.3, "rose": 0.3, "surge": 0.6, "surges": 0.6,
	"surged": 0.6, "soar": 0.7, "soars": 0.7, "soared": 0.7, "rally": 0.5,
	"rallies": 0.5, "jump": 0.4, "jumps": 0.4, "jumped": 0.4, "beat": 0.4,
	"beats": 0.4, "record": 0.3, "growth": 0.4, "grow": 0.3, "growing": 0.3,
	"profit": 0.4, "profitable": 0.5, "upgrade": 0.5, "upgraded": 0.5,
	"outperform": 0.5, "bullish": 0.7, "optimistic": 0.6, "boost": 0.4,
	"boosts": 0.4, "win": 0.6, "wins": 0.6, "success": 0.5, "successful": 0.75,
	"best": 1.0, "better": 0.5, "higher": 0.25, "high": 0.16, "up": 0.1,
	"recover": 0.3, "recovery": 0.3, "rebound": 0.4, "innovative": 0.5,
	"impressive": 0.8, "robust": 0.5, "expansion": 0.3, "dividend": 0.2,
	// bearish
	"bad": -0.7, "poor": -0.4, "weak": -0.38, "weaker": -0.4, "negative": -0.3,
	"loss": -0.4, "losses": -0.4, "lose": -0.4, "lost": -0.4, "fall": -0.3,
	"falls": -0.3, "falling": -0.3, "fell": -0.3, "drop": -0.3, "drops": -0.3,
	"dropped": -0.3, "decline": -0.4, "declines": -0.4, "declined": -0.4,
	"plunge": -0.7, "plunges": -0.7, "plunged": -0.7, "crash": -0.8,
	"crashes": -0.8, "slump": -0.6, "slumps": -0.6, "tumble": -0.6,
	"tumbles": -0.6, "miss": -0.4, "misses": -0.4, "missed": -0.4,
	"downgrade": -0.5, "downgraded": -0.5, "underperform": -0.5,
	"bearish": -0.7, "pessimistic": -0.6, "lawsuit": -0.5, "fraud": -0.8,
	"investigation": -0.4, "recall": -0.4, "layoffs": -0.5, "cut": -0.3,
	"cuts": -0.3, "risk": -0.2, "risky": -0.5, "concern": -0.3,
	"concerns": -0.3, "worse": -0.4, "worst": -1.0, "lower": -0.2,
	"low": -0.2, "down": -0.16, "fear": -0.5, "fears": -0.5, "volatile": -0.3,
	"selloff": -0.6, "sell-off": -0.6, "bankruptcy": -0.9, "warning": -0.4,
}

var intensifierWords = map[string]float64{
	"very": 1.3, "extremely": 1.5, "highly": 1.3, "sharply": 1.4,
	"significantly": 1.3, "slightly": 0.6, "somewhat": 0.7, "really": 1.2,
}

var negatorWords = []string{"not", "no", "never", "without", "hardly", "barely"}

// NewLexicon returns the default financial-news lexicon analyzer.
func NewLexicon() *Lexicon {
	return NewLexiconWithWords(financialWords)
}

// NewLexiconWithWords builds an analyzer over a custom word table.
func NewLexiconWithWords(words map[string]float64) *Lexicon {
	negators := make(map[string]struct{}, len(negatorWords))
	for _, w := range negatorWords {
		negators[w] = struct{}{}
	}
	return &Lexicon{
		words:        words,
		intensifiers: intensifierWords,
		negators:     negators,
	}
}

// Polarity returns the mean polarity of the lexicon words found in text.
// Text without any lexicon word scores 0.
func (l *Lexicon) Polarity(text string) float64 {
	tokens := tokenize(text)

	var sum float64
	var hits int
	for i, tok := range tokens {
		p, ok := l.words[tok]
		if !ok {
			continue
		}

		if i > 0 {
			if m, ok := l.intensifiers[tokens[i-1]]; ok {
				p *= m
			}
		}
		if l.negated(tokens, i) {
			p *= -0.5
		}

		sum += p
		hits++
	}

	if hits == 0 {
		return 0
	}
	return clamp(sum/float64(hits), -1, 1)
}

// negated reports whether one of the two tokens before i flips polarity.
func (l *Lexicon) negated(tokens []string, i int) bool {
	for j := i - 1; j >= 0 && j >= i-2; j-- {
		if _, ok := l.negators[tokens[j]]; ok {
			return true
		}
		if strings.HasSuffix(tokens[j], "n't") {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\'' && r != '-'
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
