package sentiment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		polarity float64
		want     Sentiment
	}{
		{"strongly positive", 0.8, Positive},
		{"just above threshold", 0.1001, Positive},
		{"at positive threshold", 0.1, Neutral},
		{"zero", 0, Neutral},
		{"at negative threshold", -0.1, Neutral},
		{"just below threshold", -0.1001, Negative},
		{"strongly negative", -0.9, Negative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.polarity))
		})
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		labels []Sentiment
		want   Sentiment
	}{
		{"empty is neutral", nil, Neutral},
		{"positive majority", []Sentiment{Positive, Positive, Negative}, Positive},
		{"negative majority", []Sentiment{Negative, Neutral, Negative, Positive}, Negative},
		{"tie is neutral", []Sentiment{Positive, Negative}, Neutral},
		{"neutrals do not vote", []Sentiment{Neutral, Neutral, Neutral, Positive}, Positive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.labels))
		})
	}
}

func TestSentimentLabelsAndEmoji(t *testing.T) {
	assert.Equal(t, "positive", Positive.String())
	assert.Equal(t, "neutral", Neutral.String())
	assert.Equal(t, "negative", Negative.String())

	assert.Equal(t, "🟢", Positive.Emoji())
	assert.Equal(t, "🟡", Neutral.Emoji())
	assert.Equal(t, "🔴", Negative.Emoji())
}

func TestSentimentJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Sentiment{"s": Negative})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"negative"}`, string(data))

	var out map[string]Sentiment
	require.NoError(t, json.Unmarshal([]byte(`{"s":"positive"}`), &out))
	assert.Equal(t, Positive, out["s"])

	assert.Error(t, json.Unmarshal([]byte(`{"s":"ecstatic"}`), &out))
}

func TestLexiconPolarity(t *testing.T) {
	lex := NewLexicon()

	t.Run("no lexicon words scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, lex.Polarity("Apple announces event date"))
		assert.Equal(t, 0.0, lex.Polarity(""))
	})

	t.Run("bullish headline is positive", func(t *testing.T) {
		p := lex.Polarity("Apple shares surge after strong earnings beat")
		assert.Greater(t, p, PositiveThreshold)
		assert.Equal(t, Positive, Classify(p))
	})

	t.Run("bearish headline is negative", func(t *testing.T) {
		p := lex.Polarity("Tesla stock plunges as deliveries miss estimates")
		assert.Less(t, p, NegativeThreshold)
		assert.Equal(t, Negative, Classify(p))
	})

	t.Run("negation flips polarity", func(t *testing.T) {
		assert.Less(t, lex.Polarity("results were not good"), 0.0)
		assert.Less(t, lex.Polarity("the outlook isn't great"), 0.0)
	})

	t.Run("intensifier scales polarity", func(t *testing.T) {
		plain := lex.Polarity("a good quarter")
		boosted := lex.Polarity("a very good quarter")
		assert.Greater(t, boosted, plain)
	})

	t.Run("score stays within bounds", func(t *testing.T) {
		p := lex.Polarity("extremely excellent extremely best")
		assert.LessOrEqual(t, p, 1.0)
		p = lex.Polarity("extremely worst extremely crash")
		assert.GreaterOrEqual(t, p, -1.0)
	})
}

func TestLexiconCustomWords(t *testing.T) {
	lex := NewLexiconWithWords(map[string]float64{"moon": 1.0})
	assert.Equal(t, 1.0, lex.Polarity("to the moon"))
	assert.Equal(t, 0.0, lex.Polarity("surge rally"))
}
