package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	Intent  *string  `json:"intent"`
	Symbols []string `json:"symbols"`
}

func (r *testRecord) Validate() error {
	if r.Intent == nil {
		return errors.New("intent missing")
	}
	return nil
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		ok     bool
		intent string
	}{
		{"bare object", `{"intent":"greeting","symbols":[]}`, true, "greeting"},
		{"surrounding prose", `Sure! Here you go: {"intent":"stock_analysis","symbols":["AAPL"]} Hope that helps.`, true, "stock_analysis"},
		{"json fence", "```json\n{\"intent\":\"portfolio_query\"}\n```", true, "portfolio_query"},
		{"plain fence", "```\n{\"intent\":\"greeting\"}\n```", true, "greeting"},
		{"braces inside strings", `{"intent":"gen{eral}","symbols":["}"]}`, true, "gen{eral}"},
		{"nested object first wins", `{"intent":"a","meta":{"x":1}} {"intent":"b"}`, true, "a"},
		{"no object", `I cannot help with that.`, false, ""},
		{"unbalanced", `{"intent":"greeting"`, false, ""},
		{"invalid json", `{intent: greeting}`, false, ""},
		{"validator rejects", `{"symbols":["AAPL"]}`, false, ""},
		{"empty", ``, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseRecord[testRecord](tt.text)
			if !tt.ok {
				assert.Equal(t, ParseFailed, res.Status)
				assert.False(t, res.OK())
				assert.Error(t, res.Err)
				return
			}
			require.Equal(t, ParsedOK, res.Status, "err: %v", res.Err)
			require.NotNil(t, res.Record.Intent)
			assert.Equal(t, tt.intent, *res.Record.Intent)
		})
	}
}

func TestParseRecord_MapTarget(t *testing.T) {
	res := ParseRecord[map[string]any](`result: {"a": 1}`)
	require.True(t, res.OK())
	assert.Equal(t, float64(1), res.Record["a"])
}

func TestParseStatusString(t *testing.T) {
	assert.Equal(t, "parsed_ok", ParsedOK.String())
	assert.Equal(t, "parse_failed", ParseFailed.String())
}

func TestExtractJSONFromMarkdown(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSONFromMarkdown("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `no fence`, extractJSONFromMarkdown("  no fence  "))
}
