// Package recommend turns a quote, a news mood and an optional holding
// into a buy/sell/hold/watch stance.
package recommend

import (
	"fmt"
	"strings"
)

// Action is a recommended stance on a symbol.
type Action int

const (
	Hold Action = iota
	Buy
	Sell
	Watch
)

func (a Action) String() string {
	switch a {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	case Hold:
		return "hold"
	case Watch:
		return "watch"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Upper returns the label as shown to users, e.g. "BUY".
func (a Action) Upper() string {
	return strings.ToUpper(a.String())
}

// Emoji returns the chat marker for the action.
func (a Action) Emoji() string {
	switch a {
	case Buy:
		return "📈"
	case Sell:
		return "📉"
	case Hold:
		return "⏸️"
	case Watch:
		return "👀"
	}
	return ""
}

// ParseAction reads an action label case-insensitively.
func ParseAction(label string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	case "hold":
		return Hold, nil
	case "watch":
		return Watch, nil
	}
	return Hold, fmt.Errorf("unknown action %q", label)
}

// MarshalText encodes the action as its lowercase label.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a label written by MarshalText.
func (a *Action) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
