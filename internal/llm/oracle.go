// Package llm provides the language-model oracle used for intent
// classification and reply synthesis, plus a tolerant parser for the
// structured records the model is asked to emit.
package llm

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/portfoliobuddy/internal/metrics"
)

// Oracle turns a prompt into free text.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, prompt string) (string, error)

func (f OracleFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// BreakerOracle guards an Oracle with a circuit breaker and records error
// metrics.
type BreakerOracle struct {
	next    Oracle
	breaker *gobreaker.CircuitBreaker
}

var _ Oracle = (*BreakerOracle)(nil)

// WithBreaker wraps next. A nil breaker only adds metrics.
func WithBreaker(next Oracle, breaker *gobreaker.CircuitBreaker) *BreakerOracle {
	return &BreakerOracle{next: next, breaker: breaker}
}

func (o *BreakerOracle) Generate(ctx context.Context, prompt string) (string, error) {
	var (
		text string
		err  error
	)
	if o.breaker == nil {
		text, err = o.next.Generate(ctx, prompt)
	} else {
		var out interface{}
		out, err = o.breaker.Execute(func() (interface{}, error) {
			return o.next.Generate(ctx, prompt)
		})
		if err == nil {
			text = out.(string)
		}
	}

	if err != nil {
		metrics.RecordOracleError(err)
		metrics.RecordGatewayFailure(metrics.GatewayOracle)
		log.Warn().Err(err).Msg("Oracle call failed")
		return "", err
	}
	return text, nil
}
