// Package generator wraps the chat model behind a timeout, a circuit
// breaker, and at most one retry.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kalambet/hrassist/internal/engine"
	"github.com/kalambet/hrassist/internal/metrics"
)

// ErrModelUnavailable wraps every failure to get a completion.
var ErrModelUnavailable = errors.New("assistant unavailable")

const (
	DefaultTimeout     = 120 * time.Second
	DefaultTemperature = 0.3

	defaultTripAfter    = 5
	defaultCooldown     = 30 * time.Second
	defaultRetryBackoff = 500 * time.Millisecond
)

// Chatter is the chat half of engine.Engine.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, opts engine.ChatOptions) (string, error)
}

// Generator sends prompts to one chat model.
type Generator struct {
	chatter      Chatter
	model        string
	timeout      time.Duration
	temperature  *float64
	retryBackoff time.Duration
	tripAfter    uint32
	cooldown     time.Duration
	breaker      *gobreaker.CircuitBreaker
	logger       *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRetryBackoff sets the pause before the single retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(g *Generator) { g.retryBackoff = d }
}

// WithBreaker opens the circuit after tripAfter consecutive failures and
// keeps it open for cooldown.
func WithBreaker(tripAfter uint32, cooldown time.Duration) Option {
	return func(g *Generator) {
		if tripAfter > 0 {
			g.tripAfter = tripAfter
		}
		if cooldown > 0 {
			g.cooldown = cooldown
		}
	}
}

// New creates a Generator for model.
func New(chatter Chatter, model string, opts ...Option) *Generator {
	g := &Generator{
		chatter:      chatter,
		model:        model,
		timeout:      DefaultTimeout,
		temperature:  engine.Float64(DefaultTemperature),
		retryBackoff: defaultRetryBackoff,
		tripAfter:    defaultTripAfter,
		cooldown:     defaultCooldown,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "chat-model",
		MaxRequests: 1,
		Timeout:     g.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= g.tripAfter
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return g
}

// Complete returns the model's reply to messages. A transient failure is
// retried once; every error returned wraps ErrModelUnavailable.
func (g *Generator) Complete(ctx context.Context, messages []engine.Message) (string, error) {
	text, err := g.call(ctx, messages)
	if err != nil && g.retryable(ctx, err) {
		g.logger.Warn("retrying model call", "model", g.model, "error", err)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", ErrModelUnavailable, ctx.Err())
		case <-time.After(g.retryBackoff):
		}
		text, err = g.call(ctx, messages)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return text, nil
}

func (g *Generator) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	return engine.IsTransient(err)
}

func (g *Generator) call(ctx context.Context, messages []engine.Message) (string, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		start := time.Now()
		text, err := g.chatter.Chat(callCtx, g.model, messages, engine.ChatOptions{Temperature: g.temperature})
		metrics.ObserveModelCall("chat", start, err)
		return text, err
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State reports the circuit breaker state ("closed", "half-open", "open").
func (g *Generator) State() string {
	return g.breaker.State().String()
}
