// Package planner turns utterances the slot extractor could not match into
// plan proposals. Providers are tried in order: a primary model returning
// dispatchable operations, a secondary model returning descriptive steps and
// a local heuristic that always answers.
package planner

import (
	"context"
	"time"

	"github.com/intentfi/intentfi/internal/circuitbreaker"
	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/intent"
	"github.com/intentfi/intentfi/internal/metrics"
	"go.uber.org/zap"
)

// Provider is one tier of the plan generator.
type Provider interface {
	Name() string
	Generate(ctx context.Context, utterance string, chainID int64) (intent.Proposal, error)
}

type tier struct {
	provider Provider
	breaker  *circuitbreaker.CircuitBreaker
}

// Chain tries each provider in order until one returns a usable proposal.
type Chain struct {
	tiers   []tier
	timeout time.Duration
	logger  *zap.Logger
}

func NewChain(timeout time.Duration, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{timeout: timeout, logger: logger}
}

// Add appends a provider. A nil breaker means the tier is always tried.
func (c *Chain) Add(p Provider, breaker *circuitbreaker.CircuitBreaker) *Chain {
	c.tiers = append(c.tiers, tier{provider: p, breaker: breaker})
	return c
}

// Providers lists the registered tier names in order.
func (c *Chain) Providers() []string {
	out := make([]string, 0, len(c.tiers))
	for _, t := range c.tiers {
		out = append(out, t.provider.Name())
	}
	return out
}

// GeneratePlan implements intent.Planner. It fails only when every tier
// failed or was skipped.
func (c *Chain) GeneratePlan(ctx context.Context, utterance string, chainID int64) (intent.Proposal, error) {
	var lastErr error
	for _, t := range c.tiers {
		name := t.provider.Name()
		if t.breaker != nil && t.breaker.IsOpen() {
			metrics.PlanProviderAttempts.WithLabelValues(name, "skipped").Inc()
			c.logger.Debug("plan provider skipped, breaker open", zap.String("provider", name))
			continue
		}

		proposal, err := c.try(ctx, t.provider, utterance, chainID)
		if err == nil && len(proposal.Operations) == 0 && len(proposal.Steps) == 0 {
			err = clierr.New(clierr.CodePlanGeneration, name+" returned no steps")
		}
		if err != nil {
			lastErr = err
			metrics.PlanProviderAttempts.WithLabelValues(name, "failure").Inc()
			if t.breaker != nil {
				t.breaker.RecordFailure()
			}
			c.logger.Warn("plan provider failed", zap.String("provider", name), zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		metrics.PlanProviderAttempts.WithLabelValues(name, "success").Inc()
		if t.breaker != nil {
			t.breaker.RecordSuccess()
		}
		if proposal.Source == "" {
			proposal.Source = name
		}
		return proposal, nil
	}
	if lastErr == nil {
		return intent.Proposal{}, clierr.New(clierr.CodePlanGeneration, "no plan provider available")
	}
	return intent.Proposal{}, clierr.Wrap(clierr.CodePlanGeneration, "all plan providers failed", lastErr)
}

func (c *Chain) try(ctx context.Context, p Provider, utterance string, chainID int64) (intent.Proposal, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return p.Generate(ctx, utterance, chainID)
}
