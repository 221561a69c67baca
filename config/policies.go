package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/gaborage/go-retryhttp/retry"
)

// Build turns the policy chain into retry policies, in configured order.
func (r RetryConfig) Build() ([]retry.Policy, error) {
	policies := make([]retry.Policy, 0, len(r.Policies))
	for i, pc := range r.Policies {
		p, err := pc.Build()
		var ce *ConfigError
		if errors.As(err, &ce) {
			return nil, ce.atPolicy(i)
		}
		if err != nil {
			return nil, fmt.Errorf("retry.policies[%d]: %w", i, err)
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// Build creates the policy described by p.
func (p PolicyConfig) Build() (retry.Policy, error) {
	var policy retry.Policy
	switch p.Type {
	case PolicyNever:
		policy = retry.Never
	case PolicyFixed:
		if len(p.Intervals) == 0 {
			return retry.Policy{}, NewMissingFieldError("intervals", envVarFor("intervals"), "intervals")
		}
		policy = retry.FixedIntervals(p.condition(), p.Intervals...)
	case PolicyComputed:
		delay := retry.Exponential(p.BaseDelay, p.MaxDelay)
		if p.RetryAfter {
			delay = retry.RetryAfter(delay, p.maxDelay())
		}
		policy = retry.ComputedDelay(p.MaxRetries, p.condition(), delay)
	default:
		return retry.Policy{}, NewInvalidFieldError("type", fmt.Sprintf("unknown policy type %q", p.Type),
			[]string{PolicyFixed, PolicyComputed, PolicyNever})
	}

	if p.Name != "" {
		policy = policy.Named(p.Name)
	}
	return policy, nil
}

func (p PolicyConfig) condition() retry.Condition {
	var conds []retry.Condition
	if len(p.Statuses) > 0 {
		conds = append(conds, retry.OnStatus(p.Statuses...))
	}
	if p.ServerErrors {
		conds = append(conds, retry.OnServerError())
	}
	if p.TransportErrors {
		conds = append(conds, retry.OnTransportError())
	}
	if p.Timeouts {
		conds = append(conds, retry.OnTimeout())
	}
	if len(conds) == 0 {
		return retry.Transient()
	}
	return retry.Any(conds...)
}

func (p PolicyConfig) maxDelay() time.Duration {
	if p.MaxDelay > 0 {
		return p.MaxDelay
	}
	return 30 * time.Second
}
