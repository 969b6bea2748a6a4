// File: internal/retry/retry.go
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/xkilldash9x/verify-cli/internal/config"
)

// Strategy selects how the delay between attempts evolves.
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"
	StrategyExponential Strategy = "exponential"
)

// jitterFactor spreads a jittered delay d over [d/2, 3d/2].
const jitterFactor = 0.5

// Policy is a bounded retry policy. MaxAttempts counts every call, including the first.
type Policy struct {
	MaxAttempts  int
	Strategy     Strategy
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// Fixed returns a policy that makes up to attempts calls with a constant delay between them.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Strategy: StrategyFixed, InitialDelay: delay}
}

// FromConfig builds the navigation retry policy from runner configuration.
func FromConfig(cfg config.RunnerConfig) Policy {
	return Policy{
		MaxAttempts:  cfg.MaxAttempts,
		Strategy:     Strategy(strings.ToLower(cfg.Backoff.Strategy)),
		InitialDelay: cfg.RetryDelay(),
		MaxDelay:     time.Duration(cfg.Backoff.MaxDelayMs) * time.Millisecond,
		Multiplier:   cfg.Backoff.Multiplier,
		Jitter:       cfg.Backoff.Jitter,
	}
}

// Validate checks the policy for usable values.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 || p.MaxDelay < 0 {
		return errors.New("delays must not be negative")
	}
	switch p.Strategy {
	case StrategyFixed, "":
	case StrategyExponential:
		if p.Multiplier < 1.0 {
			return fmt.Errorf("exponential multiplier must be at least 1.0, got %v", p.Multiplier)
		}
	default:
		return fmt.Errorf("unknown retry strategy %q", p.Strategy)
	}
	return nil
}

// BackOff returns a fresh, unbounded delay schedule for the policy. The first
// NextBackOff is the wait between the first and second attempts.
func (p Policy) BackOff() backoff.BackOff {
	initial := p.InitialDelay
	if initial < 0 {
		initial = 0
	}
	if p.MaxDelay > 0 && initial > p.MaxDelay {
		initial = p.MaxDelay
	}

	multiplier := 1.0
	if p.Strategy == StrategyExponential {
		multiplier = p.Multiplier
	} else if !p.Jitter {
		return backoff.NewConstantBackOff(initial)
	}

	maxInterval := time.Duration(math.MaxInt64)
	if p.MaxDelay > 0 {
		maxInterval = p.MaxDelay
	}
	randomization := 0.0
	if p.Jitter {
		randomization = jitterFactor
	}
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initial),
		backoff.WithMultiplier(multiplier),
		backoff.WithMaxInterval(maxInterval),
		backoff.WithRandomizationFactor(randomization),
		backoff.WithMaxElapsedTime(0),
	)
}

// Delay returns the wait before retry n, where n=1 is the wait between the first and
// second attempts.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	b := p.BackOff()
	var d time.Duration
	for i := 0; i < n; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Do calls fn until it succeeds, the policy is exhausted or ctx is done. It waits
// exactly once between consecutive attempts and never after the last one. A nil
// timer waits in real time. It returns the number of attempts made and, on failure,
// the last error from fn.
func Do(ctx context.Context, p Policy, timer backoff.Timer, fn func(ctx context.Context, attempt int) error) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, fmt.Errorf("invalid retry policy: %w", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.BackOff(), uint64(p.MaxAttempts-1)), ctx)

	attempts := 0
	var lastErr error
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		lastErr = fn(ctx, attempts)
		return lastErr
	}

	if err := backoff.RetryNotifyWithTimer(operation, b, nil, timer); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempts, abortErr(ctxErr, lastErr)
		}
		return attempts, err
	}
	return attempts, nil
}

func abortErr(ctxErr, lastErr error) error {
	if lastErr == nil {
		return ctxErr
	}
	return fmt.Errorf("%w (last error: %v)", ctxErr, lastErr)
}
