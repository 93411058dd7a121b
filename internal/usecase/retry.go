package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"BarSync/internal/domain/models"
)

const (
	PolicyPrimaryOnly          = "primary-only"
	PolicySecondaryOnly        = "secondary-only"
	PolicyPrimaryThenSecondary = "primary-then-secondary"
)

// RetryPolicy declares backend order, attempt cap and the inter-attempt delay.
type RetryPolicy struct {
	Name        string
	Backends    []models.BackendName
	MaxAttempts int
	Delay       time.Duration
	Exponential bool
	MaxDelay    time.Duration
}

// PolicyByName resolves one of the named policies.
func PolicyByName(name string, maxAttempts int, delay time.Duration) (RetryPolicy, error) {
	p := RetryPolicy{Name: name, MaxAttempts: maxAttempts, Delay: delay}
	switch name {
	case PolicyPrimaryOnly:
		p.Backends = []models.BackendName{models.BackendHistory}
	case PolicySecondaryOnly:
		p.Backends = []models.BackendName{models.BackendChart}
	case PolicyPrimaryThenSecondary, "":
		p.Name = PolicyPrimaryThenSecondary
		p.Backends = []models.BackendName{models.BackendHistory, models.BackendChart}
	default:
		return RetryPolicy{}, fmt.Errorf("unknown retry policy %q", name)
	}
	return p, p.Validate()
}

func (p RetryPolicy) Validate() error {
	if len(p.Backends) == 0 {
		return fmt.Errorf("retry policy %q has no backends", p.Name)
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy %q: max attempts must be >= 1", p.Name)
	}
	if p.Delay < 0 {
		return fmt.Errorf("retry policy %q: negative delay", p.Name)
	}
	return nil
}

// BackOff returns a fresh delay schedule for one identifier. Attempt capping
// is done by the coordinator, not by the schedule.
func (p RetryPolicy) BackOff() backoff.BackOff {
	if !p.Exponential || p.Delay <= 0 {
		return backoff.NewConstantBackOff(p.Delay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval < p.Delay {
		b.MaxInterval = p.Delay
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
