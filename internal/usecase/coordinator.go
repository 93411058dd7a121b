package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"BarSync/internal/domain/models"
	drepo "BarSync/internal/domain/repository"
	"BarSync/internal/service/ratelimit"
	"BarSync/pkg/logger"
)

// FetchState is a state of the per-identifier fetch machine.
type FetchState int

const (
	StateTryPrimary FetchState = iota
	StateTrySecondary
	StateNormalize
	StateDone
	StateGiveUp
)

func (s FetchState) String() string {
	switch s {
	case StateTryPrimary:
		return "TryPrimary"
	case StateTrySecondary:
		return "TrySecondary"
	case StateNormalize:
		return "Normalize"
	case StateDone:
		return "Done"
	case StateGiveUp:
		return "GiveUp"
	default:
		return fmt.Sprintf("FetchState(%d)", int(s))
	}
}

// FetchResult is the winning backend's normalized bars.
type FetchResult struct {
	Backend  models.BackendName
	Bars     []models.Bar
	Attempts int
}

// Fetcher is what the orchestrator needs from the coordinator.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) (*FetchResult, error)
}

// FetchCoordinator walks backends in policy order, retrying whole rounds
// until one backend yields at least two normalized periods.
type FetchCoordinator struct {
	policy      RetryPolicy
	sources     map[models.BackendName]drepo.Source
	normalizer  *Normalizer
	granularity drepo.Granularity
	sleep       Sleeper
	limiter     *ratelimit.Limiter
	metrics     drepo.Metrics
	log         *logger.Logger
}

type CoordinatorOption func(*FetchCoordinator)

// WithSleeper replaces the context-aware sleep between attempts.
func WithSleeper(s Sleeper) CoordinatorOption {
	return func(c *FetchCoordinator) { c.sleep = s }
}

// WithRequestLimiter paces every backend call through l.
func WithRequestLimiter(l *ratelimit.Limiter) CoordinatorOption {
	return func(c *FetchCoordinator) { c.limiter = l }
}

func WithCoordinatorMetrics(m drepo.Metrics) CoordinatorOption {
	return func(c *FetchCoordinator) { c.metrics = m }
}

func WithGranularity(g drepo.Granularity) CoordinatorOption {
	return func(c *FetchCoordinator) { c.granularity = g }
}

func NewFetchCoordinator(policy RetryPolicy, sources []drepo.Source, normalizer *Normalizer, log *logger.Logger, opts ...CoordinatorOption) (*FetchCoordinator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	c := &FetchCoordinator{
		policy:      policy,
		sources:     make(map[models.BackendName]drepo.Source, len(sources)),
		normalizer:  normalizer,
		granularity: drepo.Monthly,
		sleep:       contextSleep,
		metrics:     nopMetrics{},
		log:         log,
	}
	for _, s := range sources {
		c.sources[s.Name()] = s
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, b := range policy.Backends {
		if _, ok := c.sources[b]; !ok {
			return nil, fmt.Errorf("retry policy %q needs backend %q", policy.Name, b)
		}
	}
	return c, nil
}

// Fetch runs TryPrimary -> TrySecondary -> Normalize -> Done | GiveUp.
// Results from different backends are never merged.
func (c *FetchCoordinator) Fetch(ctx context.Context, symbol string, start, end time.Time) (*FetchResult, error) {
	var (
		attempt = 1
		idx     = 0
		state   = stateAt(0)
		last    models.FetchOutcome
		bars    []models.Bar
		delays  = c.policy.BackOff()
	)
	log := c.log.With(logger.String("symbol", symbol))

	// advance moves to the next backend, the next attempt, or GiveUp.
	advance := func() error {
		idx++
		if idx < len(c.policy.Backends) {
			state = stateAt(idx)
			return nil
		}
		if attempt >= c.policy.MaxAttempts {
			state = StateGiveUp
			return nil
		}
		d := delays.NextBackOff()
		if d == backoff.Stop {
			state = StateGiveUp
			return nil
		}
		log.Debug("retrying after delay", logger.Int("attempt", attempt), logger.Duration("delay_ms", d))
		if err := c.sleep(ctx, d); err != nil {
			return err
		}
		attempt++
		idx = 0
		state = stateAt(0)
		return nil
	}

	for {
		switch state {
		case StateTryPrimary, StateTrySecondary:
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("fetch %s: %w", symbol, err)
			}
			backend := c.policy.Backends[idx]
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return nil, fmt.Errorf("fetch %s: %w", symbol, err)
				}
			}
			last = c.sources[backend].Fetch(ctx, symbol, start, end)
			if last.Kind == models.FetchSuccess && len(last.Rows) < 2 {
				last = models.Empty(backend, fmt.Sprintf("%d rows", len(last.Rows)))
			}
			c.metrics.RecordFetchAttempt(backend, last.Kind)

			if last.Kind == models.FetchSuccess {
				state = StateNormalize
				continue
			}
			log.Debug("backend attempt failed",
				logger.String("backend", string(backend)),
				logger.String("kind", last.Kind.String()),
				logger.Int("attempt", attempt),
				logger.Error(last.Err),
			)
			if err := advance(); err != nil {
				return nil, fmt.Errorf("fetch %s: %w", symbol, err)
			}

		case StateNormalize:
			var err error
			bars, err = c.normalizer.Normalize(c.granularity, symbol, last.Rows)
			if err != nil {
				// too few periods counts as an empty result for this backend
				last = models.Empty(last.Backend, err.Error())
				if err := advance(); err != nil {
					return nil, fmt.Errorf("fetch %s: %w", symbol, err)
				}
				continue
			}
			state = StateDone

		case StateDone:
			return &FetchResult{Backend: last.Backend, Bars: bars, Attempts: attempt}, nil

		case StateGiveUp:
			return nil, fmt.Errorf("%w: %s after %d attempts: %w", models.ErrDownloadFailed, symbol, attempt, last.Err)
		}
	}
}

func stateAt(idx int) FetchState {
	if idx == 0 {
		return StateTryPrimary
	}
	return StateTrySecondary
}
