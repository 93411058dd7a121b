package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarSync/internal/domain/models"
	drepo "BarSync/internal/domain/repository"
	"BarSync/pkg/logger"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newCoordinator(t *testing.T, policy RetryPolicy, sleeper *recordingSleeper, sources ...drepo.Source) *FetchCoordinator {
	t.Helper()
	c, err := NewFetchCoordinator(policy, sources,
		NewNormalizer(fixedClock(day(2024, 6, 15)), false),
		logger.Nop(),
		WithSleeper(sleeper.Sleep),
	)
	require.NoError(t, err)
	return c
}

func threeMonths() []models.DailyBar {
	return []models.DailyBar{
		daily(day(2024, 1, 31), 10),
		daily(day(2024, 2, 29), 11),
		daily(day(2024, 3, 31), 12),
	}
}

func TestFetchCoordinator_FallsBackToSecondary(t *testing.T) {
	a := &fakeSource{name: models.BackendHistory, outcomes: []models.FetchOutcome{models.Empty(models.BackendHistory, "no rows")}}
	b := &fakeSource{name: models.BackendChart, outcomes: []models.FetchOutcome{models.Success(models.BackendChart, threeMonths())}}
	sleeper := &recordingSleeper{}

	policy, err := PolicyByName(PolicyPrimaryThenSecondary, 3, time.Second)
	require.NoError(t, err)
	res, err := newCoordinator(t, policy, sleeper, a, b).Fetch(context.Background(), "AAA", day(2024, 1, 1), day(2024, 3, 31))
	require.NoError(t, err)

	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 1, b.Calls())
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, models.BackendChart, res.Backend)
	assert.Equal(t, 1, res.Attempts)
	require.Len(t, res.Bars, 3)
	for i, d := range []time.Time{day(2024, 1, 31), day(2024, 2, 29), day(2024, 3, 31)} {
		assert.Equal(t, d, res.Bars[i].PeriodEnd)
		assert.True(t, threeMonths()[i].Close.Decimal.Equal(res.Bars[i].Close))
	}
}

func TestFetchCoordinator_GivesUpAfterMaxAttempts(t *testing.T) {
	a := &fakeSource{name: models.BackendHistory, outcomes: []models.FetchOutcome{failing(models.BackendHistory)}}
	b := &fakeSource{name: models.BackendChart, outcomes: []models.FetchOutcome{failing(models.BackendChart)}}
	sleeper := &recordingSleeper{}

	policy, err := PolicyByName(PolicyPrimaryThenSecondary, 3, 2*time.Second)
	require.NoError(t, err)
	_, err = newCoordinator(t, policy, sleeper, a, b).Fetch(context.Background(), "AAA", day(2024, 1, 1), day(2024, 3, 31))

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDownloadFailed)
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)
	assert.Equal(t, 3, a.Calls())
	assert.Equal(t, 3, b.Calls())
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeper.delays)
}

func TestFetchCoordinator_RetriesUntilSuccess(t *testing.T) {
	a := &fakeSource{name: models.BackendHistory, outcomes: []models.FetchOutcome{
		failing(models.BackendHistory),
		models.Success(models.BackendHistory, threeMonths()),
	}}
	sleeper := &recordingSleeper{}

	policy, err := PolicyByName(PolicyPrimaryOnly, 3, time.Second)
	require.NoError(t, err)
	res, err := newCoordinator(t, policy, sleeper, a).Fetch(context.Background(), "AAA", day(2024, 1, 1), day(2024, 3, 31))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, a.Calls())
	assert.Len(t, sleeper.delays, 1)
}

func TestFetchCoordinator_TooFewPeriodsAdvances(t *testing.T) {
	// two rows in the same month collapse to one bar, which counts as empty
	sameMonth := []models.DailyBar{daily(day(2024, 3, 1), 1), daily(day(2024, 3, 4), 2)}
	a := &fakeSource{name: models.BackendHistory, outcomes: []models.FetchOutcome{models.Success(models.BackendHistory, sameMonth)}}
	b := &fakeSource{name: models.BackendChart, outcomes: []models.FetchOutcome{models.Success(models.BackendChart, threeMonths())}}

	policy, err := PolicyByName(PolicyPrimaryThenSecondary, 1, 0)
	require.NoError(t, err)
	res, err := newCoordinator(t, policy, &recordingSleeper{}, a, b).Fetch(context.Background(), "AAA", day(2024, 1, 1), day(2024, 3, 31))
	require.NoError(t, err)
	assert.Equal(t, models.BackendChart, res.Backend)
}

func TestFetchCoordinator_SingleRowSuccessIsEmpty(t *testing.T) {
	a := &fakeSource{name: models.BackendHistory, outcomes: []models.FetchOutcome{
		models.Success(models.BackendHistory, []models.DailyBar{daily(day(2024, 3, 1), 1)}),
	}}

	policy, err := PolicyByName(PolicyPrimaryOnly, 1, 0)
	require.NoError(t, err)
	_, err = newCoordinator(t, policy, &recordingSleeper{}, a).Fetch(context.Background(), "AAA", day(2024, 1, 1), day(2024, 3, 31))
	assert.ErrorIs(t, err, models.ErrDownloadFailed)
}

func TestFetchCoordinator_CancelledDuringDelay(t *testing.T) {
	a := &fakeSource{name: models.BackendHistory, outcomes: []models.FetchOutcome{failing(models.BackendHistory)}}
	ctx, cancel := context.WithCancel(context.Background())
	sleeper := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	policy, err := PolicyByName(PolicyPrimaryOnly, 5, time.Second)
	require.NoError(t, err)
	c, err := NewFetchCoordinator(policy, []drepo.Source{a}, NewNormalizer(nil, false), logger.Nop(), WithSleeper(sleeper))
	require.NoError(t, err)

	_, err = c.Fetch(ctx, "AAA", day(2024, 1, 1), day(2024, 3, 31))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, a.Calls())
}

func TestNewFetchCoordinator_MissingBackend(t *testing.T) {
	policy, err := PolicyByName(PolicyPrimaryThenSecondary, 3, time.Second)
	require.NoError(t, err)
	a := &fakeSource{name: models.BackendHistory}

	_, err = NewFetchCoordinator(policy, []drepo.Source{a}, NewNormalizer(nil, false), logger.Nop())
	assert.Error(t, err)
}

func TestFetchState_String(t *testing.T) {
	assert.Equal(t, "TrySecondary", StateTrySecondary.String())
	assert.Equal(t, "GiveUp", StateGiveUp.String())
}
