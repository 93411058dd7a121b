package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarSync/internal/domain/models"
	drepo "BarSync/internal/domain/repository"
	"BarSync/pkg/logger"
)

// fakeFetcher returns bars built from threeMonths unless the symbol is scripted to fail.
type fakeFetcher struct {
	mu     sync.Mutex
	fail   map[string]bool
	starts map[string]time.Time
}

func (f *fakeFetcher) Fetch(_ context.Context, symbol string, start, _ time.Time) (*FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.starts == nil {
		f.starts = make(map[string]time.Time)
	}
	f.starts[symbol] = start
	if f.fail[symbol] {
		return nil, models.ErrDownloadFailed
	}
	bars, err := NewNormalizer(nil, false).Monthly(symbol, threeMonths())
	if err != nil {
		return nil, err
	}
	return &FetchResult{Backend: models.BackendHistory, Bars: bars, Attempts: 1}, nil
}

func (f *fakeFetcher) called(symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.starts[symbol]
	return ok
}

func TestSyncOrchestrator_InactiveNeverDispatched(t *testing.T) {
	universe := &fakeUniverse{ids: []models.Identifier{
		{Symbol: "AAA", Group: "Tech", Active: true},
		{Symbol: "BBB", Group: "Tech", Active: false},
	}}
	fetcher := &fakeFetcher{}
	store := newMemStore()

	o := NewSyncOrchestrator(universe, fetcher, store, logger.Nop(), WithSyncClock(fixedClock(day(2024, 6, 15))))
	report, err := o.Run(context.Background(), RunRequest{Concurrency: 1})
	require.NoError(t, err)

	assert.True(t, fetcher.called("AAA"))
	assert.False(t, fetcher.called("BBB"))
	assert.Equal(t, 1, report.Selected)
	assert.Equal(t, 1, report.Counts[models.StatusSynced])
	assert.Equal(t, 0, report.Manifest.Len())
	assert.Equal(t, "Tech", store.groups["AAA"])
	assert.Len(t, store.rows["AAA"], 3)
	assert.Same(t, report, o.LastRun())
}

func TestSyncOrchestrator_ExhaustedSymbolInManifestOnce(t *testing.T) {
	universe := &fakeUniverse{ids: []models.Identifier{
		{Symbol: "AAA", Group: "Tech", Active: true},
		{Symbol: "CCC", Group: "Energy", Active: true},
	}}
	a := &fakeSource{name: models.BackendHistory, outcomes: []models.FetchOutcome{failing(models.BackendHistory)},
		bySymbol: map[string]models.FetchOutcome{"CCC": models.Success(models.BackendHistory, threeMonths())}}
	b := &fakeSource{name: models.BackendChart, outcomes: []models.FetchOutcome{failing(models.BackendChart)}}
	sleeper := &recordingSleeper{}
	policy, err := PolicyByName(PolicyPrimaryThenSecondary, 3, time.Second)
	require.NoError(t, err)
	coord := newCoordinator(t, policy, sleeper, a, b)

	store := newMemStore()
	manifests := &captureManifest{}
	events := &captureEvents{}
	o := NewSyncOrchestrator(universe, coord, store, logger.Nop(),
		WithSyncClock(fixedClock(day(2024, 6, 15))),
		WithManifestWriter(manifests),
		WithSyncEvents(events),
	)
	report, err := o.Run(context.Background(), RunRequest{Concurrency: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Manifest.Len())
	assert.Equal(t, []string{"Tech"}, report.Manifest.Groups())
	assert.Equal(t, []models.ManifestEntry{{Symbol: "AAA", Reason: models.ReasonDownloadFailed}}, report.Manifest.Entries("Tech"))
	assert.Equal(t, 3, b.Calls())
	assert.Empty(t, store.rows["AAA"])
	assert.Len(t, store.rows["CCC"], 3)

	assert.Same(t, report.Manifest, manifests.written)
	assert.Equal(t, day(2024, 5, 31), manifests.period)
	assert.Equal(t, []string{"failed.csv"}, report.Artifacts)
	assert.Len(t, events.outcomes, 2)
	assert.Equal(t, 1, events.runs)
}

func TestSyncOrchestrator_PersistFailure(t *testing.T) {
	universe := &fakeUniverse{ids: []models.Identifier{{Symbol: "AAA", Group: "Tech", Active: true}}}
	store := newMemStore()
	store.failOn["AAA"] = true

	o := NewSyncOrchestrator(universe, &fakeFetcher{}, store, logger.Nop(), WithSyncClock(fixedClock(day(2024, 6, 15))))
	report, err := o.Run(context.Background(), RunRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts[models.StatusFailed])
	assert.Equal(t, []models.ManifestEntry{{Symbol: "AAA", Reason: models.ReasonPersistFailed}}, report.Manifest.Entries("Tech"))
}

func TestSyncOrchestrator_IncrementalSkipsUpToDate(t *testing.T) {
	universe := &fakeUniverse{ids: []models.Identifier{
		{Symbol: "AAA", Group: "Tech", Active: true},
		{Symbol: "BBB", Group: "Tech", Active: true},
	}}
	store := newMemStore()
	require.NoError(t, store.Upsert(context.Background(), "AAA", "Tech", []models.Bar{{Symbol: "AAA", PeriodEnd: day(2024, 5, 31)}}))
	cache := &fakeCache{m: map[string]time.Time{"BBB": day(2024, 2, 29)}}
	fetcher := &fakeFetcher{}

	o := NewSyncOrchestrator(universe, fetcher, store, logger.Nop(),
		WithSyncClock(fixedClock(day(2024, 6, 15))),
		WithTargetGranularity(drepo.Monthly, true),
		WithPeriodCache(cache),
	)
	report, err := o.Run(context.Background(), RunRequest{Incremental: true})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts[models.StatusSkipped])
	assert.Equal(t, 1, report.Counts[models.StatusSynced])
	assert.False(t, fetcher.called("AAA"))
	assert.Equal(t, day(2024, 1, 1), fetcher.starts["BBB"])

	last, ok := cache.LastPeriod(context.Background(), "BBB")
	require.True(t, ok)
	assert.Equal(t, day(2024, 3, 31), last)
}

// windowSource serves only the history rows inside the requested [start, end].
type windowSource struct {
	name    models.BackendName
	history []models.DailyBar
}

func (w *windowSource) Name() models.BackendName { return w.name }

func (w *windowSource) Fetch(_ context.Context, _ string, start, end time.Time) models.FetchOutcome {
	var rows []models.DailyBar
	for _, d := range w.history {
		if !d.Date.Before(start) && !d.Date.After(end) {
			rows = append(rows, d)
		}
	}
	return models.Success(w.name, rows)
}

func TestSyncOrchestrator_IncrementalMatchesFullOnNewMonth(t *testing.T) {
	src := &windowSource{name: models.BackendHistory, history: []models.DailyBar{
		daily(day(2024, 4, 30), 10),
		daily(day(2024, 5, 30), 11),
		daily(day(2024, 5, 31), 12),
	}}
	policy, err := PolicyByName(PolicyPrimaryOnly, 2, time.Second)
	require.NoError(t, err)

	for _, incremental := range []bool{false, true} {
		store := newMemStore()
		require.NoError(t, store.Upsert(context.Background(), "AAA", "Tech", []models.Bar{{Symbol: "AAA", PeriodEnd: day(2024, 5, 31)}}))

		o := NewSyncOrchestrator(
			&fakeUniverse{ids: []models.Identifier{{Symbol: "AAA", Group: "Tech", Active: true}}},
			newCoordinator(t, policy, &recordingSleeper{}, src),
			store, logger.Nop(),
			WithSyncClock(fixedClock(day(2024, 6, 1))),
		)
		report, err := o.Run(context.Background(), RunRequest{Incremental: incremental})
		require.NoError(t, err)

		assert.Equal(t, 1, report.Counts[models.StatusSynced], "incremental=%v", incremental)
		assert.Equal(t, 0, report.Manifest.Len(), "incremental=%v", incremental)
		assert.Equal(t, "12", store.rows["AAA"][day(2024, 5, 31)].Close.String())
	}
}

func TestIncrementalStart(t *testing.T) {
	floor := day(1970, 1, 1)
	assert.Equal(t, day(2024, 4, 1), incrementalStart(day(2024, 5, 31), floor))
	assert.Equal(t, day(2023, 12, 1), incrementalStart(day(2024, 1, 31), floor))
	assert.Equal(t, day(2024, 5, 10), incrementalStart(day(2024, 5, 31), day(2024, 5, 10)))
}

func TestSyncOrchestrator_GroupFilter(t *testing.T) {
	universe := &fakeUniverse{ids: []models.Identifier{
		{Symbol: "AAA", Group: "Tech", Active: true},
		{Symbol: "CCC", Group: "Energy", Active: true},
	}}
	fetcher := &fakeFetcher{}

	o := NewSyncOrchestrator(universe, fetcher, newMemStore(), logger.Nop())
	report, err := o.Run(context.Background(), RunRequest{Groups: []string{"energy"}})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Selected)
	assert.True(t, fetcher.called("CCC"))
	assert.False(t, fetcher.called("AAA"))
}

func TestSyncOrchestrator_UniverseError(t *testing.T) {
	o := NewSyncOrchestrator(&fakeUniverse{err: errors.New("no such table")}, &fakeFetcher{}, newMemStore(), logger.Nop())
	report, err := o.Run(context.Background(), RunRequest{})

	assert.Nil(t, report)
	assert.ErrorIs(t, err, models.ErrUniverseRead)
}

func TestSyncOrchestrator_CancelledBeforeDispatch(t *testing.T) {
	universe := &fakeUniverse{ids: []models.Identifier{{Symbol: "AAA", Group: "Tech", Active: true}}}
	fetcher := &fakeFetcher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewSyncOrchestrator(universe, fetcher, newMemStore(), logger.Nop())
	report, err := o.Run(ctx, RunRequest{})

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.False(t, fetcher.called("AAA"))
}

func TestSelectIdentifiers(t *testing.T) {
	ids := []models.Identifier{
		{Symbol: "AAA", Group: "Tech", Active: true},
		{Symbol: "AAA", Group: "Tech", Active: true},
		{Symbol: "AAA", Group: "Index", Active: true},
		{Symbol: "BBB", Group: "Tech", Active: false},
		{Symbol: "", Group: "Tech", Active: true},
	}

	assert.Len(t, SelectIdentifiers(ids, nil), 2)
	assert.Equal(t, []models.Identifier{{Symbol: "AAA", Group: "Index", Active: true}}, SelectIdentifiers(ids, []string{" INDEX "}))
}

func TestSyncOrchestrator_TargetPeriod(t *testing.T) {
	now := time.Date(2024, 6, 15, 18, 0, 0, 0, time.UTC)

	assert.Equal(t, day(2024, 6, 30), NewSyncOrchestrator(nil, nil, nil, logger.Nop()).TargetPeriod(now))
	assert.Equal(t, day(2024, 5, 31), NewSyncOrchestrator(nil, nil, nil, logger.Nop(), WithTargetGranularity(drepo.Monthly, true)).TargetPeriod(now))
	assert.Equal(t, day(2024, 6, 15), NewSyncOrchestrator(nil, nil, nil, logger.Nop(), WithTargetGranularity(drepo.Daily, false)).TargetPeriod(now))
}
