package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"BarSync/internal/domain/models"
	drepo "BarSync/internal/domain/repository"
	"BarSync/pkg/logger"
	"BarSync/pkg/util"
)

// RunRequest scopes one sync pass.
type RunRequest struct {
	Groups      []string // empty means every group
	Concurrency int      // <= 1 runs sequentially
	Incremental bool
}

// SyncOrchestrator runs one pass over the active universe. Workers report
// Outcomes on a channel; a single aggregator owns the manifest.
type SyncOrchestrator struct {
	universe drepo.Universe
	fetcher  Fetcher
	store    drepo.BarStore
	log      *logger.Logger

	cache         drepo.PeriodCache
	locker        drepo.Locker
	manifests     drepo.ManifestWriter
	events        drepo.EventPublisher
	metrics       drepo.Metrics
	now           func() time.Time
	startDate     time.Time
	granularity   drepo.Granularity
	skipOpenMonth bool
	progressEvery int

	mu   sync.RWMutex
	last *models.RunReport
}

type SyncOption func(*SyncOrchestrator)

func WithPeriodCache(c drepo.PeriodCache) SyncOption {
	return func(o *SyncOrchestrator) { o.cache = c }
}

func WithLocker(l drepo.Locker) SyncOption {
	return func(o *SyncOrchestrator) { o.locker = l }
}

func WithManifestWriter(w drepo.ManifestWriter) SyncOption {
	return func(o *SyncOrchestrator) { o.manifests = w }
}

func WithSyncEvents(p drepo.EventPublisher) SyncOption {
	return func(o *SyncOrchestrator) { o.events = p }
}

func WithSyncMetrics(m drepo.Metrics) SyncOption {
	return func(o *SyncOrchestrator) { o.metrics = m }
}

func WithSyncClock(now func() time.Time) SyncOption {
	return func(o *SyncOrchestrator) { o.now = now }
}

// WithStartDate sets the lower bound of a full-history fetch.
func WithStartDate(t time.Time) SyncOption {
	return func(o *SyncOrchestrator) { o.startDate = t }
}

// WithTargetGranularity decides the period boundary used by the incremental check.
func WithTargetGranularity(g drepo.Granularity, skipOpenMonth bool) SyncOption {
	return func(o *SyncOrchestrator) {
		o.granularity = g
		o.skipOpenMonth = skipOpenMonth
	}
}

func WithProgressEvery(n int) SyncOption {
	return func(o *SyncOrchestrator) { o.progressEvery = n }
}

func NewSyncOrchestrator(universe drepo.Universe, fetcher Fetcher, store drepo.BarStore, log *logger.Logger, opts ...SyncOption) *SyncOrchestrator {
	o := &SyncOrchestrator{
		universe:      universe,
		fetcher:       fetcher,
		store:         store,
		log:           log,
		metrics:       nopMetrics{},
		now:           time.Now,
		startDate:     time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		granularity:   drepo.Monthly,
		progressEvery: 20,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run synchronizes every selected identifier. Per-symbol failures land in the
// manifest; only a universe read failure aborts. A cancelled ctx stops
// dispatch between units and returns the partial report with ctx's error.
func (o *SyncOrchestrator) Run(ctx context.Context, req RunRequest) (*models.RunReport, error) {
	started := o.now()
	ids, err := o.universe.Identifiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUniverseRead, err)
	}

	selected := SelectIdentifiers(ids, req.Groups)
	target := o.TargetPeriod(started)
	report := &models.RunReport{
		RunID:     uuid.NewString(),
		Manifest:  models.NewManifest(),
		Counts:    make(map[models.SyncStatus]int),
		Selected:  len(selected),
		Target:    target,
		StartedAt: started,
	}
	log := o.log.With(logger.String("run_id", report.RunID))
	log.Info("sync started",
		logger.Int("identifiers", len(selected)),
		logger.Strings("groups", req.Groups),
		logger.Int("concurrency", req.Concurrency),
		logger.Bool("incremental", req.Incremental),
		logger.Date("target", target),
	)

	outcomes := make(chan models.Outcome)
	aggregated := make(chan struct{})
	go func() {
		defer close(aggregated)
		o.aggregate(ctx, log, outcomes, report)
	}()

	var g errgroup.Group
	limit := req.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for _, id := range selected {
		if ctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			outcomes <- o.syncOne(ctx, id, target, req.Incremental)
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)
	<-aggregated

	report.FinishedAt = o.now()
	o.finish(log, report)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("sync interrupted: %w", err)
	}
	return report, nil
}

// LastRun returns the most recent completed report, or nil.
func (o *SyncOrchestrator) LastRun() *models.RunReport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

// TargetPeriod is the boundary a fully synced series ends on.
func (o *SyncOrchestrator) TargetPeriod(now time.Time) time.Time {
	now = now.UTC()
	switch {
	case o.granularity == drepo.Daily:
		return util.Day(now)
	case o.skipOpenMonth:
		return util.PreviousMonthEnd(now)
	default:
		return util.MonthEnd(now)
	}
}

// SelectIdentifiers keeps active identifiers whose group matches one of
// groups (case-insensitive), or all groups when groups is empty. Repeated
// (group, symbol) pairs are dropped.
func SelectIdentifiers(ids []models.Identifier, groups []string) []models.Identifier {
	want := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if g = strings.TrimSpace(g); g != "" {
			want[strings.ToLower(g)] = struct{}{}
		}
	}
	seen := make(map[models.Series]struct{}, len(ids))
	out := make([]models.Identifier, 0, len(ids))
	for _, id := range ids {
		if !id.Active || id.Symbol == "" {
			continue
		}
		if len(want) > 0 {
			if _, ok := want[strings.ToLower(id.Group)]; !ok {
				continue
			}
		}
		key := models.Series{Symbol: id.Symbol, Group: id.Group}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (o *SyncOrchestrator) syncOne(ctx context.Context, id models.Identifier, target time.Time, incremental bool) models.Outcome {
	out := models.Outcome{Identifier: id}

	start := o.startDate
	if incremental {
		last, ok := o.lastPeriod(ctx, id.Symbol)
		if ok && !last.Before(target) {
			out.Status = models.StatusSkipped
			return out
		}
		if ok {
			start = incrementalStart(last, start)
		}
	}

	res, err := o.fetcher.Fetch(ctx, id.Symbol, start, target)
	if err != nil {
		out.Status, out.Reason, out.Err = models.StatusFailed, models.ReasonDownloadFailed, err
		return out
	}
	out.Backend = res.Backend

	if err := o.persist(ctx, id, res.Bars); err != nil {
		out.Status, out.Reason, out.Err = models.StatusFailed, models.ReasonPersistFailed, err
		return out
	}

	if o.cache != nil {
		if err := o.cache.SetLastPeriod(ctx, id.Symbol, res.Bars[len(res.Bars)-1].PeriodEnd); err != nil {
			o.log.Debug("period cache write failed", logger.String("symbol", id.Symbol), logger.Error(err))
		}
	}
	out.Status = models.StatusSynced
	out.Bars = len(res.Bars)
	return out
}

// incrementalStart opens the window on the first day of the month before the
// last stored period. The last stored month is rebuilt from complete data, and
// the window always spans two periods even when the new month has no trading
// day yet. It never starts before floor.
func incrementalStart(last, floor time.Time) time.Time {
	start := time.Date(last.Year(), last.Month()-1, 1, 0, 0, 0, 0, time.UTC)
	if start.Before(floor) {
		return floor
	}
	return start
}

func (o *SyncOrchestrator) persist(ctx context.Context, id models.Identifier, bars []models.Bar) error {
	if o.locker != nil {
		unlock, err := o.locker.Lock(ctx, id.Symbol)
		if err != nil {
			return fmt.Errorf("%w: lock %s: %w", models.ErrPersistence, id.Symbol, err)
		}
		defer unlock()
	}

	began := time.Now()
	err := o.store.Upsert(ctx, id.Symbol, id.Group, bars)
	o.metrics.RecordUpsert(time.Since(began).Seconds(), err)
	return err
}

// lastPeriod consults the period cache, then the store. Any error reads as unknown.
func (o *SyncOrchestrator) lastPeriod(ctx context.Context, symbol string) (time.Time, bool) {
	if o.cache != nil {
		if t, ok := o.cache.LastPeriod(ctx, symbol); ok {
			return t, true
		}
	}
	t, ok, err := o.store.LastPeriodEnd(ctx, symbol)
	if err != nil {
		o.log.Warn("last period lookup failed", logger.String("symbol", symbol), logger.Error(err))
		return time.Time{}, false
	}
	if ok && o.cache != nil {
		_ = o.cache.SetLastPeriod(ctx, symbol, t)
	}
	return t, ok
}

// aggregate is the only writer of report.Manifest and report.Counts.
func (o *SyncOrchestrator) aggregate(ctx context.Context, log *logger.Logger, outcomes <-chan models.Outcome, report *models.RunReport) {
	done := 0
	total := report.Selected
	for out := range outcomes {
		done++
		report.Counts[out.Status]++
		o.metrics.RecordSyncOutcome(out.Status)

		if out.Status == models.StatusFailed {
			report.Manifest.Add(out.Identifier.Group, out.Identifier.Symbol, out.Reason)
			log.Warn("symbol failed",
				logger.String("symbol", out.Identifier.Symbol),
				logger.String("group", out.Identifier.Group),
				logger.String("reason", out.Reason),
				logger.Error(out.Err),
			)
		}

		if o.events != nil {
			if err := o.events.PublishOutcome(ctx, out); err != nil {
				log.Debug("publish outcome failed", logger.Error(err))
			}
		}

		if o.progressEvery > 0 && (done%o.progressEvery == 0 || done == total) {
			log.Info("sync progress",
				logger.Int("done", done),
				logger.Int("total", total),
				logger.Float64("percent", float64(done)*100/float64(total)),
				logger.String("current", out.Identifier.Symbol),
			)
		}
	}
}

func (o *SyncOrchestrator) finish(log *logger.Logger, report *models.RunReport) {
	if o.manifests != nil {
		paths, err := o.manifests.WriteManifest(report.Manifest, util.PreviousMonthEnd(report.StartedAt))
		if err != nil {
			log.Error("write manifest failed", logger.Error(err))
		}
		report.Artifacts = paths
	}

	if o.events != nil {
		// the run context may already be cancelled; the summary still goes out
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := o.events.PublishRun(ctx, report); err != nil {
			log.Warn("publish run summary failed", logger.Error(err))
		}
		cancel()
	}
	o.metrics.RecordRunFinished("sync", report.FinishedAt)

	log.Info("sync finished",
		logger.Int("synced", report.Counts[models.StatusSynced]),
		logger.Int("skipped", report.Counts[models.StatusSkipped]),
		logger.Int("failed", report.Counts[models.StatusFailed]),
		logger.Duration("elapsed_ms", report.FinishedAt.Sub(report.StartedAt)),
	)

	o.mu.Lock()
	o.last = report
	o.mu.Unlock()
}
