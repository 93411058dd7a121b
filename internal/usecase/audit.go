package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"BarSync/internal/domain/models"
	drepo "BarSync/internal/domain/repository"
	"BarSync/pkg/logger"
	"BarSync/pkg/util"
)

// AuditScanner classifies every series present in the store. The store, not
// the universe, decides what exists; the universe only feeds the summary.
type AuditScanner struct {
	store drepo.BarStore
	log   *logger.Logger

	universe      drepo.Universe
	reports       drepo.ReportWriter
	events        drepo.EventPublisher
	metrics       drepo.Metrics
	now           func() time.Time
	concurrency   int
	queryTimeout  time.Duration
	detailRecords int

	mu   sync.RWMutex
	last *models.AuditReport
}

type AuditOption func(*AuditScanner)

func WithAuditUniverse(u drepo.Universe) AuditOption {
	return func(s *AuditScanner) { s.universe = u }
}

func WithReportWriter(w drepo.ReportWriter) AuditOption {
	return func(s *AuditScanner) { s.reports = w }
}

func WithAuditEvents(p drepo.EventPublisher) AuditOption {
	return func(s *AuditScanner) { s.events = p }
}

func WithAuditMetrics(m drepo.Metrics) AuditOption {
	return func(s *AuditScanner) { s.metrics = m }
}

func WithAuditClock(now func() time.Time) AuditOption {
	return func(s *AuditScanner) { s.now = now }
}

// WithAuditLimits sets lookup concurrency and the per-series query timeout.
func WithAuditLimits(concurrency int, queryTimeout time.Duration) AuditOption {
	return func(s *AuditScanner) {
		s.concurrency = concurrency
		s.queryTimeout = queryTimeout
	}
}

// WithDetailRecords sets how many recent bars are kept per stale series (0 disables).
func WithDetailRecords(n int) AuditOption {
	return func(s *AuditScanner) { s.detailRecords = n }
}

func NewAuditScanner(store drepo.BarStore, log *logger.Logger, opts ...AuditOption) *AuditScanner {
	s := &AuditScanner{
		store:         store,
		log:           log,
		metrics:       nopMetrics{},
		now:           time.Now,
		concurrency:   8,
		queryTimeout:  5 * time.Second,
		detailRecords: 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type seriesResult struct {
	class  models.Classification
	detail *models.SeriesDetail
}

// Scan classifies each stored series: lookup error -> Error, no row -> Empty,
// last period before today-threshold -> Stale, else OK. Only a failure to
// list series aborts the scan.
func (s *AuditScanner) Scan(ctx context.Context, threshold time.Duration) (*models.AuditReport, error) {
	today := util.Day(s.now().UTC())
	series, err := s.store.ListSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list series: %w", models.ErrAuditQuery, err)
	}
	s.log.Info("audit started", logger.Int("series", len(series)), logger.Duration("threshold_ms", threshold))

	cutoff := today.Add(-threshold)
	results := make([]seriesResult, len(series))

	var g errgroup.Group
	limit := s.concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, ser := range series {
		i, ser := i, ser
		g.Go(func() error {
			results[i] = s.classify(ctx, ser, cutoff)
			return nil
		})
	}
	_ = g.Wait()

	report := &models.AuditReport{
		Today:     today,
		Threshold: threshold,
		All:       make([]models.Classification, 0, len(results)),
		Details:   make(map[models.Series]models.SeriesDetail),
	}
	for _, r := range results {
		report.All = append(report.All, r.class)
		s.metrics.RecordClassification(r.class.Status)
		if r.detail != nil {
			report.Details[models.Series{Symbol: r.class.Symbol, Group: r.class.Group}] = *r.detail
		}
	}
	sort.SliceStable(report.All, func(i, j int) bool {
		a, b := report.All[i], report.All[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Symbol < b.Symbol
	})
	for _, c := range report.All {
		if c.Status != models.AuditOK {
			report.NeedsAttention = append(report.NeedsAttention, c)
		}
	}
	report.Summary = s.summarize(ctx, report.All)

	s.finish(report, today)
	return report, nil
}

// LastAudit returns the most recent report, or nil.
func (s *AuditScanner) LastAudit() *models.AuditReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Classify applies the precedence rule to one latest-row lookup.
func Classify(latest *models.Bar, lookupErr error, cutoff time.Time) (models.AuditStatus, *time.Time) {
	switch {
	case lookupErr != nil:
		return models.AuditError, nil
	case latest == nil:
		return models.AuditEmpty, nil
	}
	last := latest.PeriodEnd
	if last.Before(cutoff) {
		return models.AuditStale, &last
	}
	return models.AuditOK, &last
}

func (s *AuditScanner) classify(ctx context.Context, ser models.Series, cutoff time.Time) seriesResult {
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	latest, err := s.store.LatestBar(qctx, ser.Symbol)
	status, last := Classify(latest, err, cutoff)
	res := seriesResult{class: models.Classification{
		Symbol:   ser.Symbol,
		Group:    ser.Group,
		LastDate: last,
		Status:   status,
	}}
	if err != nil {
		res.class.Detail = fmt.Errorf("%w: %w", models.ErrAuditQuery, err).Error()
		s.log.Warn("audit lookup failed", logger.String("symbol", ser.Symbol), logger.Error(err))
		return res
	}

	if status == models.AuditStale && s.detailRecords > 0 {
		bars, err := s.store.Bars(qctx, ser.Symbol, s.detailRecords+1)
		if err != nil {
			s.log.Debug("audit detail lookup failed", logger.String("symbol", ser.Symbol), logger.Error(err))
			return res
		}
		d := &models.SeriesDetail{Bars: bars}
		if len(bars) > s.detailRecords {
			d.Bars = bars[:s.detailRecords]
			d.Truncated = true
		}
		res.detail = d
	}
	return res
}

// summarize builds the per-group QC lines. Expected counts come from the
// active universe when one is configured; threshold is floor(0.9*expected).
func (s *AuditScanner) summarize(ctx context.Context, all []models.Classification) []models.GroupSummary {
	byGroup := make(map[string]*models.GroupSummary)
	get := func(g string) *models.GroupSummary {
		if gs, ok := byGroup[g]; ok {
			return gs
		}
		gs := &models.GroupSummary{Group: g}
		byGroup[g] = gs
		return gs
	}

	if s.universe != nil {
		ids, err := s.universe.Identifiers(ctx)
		if err != nil {
			s.log.Warn("audit summary without universe counts", logger.Error(err))
		}
		for _, id := range SelectIdentifiers(ids, nil) {
			get(id.Group).Expected++
		}
	}
	for _, c := range all {
		gs := get(c.Group)
		gs.Stored++
		if c.Status == models.AuditOK {
			gs.UpToDate++
		}
	}

	out := make([]models.GroupSummary, 0, len(byGroup))
	for _, gs := range byGroup {
		gs.Threshold = gs.Expected * 9 / 10
		out = append(out, *gs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

func (s *AuditScanner) finish(report *models.AuditReport, today time.Time) {
	if s.reports != nil {
		paths, err := s.reports.WriteAudit(report, util.PreviousMonthEnd(today))
		if err != nil {
			s.log.Error("write audit reports failed", logger.Error(err))
		}
		report.Artifacts = paths
	}
	if s.events != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.events.PublishAudit(ctx, report); err != nil {
			s.log.Warn("publish audit failed", logger.Error(err))
		}
		cancel()
	}
	s.metrics.RecordRunFinished("audit", s.now())

	s.log.Info("audit finished",
		logger.Int("ok", report.Count(models.AuditOK)),
		logger.Int("stale", report.Count(models.AuditStale)),
		logger.Int("empty", report.Count(models.AuditEmpty)),
		logger.Int("error", report.Count(models.AuditError)),
	)

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
}
