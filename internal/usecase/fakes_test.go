package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"BarSync/internal/domain/models"
)

var day = func(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func daily(date time.Time, close float64) models.DailyBar {
	c := decimal.NewFromFloat(close)
	return models.DailyBar{
		Date:     date,
		Open:     c,
		High:     c,
		Low:      c,
		Close:    decimal.NewNullDecimal(c),
		AdjClose: decimal.NewNullDecimal(c),
	}
}

// fakeSource replays scripted outcomes; the last one repeats.
type fakeSource struct {
	name     models.BackendName
	mu       sync.Mutex
	calls    int
	symbols  []string
	outcomes []models.FetchOutcome
	bySymbol map[string]models.FetchOutcome
}

func (f *fakeSource) Name() models.BackendName { return f.name }

func (f *fakeSource) Fetch(_ context.Context, symbol string, _, _ time.Time) models.FetchOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.symbols = append(f.symbols, symbol)
	if out, ok := f.bySymbol[symbol]; ok {
		return out
	}
	if len(f.outcomes) == 0 {
		return models.Empty(f.name, "no script")
	}
	i := f.calls - 1
	if i >= len(f.outcomes) {
		i = len(f.outcomes) - 1
	}
	return f.outcomes[i]
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func failing(name models.BackendName) models.FetchOutcome {
	return models.Failure(name, models.NewSourceError(name, models.ErrSourceUnavailable, "status 503"))
}

type fakeUniverse struct {
	ids []models.Identifier
	err error
}

func (u *fakeUniverse) Identifiers(context.Context) ([]models.Identifier, error) {
	return u.ids, u.err
}

// memStore is a map-backed BarStore keyed by (symbol, period_end).
type memStore struct {
	mu        sync.Mutex
	rows      map[string]map[time.Time]models.Bar
	groups    map[string]string
	failOn    map[string]bool
	lookupErr map[string]bool
	listErr   error
	upserts   int
}

func newMemStore() *memStore {
	return &memStore{
		rows:      make(map[string]map[time.Time]models.Bar),
		groups:    make(map[string]string),
		failOn:    make(map[string]bool),
		lookupErr: make(map[string]bool),
	}
}

func (s *memStore) InitSchema(context.Context) error { return nil }

func (s *memStore) Upsert(_ context.Context, symbol, group string, bars []models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.failOn[symbol] {
		return models.ErrPersistence
	}
	if s.rows[symbol] == nil {
		s.rows[symbol] = make(map[time.Time]models.Bar)
	}
	for _, b := range bars {
		s.rows[symbol][b.PeriodEnd] = b
	}
	s.groups[symbol] = group
	return nil
}

func (s *memStore) sorted(symbol string) []models.Bar {
	var out []models.Bar
	for _, b := range s.rows[symbol] {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodEnd.After(out[j].PeriodEnd) })
	return out
}

func (s *memStore) LastPeriodEnd(_ context.Context, symbol string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bars := s.sorted(symbol)
	if len(bars) == 0 {
		return time.Time{}, false, nil
	}
	return bars[0].PeriodEnd, true, nil
}

func (s *memStore) ListSeries(context.Context) ([]models.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.Series
	for sym, g := range s.groups {
		out = append(out, models.Series{Symbol: sym, Group: g})
	}
	return out, nil
}

func (s *memStore) LatestBar(_ context.Context, symbol string) (*models.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr[symbol] {
		return nil, errors.New("relation does not exist")
	}
	bars := s.sorted(symbol)
	if len(bars) == 0 {
		return nil, nil
	}
	return &bars[0], nil
}

func (s *memStore) Bars(_ context.Context, symbol string, limit int) ([]models.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bars := s.sorted(symbol)
	if len(bars) > limit {
		bars = bars[:limit]
	}
	return bars, nil
}

func (s *memStore) MonthlyChanges(context.Context, string, int) ([]models.MonthlyChange, error) {
	return nil, nil
}

func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

type captureManifest struct {
	written *models.Manifest
	period  time.Time
}

func (c *captureManifest) WriteManifest(m *models.Manifest, period time.Time) ([]string, error) {
	c.written, c.period = m, period
	return []string{"failed.csv"}, nil
}

type captureEvents struct {
	mu       sync.Mutex
	outcomes []models.Outcome
	runs     int
	audits   int
}

func (c *captureEvents) PublishOutcome(_ context.Context, o models.Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, o)
	return nil
}

func (c *captureEvents) PublishRun(context.Context, *models.RunReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs++
	return nil
}

func (c *captureEvents) PublishAudit(context.Context, *models.AuditReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audits++
	return nil
}

func (c *captureEvents) Close() error { return nil }

type fakeCache struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func (c *fakeCache) LastPeriod(_ context.Context, symbol string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.m[symbol]
	return t, ok
}

func (c *fakeCache) SetLastPeriod(_ context.Context, symbol string, t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]time.Time)
	}
	c.m[symbol] = t
	return nil
}
