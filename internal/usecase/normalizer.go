package usecase

import (
	"fmt"
	"sort"
	"time"

	"BarSync/internal/domain/models"
	drepo "BarSync/internal/domain/repository"
	"BarSync/pkg/util"
)

// Normalizer turns raw daily rows into canonical bars.
type Normalizer struct {
	now           func() time.Time
	skipOpenMonth bool
}

func NewNormalizer(now func() time.Time, skipOpenMonth bool) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now, skipOpenMonth: skipOpenMonth}
}

// Normalize dispatches on granularity.
func (n *Normalizer) Normalize(g drepo.Granularity, symbol string, daily []models.DailyBar) ([]models.Bar, error) {
	if g == drepo.Daily {
		return n.Daily(symbol, daily)
	}
	return n.Monthly(symbol, daily)
}

// Monthly keeps, for each calendar month, the last row with a close and
// dates it to the literal last day of that month, even when that day was
// not a trading day. Output is ascending.
func (n *Normalizer) Monthly(symbol string, daily []models.DailyBar) ([]models.Bar, error) {
	days := n.dedupe(daily)

	type monthKey struct {
		y int
		m time.Month
	}
	last := make(map[monthKey]models.DailyBar)
	for _, d := range days {
		k := monthKey{d.Date.Year(), d.Date.Month()}
		if cur, ok := last[k]; !ok || d.Date.After(cur.Date) {
			last[k] = d
		}
	}

	bars := make([]models.Bar, 0, len(last))
	for _, d := range last {
		bars = append(bars, toBar(symbol, util.MonthEnd(d.Date), d))
	}
	return finish(bars)
}

// Daily keeps trading-day dates.
func (n *Normalizer) Daily(symbol string, daily []models.DailyBar) ([]models.Bar, error) {
	days := n.dedupe(daily)
	bars := make([]models.Bar, 0, len(days))
	for _, d := range days {
		bars = append(bars, toBar(symbol, d.Date, d))
	}
	return finish(bars)
}

// dedupe drops rows without a close, collapses duplicate dates (last seen
// wins) and, when configured, drops the still-open current month.
func (n *Normalizer) dedupe(daily []models.DailyBar) []models.DailyBar {
	now := n.now().UTC()
	byDay := make(map[time.Time]models.DailyBar, len(daily))
	for _, d := range daily {
		if !d.Close.Valid {
			continue
		}
		day := util.Day(d.Date)
		if n.skipOpenMonth && (util.SameMonth(day, now) || day.After(now)) {
			continue
		}
		d.Date = day
		byDay[day] = d
	}
	out := make([]models.DailyBar, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, d)
	}
	return out
}

func toBar(symbol string, periodEnd time.Time, d models.DailyBar) models.Bar {
	return models.Bar{
		Symbol:    symbol,
		PeriodEnd: periodEnd,
		Open:      d.Open,
		High:      d.High,
		Low:       d.Low,
		Close:     d.Close.Decimal,
		AdjClose:  d.AdjClose,
		Volume:    d.Volume,
	}
}

func finish(bars []models.Bar) ([]models.Bar, error) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].PeriodEnd.Before(bars[j].PeriodEnd) })
	if len(bars) < 2 {
		return nil, fmt.Errorf("%w: got %d", models.ErrTooFewPeriods, len(bars))
	}
	return bars, nil
}
