package cache

import (
	"context"
	"time"

	pcache "BarSync/pkg/cache"
	"BarSync/pkg/util"
)

// PeriodCache stores the last synced period_end per symbol. It is an
// optimization only: misses and backend errors read as "unknown".
type PeriodCache struct {
	svc pcache.Service
	ttl time.Duration
}

func NewPeriodCache(svc pcache.Service, ttl time.Duration) *PeriodCache {
	return &PeriodCache{svc: svc, ttl: ttl}
}

func periodKey(symbol string) string {
	return pcache.GenerateKey("period", symbol)
}

func (c *PeriodCache) LastPeriod(ctx context.Context, symbol string) (time.Time, bool) {
	var s string
	if err := c.svc.Get(ctx, periodKey(symbol), &s); err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(util.DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (c *PeriodCache) SetLastPeriod(ctx context.Context, symbol string, periodEnd time.Time) error {
	return c.svc.Set(ctx, periodKey(symbol), periodEnd.Format(util.DateLayout), c.ttl)
}
