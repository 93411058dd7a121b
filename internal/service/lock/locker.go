package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	pcache "BarSync/pkg/cache"
)

var errHeld = errors.New("lock held")

// CacheLocker is a TTL lease lock on top of a cache. With RedisCache it
// serializes across processes; with MemoryCache only within this one.
type CacheLocker struct {
	svc  pcache.Service
	ttl  time.Duration
	poll time.Duration
}

func NewCacheLocker(svc pcache.Service, ttl time.Duration) *CacheLocker {
	return &CacheLocker{svc: svc, ttl: ttl, poll: 50 * time.Millisecond}
}

// Lock blocks until key is acquired or ctx ends.
func (l *CacheLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = pcache.GenerateKey("lock", key)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.poll
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		ok, err := l.svc.TryLock(ctx, key, l.ttl)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errHeld
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}

	return func() {
		// release must outlive a cancelled run context
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.svc.Unlock(uctx, key)
	}, nil
}
