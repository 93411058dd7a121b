package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCache_SetGetJSON(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	type period struct {
		Symbol string    `json:"symbol"`
		End    time.Time `json:"end"`
	}
	in := period{Symbol: "AAPL", End: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)}
	if err := mc.Set(ctx, "last:AAPL", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out period
	if err := mc.Get(ctx, "last:AAPL", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Symbol != in.Symbol || !out.End.Equal(in.End) {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestMemoryCache_StringRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "2024-01-31", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var s string
	if err := mc.Get(ctx, "k", &s); err != nil {
		t.Fatalf("get: %v", err)
	}
	if s != "2024-01-31" {
		t.Fatalf("got %q", s)
	}
}

func TestMemoryCache_MissAndExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	var s string
	if err := mc.Get(ctx, "absent", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	_ = mc.Set(ctx, "short", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if err := mc.Get(ctx, "short", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired key to miss, got %v", err)
	}
}

func TestMemoryCache_TryLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:AAPL", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	ok, _ = mc.TryLock(ctx, "lock:AAPL", time.Minute)
	if ok {
		t.Fatal("second lock should fail while held")
	}
	if err := mc.Unlock(ctx, "lock:AAPL"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	ok, _ = mc.TryLock(ctx, "lock:AAPL", time.Minute)
	if !ok {
		t.Fatal("lock should be free after unlock")
	}
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "a", "1", time.Minute)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", "2", time.Minute)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "c", "3", time.Minute)

	var s string
	if err := mc.Get(ctx, "a", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected a evicted, got %v", err)
	}
	if err := mc.Get(ctx, "c", &s); err != nil || s != "3" {
		t.Fatalf("c: %q %v", s, err)
	}
}
