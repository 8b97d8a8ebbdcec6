package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryCache_GetSet(t *testing.T) {
	cache := NewMemoryCache[string]()
	ctx := context.Background()

	err := cache.Set(ctx, "test-key", "value", time.Minute)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, err := cache.Get(ctx, "test-key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "value" {
		t.Errorf("Expected %q, got %q", "value", value)
	}
}

func TestMemoryCache_GetMiss(t *testing.T) {
	cache := NewMemoryCache[string]()
	ctx := context.Background()

	_, err := cache.Get(ctx, "non-existent")
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryCache_Expiration(t *testing.T) {
	cache := NewMemoryCache[int64]()
	ctx := context.Background()

	err := cache.Set(ctx, "expire-key", 100, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, err := cache.Get(ctx, "expire-key")
	if err != nil {
		t.Fatalf("Get failed before expiration: %v", err)
	}
	if value != 100 {
		t.Errorf("Expected value 100, got %d", value)
	}

	time.Sleep(100 * time.Millisecond)

	_, err = cache.Get(ctx, "expire-key")
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after expiration, got %v", err)
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	cache := NewMemoryCache[int64]()
	ctx := context.Background()

	if err := cache.Set(ctx, "key", 1, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := cache.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := cache.Get(ctx, "key")
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after delete, got %v", err)
	}
}

func TestMemoryCache_StructValues(t *testing.T) {
	type listing struct {
		Name  string
		Count int
	}
	cache := NewMemoryCache[[]listing]()
	ctx := context.Background()

	want := []listing{{Name: "NerdQX", Count: 3}}
	if err := cache.Set(ctx, "devices", want, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := cache.Get(ctx, "devices")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestGetWithFetch_CachesResult(t *testing.T) {
	cache := NewMemoryCache[int64]()
	ctx := context.Background()

	var calls atomic.Int64
	fetch := func(context.Context) (int64, error) {
		return calls.Add(1), nil
	}

	first, err := GetWithFetch(ctx, cache, "key", time.Minute, fetch)
	if err != nil {
		t.Fatalf("GetWithFetch failed: %v", err)
	}
	second, err := GetWithFetch(ctx, cache, "key", time.Minute, fetch)
	if err != nil {
		t.Fatalf("GetWithFetch failed: %v", err)
	}

	if first != 1 || second != 1 {
		t.Errorf("Expected the fetch to run once, got values %d and %d", first, second)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 fetch call, got %d", calls.Load())
	}
}

func TestGetWithFetch_PropagatesFetchError(t *testing.T) {
	cache := NewMemoryCache[int64]()
	ctx := context.Background()

	wantErr := errors.New("scan failed")
	_, err := GetWithFetch(ctx, cache, "key", time.Minute, func(context.Context) (int64, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected fetch error, got %v", err)
	}
}

func TestGetWithFetch_RefetchesAfterDelete(t *testing.T) {
	cache := NewMemoryCache[int64]()
	ctx := context.Background()

	var calls atomic.Int64
	fetch := func(context.Context) (int64, error) {
		return calls.Add(1), nil
	}

	if _, err := GetWithFetch(ctx, cache, "key", time.Minute, fetch); err != nil {
		t.Fatalf("GetWithFetch failed: %v", err)
	}
	if err := cache.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	value, err := GetWithFetch(ctx, cache, "key", time.Minute, fetch)
	if err != nil {
		t.Fatalf("GetWithFetch failed: %v", err)
	}
	if value != 2 {
		t.Errorf("Expected a fresh fetch after delete, got %d", value)
	}
}
