package cache

import (
	"context"
	"testing"
	"time"
)

func TestSetThenGetRoundTrips(t *testing.T) {
	c := NewCache(CacheConfig{DefaultTTL: time.Minute})
	c.Set("k1", "v1", 0)

	got, ok := c.Get("k1")
	if !ok || got != "v1" {
		t.Fatalf("expected (v1, true), got (%v, %v)", got, ok)
	}
}

func TestGetMissingKeyReturnsFalse(t *testing.T) {
	c := NewCache(CacheConfig{DefaultTTL: time.Minute})
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected false for a missing key")
	}
}

func TestGetExpiredEntryReturnsFalse(t *testing.T) {
	c := NewCache(CacheConfig{DefaultTTL: time.Minute})
	c.Set("k1", "v1", time.Nanosecond)
	time.Sleep(time.Millisecond)

	if _, ok := c.Get("k1"); ok {
		t.Fatal("expected an expired entry to read as absent")
	}
}

// GetFresh enforces the staleness SLA: an entry with less than minFreshness
// remaining TTL must read as absent even though it hasn't technically
// expired yet (spec §5).
func TestGetFreshRejectsEntryBelowMinFreshness(t *testing.T) {
	c := NewCache(CacheConfig{DefaultTTL: time.Minute})
	c.Set("k1", "v1", 100*time.Millisecond)

	if _, ok := c.GetFresh("k1", time.Second); ok {
		t.Fatal("expected GetFresh to reject an entry with insufficient remaining TTL")
	}
	if _, ok := c.GetFresh("k1", 10*time.Millisecond); !ok {
		t.Fatal("expected GetFresh to accept an entry with sufficient remaining TTL")
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := NewCache(CacheConfig{DefaultTTL: time.Minute})
	c.Set("k1", "v1", 0)
	c.Invalidate("k1")
	if _, ok := c.Get("k1"); ok {
		t.Fatal("expected entry to be gone after Invalidate")
	}
}

func TestInvalidateAllClearsEverything(t *testing.T) {
	c := NewCache(CacheConfig{DefaultTTL: time.Minute})
	c.Set("k1", "v1", 0)
	c.Set("k2", "v2", 0)
	c.InvalidateAll()
	if c.Size() != 0 {
		t.Fatalf("expected size 0 after InvalidateAll, got %d", c.Size())
	}
}

func TestDefaultConfigFillsZeroFields(t *testing.T) {
	c := NewCache(CacheConfig{})
	c.Set("k1", "v1", 0)
	if _, ok := c.Get("k1"); !ok {
		t.Fatal("expected a zero-value config to still produce a working cache via its defaults")
	}
}

func TestTTLCacheNamespacesKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	a := NewTTLCache("a:", time.Minute)
	b := NewTTLCache("b:", time.Minute)

	a.Set(ctx, "shared", "from-a")
	b.Set(ctx, "shared", "from-b")

	gotA, _ := a.Get(ctx, "shared")
	gotB, _ := b.Get(ctx, "shared")
	if gotA != "from-a" || gotB != "from-b" {
		t.Fatalf("expected independent namespaces, got a=%v b=%v", gotA, gotB)
	}
}

func TestTTLCacheDeleteInvalidatesOnlyItsKey(t *testing.T) {
	ctx := context.Background()
	c := NewTTLCache("p:", time.Minute)
	c.Set(ctx, "k1", "v1")
	c.Set(ctx, "k2", "v2")

	c.Delete(ctx, "k1")
	if _, ok := c.Get(ctx, "k1"); ok {
		t.Fatal("expected k1 to be deleted")
	}
	if _, ok := c.Get(ctx, "k2"); !ok {
		t.Fatal("expected k2 to remain")
	}
}
