package cache

import (
	"testing"
	"time"

	"github.com/shelfwatch/shelfwatch/models"
)

func TestKey_DependsOnURLAndMode(t *testing.T) {
	a := Key("https://example.com/p/1", "auto")
	b := Key("https://example.com/p/1", "browser")
	c := Key("https://example.com/p/2", "auto")

	if a == b {
		t.Error("different modes produced the same key")
	}
	if a == c {
		t.Error("different URLs produced the same key")
	}
	if a != Key("https://example.com/p/1", "auto") {
		t.Error("key is not deterministic")
	}
}

func TestCache_HitMissAndExpiry(t *testing.T) {
	c := New(10, 50*time.Millisecond)
	resp := &models.ScrapeResponse{Success: true}

	key := Key("https://example.com", "auto")
	if _, ok := c.Get(key); ok {
		t.Fatal("hit on empty cache")
	}

	c.Set(key, resp)
	got, ok := c.Get(key)
	if !ok || !got.Success {
		t.Fatal("expected cache hit after Set")
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Error("hit after TTL expiry")
	}
}

func TestCache_GetReturnsIsolatedCopy(t *testing.T) {
	c := New(10, time.Minute)
	key := Key("https://example.com/p/1", "auto")
	c.Set(key, &models.ScrapeResponse{Success: true})

	first, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	first.CacheStatus = "hit"
	first.Timing.TotalMs = 42

	second, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if second.CacheStatus != "" {
		t.Errorf("stored entry picked up caller's CacheStatus %q", second.CacheStatus)
	}
	if second.Timing.TotalMs != 0 {
		t.Errorf("stored entry picked up caller's timing %d", second.Timing.TotalMs)
	}
}

func TestCache_SetCopiesResponse(t *testing.T) {
	c := New(10, time.Minute)
	key := Key("https://example.com/p/1", "auto")

	resp := &models.ScrapeResponse{Success: true}
	c.Set(key, resp)
	resp.CacheStatus = "miss"

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.CacheStatus != "" {
		t.Errorf("stored entry shares memory with caller's response: CacheStatus %q", got.CacheStatus)
	}
}

func TestCache_StopIsIdempotent(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("a", &models.ScrapeResponse{Success: true})

	c.Stop()
	c.Stop()

	if _, ok := c.Get("a"); !ok {
		t.Error("cache unusable after Stop")
	}
}

func TestCache_EvictsAtCapacity(t *testing.T) {
	c := New(2, time.Minute)
	c.Set("a", &models.ScrapeResponse{})
	c.Set("b", &models.ScrapeResponse{})
	c.Set("c", &models.ScrapeResponse{})

	c.mu.RLock()
	n := len(c.store)
	c.mu.RUnlock()
	if n > 2 {
		t.Errorf("cache holds %d entries, capacity 2", n)
	}
}

func TestCache_ZeroCapacityDisables(t *testing.T) {
	c := New(0, time.Minute)
	c.Set("a", &models.ScrapeResponse{})
	if _, ok := c.Get("a"); ok {
		t.Error("zero-capacity cache stored an entry")
	}
}
