package cache

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(config Config) (*Cache[string], *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	c := New[string](config)
	c.now = clock.now
	return c, clock
}

func TestCacheBasicOperations(t *testing.T) {
	c, _ := newTestCache(Config{})

	if c.Len() != 0 {
		t.Errorf("Expected empty cache, got size %d", c.Len())
	}

	c.Put("return1", "unit-1")
	if v, ok := c.Get("return1"); !ok || v != "unit-1" {
		t.Errorf("Expected unit-1, got %q (found=%v)", v, ok)
	}
	if _, ok := c.Get("return2"); ok {
		t.Error("Expected miss for unknown key")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	c.Remove("return1")
	if c.Len() != 0 {
		t.Errorf("Expected empty cache after remove, got %d", c.Len())
	}
}

func TestGetOrCompileCompilesOnce(t *testing.T) {
	c, _ := newTestCache(Config{})
	compiles := 0
	compile := func() (string, error) {
		compiles++
		return "unit", nil
	}

	for i := 0; i < 3; i++ {
		v, cached, err := c.GetOrCompile("key", compile)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if v != "unit" {
			t.Errorf("Expected unit, got %q", v)
		}
		if cached != (i > 0) {
			t.Errorf("Call %d: expected cached=%v", i, i > 0)
		}
	}
	if compiles != 1 {
		t.Errorf("Expected exactly one compilation, got %d", compiles)
	}
	if s := c.Stats(); s.Compiles != 1 || s.Hits != 2 {
		t.Errorf("Unexpected stats %+v", s)
	}
}

func TestGetOrCompileDoesNotCacheFailures(t *testing.T) {
	c, _ := newTestCache(Config{})
	boom := errors.New("boom")

	if _, _, err := c.GetOrCompile("key", func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Failed compile must not be cached")
	}

	v, cached, err := c.GetOrCompile("key", func() (string, error) { return "ok", nil })
	if err != nil || cached || v != "ok" {
		t.Errorf("Expected fresh compile after failure, got %q cached=%v err=%v", v, cached, err)
	}
	if s := c.Stats(); s.Failures != 1 {
		t.Errorf("Expected one failure, got %d", s.Failures)
	}
}

func TestGetOrCompileConcurrent(t *testing.T) {
	c := New[int](Config{})
	var mu sync.Mutex
	compiles := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = c.GetOrCompile("same", func() (int, error) {
				mu.Lock()
				compiles++
				mu.Unlock()
				return 1, nil
			})
		}()
	}
	wg.Wait()

	if compiles != 1 {
		t.Errorf("Expected one compilation under contention, got %d", compiles)
	}
}

func TestCacheSizeEvictsOldest(t *testing.T) {
	c, clock := newTestCache(Config{Size: 2})

	c.Put("a", "1")
	clock.advance(time.Second)
	c.Put("b", "2")
	clock.advance(time.Second)
	c.Put("c", "3")

	if c.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("Expected oldest entry to be evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("Expected newest entry to be present")
	}
	if s := c.Stats(); s.Evictions != 1 {
		t.Errorf("Expected one eviction, got %d", s.Evictions)
	}
}

func TestCacheTTL(t *testing.T) {
	c, clock := newTestCache(Config{TTL: time.Minute})

	c.Put("k", "v")
	clock.advance(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Error("Expected entry before TTL")
	}

	clock.advance(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("Expected entry to expire after TTL")
	}
	if c.Len() != 0 {
		t.Errorf("Expired entry should be removed, size %d", c.Len())
	}
}

func TestCacheKeysAndClear(t *testing.T) {
	c, _ := newTestCache(Config{})
	c.Put("x", "1")
	c.Put("y", "2")

	if keys := c.Keys(); len(keys) != 2 {
		t.Errorf("Expected 2 keys, got %v", keys)
	}
	c.Clear()
	if c.Len() != 0 || len(c.Keys()) != 0 {
		t.Error("Expected empty cache after Clear")
	}
}

func TestFingerprintStable(t *testing.T) {
	if Fingerprint("return1") != Fingerprint("return1") {
		t.Error("Fingerprint must be deterministic")
	}
	if Fingerprint("return1") == Fingerprint("return2") {
		t.Error("Expected distinct fingerprints for distinct keys")
	}
}
