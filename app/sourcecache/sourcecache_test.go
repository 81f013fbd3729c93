package sourcecache

import (
	"testing"
	"time"

	"github.com/okazarov/rss-relay/app/clock"
	"github.com/okazarov/rss-relay/app/logstore"
)

func testClock(now *time.Time) *clock.Clock {
	clk := clock.New(3)
	clk.NowFunc = func() time.Time { return *now }
	return clk
}

func TestStoreAndLoadToday(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	cache := NewCache(t.TempDir(), testClock(&now))

	if err := cache.Store("feed1", "http://example.com/1", []string{"alpha", "beta"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := cache.Store("feed2", "http://example.com/2", []string{"beta", "gamma"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	candidates, err := cache.LoadToday([]string{"feed1", "feed2"})
	if err != nil {
		t.Fatalf("LoadToday failed: %v", err)
	}

	// "beta" appears in both sources; first occurrence wins.
	if len(candidates) != 3 {
		t.Fatalf("Expected 3 unique candidates, got %d", len(candidates))
	}
	if candidates[0].Text != "alpha" || candidates[1].Text != "beta" || candidates[2].Text != "gamma" {
		t.Errorf("Unexpected order: %+v", candidates)
	}
	if candidates[1].Source != "feed1" {
		t.Errorf("Duplicate text should keep first source, got %s", candidates[1].Source)
	}
	for _, cand := range candidates {
		if cand.Enhanced {
			t.Errorf("Fresh item %q should not be enhanced", cand.Text)
		}
	}
}

func TestPruneToTodayIdempotent(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	cache := NewCache(t.TempDir(), testClock(&now))

	// Store a batch yesterday, then one today.
	now = time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)
	if err := cache.Store("feed1", "http://example.com/1", []string{"stale"}); err != nil {
		t.Fatal(err)
	}
	now = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	if err := cache.Store("feed1", "http://example.com/1", []string{"fresh"}); err != nil {
		t.Fatal(err)
	}

	if err := cache.PruneToToday("feed1"); err != nil {
		t.Fatalf("PruneToToday failed: %v", err)
	}
	first, err := cache.LoadToday([]string{"feed1"})
	if err != nil {
		t.Fatal(err)
	}

	if err := cache.PruneToToday("feed1"); err != nil {
		t.Fatalf("Second PruneToToday failed: %v", err)
	}
	second, err := cache.LoadToday([]string{"feed1"})
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != 1 || first[0].Text != "fresh" {
		t.Errorf("Expected only today's batch, got %+v", first)
	}
	if len(second) != len(first) {
		t.Errorf("Prune should be idempotent: %d vs %d items", len(second), len(first))
	}
}

func TestPruneAbsentFileIsNoop(t *testing.T) {
	now := time.Now()
	cache := NewCache(t.TempDir(), testClock(&now))

	if err := cache.PruneToToday("missing"); err != nil {
		t.Errorf("Prune on absent source should not error: %v", err)
	}
}

func TestMarkEnhanced(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	cache := NewCache(t.TempDir(), testClock(&now))

	if err := cache.Store("feed1", "http://example.com/1", []string{"alpha", "beta"}); err != nil {
		t.Fatal(err)
	}

	cache.MarkEnhanced("feed1", "beta")

	candidates, err := cache.LoadToday([]string{"feed1"})
	if err != nil {
		t.Fatal(err)
	}
	for _, cand := range candidates {
		want := cand.Text == "beta"
		if cand.Enhanced != want {
			t.Errorf("Item %q enhanced=%v, want %v", cand.Text, cand.Enhanced, want)
		}
	}

	// Marking again, or marking something absent, must be silent no-ops.
	cache.MarkEnhanced("feed1", "beta")
	cache.MarkEnhanced("feed1", "does not exist")
	cache.MarkEnhanced("nosuchsource", "alpha")

	candidates, err = cache.LoadToday([]string{"feed1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(candidates))
	}
}

func TestEnsureDefaults(t *testing.T) {
	now := time.Now()
	dir := t.TempDir()
	cache := NewCache(dir, testClock(&now))

	sources := map[string]string{"feed1": "http://example.com/1"}
	if err := cache.EnsureDefaults(sources); err != nil {
		t.Fatalf("EnsureDefaults failed: %v", err)
	}

	var data sourceFile
	if err := logstore.ReadJSON(cache.filePath("feed1"), &data); err != nil {
		t.Fatal(err)
	}
	if data.URL != "http://example.com/1" {
		t.Errorf("Expected URL preserved, got %q", data.URL)
	}
	if len(data.Batches) != 0 {
		t.Errorf("Expected empty batches, got %d", len(data.Batches))
	}
}
