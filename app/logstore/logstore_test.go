package logstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okazarov/rss-relay/app/clock"
)

func testClock(now time.Time) *clock.Clock {
	clk := clock.New(3)
	clk.NowFunc = func() time.Time { return now }
	return clk
}

func TestEnsureDefaults(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, testClock(time.Now()))

	if err := store.EnsureDefaults(); err != nil {
		t.Fatalf("EnsureDefaults failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, postedFile))
	if err != nil {
		t.Fatalf("Posted log not created: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("Expected empty array, got %s", data)
	}

	// Second call must not clobber existing content
	rec := PostedRecord{Timestamp: time.Now(), Original: "a", Posted: "a", PostID: "1"}
	if err := store.AppendPosted(rec); err != nil {
		t.Fatalf("AppendPosted failed: %v", err)
	}
	if err := store.EnsureDefaults(); err != nil {
		t.Fatalf("Second EnsureDefaults failed: %v", err)
	}
	posted, err := store.LoadPosted()
	if err != nil {
		t.Fatalf("LoadPosted failed: %v", err)
	}
	if len(posted) != 1 {
		t.Errorf("Expected 1 record after re-running EnsureDefaults, got %d", len(posted))
	}
}

func TestAppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	store := NewStore(dir, testClock(now))

	for i, text := range []string{"first", "second", "third"} {
		rec := PostedRecord{Timestamp: now, Original: text, Posted: text, PostID: "id", AIUsed: i%2 == 0}
		if err := store.AppendPosted(rec); err != nil {
			t.Fatalf("AppendPosted %d failed: %v", i, err)
		}
	}

	posted, err := store.LoadPosted()
	if err != nil {
		t.Fatalf("LoadPosted failed: %v", err)
	}
	if len(posted) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(posted))
	}
	if posted[0].Original != "first" || posted[2].Original != "third" {
		t.Errorf("Records out of order: %+v", posted)
	}
	if !posted[0].AIUsed || posted[1].AIUsed {
		t.Errorf("AIUsed flags not preserved: %+v", posted)
	}
}

func TestLoadAbsentFileIsEmpty(t *testing.T) {
	store := NewStore(t.TempDir(), testClock(time.Now()))

	posted, err := store.LoadPosted()
	if err != nil {
		t.Fatalf("LoadPosted on absent file should not error: %v", err)
	}
	if len(posted) != 0 {
		t.Errorf("Expected no records, got %d", len(posted))
	}
}

func TestProcessedSetScoping(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	store := NewStore(dir, testClock(now))

	yesterday := now.Add(-24 * time.Hour)

	// Posted records dedup forever, regardless of age.
	if err := store.AppendPosted(PostedRecord{Timestamp: yesterday, Original: "old posted"}); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendPosted(PostedRecord{Timestamp: now, Original: "new posted"}); err != nil {
		t.Fatal(err)
	}

	// Skipped records dedup only within the current local day.
	if err := store.AppendSkipped(SkippedRecord{Timestamp: yesterday, Text: "old skip", Reason: "r"}); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendSkipped(SkippedRecord{Timestamp: now, Text: "today skip", Reason: "r"}); err != nil {
		t.Fatal(err)
	}

	processed := store.ProcessedSet()

	for _, want := range []string{"old posted", "new posted", "today skip"} {
		if _, ok := processed[want]; !ok {
			t.Errorf("Expected %q in processed set", want)
		}
	}
	if _, ok := processed["old skip"]; ok {
		t.Error("Yesterday's skip should be eligible for re-evaluation today")
	}
}

func TestTodayPostCount(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	store := NewStore(dir, testClock(now))

	if store.TodayPostCount() != 0 {
		t.Error("Expected zero count with no log")
	}

	for _, ts := range []time.Time{now, now.Add(-time.Hour), now.Add(-24 * time.Hour)} {
		if err := store.AppendPosted(PostedRecord{Timestamp: ts, Original: ts.String()}); err != nil {
			t.Fatal(err)
		}
	}

	if got := store.TodayPostCount(); got != 2 {
		t.Errorf("Expected 2 posts today, got %d", got)
	}
}

func TestAppendLeavesValidJSON(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, testClock(time.Now()))

	if err := store.AppendSkipped(SkippedRecord{Timestamp: time.Now(), Text: "one", Reason: "r"}); err != nil {
		t.Fatal(err)
	}

	// No stray temp files after a successful append.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if entry.Name() != skippedFile {
			t.Errorf("Unexpected file left behind: %s", entry.Name())
		}
	}

	skipped, err := store.LoadSkipped()
	if err != nil {
		t.Fatalf("File not valid JSON after append: %v", err)
	}
	if len(skipped) != 1 || skipped[0].Text != "one" {
		t.Errorf("Unexpected content: %+v", skipped)
	}
}

func TestDryRunLog(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, testClock(time.Now()))

	if err := store.AppendDryRun("simulated post"); err != nil {
		t.Fatalf("AppendDryRun failed: %v", err)
	}
	if err := store.AppendDryRun("another"); err != nil {
		t.Fatalf("Second AppendDryRun failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, dryRunFile))
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.Contains(content, "simulated post") || !strings.Contains(content, "another") {
		t.Errorf("Dry run log missing entries: %s", content)
	}
}
