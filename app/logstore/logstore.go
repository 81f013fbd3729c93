// Package logstore persists the pipeline's terminal decisions as JSON-array
// files with atomic replace semantics: a reader always observes either the
// pre-append or the post-append state, never a truncated file.
package logstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/okazarov/rss-relay/app/clock"
)

const (
	postedFile  = "posted_log.json"
	skippedFile = "skipped_items.json"
	dryRunFile  = "dry_run_log.txt"
)

type Store struct {
	dataDir string
	clock   *clock.Clock
}

func NewStore(dataDir string, clk *clock.Clock) *Store {
	return &Store{dataDir: dataDir, clock: clk}
}

// EnsureDefaults pre-creates the log files with empty shapes so that later
// reads never have to distinguish absent from empty.
func (s *Store) EnsureDefaults() error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	for _, f := range []struct {
		name    string
		content []byte
	}{
		{postedFile, []byte("[]")},
		{skippedFile, []byte("[]")},
		{dryRunFile, nil},
	} {
		path := filepath.Join(s.dataDir, f.name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if err := os.WriteFile(path, f.content, 0o644); err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		slog.Info("Created missing log file", "path", path)
	}
	return nil
}

// AppendPosted records a published item. Errors here are quota-critical:
// the caller must stop posting rather than risk exceeding the daily cap.
func (s *Store) AppendPosted(rec PostedRecord) error {
	return appendJSON(filepath.Join(s.dataDir, postedFile), rec)
}

func (s *Store) AppendSkipped(rec SkippedRecord) error {
	return appendJSON(filepath.Join(s.dataDir, skippedFile), rec)
}

// AppendDryRun writes one line to the plain-text simulation log.
func (s *Store) AppendDryRun(text string) error {
	path := filepath.Join(s.dataDir, dryRunFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open dry run log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s: %s\n", s.clock.Now().Format(time.RFC3339), text)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to write dry run log: %w", err)
	}
	return nil
}

func (s *Store) LoadPosted() ([]PostedRecord, error) {
	var recs []PostedRecord
	if err := ReadJSON(filepath.Join(s.dataDir, postedFile), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) LoadSkipped() ([]SkippedRecord, error) {
	var recs []SkippedRecord
	if err := ReadJSON(filepath.Join(s.dataDir, skippedFile), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// ProcessedSet returns every text the pipeline must not reconsider: all
// posted originals regardless of age, plus items skipped today. Skips from
// prior days stay out so the content gets another chance.
func (s *Store) ProcessedSet() map[string]struct{} {
	processed := make(map[string]struct{})

	posted, err := s.LoadPosted()
	if err != nil {
		slog.Warn("Failed to read posted log for dedup", "error", err)
	}
	for _, rec := range posted {
		processed[rec.Original] = struct{}{}
	}

	skipped, err := s.LoadSkipped()
	if err != nil {
		slog.Warn("Failed to read skipped log for dedup", "error", err)
	}
	for _, rec := range skipped {
		if s.clock.SameDay(rec.Timestamp) {
			processed[rec.Text] = struct{}{}
		}
	}

	return processed
}

// TodayPostCount recomputes today's published count from the posted log.
// It is derived state, never cached, so the daily quota survives restarts.
func (s *Store) TodayPostCount() int {
	posted, err := s.LoadPosted()
	if err != nil {
		slog.Warn("Failed to count today's posts", "error", err)
		return 0
	}
	count := 0
	for _, rec := range posted {
		if s.clock.SameDay(rec.Timestamp) {
			count++
		}
	}
	return count
}

// appendJSON reads the current array, appends entry and atomically replaces
// the target file.
func appendJSON(path string, entry any) error {
	var data []json.RawMessage
	if err := ReadJSON(path, &data); err != nil {
		return err
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	data = append(data, raw)

	return WriteJSONAtomic(path, data)
}
