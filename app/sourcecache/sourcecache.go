// Package sourcecache keeps a per-source JSON record of fetched batches so
// a run can be interrupted and resumed without refetching or reprocessing.
// Only today's batches are retained; the enhanced flag marks items that
// have already been through the enhancement stage.
package sourcecache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/okazarov/rss-relay/app/clock"
	"github.com/okazarov/rss-relay/app/logstore"
)

// Item is one cached candidate text. Enhanced is an idempotency marker for
// the enhancement stage, not an indication the item was posted.
type Item struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Enhanced  bool      `json:"enhanced"`
}

// Batch is one fetch event.
type Batch struct {
	FetchTimestamp time.Time `json:"fetch_timestamp"`
	Items          []Item    `json:"items"`
}

type sourceFile struct {
	URL     string  `json:"url"`
	Batches []Batch `json:"fetched_batches"`
}

// Candidate is an item merged across sources for pipeline consumption.
type Candidate struct {
	Text     string
	Enhanced bool
	Source   string
}

type Cache struct {
	dataDir string
	clock   *clock.Clock
}

func NewCache(dataDir string, clk *clock.Clock) *Cache {
	return &Cache{dataDir: dataDir, clock: clk}
}

// EnsureDefaults pre-creates an empty cache file per source.
func (c *Cache) EnsureDefaults(sources map[string]string) error {
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	for name, url := range sources {
		path := c.filePath(name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if err := logstore.WriteJSONAtomic(path, sourceFile{URL: url, Batches: []Batch{}}); err != nil {
			return err
		}
		slog.Info("Created missing source cache", "source", name, "path", path)
	}
	return nil
}

// Store appends a new batch for the source, tagging every item enhanced=false.
func (c *Cache) Store(source, url string, texts []string) error {
	path := c.filePath(source)
	data := sourceFile{URL: url, Batches: []Batch{}}
	if err := logstore.ReadJSON(path, &data); err != nil {
		return err
	}

	now := c.clock.Now()
	batch := Batch{FetchTimestamp: now, Items: make([]Item, 0, len(texts))}
	for _, text := range texts {
		batch.Items = append(batch.Items, Item{Timestamp: now, Text: text})
	}
	data.Batches = append(data.Batches, batch)

	if err := logstore.WriteJSONAtomic(path, data); err != nil {
		return err
	}
	slog.Info("Stored fetched batch", "source", source, "items", len(texts))
	return nil
}

// PruneToToday drops batches fetched on prior days and persists immediately.
// Calling it twice in a row retains the same set as calling it once.
func (c *Cache) PruneToToday(source string) error {
	path := c.filePath(source)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	var data sourceFile
	if err := logstore.ReadJSON(path, &data); err != nil {
		return err
	}

	kept := make([]Batch, 0, len(data.Batches))
	for _, batch := range data.Batches {
		if c.clock.SameDay(batch.FetchTimestamp) {
			kept = append(kept, batch)
		}
	}
	if len(kept) == len(data.Batches) {
		return nil
	}
	data.Batches = kept

	if err := logstore.WriteJSONAtomic(path, data); err != nil {
		return err
	}
	slog.Info("Pruned stale batches", "source", source, "kept", len(kept))
	return nil
}

// LoadToday merges today's batches across the given sources in order,
// de-duplicating by exact text. The first occurrence wins.
func (c *Cache) LoadToday(sources []string) ([]Candidate, error) {
	var all []Candidate
	seen := make(map[string]struct{})

	for _, source := range sources {
		var data sourceFile
		if err := logstore.ReadJSON(c.filePath(source), &data); err != nil {
			slog.Warn("Failed to load source cache", "source", source, "error", err)
			continue
		}
		for _, batch := range data.Batches {
			if !c.clock.SameDay(batch.FetchTimestamp) {
				continue
			}
			for _, item := range batch.Items {
				if _, ok := seen[item.Text]; ok {
					continue
				}
				seen[item.Text] = struct{}{}
				all = append(all, Candidate{Text: item.Text, Enhanced: item.Enhanced, Source: source})
			}
		}
	}

	slog.Info("Loaded cached candidates", "sources", len(sources), "unique", len(all))
	return all, nil
}

// MarkEnhanced flips the enhanced flag on the first item matching text.
// A missing item or an already-set flag is a no-op, never an error.
func (c *Cache) MarkEnhanced(source, text string) {
	path := c.filePath(source)

	var data sourceFile
	if err := logstore.ReadJSON(path, &data); err != nil {
		slog.Warn("Failed to read source cache for enhanced flag", "source", source, "error", err)
		return
	}

	updated := false
	for bi := range data.Batches {
		for ii := range data.Batches[bi].Items {
			if data.Batches[bi].Items[ii].Text == text && !data.Batches[bi].Items[ii].Enhanced {
				data.Batches[bi].Items[ii].Enhanced = true
				updated = true
				break
			}
		}
		if updated {
			break
		}
	}
	if !updated {
		return
	}

	if err := logstore.WriteJSONAtomic(path, data); err != nil {
		slog.Warn("Failed to persist enhanced flag", "source", source, "error", err)
	}
}

func (c *Cache) filePath(source string) string {
	return filepath.Join(c.dataDir, source+".json")
}
