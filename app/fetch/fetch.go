// Package fetch pulls candidate texts from RSS/Atom sources. Fetching is
// best-effort: any failure is logged and yields an empty batch, never an
// error to the caller.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/okazarov/rss-relay/app/cfg"
	"github.com/okazarov/rss-relay/app/clock"
)

const fetchTimeout = 30 * time.Second

type Fetcher struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	clock      *clock.Clock
	userAgent  string
}

func NewFetcher(httpClient *http.Client, clk *clock.Clock, userAgent string) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
		clock:      clk,
		userAgent:  userAgent,
	}
}

// FetchToday returns up to source.Limit item titles published today,
// in feed order.
func (f *Fetcher) FetchToday(ctx context.Context, source cfg.Source) []string {
	slog.Info("Fetching source", "source", source.Name, "url", source.URL)

	data, err := f.fetch(ctx, source.URL)
	if err != nil {
		slog.Error("Source fetch failed", "source", source.Name, "error", err)
		return nil
	}

	feed, err := f.parser.ParseString(string(data))
	if err != nil {
		slog.Error("Source parse failed", "source", source.Name, "error", err)
		return nil
	}

	var texts []string
	for _, item := range feed.Items {
		if len(texts) >= source.Limit {
			break
		}
		if item.PublishedParsed == nil || !f.clock.SameDay(*item.PublishedParsed) {
			continue
		}
		if item.Title == "" {
			continue
		}
		texts = append(texts, item.Title)
	}

	slog.Info("Fetched items for today", "source", source.Name, "count", len(texts))
	return texts
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	return io.ReadAll(resp.Body)
}
