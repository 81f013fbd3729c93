// Package pipeline sequences one full run: quota gate, prune, fetch,
// dedupe, pre-filter, enhancement, re-filter, risk gate, and the posting
// loop. Every terminal decision is recorded exactly once in the durable
// logs before the next candidate is considered.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/okazarov/rss-relay/app/ai"
	"github.com/okazarov/rss-relay/app/cfg"
	"github.com/okazarov/rss-relay/app/clock"
	"github.com/okazarov/rss-relay/app/filter"
	"github.com/okazarov/rss-relay/app/logstore"
	"github.com/okazarov/rss-relay/app/poster"
	"github.com/okazarov/rss-relay/app/sourcecache"
)

// Fetcher pulls today's item texts from one source.
type Fetcher interface {
	FetchToday(ctx context.Context, source cfg.Source) []string
}

// Enhancer rewrites a text, reporting whether the service contributed.
type Enhancer interface {
	Enhance(ctx context.Context, text string) (string, bool)
}

// Assessor scores block risk for a text.
type Assessor interface {
	Assess(ctx context.Context, text string) (float64, string)
}

// AuthCache gates the once-per-run live credential check.
type AuthCache interface {
	Valid() bool
	Update() error
	ClearExpired()
}

// Summary is the outcome of one run.
type Summary struct {
	Fetched    int
	Unique     int
	Candidates int
	AIRequests int
	Posted     int
	Skipped    int
}

// candidate carries an item through the stages. Raw is the cached text
// used for the enhanced marker; Text may already be truncated.
type candidate struct {
	Raw      string
	Text     string
	Enhanced bool
	Source   string
}

// postable is a candidate that survived every gate.
type postable struct {
	Final    string
	AIUsed   bool
	Original string
	Source   string
}

type Runner struct {
	clock     *clock.Clock
	store     *logstore.Store
	cache     *sourcecache.Cache
	rules     *filter.Rules
	fetcher   Fetcher
	enhancer  Enhancer
	assessor  Assessor
	client    poster.Client
	authCache AuthCache

	sources        []cfg.Source
	charLimit      int
	aiPerRunCap    int
	riskThreshold  float64
	riskEnabled    bool
	postsPerRun    int
	dailyPostLimit int
	interPostDelay time.Duration
	dryRun         bool
	retry          RetryPolicy

	// Sleep and Shuffle are swappable in tests.
	Sleep   func(time.Duration)
	Shuffle func(n int, swap func(i, j int))
}

func NewRunner(clk *clock.Clock, store *logstore.Store, cache *sourcecache.Cache,
	rules *filter.Rules, fetcher Fetcher, enhancer Enhancer, assessor Assessor,
	client poster.Client, authCache AuthCache) *Runner {
	c := cfg.Get()

	return &Runner{
		clock:          clk,
		store:          store,
		cache:          cache,
		rules:          rules,
		fetcher:        fetcher,
		enhancer:       enhancer,
		assessor:       assessor,
		client:         client,
		authCache:      authCache,
		sources:        c.Sources,
		charLimit:      c.CharLimit,
		aiPerRunCap:    c.AIPerRunCap,
		riskThreshold:  c.BlockRiskThreshold,
		riskEnabled:    c.RiskStageEnabled(),
		postsPerRun:    c.PostsPerRun,
		dailyPostLimit: c.DailyPostLimit,
		interPostDelay: time.Duration(c.SleepBetween) * time.Second,
		dryRun:         c.DryRun,
		retry: RetryPolicy{
			MaxAttempts:   c.MaxRetries,
			BaseDelay:     10 * time.Second,
			RateLimitWait: time.Duration(c.RateLimitWait) * time.Second,
		},
		Sleep:   time.Sleep,
		Shuffle: rand.Shuffle,
	}
}

// Run executes one complete pass. It returns an error only for fatal
// conditions (bad credentials, failed auth, quota-critical write failure);
// everything else degrades to skips and partial completion.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	r.authCache.ClearExpired()

	// Daily quota gate before any fetch work.
	todayCount := r.store.TodayPostCount()
	if todayCount >= r.dailyPostLimit {
		slog.Info("Daily post limit reached, skipping run", "today", todayCount, "limit", r.dailyPostLimit)
		return summary, nil
	}

	for _, source := range r.sources {
		if err := r.cache.PruneToToday(source.Name); err != nil {
			slog.Error("Failed to prune source cache", "source", source.Name, "error", err)
		}
	}

	fetched := r.fetchAll(ctx, summary)
	if fetched == 0 {
		slog.Info("No new items fetched from any source today")
		return summary, nil
	}

	candidates, err := r.loadUnprocessed()
	if err != nil {
		return summary, err
	}
	summary.Unique = len(candidates)
	if len(candidates) == 0 {
		slog.Info("All fetched items have already been processed")
		return summary, nil
	}

	r.order(candidates)

	filtered := r.preFilter(candidates, summary)
	if len(filtered) == 0 {
		slog.Info("No items passed pre-filtering")
		return summary, nil
	}

	ready := r.aiProcess(ctx, filtered, summary)
	summary.Candidates = len(ready)
	if len(ready) == 0 {
		slog.Info("No postable items after enhancement and filters")
		return summary, nil
	}

	maxPosts := min(r.postsPerRun, r.dailyPostLimit-todayCount, len(ready))
	slog.Info("Preparing to post", "max_posts", maxPosts, "candidates", len(ready))

	if err := r.ensureAuth(ctx); err != nil {
		return summary, err
	}

	if err := r.postLoop(ctx, ready[:maxPosts], summary); err != nil {
		return summary, err
	}

	slog.Info("Run complete",
		"fetched", summary.Fetched,
		"unique", summary.Unique,
		"ai_requests", summary.AIRequests,
		"posted", summary.Posted,
		"skipped", summary.Skipped,
		"today_total", todayCount+summary.Posted)

	return summary, nil
}

// fetchAll pulls every source and stores the batches. Fetch failures are
// already degraded to empty batches by the fetcher.
func (r *Runner) fetchAll(ctx context.Context, summary *Summary) int {
	total := 0
	for _, source := range r.sources {
		texts := r.fetcher.FetchToday(ctx, source)
		if len(texts) == 0 {
			slog.Warn("No items for today from source", "source", source.Name)
			continue
		}
		if err := r.cache.Store(source.Name, source.URL, texts); err != nil {
			slog.Error("Failed to store fetched batch", "source", source.Name, "error", err)
		}
		total += len(texts)
	}
	summary.Fetched = total
	return total
}

// loadUnprocessed reloads today's cached items and drops everything the
// durable logs already account for.
func (r *Runner) loadUnprocessed() ([]candidate, error) {
	names := make([]string, 0, len(r.sources))
	for _, source := range r.sources {
		names = append(names, source.Name)
	}

	cached, err := r.cache.LoadToday(names)
	if err != nil {
		return nil, fmt.Errorf("failed to load source caches: %w", err)
	}

	processed := r.store.ProcessedSet()
	candidates := make([]candidate, 0, len(cached))
	for _, item := range cached {
		if _, ok := processed[item.Text]; ok {
			continue
		}
		candidates = append(candidates, candidate{
			Raw:      item.Text,
			Text:     item.Text,
			Enhanced: item.Enhanced,
			Source:   item.Source,
		})
	}

	slog.Info("Unprocessed candidates", "count", len(candidates), "cached", len(cached))
	return candidates, nil
}

// order randomizes the run's presentation order, then restores the
// unenhanced-first partition so leftover items from earlier runs keep
// their priority while sources are not starved systematically.
func (r *Runner) order(candidates []candidate) {
	r.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return !candidates[i].Enhanced && candidates[j].Enhanced
	})
}

// preFilter truncates over-long texts and applies the policy rules before
// any generative call is spent.
func (r *Runner) preFilter(candidates []candidate, summary *Summary) []candidate {
	filtered := make([]candidate, 0, len(candidates))
	for _, cand := range candidates {
		if utf8.RuneCountInString(cand.Text) > r.charLimit {
			truncated := ai.TruncateAndFormat(cand.Text, r.charLimit)
			if utf8.RuneCountInString(truncated) > r.charLimit {
				r.recordSkipped(summary, cand.Text, fmt.Sprintf("too long even after truncation (%d chars)", utf8.RuneCountInString(truncated)))
				continue
			}
			cand.Text = truncated
		}

		allowed, reason := filter.Classify(cand.Text, r.rules)
		if !allowed {
			r.recordSkipped(summary, cand.Text, reason)
			continue
		}

		filtered = append(filtered, cand)
	}

	slog.Info("Pre-filtering complete", "passed", len(filtered), "evaluated", len(candidates))
	return filtered
}

// aiProcess spends the run's generative budget on enhancement and risk
// scoring. Once the budget is exhausted, remaining candidates keep
// enhanced=false in the cache and resume next run.
func (r *Runner) aiProcess(ctx context.Context, candidates []candidate, summary *Summary) []postable {
	var ready []postable

	for i, cand := range candidates {
		if summary.AIRequests >= r.aiPerRunCap {
			slog.Warn("Generative budget exhausted, deferring remaining candidates",
				"used", summary.AIRequests, "remaining", len(candidates)-i)
			break
		}

		final, aiUsed := r.enhancer.Enhance(ctx, cand.Text)
		summary.AIRequests++
		r.cache.MarkEnhanced(cand.Source, cand.Raw)

		if utf8.RuneCountInString(final) > r.charLimit {
			r.recordSkipped(summary, final, fmt.Sprintf("still too long after enhancement (%d > %d)", utf8.RuneCountInString(final), r.charLimit))
			continue
		}

		allowed, reason := filter.Classify(final, r.rules)
		if !allowed {
			r.recordSkipped(summary, final, "failed filter after enhancement: "+reason)
			continue
		}

		if r.riskEnabled && summary.AIRequests < r.aiPerRunCap {
			score, suggestion := r.assessor.Assess(ctx, final)
			summary.AIRequests++
			if score > r.riskThreshold {
				r.recordSkipped(summary, final, fmt.Sprintf("high block risk (score: %.1f/10); suggestion: %s", score, suggestion))
				continue
			}
		}

		ready = append(ready, postable{Final: final, AIUsed: aiUsed, Original: cand.Text, Source: cand.Source})
	}

	slog.Info("Generative processing complete", "ready", len(ready), "ai_requests", summary.AIRequests)
	return ready
}

// ensureAuth performs the once-per-run credential check, honoring the
// day-scoped cache. Auth failures are fatal: no posts are attempted.
func (r *Runner) ensureAuth(ctx context.Context) error {
	if r.authCache.Valid() {
		slog.Info("Using cached auth")
		return nil
	}

	slog.Info("Authenticating with posting API")
	if err := r.client.Verify(ctx); err != nil {
		var rl *poster.RateLimitError
		if errors.As(err, &rl) {
			wait := rl.WaitFor(r.clock.Now(), r.retry.RateLimitWait)
			slog.Warn("Rate limited on auth, waiting before ending run", "wait", wait)
			r.Sleep(wait)
		}
		return fmt.Errorf("authentication failed: %w", err)
	}

	if err := r.authCache.Update(); err != nil {
		slog.Warn("Failed to persist auth cache", "error", err)
	}
	return nil
}

// postLoop publishes the selected candidates with retry, backoff and the
// inter-post delay. A posted-log write failure aborts the loop: the daily
// cap cannot be enforced without that record.
func (r *Runner) postLoop(ctx context.Context, ready []postable, summary *Summary) error {
	for i, item := range ready {
		slog.Info("Posting item", "index", i+1, "total", len(ready))

		postID, err := r.postWithRetry(ctx, item.Final)
		if err != nil {
			slog.Error("Failed to post item", "index", i+1, "error", err)
			continue
		}

		rec := logstore.PostedRecord{
			Timestamp: r.clock.Now(),
			Original:  item.Original,
			Posted:    item.Final,
			PostID:    postID,
			AIUsed:    item.AIUsed,
		}
		if err := r.store.AppendPosted(rec); err != nil {
			return fmt.Errorf("failed to record posted item, stopping to protect daily cap: %w", err)
		}

		summary.Posted++
		if summary.Posted < len(ready) {
			slog.Info("Sleeping before next post", "delay", r.interPostDelay)
			r.Sleep(r.interPostDelay)
		}
	}
	return nil
}

// postWithRetry publishes one text. Rate limits wait out the server hint
// (or the configured default); other failures use linear backoff. In dry
// run mode the posting capability is never invoked.
func (r *Runner) postWithRetry(ctx context.Context, text string) (string, error) {
	if r.dryRun {
		slog.Info("[DRY RUN] Would post", "text", text)
		if err := r.store.AppendDryRun(text); err != nil {
			slog.Error("Failed to write dry run log", "error", err)
		}
		return logstore.DryRunPostID, nil
	}

	var lastErr error
	for attempt := 0; attempt < r.retry.MaxAttempts; attempt++ {
		postID, err := r.client.Post(ctx, text)
		if err == nil {
			slog.Info("Posted item", "post_id", postID)
			return postID, nil
		}
		lastErr = err

		var rl *poster.RateLimitError
		if errors.As(err, &rl) {
			wait := rl.WaitFor(r.clock.Now(), r.retry.RateLimitWait)
			slog.Warn("Rate limited, waiting", "wait", wait, "attempt", attempt+1, "max", r.retry.MaxAttempts)
			r.Sleep(wait)
			continue
		}

		slog.Error("Post attempt failed", "attempt", attempt+1, "error", err)
		if attempt < r.retry.MaxAttempts-1 {
			r.Sleep(r.retry.BackoffDelay(attempt))
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// recordSkipped writes a skip decision, logging rather than aborting on
// persistence failure so the run can continue with other candidates.
func (r *Runner) recordSkipped(summary *Summary, text, reason string) {
	rec := logstore.SkippedRecord{
		Timestamp: r.clock.Now(),
		Text:      text,
		Reason:    reason,
	}
	if err := r.store.AppendSkipped(rec); err != nil {
		slog.Error("Failed to record skipped item", "error", err)
	}
	summary.Skipped++
	slog.Info("Skipped item", "reason", reason)
}
