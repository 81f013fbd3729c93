package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/okazarov/rss-relay/app/cfg"
	"github.com/okazarov/rss-relay/app/clock"
	"github.com/okazarov/rss-relay/app/logstore"
	"github.com/okazarov/rss-relay/app/scheduler"
)

const defaultRecordLimit = 50

type Handler struct {
	store     *logstore.Store
	scheduler *scheduler.Scheduler
	clock     *clock.Clock
	startedAt time.Time
}

func NewHandler(store *logstore.Store, sched *scheduler.Scheduler, clk *clock.Clock) *Handler {
	return &Handler{
		store:     store,
		scheduler: sched,
		clock:     clk,
		startedAt: time.Now(),
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"timestamp":  h.clock.Now().Format(time.RFC3339),
		"uptime":     time.Since(h.startedAt).String(),
		"version":    cfg.Get().Version,
		"run_active": h.scheduler.Running(),
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	appCfg := cfg.Get()

	stats := gin.H{
		"today_posts":      h.store.TodayPostCount(),
		"daily_post_limit": appCfg.DailyPostLimit,
		"posts_per_run":    appCfg.PostsPerRun,
		"processed_texts":  len(h.store.ProcessedSet()),
		"dry_run":          appCfg.DryRun,
		"sources":          len(appCfg.Sources),
	}
	if last := h.scheduler.LastRun(); last != nil {
		stats["last_run"] = last
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetPosted(c *gin.Context) {
	records, err := h.store.LoadPosted()
	if err != nil {
		slog.Error("Failed to load posted log", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, tail(records, recordLimit(c)))
}

func (h *Handler) GetSkipped(c *gin.Context) {
	records, err := h.store.LoadSkipped()
	if err != nil {
		slog.Error("Failed to load skipped log", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, tail(records, recordLimit(c)))
}

// TriggerRun starts a pipeline run in the background, refusing overlap.
func (h *Handler) TriggerRun(c *gin.Context) {
	if h.scheduler.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": "a run is already active"})
		return
	}

	go func() {
		if err := h.scheduler.TriggerRun(); err != nil {
			slog.Error("Manually triggered run failed", "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "run started"})
}

func recordLimit(c *gin.Context) int {
	limit := defaultRecordLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return limit
}

// tail returns the last n elements, newest last.
func tail[T any](records []T, n int) []T {
	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}
