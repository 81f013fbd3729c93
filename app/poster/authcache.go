package poster

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/okazarov/rss-relay/app/clock"
	"github.com/okazarov/rss-relay/app/logstore"
)

const authCacheFile = "auth_cache.json"

type authCacheState struct {
	ValidUntil time.Time `json:"valid_until"`
	CachedAt   time.Time `json:"cached_at"`
	AuthDate   string    `json:"auth_date"`
}

// AuthCache remembers a successful credential check until the end of the
// local day, so a run with a fresh cache skips the live auth call.
type AuthCache struct {
	path  string
	clock *clock.Clock
}

func NewAuthCache(dataDir string, clk *clock.Clock) *AuthCache {
	return &AuthCache{path: filepath.Join(dataDir, authCacheFile), clock: clk}
}

// Valid reports whether the cached auth is usable: not yet expired AND
// cached on the current local day. Any read problem counts as a miss.
func (a *AuthCache) Valid() bool {
	var state authCacheState
	if err := logstore.ReadJSON(a.path, &state); err != nil {
		slog.Debug("Auth cache read failed", "error", err)
		return false
	}
	if state.ValidUntil.IsZero() {
		return false
	}

	now := a.clock.Now()
	if !now.Before(state.ValidUntil) {
		return false
	}
	return a.clock.SameDay(state.ValidUntil)
}

// Update records a successful auth, valid until the end of today.
func (a *AuthCache) Update() error {
	now := a.clock.Now()
	state := authCacheState{
		ValidUntil: a.clock.EndOfDay(),
		CachedAt:   now,
		AuthDate:   now.Format("2006-01-02"),
	}
	if err := logstore.WriteJSONAtomic(a.path, state); err != nil {
		return err
	}
	slog.Info("Auth cached until end of day", "valid_until", state.ValidUntil)
	return nil
}

// ClearExpired removes a cache left over from a previous day. Called at
// the start of each run.
func (a *AuthCache) ClearExpired() {
	var state authCacheState
	if err := logstore.ReadJSON(a.path, &state); err != nil {
		slog.Debug("Auth cache check failed", "error", err)
		return
	}
	if state.AuthDate == "" {
		return
	}

	today := a.clock.Now().Format("2006-01-02")
	if state.AuthDate < today {
		slog.Info("Clearing auth cache from previous day", "auth_date", state.AuthDate)
		if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to clear auth cache", "error", err)
		}
	}
}
