package logstore

import (
	"time"
)

// PostedRecord is one published item. Records are append-only and are the
// permanent dedup history: an original text that appears here is never
// considered again.
type PostedRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Original  string    `json:"original"`
	Posted    string    `json:"posted"`
	PostID    string    `json:"post_id"`
	AIUsed    bool      `json:"ai_used"`
}

// SkippedRecord is one item dropped by a terminal pipeline decision.
// Skips only dedup within their own local day, so a transiently rejected
// item becomes eligible again tomorrow.
type SkippedRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Reason    string    `json:"reason"`
}

// DryRunPostID is the sentinel identifier recorded for simulated posts.
const DryRunPostID = "dry-run"
