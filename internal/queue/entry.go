package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Candidate is an upstream content item awaiting a publish slot. The queue
// holds a non-owning reference to it; content generation and safety review
// happen elsewhere.
type Candidate struct {
	ID          string
	Content     string
	ContentType string // e.g. "promo", "thought", "question"
	ContentHash string // deterministic sha256 of Content; doubles as idempotency key
	Metadata    string // optional JSON blob from the generator
	CreatedAt   time.Time
}

// ContentHash returns the canonical hash for candidate content. It is stable
// across restarts and is handed to publish clients as an idempotency key.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

// Entry is the unit of work tracked by the queue.
//
// ScheduledAt is set only once the entry reaches scheduled and is retained
// through posted/failed until an explicit reschedule overwrites it.
// AttemptCount only ever grows; LastAttemptAt lets the publisher derive
// backoff eligibility without separate timers.
type Entry struct {
	ID            string
	CandidateID   string
	Status        Status
	ScheduledAt   *time.Time
	AttemptCount  int
	LastAttemptAt *time.Time
	LastError     string
	PostedID      string // platform id of the published item, set on success
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Due reports whether the entry should be picked up by the publisher at now,
// honoring the retry backoff window. backoff maps attemptCount to the delay
// applied after that many failed attempts.
func (e Entry) Due(now time.Time, backoff func(attempts int) time.Duration) bool {
	if e.Status != StatusScheduled || e.ScheduledAt == nil {
		return false
	}
	if e.ScheduledAt.After(now) {
		return false
	}
	if e.AttemptCount > 0 && e.LastAttemptAt != nil && backoff != nil {
		if e.LastAttemptAt.Add(backoff(e.AttemptCount)).After(now) {
			return false
		}
	}
	return true
}

// Preview returns the first n runes of content with an ellipsis, for listings.
func Preview(content string, n int) string {
	content = strings.TrimSpace(content)
	r := []rune(content)
	if len(r) <= n {
		return content
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
