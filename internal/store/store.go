package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"postpilot/internal/queue"
	logx "postpilot/pkg/logx"
)

var (
	// ErrDuplicateCandidate means a candidate with the same content hash
	// already exists; ingest treats this as "already imported".
	ErrDuplicateCandidate = errors.New("duplicate candidate content")

	// ErrStaleEntry means an atomic update found the row in a different
	// status than expected. With a single writer this indicates a bug or a
	// second daemon running against the same store.
	ErrStaleEntry = errors.New("entry changed underneath update")
)

// Config configures the store.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Item is a queue entry joined with its candidate, for listings.
type Item struct {
	Entry   queue.Entry
	Content string
	Type    string
	Length  int
}

// Stats is an operator-facing queue summary.
type Stats struct {
	ByStatus      map[queue.Status]int
	PostedToday   int
	NextScheduled *time.Time
}

// Store is the persistence API used by the scheduler and publisher loop.
type Store interface {
	InsertCandidate(ctx context.Context, c queue.Candidate) error
	GetCandidate(ctx context.Context, id string) (queue.Candidate, error)

	InsertEntry(ctx context.Context, e queue.Entry) error
	GetEntry(ctx context.Context, id string) (queue.Entry, error)

	// UpdateEntry writes e in a single atomic update guarded by the entry's
	// previous status. It returns ErrStaleEntry when the guard fails and
	// queue.ErrEntryNotFound when the id does not exist.
	UpdateEntry(ctx context.Context, e queue.Entry, from queue.Status) error

	// ListByStatus returns entries in created-at order (oldest first).
	ListByStatus(ctx context.Context, s queue.Status, limit int) ([]queue.Entry, error)

	// ListDue returns scheduled entries with scheduledAt <= now, ascending
	// by scheduledAt. Backoff eligibility is applied by the caller.
	ListDue(ctx context.Context, now time.Time) ([]queue.Entry, error)

	// ScheduledTimes returns every timestamp currently reserved by a
	// scheduled or posted entry. The allocator treats these as occupied.
	ScheduledTimes(ctx context.Context) ([]time.Time, error)

	// RecordPublished appends the durable publish record for an entry.
	RecordPublished(ctx context.Context, entryID, candidateID, platformID, response string, at time.Time) error

	ListQueue(ctx context.Context, s queue.Status, limit int) ([]Item, error)
	Stats(ctx context.Context, now time.Time) (Stats, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}
