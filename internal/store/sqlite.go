package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"postpilot/internal/queue"
	logx "postpilot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) InsertCandidate(ctx context.Context, c queue.Candidate) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO candidates(id, content, content_type, content_hash, metadata, created_at)
		 VALUES(?,?,?,?,?,?)`,
		c.ID, c.Content, c.ContentType, c.ContentHash, nullStr(c.Metadata), ms(c.CreatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: candidates.content_hash") {
		return fmt.Errorf("%w: %s", ErrDuplicateCandidate, c.ContentHash)
	}
	return err
}

func (s *sqliteStore) GetCandidate(ctx context.Context, id string) (queue.Candidate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, content_type, content_hash, metadata, created_at
		 FROM candidates WHERE id = ?`, id)

	var c queue.Candidate
	var meta sql.NullString
	var created int64
	err := row.Scan(&c.ID, &c.Content, &c.ContentType, &c.ContentHash, &meta, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return queue.Candidate{}, fmt.Errorf("%w: candidate %s", queue.ErrEntryNotFound, id)
	}
	if err != nil {
		return queue.Candidate{}, err
	}
	c.Metadata = meta.String
	c.CreatedAt = fromMS(created)
	return c, nil
}

func (s *sqliteStore) InsertEntry(ctx context.Context, e queue.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO post_queue(id, candidate_id, status, scheduled_at, attempt_count,
		                        last_attempt_at, last_error, posted_id, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.CandidateID, string(e.Status), msPtr(e.ScheduledAt), e.AttemptCount,
		msPtr(e.LastAttemptAt), nullStr(e.LastError), nullStr(e.PostedID),
		ms(e.CreatedAt), ms(e.UpdatedAt),
	)
	return err
}

func (s *sqliteStore) GetEntry(ctx context.Context, id string) (queue.Entry, error) {
	row := s.db.QueryRowContext(ctx, selectEntry+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return queue.Entry{}, fmt.Errorf("%w: %s", queue.ErrEntryNotFound, id)
	}
	return e, err
}

// UpdateEntry is the atomic transition write: one UPDATE guarded by the
// previous status, so a concurrent writer (a second daemon, out of contract)
// surfaces as ErrStaleEntry instead of silently losing a transition.
func (s *sqliteStore) UpdateEntry(ctx context.Context, e queue.Entry, from queue.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE post_queue
		 SET status = ?, scheduled_at = ?, attempt_count = ?, last_attempt_at = ?,
		     last_error = ?, posted_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(e.Status), msPtr(e.ScheduledAt), e.AttemptCount, msPtr(e.LastAttemptAt),
		nullStr(e.LastError), nullStr(e.PostedID), ms(e.UpdatedAt),
		e.ID, string(from),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish missing from stale.
		if _, gerr := s.GetEntry(ctx, e.ID); gerr != nil {
			return gerr
		}
		return fmt.Errorf("%w: %s expected %s", ErrStaleEntry, e.ID, from)
	}
	return nil
}

func (s *sqliteStore) ListByStatus(ctx context.Context, st queue.Status, limit int) ([]queue.Entry, error) {
	q := selectEntry + ` WHERE status = ? ORDER BY created_at ASC`
	args := []any{string(st)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEntries(ctx, q, args...)
}

func (s *sqliteStore) ListDue(ctx context.Context, now time.Time) ([]queue.Entry, error) {
	return s.queryEntries(ctx,
		selectEntry+` WHERE status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?
		 ORDER BY scheduled_at ASC`,
		string(queue.StatusScheduled), ms(now),
	)
}

func (s *sqliteStore) ScheduledTimes(ctx context.Context) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scheduled_at FROM post_queue
		 WHERE status IN (?, ?) AND scheduled_at IS NOT NULL
		 ORDER BY scheduled_at ASC`,
		string(queue.StatusScheduled), string(queue.StatusPosted),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, fromMS(v))
	}
	return out, rows.Err()
}

func (s *sqliteStore) RecordPublished(ctx context.Context, entryID, candidateID, platformID, response string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO published(entry_id, candidate_id, platform_id, response, posted_at)
		 VALUES(?,?,?,?,?)`,
		entryID, candidateID, nullStr(platformID), nullStr(response), ms(at),
	)
	return err
}

func (s *sqliteStore) ListQueue(ctx context.Context, st queue.Status, limit int) ([]Item, error) {
	q := `SELECT q.id, q.candidate_id, q.status, q.scheduled_at, q.attempt_count,
	             q.last_attempt_at, q.last_error, q.posted_id, q.created_at, q.updated_at,
	             c.content, c.content_type
	      FROM post_queue q JOIN candidates c ON q.candidate_id = c.id`
	var args []any
	if st != "" {
		q += ` WHERE q.status = ?`
		args = append(args, string(st))
	}
	q += ` ORDER BY q.scheduled_at IS NULL, q.scheduled_at ASC, q.created_at ASC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		var sched, last sql.NullInt64
		var lastErr, postedID sql.NullString
		var created, updated int64
		var status string
		if err := rows.Scan(&it.Entry.ID, &it.Entry.CandidateID, &status, &sched,
			&it.Entry.AttemptCount, &last, &lastErr, &postedID, &created, &updated,
			&it.Content, &it.Type); err != nil {
			return nil, err
		}
		it.Entry.Status = queue.Status(status)
		it.Entry.ScheduledAt = fromMSPtr(sched)
		it.Entry.LastAttemptAt = fromMSPtr(last)
		it.Entry.LastError = lastErr.String
		it.Entry.PostedID = postedID.String
		it.Entry.CreatedAt = fromMS(created)
		it.Entry.UpdatedAt = fromMS(updated)
		it.Length = len([]rune(it.Content))
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	st := Stats{ByStatus: map[queue.Status]int{}}
	for _, q := range queue.AllStatuses {
		st.ByStatus[q] = 0
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM post_queue GROUP BY status`)
	if err != nil {
		return Stats{}, err
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return Stats{}, err
		}
		st.ByStatus[queue.Status(status)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	y, mo, d := now.Date()
	dayStart := time.Date(y, mo, d, 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM published WHERE posted_at >= ? AND posted_at < ?`,
		ms(dayStart), ms(dayEnd),
	).Scan(&st.PostedToday); err != nil {
		return Stats{}, err
	}

	var next sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MIN(scheduled_at) FROM post_queue WHERE status = ? AND scheduled_at IS NOT NULL`,
		string(queue.StatusScheduled),
	).Scan(&next); err != nil {
		return Stats{}, err
	}
	st.NextScheduled = fromMSPtr(next)

	return st, nil
}

const selectEntry = `SELECT id, candidate_id, status, scheduled_at, attempt_count,
       last_attempt_at, last_error, posted_id, created_at, updated_at
FROM post_queue`

type rowScanner interface{ Scan(dest ...any) error }

func scanEntry(row rowScanner) (queue.Entry, error) {
	var e queue.Entry
	var status string
	var sched, last sql.NullInt64
	var lastErr, postedID sql.NullString
	var created, updated int64
	err := row.Scan(&e.ID, &e.CandidateID, &status, &sched, &e.AttemptCount,
		&last, &lastErr, &postedID, &created, &updated)
	if err != nil {
		return queue.Entry{}, err
	}
	e.Status = queue.Status(status)
	e.ScheduledAt = fromMSPtr(sched)
	e.LastAttemptAt = fromMSPtr(last)
	e.LastError = lastErr.String
	e.PostedID = postedID.String
	e.CreatedAt = fromMS(created)
	e.UpdatedAt = fromMS(updated)
	return e, nil
}

func (s *sqliteStore) queryEntries(ctx context.Context, q string, args ...any) ([]queue.Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []queue.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v) }

func msPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMSPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
