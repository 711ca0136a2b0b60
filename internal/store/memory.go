package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"postpilot/internal/queue"
)

// Memory is an in-process Store. It mirrors the sqlite driver's semantics
// (including the status guard on UpdateEntry) so tests exercise the same
// contract the daemon runs against.
type Memory struct {
	mu         sync.Mutex
	candidates map[string]queue.Candidate
	hashes     map[string]string // content hash -> candidate id
	entries    map[string]queue.Entry
	published  []publishRecord
}

type publishRecord struct {
	EntryID     string
	CandidateID string
	PlatformID  string
	Response    string
	At          time.Time
}

func NewMemory() *Memory {
	return &Memory{
		candidates: map[string]queue.Candidate{},
		hashes:     map[string]string{},
		entries:    map[string]queue.Entry{},
	}
}

func (m *Memory) InsertCandidate(ctx context.Context, c queue.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ContentHash != "" {
		if _, ok := m.hashes[c.ContentHash]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateCandidate, c.ContentHash)
		}
	}
	m.candidates[c.ID] = c
	if c.ContentHash != "" {
		m.hashes[c.ContentHash] = c.ID
	}
	return nil
}

func (m *Memory) GetCandidate(ctx context.Context, id string) (queue.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.candidates[id]
	if !ok {
		return queue.Candidate{}, fmt.Errorf("%w: candidate %s", queue.ErrEntryNotFound, id)
	}
	return c, nil
}

func (m *Memory) InsertEntry(ctx context.Context, e queue.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; ok {
		return fmt.Errorf("entry %s already exists", e.ID)
	}
	m.entries[e.ID] = cloneEntry(e)
	return nil
}

func (m *Memory) GetEntry(ctx context.Context, id string) (queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return queue.Entry{}, fmt.Errorf("%w: %s", queue.ErrEntryNotFound, id)
	}
	return cloneEntry(e), nil
}

func (m *Memory) UpdateEntry(ctx context.Context, e queue.Entry, from queue.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entries[e.ID]
	if !ok {
		return fmt.Errorf("%w: %s", queue.ErrEntryNotFound, e.ID)
	}
	if cur.Status != from {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrStaleEntry, e.ID, cur.Status, from)
	}
	m.entries[e.ID] = cloneEntry(e)
	return nil
}

func (m *Memory) ListByStatus(ctx context.Context, s queue.Status, limit int) ([]queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []queue.Entry
	for _, e := range m.entries {
		if e.Status == s {
			out = append(out, cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListDue(ctx context.Context, now time.Time) ([]queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []queue.Entry
	for _, e := range m.entries {
		if e.Status == queue.StatusScheduled && e.ScheduledAt != nil && !e.ScheduledAt.After(now) {
			out = append(out, cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	return out, nil
}

func (m *Memory) ScheduledTimes(ctx context.Context) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for _, e := range m.entries {
		if (e.Status == queue.StatusScheduled || e.Status == queue.StatusPosted) && e.ScheduledAt != nil {
			out = append(out, *e.ScheduledAt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (m *Memory) RecordPublished(ctx context.Context, entryID, candidateID, platformID, response string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishRecord{
		EntryID: entryID, CandidateID: candidateID, PlatformID: platformID, Response: response, At: at,
	})
	return nil
}

// PublishedCount reports recorded publishes for an entry. Test helper.
func (m *Memory) PublishedCount(entryID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.published {
		if r.EntryID == entryID {
			n++
		}
	}
	return n
}

func (m *Memory) ListQueue(ctx context.Context, s queue.Status, limit int) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Item
	for _, e := range m.entries {
		if s != "" && e.Status != s {
			continue
		}
		it := Item{Entry: cloneEntry(e)}
		if c, ok := m.candidates[e.CandidateID]; ok {
			it.Content = c.Content
			it.Type = c.ContentType
			it.Length = len([]rune(c.Content))
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Entry, out[j].Entry
		switch {
		case a.ScheduledAt != nil && b.ScheduledAt != nil:
			return a.ScheduledAt.Before(*b.ScheduledAt)
		case a.ScheduledAt != nil:
			return true
		case b.ScheduledAt != nil:
			return false
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Stats(ctx context.Context, now time.Time) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{ByStatus: map[queue.Status]int{}}
	for _, s := range queue.AllStatuses {
		st.ByStatus[s] = 0
	}
	for _, e := range m.entries {
		st.ByStatus[e.Status]++
		if e.Status == queue.StatusScheduled && e.ScheduledAt != nil {
			if st.NextScheduled == nil || e.ScheduledAt.Before(*st.NextScheduled) {
				t := *e.ScheduledAt
				st.NextScheduled = &t
			}
		}
	}
	y, mo, d := now.Date()
	for _, r := range m.published {
		ry, rmo, rd := r.At.In(now.Location()).Date()
		if ry == y && rmo == mo && rd == d {
			st.PostedToday++
		}
	}
	return st, nil
}

func (m *Memory) Close() error { return nil }

func cloneEntry(e queue.Entry) queue.Entry {
	cp := e
	if e.ScheduledAt != nil {
		t := *e.ScheduledAt
		cp.ScheduledAt = &t
	}
	if e.LastAttemptAt != nil {
		t := *e.LastAttemptAt
		cp.LastAttemptAt = &t
	}
	return cp
}
