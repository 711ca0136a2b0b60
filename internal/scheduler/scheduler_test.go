package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"postpilot/internal/eventbus"
	"postpilot/internal/queue"
	"postpilot/internal/slot"
	"postpilot/internal/store"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func intp(n int) *int { return &n }

func seedEntry(t *testing.T, s store.Store, id string, status queue.Status, createdAt time.Time) {
	t.Helper()
	ctx := context.Background()
	content := "post " + id
	cand := queue.Candidate{
		ID:          "cand-" + id,
		Content:     content,
		ContentType: "promo",
		ContentHash: queue.ContentHash(content),
		CreatedAt:   createdAt,
	}
	if err := s.InsertCandidate(ctx, cand); err != nil {
		t.Fatalf("InsertCandidate(%s): %v", id, err)
	}
	e := queue.Entry{
		ID:          id,
		CandidateID: cand.ID,
		Status:      status,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if err := s.InsertEntry(ctx, e); err != nil {
		t.Fatalf("InsertEntry(%s): %v", id, err)
	}
}

func TestApproveAndSkip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc := New(Options{Store: st, Location: time.UTC, Now: fixedClock(now)})

	seedEntry(t, st, "a", queue.StatusDrafted, now)
	seedEntry(t, st, "b", queue.StatusDrafted, now)

	e, err := svc.Approve(ctx, "a")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if e.Status != queue.StatusApproved {
		t.Fatalf("status = %s", e.Status)
	}
	if _, err := svc.Approve(ctx, "a"); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("double approve = %v, want ErrInvalidTransition", err)
	}
	if _, err := svc.Approve(ctx, "missing"); !errors.Is(err, queue.ErrEntryNotFound) {
		t.Fatalf("approve missing = %v, want ErrEntryNotFound", err)
	}

	if _, err := svc.Skip(ctx, "b"); err != nil {
		t.Fatalf("Skip drafted: %v", err)
	}
	if _, err := svc.Skip(ctx, "a"); err != nil {
		t.Fatalf("Skip approved: %v", err)
	}
	if _, err := svc.Skip(ctx, "a"); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("skip skipped = %v, want ErrInvalidTransition", err)
	}
}

func TestScheduleApprovedMonotoneBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	policy := slot.WindowPolicy{
		Start:   slot.HHMM{Hour: 9},
		End:     slot.HHMM{Hour: 22},
		Spacing: 2 * time.Hour,
		Quota:   2,
	}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	svc := New(Options{Store: st, Policy: policy, Location: time.UTC, Bus: bus, Now: fixedClock(now)})

	// Created-at order decides allocation order.
	seedEntry(t, st, "a", queue.StatusApproved, now.Add(-3*time.Minute))
	seedEntry(t, st, "b", queue.StatusApproved, now.Add(-2*time.Minute))
	seedEntry(t, st, "c", queue.StatusApproved, now.Add(-time.Minute))

	res, err := svc.ScheduleApproved(ctx)
	if err != nil {
		t.Fatalf("ScheduleApproved: %v", err)
	}
	if len(res.Granted) != 3 || len(res.Failed) != 0 {
		t.Fatalf("result = %+v", res)
	}
	want := []time.Time{
		time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
	}
	for i, g := range res.Granted {
		if !g.At.Equal(want[i]) {
			t.Fatalf("grant[%d] = %v, want %v", i, g.At, want[i])
		}
	}
	if res.Granted[0].EntryID != "a" || res.Granted[2].EntryID != "c" {
		t.Fatalf("grant order = %+v", res.Granted)
	}

	e, err := st.GetEntry(ctx, "b")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if e.Status != queue.StatusScheduled || e.ScheduledAt == nil || !e.ScheduledAt.Equal(want[1]) {
		t.Fatalf("entry b = %+v", e)
	}

	for range res.Granted {
		select {
		case ev := <-events:
			if ev.Type != eventbus.TypePostScheduled {
				t.Fatalf("event type = %s", ev.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("scheduled event not published")
		}
	}
}

func TestScheduleApprovedReportsExhaustionAndContinues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	policy := slot.WindowPolicy{
		Start:   slot.HHMM{Hour: 9},
		End:     slot.HHMM{Hour: 10},
		Spacing: time.Hour,
		Quota:   1,
		Horizon: 24 * time.Hour,
	}
	svc := New(Options{Store: st, Policy: policy, Location: time.UTC, Now: fixedClock(now)})

	seedEntry(t, st, "a", queue.StatusApproved, now.Add(-2*time.Minute))
	seedEntry(t, st, "b", queue.StatusApproved, now.Add(-time.Minute))

	res, err := svc.ScheduleApproved(ctx)
	if err != nil {
		t.Fatalf("ScheduleApproved: %v", err)
	}
	if len(res.Granted) != 1 || res.Granted[0].EntryID != "a" {
		t.Fatalf("granted = %+v", res.Granted)
	}
	if len(res.Failed) != 1 || res.Failed[0].EntryID != "b" {
		t.Fatalf("failed = %+v", res.Failed)
	}
	if !errors.Is(res.Failed[0].Err, queue.ErrSlotExhausted) {
		t.Fatalf("failure err = %v, want ErrSlotExhausted", res.Failed[0].Err)
	}

	// The failed entry stays approved and is retried by the next pass.
	e, err := st.GetEntry(ctx, "b")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if e.Status != queue.StatusApproved {
		t.Fatalf("entry b status = %s, want approved", e.Status)
	}
}

func TestScheduleApprovedRespectsExistingReservations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	policy := slot.FixedPolicy{Slots: []slot.HHMM{{Hour: 9}, {Hour: 21}}}
	svc := New(Options{Store: st, Policy: policy, Location: time.UTC, Now: fixedClock(now)})

	// Pre-existing reservation at today's 09:00.
	seedEntry(t, st, "old", queue.StatusDrafted, now.Add(-time.Hour))
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	e, _ := st.GetEntry(ctx, "old")
	e.Status = queue.StatusScheduled
	e.ScheduledAt = &at
	if err := st.UpdateEntry(ctx, e, queue.StatusDrafted); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	seedEntry(t, st, "new", queue.StatusApproved, now)
	res, err := svc.ScheduleApproved(ctx)
	if err != nil {
		t.Fatalf("ScheduleApproved: %v", err)
	}
	want := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	if len(res.Granted) != 1 || !res.Granted[0].At.Equal(want) {
		t.Fatalf("granted = %+v, want %v", res.Granted, want)
	}
}

func TestReschedule(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Date(2026, 1, 7, 14, 30, 0, 0, time.UTC)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	svc := New(Options{Store: st, Location: time.UTC, Bus: bus, Now: fixedClock(now)})

	seedEntry(t, st, "a", queue.StatusDrafted, now.Add(-time.Hour))
	at := now.Add(time.Hour)
	e, _ := st.GetEntry(ctx, "a")
	e.Status = queue.StatusScheduled
	e.ScheduledAt = &at
	if err := st.UpdateEntry(ctx, e, queue.StatusDrafted); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := svc.Reschedule(ctx, "a", queue.TimeSpec{Days: intp(2)})
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	want := now.AddDate(0, 0, 2)
	if got.ScheduledAt == nil || !got.ScheduledAt.Equal(want) {
		t.Fatalf("ScheduledAt = %v, want %v", got.ScheduledAt, want)
	}
	select {
	case ev := <-events:
		if ev.Type != eventbus.TypePostRescheduled {
			t.Fatalf("event type = %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("rescheduled event not published")
	}

	if _, err := svc.Reschedule(ctx, "a", queue.TimeSpec{Days: intp(1), Hours: intp(2)}); !errors.Is(err, queue.ErrAmbiguousTimeSpec) {
		t.Fatalf("ambiguous spec = %v", err)
	}
	if _, err := svc.Reschedule(ctx, "missing", queue.TimeSpec{Days: intp(1)}); !errors.Is(err, queue.ErrEntryNotFound) {
		t.Fatalf("missing entry = %v", err)
	}

	// A drafted entry is not addressable by reschedule at all.
	seedEntry(t, st, "draft", queue.StatusDrafted, now)
	if _, err := svc.Reschedule(ctx, "draft", queue.TimeSpec{Days: intp(1)}); !errors.Is(err, queue.ErrEntryNotFound) {
		t.Fatalf("reschedule drafted = %v, want ErrEntryNotFound", err)
	}
}

func TestRescheduleFailedResetsAttempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Date(2026, 1, 7, 14, 30, 0, 0, time.UTC)
	svc := New(Options{Store: st, Location: time.UTC, Now: fixedClock(now)})

	seedEntry(t, st, "f", queue.StatusDrafted, now.Add(-time.Hour))
	at := now.Add(-10 * time.Minute)
	last := now.Add(-5 * time.Minute)
	e, _ := st.GetEntry(ctx, "f")
	e.Status = queue.StatusScheduled
	e.ScheduledAt = &at
	if err := st.UpdateEntry(ctx, e, queue.StatusDrafted); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e.Status = queue.StatusFailed
	e.AttemptCount = 3
	e.LastAttemptAt = &last
	e.LastError = "telegram: 502"
	if err := st.UpdateEntry(ctx, e, queue.StatusScheduled); err != nil {
		t.Fatalf("seed fail: %v", err)
	}

	got, err := svc.Reschedule(ctx, "f", queue.TimeSpec{At: "2026-01-09 14:30"})
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	want := time.Date(2026, 1, 9, 14, 30, 0, 0, time.UTC)
	if got.ScheduledAt == nil || !got.ScheduledAt.Equal(want) {
		t.Fatalf("ScheduledAt = %v, want %v", got.ScheduledAt, want)
	}
	if got.Status != queue.StatusScheduled || got.AttemptCount != 0 || got.LastAttemptAt != nil || got.LastError != "" {
		t.Fatalf("attempt state not reset: %+v", got)
	}
}
