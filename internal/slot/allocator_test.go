package slot

import (
	"errors"
	"testing"
	"time"

	"postpilot/internal/queue"
)

func mustHHMM(t *testing.T, s string) HHMM {
	t.Helper()
	h, err := ParseHHMM(s)
	if err != nil {
		t.Fatalf("ParseHHMM(%q): %v", s, err)
	}
	return h
}

// allocateBatch mirrors how the scheduler drives a policy: each grant becomes
// the next anchor and joins the taken set.
func allocateBatch(t *testing.T, p Policy, anchor time.Time, taken []time.Time, n int) []time.Time {
	t.Helper()
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		got, err := p.Next(anchor, taken)
		if err != nil {
			t.Fatalf("Next #%d: %v", i+1, err)
		}
		out = append(out, got)
		taken = append(taken, got)
		anchor = got
	}
	return out
}

func TestWindowPolicyQuotaAndSpacing(t *testing.T) {
	t.Parallel()
	p := WindowPolicy{
		Start:   mustHHMM(t, "09:00"),
		End:     mustHHMM(t, "22:00"),
		Spacing: 120 * time.Minute,
		Quota:   2,
	}
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	got := allocateBatch(t, p, now, nil, 3)
	want := []time.Time{
		time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("slot %d = %v, want %v", i+1, got[i], want[i])
		}
	}
}

func TestWindowPolicyRespectsExistingReservations(t *testing.T) {
	t.Parallel()
	p := WindowPolicy{
		Start:   mustHHMM(t, "09:00"),
		End:     mustHHMM(t, "18:00"),
		Spacing: time.Hour,
		Quota:   10,
	}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	taken := []time.Time{
		time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
	}

	got, err := p.Next(now, taken)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	// 09:00 collides with 09:30; jumping to 10:30 collides with 11:00.
	want := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestWindowPolicyBatchProperties(t *testing.T) {
	t.Parallel()
	p := WindowPolicy{
		Start:   mustHHMM(t, "10:00"),
		End:     mustHHMM(t, "20:00"),
		Spacing: 90 * time.Minute,
		Quota:   3,
	}
	now := time.Date(2026, 5, 1, 7, 13, 42, 0, time.UTC)
	got := allocateBatch(t, p, now, nil, 12)

	perDay := map[string]int{}
	for i, a := range got {
		perDay[a.Format("2006-01-02")]++
		if a.Before(now) {
			t.Fatalf("slot %d (%v) is in the past", i, a)
		}
		start := p.Start.On(a)
		end := p.End.On(a)
		if a.Before(start) || !a.Before(end) {
			t.Fatalf("slot %d (%v) outside window", i, a)
		}
		for j := 0; j < i; j++ {
			if !got[j].Before(a) {
				t.Fatalf("allocation order not strictly increasing: %v then %v", got[j], a)
			}
			d := a.Sub(got[j])
			if d < p.Spacing {
				t.Fatalf("slots %v and %v violate spacing", got[j], a)
			}
		}
	}
	for day, n := range perDay {
		if n > p.Quota {
			t.Fatalf("day %s has %d slots, quota is %d", day, n, p.Quota)
		}
	}
}

func TestWindowPolicyExhaustion(t *testing.T) {
	t.Parallel()
	p := WindowPolicy{
		Start:   mustHHMM(t, "09:00"),
		End:     mustHHMM(t, "10:00"),
		Spacing: time.Minute,
		Quota:   1,
		Horizon: 48 * time.Hour,
	}
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	taken := []time.Time{
		time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
	}
	_, err := p.Next(now, taken)
	if !errors.Is(err, queue.ErrSlotExhausted) {
		t.Fatalf("Next = %v, want ErrSlotExhausted", err)
	}
}

func TestWindowPolicyHorizonExcludesBoundary(t *testing.T) {
	t.Parallel()
	p := WindowPolicy{
		Start:   mustHHMM(t, "09:00"),
		End:     mustHHMM(t, "10:00"),
		Spacing: time.Hour,
		Quota:   1,
		Horizon: 24 * time.Hour,
	}
	first, err := p.Next(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), nil)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC); !first.Equal(want) {
		t.Fatalf("Next = %v, want %v", first, want)
	}

	// Anchored on that grant, the only remaining candidate is tomorrow's
	// 09:00, exactly one horizon away. The horizon is exclusive, so the
	// search must give up rather than grant it.
	_, err = p.Next(first, []time.Time{first})
	if !errors.Is(err, queue.ErrSlotExhausted) {
		t.Fatalf("Next = %v, want ErrSlotExhausted", err)
	}
}

func TestWindowPolicyZeroSpacingDistinctGrants(t *testing.T) {
	t.Parallel()
	p := WindowPolicy{
		Start:   mustHHMM(t, "09:00"),
		End:     mustHHMM(t, "18:00"),
		Spacing: 0,
		Quota:   10,
	}
	// Anchor exactly on a window boundary: every grant must still land
	// strictly after the one before it, never on the anchor itself.
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	got := allocateBatch(t, p, now, nil, 5)
	prev := now
	for i, a := range got {
		if !a.After(prev) {
			t.Fatalf("slot %d (%v) does not advance past %v", i+1, a, prev)
		}
		prev = a
	}
}

func TestFixedPolicyDualSlots(t *testing.T) {
	t.Parallel()
	p := FixedPolicy{Slots: []HHMM{mustHHMM(t, "09:00"), mustHHMM(t, "21:00")}}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	got := allocateBatch(t, p, now, nil, 2)
	want := []time.Time{
		time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("slot %d = %v, want %v", i+1, got[i], want[i])
		}
	}
}

func TestFixedPolicySkipsOccupied(t *testing.T) {
	t.Parallel()
	p := FixedPolicy{Slots: []HHMM{mustHHMM(t, "09:00"), mustHHMM(t, "21:00")}}
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	taken := []time.Time{time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}

	got, err := p.Next(now, taken)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}

	// No (day, slot) pair is ever granted twice across a long batch.
	batch := allocateBatch(t, p, now, taken, 10)
	seen := map[string]bool{}
	for _, a := range batch {
		k := a.Format("2006-01-02 15:04")
		if seen[k] {
			t.Fatalf("slot %s granted twice", k)
		}
		seen[k] = true
	}
}

func TestFixedPolicyExhaustion(t *testing.T) {
	t.Parallel()
	p := FixedPolicy{Slots: []HHMM{mustHHMM(t, "12:00")}, Horizon: 24 * time.Hour}
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	taken := []time.Time{
		time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC),
	}
	_, err := p.Next(now, taken)
	if !errors.Is(err, queue.ErrSlotExhausted) {
		t.Fatalf("Next = %v, want ErrSlotExhausted", err)
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	h, err := ParseHHMM("23:15")
	if err != nil {
		t.Fatalf("ParseHHMM error: %v", err)
	}
	if h.Hour != 23 || h.Minute != 15 {
		t.Fatalf("unexpected result: %v", h)
	}
	for _, bad := range []string{"24:00", "09:60", "0900", "nine"} {
		if _, err := ParseHHMM(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
