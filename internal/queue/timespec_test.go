package queue

import (
	"errors"
	"testing"
	"time"
)

func intp(n int) *int { return &n }

func TestTimeSpecResolve(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 9, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		spec TimeSpec
		want time.Time
		err  error
	}{
		{name: "absolute", spec: TimeSpec{At: "2026-01-09 14:30"}, want: time.Date(2026, 1, 9, 14, 30, 0, 0, time.UTC)},
		{name: "minutes", spec: TimeSpec{Minutes: intp(30)}, want: now.Add(30 * time.Minute)},
		{name: "hours", spec: TimeSpec{Hours: intp(2)}, want: now.Add(2 * time.Hour)},
		{name: "days", spec: TimeSpec{Days: intp(1)}, want: now.AddDate(0, 0, 1)},
		{name: "zero minutes means now", spec: TimeSpec{Minutes: intp(0)}, want: now},
		{name: "negative minutes allowed for immediate publish", spec: TimeSpec{Minutes: intp(-5)}, want: now.Add(-5 * time.Minute)},

		{name: "none set", spec: TimeSpec{}, err: ErrAmbiguousTimeSpec},
		{name: "two set", spec: TimeSpec{Hours: intp(2), Days: intp(1)}, err: ErrAmbiguousTimeSpec},
		{name: "absolute plus relative", spec: TimeSpec{At: "2026-01-09 14:30", Minutes: intp(10)}, err: ErrAmbiguousTimeSpec},
		{name: "bad format", spec: TimeSpec{At: "tomorrow at noon"}, err: ErrInvalidTimeFormat},
		{name: "date only", spec: TimeSpec{At: "2026-01-09"}, err: ErrInvalidTimeFormat},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.spec.Resolve(now, time.UTC)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("Resolve() = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntryDue(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 9, 12, 0, 0, 0, time.UTC)
	at := now.Add(-time.Minute)
	backoff := func(attempts int) time.Duration { return 10 * time.Minute }

	e := Entry{Status: StatusScheduled, ScheduledAt: &at}
	if !e.Due(now, backoff) {
		t.Fatal("past scheduled entry should be due")
	}

	future := now.Add(time.Minute)
	e.ScheduledAt = &future
	if e.Due(now, backoff) {
		t.Fatal("future entry should not be due")
	}

	// A failed attempt defers eligibility by the backoff window.
	e.ScheduledAt = &at
	e.AttemptCount = 1
	last := now.Add(-5 * time.Minute)
	e.LastAttemptAt = &last
	if e.Due(now, backoff) {
		t.Fatal("entry inside backoff window should not be due")
	}
	old := now.Add(-11 * time.Minute)
	e.LastAttemptAt = &old
	if !e.Due(now, backoff) {
		t.Fatal("entry past backoff window should be due")
	}

	// Only scheduled entries are due.
	e.Status = StatusFailed
	if e.Due(now, backoff) {
		t.Fatal("failed entry must not be due")
	}
}

func TestContentHashStable(t *testing.T) {
	t.Parallel()
	a := ContentHash("hello world")
	b := ContentHash("  hello world \n")
	if a != b {
		t.Fatal("hash should ignore surrounding whitespace")
	}
	if a == ContentHash("hello worlds") {
		t.Fatal("different content should hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("unexpected hash length %d", len(a))
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()
	if got := Preview("short", 10); got != "short" {
		t.Fatalf("Preview = %q", got)
	}
	if got := Preview("a very long content string", 10); got != "a very ..." {
		t.Fatalf("Preview = %q", got)
	}
}
