package slot

import (
	"fmt"
	"time"

	"postpilot/internal/queue"
)

// DefaultHorizon bounds the forward search for both policies.
const DefaultHorizon = 90 * 24 * time.Hour

// Policy computes the next valid publish timestamp strictly after anchor,
// given the timestamps already reserved. The search covers (anchor,
// anchor+horizon) with the upper bound excluded, so a candidate landing
// exactly at the horizon is exhausted, not granted. Implementations are pure.
type Policy interface {
	Next(anchor time.Time, taken []time.Time) (time.Time, error)
}

// WindowPolicy schedules inside a daily window [Start, End) with a minimum
// spacing between any two posts and a per-calendar-day quota.
type WindowPolicy struct {
	Start   HHMM
	End     HHMM // exclusive; must be after Start
	Spacing time.Duration
	Quota   int // max posts per calendar day

	// Horizon caps the search; zero means DefaultHorizon.
	Horizon time.Duration
}

// NewWindowPolicy validates the parameters up front so config errors surface
// at load time rather than on the first allocation.
func NewWindowPolicy(start, end HHMM, spacing time.Duration, quota int, horizon time.Duration) (Policy, error) {
	p := WindowPolicy{Start: start, End: end, Spacing: spacing, Quota: quota, Horizon: horizon}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewFixedPolicy validates and sorts the slot list.
func NewFixedPolicy(slots []HHMM, horizon time.Duration) (Policy, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("fixed policy requires at least one slot")
	}
	return FixedPolicy{Slots: sortSlots(slots), Horizon: horizon}, nil
}

func (p WindowPolicy) validate() error {
	if p.End.Minutes() <= p.Start.Minutes() {
		return fmt.Errorf("window end %s must be after start %s", p.End, p.Start)
	}
	if p.Spacing < 0 {
		return fmt.Errorf("spacing must be >= 0")
	}
	if p.Quota <= 0 {
		return fmt.Errorf("daily quota must be > 0")
	}
	return nil
}

// Next walks forward from anchor to the earliest minute-aligned t strictly
// after anchor such that t is inside the window, at least Spacing away from
// every taken timestamp, and t's day holds fewer than Quota reservations.
// Starting strictly after the anchor keeps batch allocation collision-free
// even with Spacing 0, since each grant anchors the next search.
func (p WindowPolicy) Next(anchor time.Time, taken []time.Time) (time.Time, error) {
	if err := p.validate(); err != nil {
		return time.Time{}, err
	}
	horizon := p.Horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	limit := anchor.Add(horizon)

	t := anchor.Truncate(time.Minute)
	if !t.After(anchor) {
		t = t.Add(time.Minute)
	}

	for t.Before(limit) {
		// Clamp into the window on t's day.
		start := p.Start.On(t)
		end := p.End.On(t)
		if t.Before(start) {
			t = start
			continue
		}
		if !t.Before(end) {
			t = p.Start.On(t.AddDate(0, 0, 1))
			continue
		}

		// Daily quota for t's day.
		if countOnDay(taken, t) >= p.Quota {
			t = p.Start.On(t.AddDate(0, 0, 1))
			continue
		}

		// Spacing against every reservation on record. On conflict, jump
		// just past it instead of crawling minute by minute.
		if c, ok := spacingConflict(taken, t, p.Spacing); ok {
			t = c.Add(p.Spacing).Truncate(time.Minute)
			if t.Before(c.Add(p.Spacing)) {
				t = t.Add(time.Minute)
			}
			continue
		}

		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: searched %s from %s",
		queue.ErrSlotExhausted, horizon, anchor.Format(time.RFC3339))
}

// FixedPolicy schedules on fixed times of day, one post per (day, slot)
// pair. The effective daily quota is len(Slots).
type FixedPolicy struct {
	Slots []HHMM

	// Horizon caps the search; zero means DefaultHorizon.
	Horizon time.Duration
}

// Next returns the earliest unoccupied (day, slot) pair strictly after anchor
// and strictly inside the horizon.
func (p FixedPolicy) Next(anchor time.Time, taken []time.Time) (time.Time, error) {
	if len(p.Slots) == 0 {
		return time.Time{}, fmt.Errorf("fixed policy requires at least one slot")
	}
	horizon := p.Horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	slots := sortSlots(p.Slots)

	day := anchor
	limit := anchor.Add(horizon)
	for {
		for _, s := range slots {
			t := s.On(day)
			if !t.After(anchor) {
				continue
			}
			if !t.Before(limit) {
				return time.Time{}, fmt.Errorf("%w: searched %s from %s",
					queue.ErrSlotExhausted, horizon, anchor.Format(time.RFC3339))
			}
			if occupied(taken, t) {
				continue
			}
			return t, nil
		}
		day = day.AddDate(0, 0, 1)
		if s := slots[0].On(day); !s.Before(limit) {
			return time.Time{}, fmt.Errorf("%w: searched %s from %s",
				queue.ErrSlotExhausted, horizon, anchor.Format(time.RFC3339))
		}
	}
}

func occupied(taken []time.Time, t time.Time) bool {
	for _, s := range taken {
		if s.Truncate(time.Second).Equal(t.Truncate(time.Second)) {
			return true
		}
	}
	return false
}

func spacingConflict(taken []time.Time, t time.Time, spacing time.Duration) (time.Time, bool) {
	if spacing <= 0 {
		return time.Time{}, false
	}
	for _, s := range taken {
		d := t.Sub(s)
		if d < 0 {
			d = -d
		}
		if d < spacing {
			return s, true
		}
	}
	return time.Time{}, false
}

func countOnDay(taken []time.Time, t time.Time) int {
	y, m, d := t.Date()
	n := 0
	for _, s := range taken {
		sy, sm, sd := s.In(t.Location()).Date()
		if sy == y && sm == m && sd == d {
			n++
		}
	}
	return n
}
