package queue

import (
	"fmt"
	"time"
)

// absoluteLayout is the only accepted absolute reschedule format.
const absoluteLayout = "2006-01-02 15:04"

// TimeSpec carries exactly one way of naming a reschedule target: an absolute
// local datetime, or an offset from now in minutes, hours or days. The offsets
// are pointers so that an explicit zero ("publish now") is distinguishable
// from an unset field.
//
// The zero value is invalid (no option set).
type TimeSpec struct {
	At      string // "YYYY-MM-DD HH:MM", local time
	Minutes *int
	Hours   *int
	Days    *int
}

// Resolve validates ts and returns the target time.
// now supplies the anchor for relative specs (injected for tests).
func (ts TimeSpec) Resolve(now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	set := 0
	if ts.At != "" {
		set++
	}
	for _, p := range []*int{ts.Minutes, ts.Hours, ts.Days} {
		if p != nil {
			set++
		}
	}
	if set != 1 {
		return time.Time{}, ErrAmbiguousTimeSpec
	}

	switch {
	case ts.At != "":
		t, err := time.ParseInLocation(absoluteLayout, ts.At, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, ts.At)
		}
		return t, nil
	case ts.Minutes != nil:
		return now.Add(time.Duration(*ts.Minutes) * time.Minute), nil
	case ts.Hours != nil:
		return now.Add(time.Duration(*ts.Hours) * time.Hour), nil
	default:
		return now.AddDate(0, 0, *ts.Days), nil
	}
}
