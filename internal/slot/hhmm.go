package slot

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

// HHMM is a local time of day at minute resolution.
type HHMM struct {
	Hour   int
	Minute int
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// ParseHHMM parses "HH:MM" (24h).
func ParseHHMM(s string) (HHMM, error) {
	m := reHHMM.FindStringSubmatch(s)
	if len(m) != 3 {
		return HHMM{}, fmt.Errorf("invalid time of day %q (use HH:MM)", s)
	}
	var hh, mm int
	for i := 0; i < len(m[1]); i++ {
		hh = hh*10 + int(m[1][i]-'0')
	}
	mm = int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if hh < 0 || hh > 23 {
		return HHMM{}, fmt.Errorf("invalid hour in %q", s)
	}
	if mm < 0 || mm > 59 {
		return HHMM{}, fmt.Errorf("invalid minutes in %q", s)
	}
	return HHMM{Hour: hh, Minute: mm}, nil
}

func (h HHMM) String() string { return fmt.Sprintf("%02d:%02d", h.Hour, h.Minute) }

// Minutes returns the offset from midnight.
func (h HHMM) Minutes() int { return h.Hour*60 + h.Minute }

// On anchors the time of day onto the calendar day of t, in t's location.
func (h HHMM) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), h.Hour, h.Minute, 0, 0, t.Location())
}

func sortSlots(slots []HHMM) []HHMM {
	out := append([]HHMM(nil), slots...)
	sort.Slice(out, func(i, j int) bool { return out[i].Minutes() < out[j].Minutes() })
	return out
}
