package queue

import "fmt"

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusDrafted   Status = "drafted"
	StatusApproved  Status = "approved"
	StatusScheduled Status = "scheduled"
	StatusPosted    Status = "posted"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

func (s Status) String() string { return string(s) }

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusDrafted, StatusApproved, StatusScheduled, StatusPosted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Terminal reports whether no further automatic transition leaves s.
// failed is terminal for the publisher but can be reopened by an explicit
// reschedule; posted and skipped are terminal, full stop.
func (s Status) Terminal() bool {
	return s == StatusPosted || s == StatusSkipped || s == StatusFailed
}

var AllStatuses = []Status{
	StatusDrafted,
	StatusApproved,
	StatusScheduled,
	StatusPosted,
	StatusFailed,
	StatusSkipped,
}

type transition struct {
	from Status
	to   Status
}

// validTransitions is the full transition table. Anything not listed is
// rejected; there are no shortcuts (e.g. drafted -> scheduled).
var validTransitions = []transition{
	{from: StatusDrafted, to: StatusApproved},    // human approval
	{from: StatusDrafted, to: StatusSkipped},     // human skip
	{from: StatusApproved, to: StatusSkipped},    // human skip
	{from: StatusApproved, to: StatusScheduled},  // slot allocation succeeded
	{from: StatusScheduled, to: StatusPosted},    // publish succeeded
	{from: StatusScheduled, to: StatusFailed},    // attempts exhausted
	{from: StatusScheduled, to: StatusScheduled}, // explicit reschedule
	{from: StatusFailed, to: StatusScheduled},    // explicit reschedule reopens
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, t := range validTransitions {
		if t.from == from && t.to == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition (wrapped with both statuses)
// when from -> to is not allowed.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
