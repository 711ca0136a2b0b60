package queue

import "errors"

// Typed failures surfaced to the operator. Nothing in this package (or its
// callers) panics on these; they are ordinary results.
var (
	// ErrEntryNotFound means the id does not reference an entry eligible for
	// the requested operation.
	ErrEntryNotFound = errors.New("queue entry not found")

	// ErrInvalidTransition means the requested status change is not allowed
	// by the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSlotExhausted means no valid publish slot exists within the search
	// horizon. Batch scheduling reports it and continues with the rest.
	ErrSlotExhausted = errors.New("no publish slot available within horizon")

	// ErrAmbiguousTimeSpec means zero or more than one reschedule time option
	// was supplied.
	ErrAmbiguousTimeSpec = errors.New("exactly one of datetime/minutes/hours/days must be set")

	// ErrInvalidTimeFormat means an absolute datetime could not be parsed as
	// "YYYY-MM-DD HH:MM".
	ErrInvalidTimeFormat = errors.New(`invalid datetime (use "YYYY-MM-DD HH:MM")`)
)
