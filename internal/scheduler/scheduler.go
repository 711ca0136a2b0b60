// Package scheduler moves queue entries through the approval pipeline and
// assigns publish slots to approved entries.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postpilot/internal/eventbus"
	"postpilot/internal/queue"
	"postpilot/internal/slot"
	"postpilot/internal/store"
	logx "postpilot/pkg/logx"
)

// Service owns all status transitions up to and including "scheduled".
// The publisher owns the rest.
type Service struct {
	store  store.Store
	policy slot.Policy
	loc    *time.Location
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time
}

type Options struct {
	Store  store.Store
	Policy slot.Policy

	// Location is the timezone slots are computed in. Nil means time.Local.
	Location *time.Location

	Bus eventbus.Bus
	Log logx.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func New(opts Options) *Service {
	s := &Service{
		store:  opts.Store,
		policy: opts.Policy,
		loc:    opts.Location,
		bus:    opts.Bus,
		log:    opts.Log,
		now:    opts.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.bus == nil {
		s.bus = eventbus.New()
	}
	return s
}

// Approve moves a drafted entry to approved.
func (s *Service) Approve(ctx context.Context, id string) (queue.Entry, error) {
	return s.transition(ctx, id, queue.StatusApproved)
}

// Skip terminally removes a drafted or approved entry from the pipeline.
func (s *Service) Skip(ctx context.Context, id string) (queue.Entry, error) {
	return s.transition(ctx, id, queue.StatusSkipped)
}

func (s *Service) transition(ctx context.Context, id string, to queue.Status) (queue.Entry, error) {
	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return queue.Entry{}, err
	}
	if err := queue.CheckTransition(e.Status, to); err != nil {
		return queue.Entry{}, err
	}
	from := e.Status
	e.Status = to
	e.UpdatedAt = s.now()
	if err := s.store.UpdateEntry(ctx, e, from); err != nil {
		return queue.Entry{}, err
	}
	if !s.log.IsZero() {
		s.log.Info("entry transitioned",
			logx.String("entry", e.ID),
			logx.String("from", string(from)),
			logx.String("to", string(to)),
		)
	}
	return e, nil
}

// Grant is one successful slot assignment.
type Grant struct {
	EntryID     string
	CandidateID string
	At          time.Time
}

// Failure is one entry the batch could not schedule. The batch keeps going.
type Failure struct {
	EntryID string
	Err     error
}

// BatchResult reports the outcome of one ScheduleApproved pass.
type BatchResult struct {
	Granted []Grant
	Failed  []Failure
}

// ScheduleApproved assigns slots to all approved entries, oldest first.
//
// Allocation is monotone: each grant becomes the anchor for the next search,
// and every grant joins the taken set, so two entries in the same batch can
// never collide. A per-entry failure (typically slot exhaustion) is reported
// in the result and does not abort the batch.
func (s *Service) ScheduleApproved(ctx context.Context) (BatchResult, error) {
	var res BatchResult

	approved, err := s.store.ListByStatus(ctx, queue.StatusApproved, 0)
	if err != nil {
		return res, err
	}
	if len(approved) == 0 {
		return res, nil
	}
	taken, err := s.store.ScheduledTimes(ctx)
	if err != nil {
		return res, err
	}

	anchor := s.now().In(s.loc)
	for _, e := range approved {
		at, err := s.policy.Next(anchor, taken)
		if err != nil {
			res.Failed = append(res.Failed, Failure{EntryID: e.ID, Err: err})
			if !s.log.IsZero() {
				s.log.Warn("slot allocation failed",
					logx.String("entry", e.ID), logx.Any("err", err))
			}
			continue
		}

		e.Status = queue.StatusScheduled
		e.ScheduledAt = &at
		e.UpdatedAt = s.now()
		if err := s.store.UpdateEntry(ctx, e, queue.StatusApproved); err != nil {
			// Lost a race with a concurrent transition; the slot stays free.
			if errors.Is(err, store.ErrStaleEntry) || errors.Is(err, queue.ErrEntryNotFound) {
				res.Failed = append(res.Failed, Failure{EntryID: e.ID, Err: err})
				continue
			}
			return res, err
		}

		taken = append(taken, at)
		anchor = at
		res.Granted = append(res.Granted, Grant{EntryID: e.ID, CandidateID: e.CandidateID, At: at})
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypePostScheduled,
			Data: eventbus.PostEvent{EntryID: e.ID, CandidateID: e.CandidateID, ScheduledAt: &at},
		})
		if !s.log.IsZero() {
			s.log.Info("entry scheduled",
				logx.String("entry", e.ID),
				logx.Time("at", at),
			)
		}
	}
	return res, nil
}

// Reschedule moves a scheduled or failed entry to the time described by spec.
//
// The new time is an operator override: it is written as-is, without running
// the slot policy again, so it may sit outside the window or closer to a
// neighbor than the configured spacing allows.
func (s *Service) Reschedule(ctx context.Context, id string, spec queue.TimeSpec) (queue.Entry, error) {
	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return queue.Entry{}, err
	}
	// Only scheduled and failed entries can be rescheduled; anything else is
	// reported as if the id did not name a reschedulable entry at all.
	if e.Status != queue.StatusScheduled && e.Status != queue.StatusFailed {
		return queue.Entry{}, fmt.Errorf("%w: %s is %s, not scheduled or failed",
			queue.ErrEntryNotFound, id, e.Status)
	}
	at, err := spec.Resolve(s.now().In(s.loc), s.loc)
	if err != nil {
		return queue.Entry{}, err
	}

	from := e.Status
	e.Status = queue.StatusScheduled
	e.ScheduledAt = &at
	e.UpdatedAt = s.now()
	if from == queue.StatusFailed {
		// A rescheduled failure starts a fresh attempt budget.
		e.AttemptCount = 0
		e.LastAttemptAt = nil
		e.LastError = ""
	}
	if err := s.store.UpdateEntry(ctx, e, from); err != nil {
		return queue.Entry{}, err
	}

	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypePostRescheduled,
		Data: eventbus.PostEvent{EntryID: e.ID, CandidateID: e.CandidateID, ScheduledAt: &at},
	})
	if !s.log.IsZero() {
		s.log.Info("entry rescheduled",
			logx.String("entry", e.ID),
			logx.String("from", string(from)),
			logx.Time("at", at),
		)
	}
	return e, nil
}

// List returns queue items with their content, filtered by status when
// status is non-empty. limit <= 0 means no limit.
func (s *Service) List(ctx context.Context, status queue.Status, limit int) ([]store.Item, error) {
	return s.store.ListQueue(ctx, status, limit)
}

// Stats summarizes the queue as of now.
func (s *Service) Stats(ctx context.Context) (store.Stats, error) {
	return s.store.Stats(ctx, s.now().In(s.loc))
}
