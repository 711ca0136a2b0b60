package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"postpilot/internal/eventbus"
	"postpilot/internal/queue"
	"postpilot/internal/store"
	logx "postpilot/pkg/logx"
)

// Summary is the outcome of one drain pass.
type Summary struct {
	Posted  int
	Retried int
	Failed  int
	Skipped int
}

// Loop is the single sequential publisher. Exactly one Loop may run against a
// store at a time; two daemons on the same store may double-post.
type Loop struct {
	store  store.Store
	client Client
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time

	maxAttempts int
	backoff     Backoff
	limiter     *rate.Limiter
	wake        cron.Schedule

	notify func(state string)
}

type Options struct {
	Store  store.Store
	Client Client
	Bus    eventbus.Bus
	Log    logx.Logger

	// MaxAttempts caps publish attempts per entry; <= 0 means 3.
	MaxAttempts int
	Backoff     Backoff

	// RatePerMin paces consecutive attempts within a pass. 0 disables pacing.
	RatePerMin int

	// Wake drives daemon mode. Nil means every minute.
	Wake cron.Schedule

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func NewLoop(opts Options) *Loop {
	l := &Loop{
		store:       opts.Store,
		client:      opts.Client,
		bus:         opts.Bus,
		log:         opts.Log,
		now:         opts.Now,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		wake:        opts.Wake,
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.maxAttempts <= 0 {
		l.maxAttempts = 3
	}
	if l.backoff == nil {
		l.backoff = func(int) time.Duration { return 0 }
	}
	if l.bus == nil {
		l.bus = eventbus.New()
	}
	if l.wake == nil {
		l.wake = cron.Every(time.Minute)
	}
	if opts.RatePerMin > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(float64(opts.RatePerMin))/60, 1)
	}
	l.notify = func(state string) { _, _ = daemon.SdNotify(false, state) }
	return l
}

// RunOnce processes every currently-due entry and returns a summary.
//
// One entry's failure never blocks the rest of the pass. Cancellation is
// honored between entries only: an attempt already started runs to completion
// and its outcome is persisted before RunOnce returns.
func (l *Loop) RunOnce(ctx context.Context) (Summary, error) {
	var sum Summary

	now := l.now()
	due, err := l.store.ListDue(ctx, now)
	if err != nil {
		return sum, err
	}
	for _, e := range due {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		// ListDue only checks scheduledAt; the backoff window is ours.
		if !e.Due(now, l.backoff) {
			sum.Skipped++
			continue
		}
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return sum, err
			}
		}
		switch l.publishOne(ctx, e) {
		case outcomePosted:
			sum.Posted++
		case outcomeRetried:
			sum.Retried++
		case outcomeFailed:
			sum.Failed++
		default:
			sum.Skipped++
		}
	}
	return sum, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomePosted
	outcomeRetried
	outcomeFailed
)

// publishOne runs a single attempt and persists the result atomically.
// It deliberately detaches from ctx: once an attempt starts, its outcome is
// always written, so cancellation can never abandon an entry mid-transition.
func (l *Loop) publishOne(ctx context.Context, e queue.Entry) outcome {
	actx := context.WithoutCancel(ctx)

	cand, err := l.store.GetCandidate(actx, e.CandidateID)
	if err != nil {
		if !l.log.IsZero() {
			l.log.Error("candidate lookup failed",
				logx.String("entry", e.ID), logx.Any("err", err))
		}
		return outcomeSkipped
	}

	receipt, pubErr := l.client.Publish(actx, Post{
		EntryID:        e.ID,
		Content:        cand.Content,
		ContentType:    cand.ContentType,
		IdempotencyKey: cand.ContentHash,
	})

	now := l.now()
	e.AttemptCount++
	e.LastAttemptAt = &now
	e.UpdatedAt = now

	if pubErr == nil {
		e.Status = queue.StatusPosted
		e.PostedID = receipt.PlatformID
		e.LastError = ""
		if err := l.store.UpdateEntry(actx, e, queue.StatusScheduled); err != nil {
			// The platform post exists; surface loudly and do not retry.
			if !l.log.IsZero() {
				l.log.Error("published but state not persisted",
					logx.String("entry", e.ID),
					logx.String("platform_id", receipt.PlatformID),
					logx.Any("err", err),
				)
			}
			return outcomeSkipped
		}
		if err := l.store.RecordPublished(actx, e.ID, e.CandidateID, receipt.PlatformID, receipt.Response, now); err != nil {
			if !l.log.IsZero() {
				l.log.Warn("publish record write failed",
					logx.String("entry", e.ID), logx.Any("err", err))
			}
		}
		l.bus.Publish(eventbus.Event{
			Type: eventbus.TypePostPublished,
			Data: eventbus.PostEvent{
				EntryID:     e.ID,
				CandidateID: e.CandidateID,
				PlatformID:  receipt.PlatformID,
				Attempts:    e.AttemptCount,
			},
		})
		if !l.log.IsZero() {
			l.log.Info("post published",
				logx.String("entry", e.ID),
				logx.String("platform_id", receipt.PlatformID),
				logx.Int("attempts", e.AttemptCount),
			)
		}
		return outcomePosted
	}

	e.LastError = pubErr.Error()
	res := outcomeRetried
	evType := eventbus.TypePostRetried
	if e.AttemptCount >= l.maxAttempts {
		e.Status = queue.StatusFailed
		res = outcomeFailed
		evType = eventbus.TypePostFailed
	}
	if err := l.store.UpdateEntry(actx, e, queue.StatusScheduled); err != nil {
		if !l.log.IsZero() {
			l.log.Error("attempt state not persisted",
				logx.String("entry", e.ID), logx.Any("err", err))
		}
		return outcomeSkipped
	}
	l.bus.Publish(eventbus.Event{
		Type: evType,
		Data: eventbus.PostEvent{
			EntryID:     e.ID,
			CandidateID: e.CandidateID,
			Attempts:    e.AttemptCount,
			Error:       pubErr.Error(),
		},
	})
	if !l.log.IsZero() {
		if res == outcomeFailed {
			l.log.Warn("post failed permanently",
				logx.String("entry", e.ID),
				logx.Int("attempts", e.AttemptCount),
				logx.Any("err", pubErr),
			)
		} else {
			l.log.Info("post attempt failed; will retry",
				logx.String("entry", e.ID),
				logx.Int("attempts", e.AttemptCount),
				logx.Bool("unavailable", errors.Is(pubErr, ErrUnavailable)),
				logx.Any("err", pubErr),
			)
		}
	}
	return res
}

// Run drains due entries on every wake until ctx is cancelled. An in-flight
// attempt is finished and persisted before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	l.notify(daemon.SdNotifyReady)
	defer l.notify(daemon.SdNotifyStopping)

	if !l.log.IsZero() {
		l.log.Info("publisher daemon started", logx.String("client", l.client.Name()))
	}
	for {
		sum, err := l.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			if !l.log.IsZero() {
				l.log.Warn("drain pass failed", logx.Any("err", err))
			}
		}
		if !l.log.IsZero() && sum != (Summary{}) {
			l.log.Info("drain pass complete",
				logx.Int("posted", sum.Posted),
				logx.Int("retried", sum.Retried),
				logx.Int("failed", sum.Failed),
				logx.Int("skipped", sum.Skipped),
			)
		}
		if ctx.Err() != nil {
			return nil
		}

		next := l.wake.Next(l.now())
		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
