package publisher

import (
	"context"
	"fmt"
	"sync/atomic"

	"postpilot/internal/queue"
	logx "postpilot/pkg/logx"
)

// DryRun accepts every post without talking to any platform. It is the
// default client, so a fresh install can exercise the whole pipeline before
// credentials exist.
type DryRun struct {
	log logx.Logger
	seq atomic.Int64
}

func NewDryRun(log logx.Logger) *DryRun {
	return &DryRun{log: log}
}

func (d *DryRun) Name() string { return "dryrun" }

func (d *DryRun) Publish(ctx context.Context, p Post) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	n := d.seq.Add(1)
	if !d.log.IsZero() {
		d.log.Info("dry-run publish",
			logx.String("entry", p.EntryID),
			logx.String("type", p.ContentType),
			logx.String("preview", queue.Preview(p.Content, 60)),
		)
	}
	return Receipt{PlatformID: fmt.Sprintf("dryrun-%d", n), Response: "dry run"}, nil
}
