package path

import (
	"context"
	"log/slog"

	"github.com/villasnode/villasnode-go/internal/hook"
	"github.com/villasnode/villasnode-go/internal/queue"
	"github.com/villasnode/villasnode-go/internal/sample"
	"github.com/villasnode/villasnode-go/internal/timer"
)

// writeInline implements path_write(resend=false): called directly from the
// receive loop when rate == 0, it pulls each destination's unread backlog
// (bounded by vectorize), runs HOOK_WRITE, writes to the node, and releases
// the whole batch handed to the write back to the pool, including any tail a
// partial write did not send.
func (p *Path) writeInline(ctx context.Context, scratch []*sample.Sample) {
	for i, d := range p.destinations {
		p.sendOnce(ctx, p.destReaders[i], d, scratch, false)
	}
}

// sendLoop implements path_run_async: on every timer tick it checks for an
// overrun, then either forwards newly queued samples (consuming them) or,
// if none arrived since the last tick, resends the most recently sent batch
// without advancing the destination's cursor.
func (p *Path) sendLoop(ctx context.Context, t *timer.Timer) {
	defer p.wg.Done()
	defer t.Stop()

	scratch := make([]*sample.Sample, p.vectorize)

	for {
		expirations, err := t.Wait(ctx)
		if err != nil {
			return
		}
		if expirations > 1 {
			p.overrun.Add(expirations - 1)
			slog.Warn("overrun detected for path", "path", p.Name, "overruns", expirations-1)
		}

		for i, d := range p.destinations {
			r := p.destReaders[i]
			if !p.sendOnce(ctx, r, d, scratch, true) {
				p.resend(r, d, scratch)
			}
		}
	}
}

// sendOnce pulls up to vectorize newly queued samples for one destination,
// runs HOOK_WRITE, writes them, and releases the batch handed to the write
// (the unsent tail of a partial write is released too, not retried).
// Returns false if no new samples were available (the caller should resend).
func (p *Path) sendOnce(ctx context.Context, r queue.ReaderID, d *destination, scratch []*sample.Sample, allowEmpty bool) bool {
	available := p.q.PullMany(r, scratch, p.vectorize)
	if available == 0 {
		return !allowEmpty
	}

	tosend, discarded, ok := p.chain.Run(scratch, available, hook.NodeWrite)
	if !ok {
		slog.Error("write hook chain aborted path", "path", p.Name)
		go p.cancel()
		return true
	}
	if len(discarded) > 0 {
		p.releaseToPool(discarded)
	}
	if tosend == 0 {
		return true
	}

	sent, err := d.node.Write(ctx, scratch, tosend)
	if err != nil {
		slog.Warn("write failed", "path", p.Name, "node", d.node.Name(), "error", err)
	} else if sent < tosend {
		slog.Warn("partial write", "path", p.Name, "node", d.node.Name(), "sent", sent, "expected", tosend)
	}
	d.sent += uint64(sent)

	p.releaseToPool(scratch[:tosend])
	return true
}

// resend re-runs the last sent batch through HOOK_WRITE and writes it again
// without advancing the destination's cursor or releasing samples, matching
// path_write(resend=true): a periodic-hook Skip verdict suppresses it.
func (p *Path) resend(r queue.ReaderID, d *destination, scratch []*sample.Sample) {
	if p.chain.RunPeriodic() {
		return
	}

	pos := p.q.ReaderPos(r)
	if pos < uint64(p.vectorize) {
		return
	}
	base := pos - uint64(p.vectorize)
	available := p.q.Peek(base, scratch, p.vectorize)
	if available == 0 {
		return
	}

	sent, err := d.node.Write(context.Background(), scratch, available)
	if err != nil {
		slog.Warn("resend failed", "path", p.Name, "node", d.node.Name(), "error", err)
		return
	}
	if sent < available {
		slog.Warn("partial resend", "path", p.Name, "node", d.node.Name(), "sent", sent, "expected", available)
	}
}
