package path

import (
	"context"
	"log/slog"

	"github.com/villasnode/villasnode-go/internal/hook"
	"github.com/villasnode/villasnode-go/internal/queue"
	"github.com/villasnode/villasnode-go/internal/sample"
)

// historyReader pairs a hook with the registered queue reader that trails
// it, so its history window of past samples stays available until each
// sample falls more than History() slots behind the writer.
type historyReader struct {
	h      hook.Hook
	reader queue.ReaderID
}

// receiveLoop implements path_run: acquire pool samples, read from the
// source node, run HOOK_READ, enqueue, then evict samples whose history
// window (for every history-bearing hook) and, in rate==0 mode, whose
// destinations have all passed.
func (p *Path) receiveLoop(ctx context.Context) {
	defer p.wg.Done()

	buf := make([]*sample.Sample, p.vectorize)
	scratch := make([]*sample.Sample, p.vectorize)
	ready := 0

	// Samples acquired but not yet pushed (e.g. held across a Read that was
	// cancelled) go back to the pool when the loop exits.
	defer func() {
		if ready > 0 {
			p.releaseToPool(buf[:ready])
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		want := p.vectorize - ready
		if want > 0 {
			got := p.pool.Acquire(buf[ready : ready+want])
			if got < want {
				slog.Warn("pool underrun", "path", p.Name, "want", want, "got", got)
			}
			ready += got
		}
		if ready == 0 {
			continue
		}

		recv, err := p.in.Read(ctx, buf, ready)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("read failed", "path", p.Name, "error", err)
			continue
		}
		if recv < ready {
			slog.Warn("partial read", "path", p.Name, "read", recv, "expected", ready)
		}

		kept, discarded, ok := p.chain.Run(buf, recv, hook.NodeRead)
		if !ok {
			slog.Error("hook chain aborted path", "path", p.Name)
			go p.cancel()
			return
		}
		if kept != recv {
			slog.Info("hooks skipped samples", "path", p.Name, "skipped", recv-kept, "total", recv)
		}
		if len(discarded) > 0 {
			p.releaseToPool(discarded)
		}
		p.skipped.Store(p.chain.Skipped())

		// Every destination and every history-bearing hook needs its own
		// hold on each enqueued sample; Acquire already granted the first
		// one, so top up the rest before the writer cursor is published.
		consumers := len(p.destinations) + len(p.historyReaders)
		switch {
		case consumers == 0:
			p.releaseToPool(buf[:kept])
		case consumers > 1:
			for i := 0; i < kept; i++ {
				for j := 0; j < consumers-1; j++ {
					buf[i].Get()
				}
			}
		}

		pushed := p.q.PushMany(buf[:kept], kept)
		if pushed != kept {
			dropped := kept - pushed
			slog.Warn("queue overflow, dropping samples", "path", p.Name, "dropped", dropped)
			p.queueDrops.Add(uint64(dropped))
			p.releaseToPool(buf[pushed:kept])
		}

		ready -= recv

		p.evictHistory(scratch)

		if p.rate == 0 {
			p.writeInline(ctx, scratch)
		}
	}
}

func (p *Path) registerHistoryReaders() []historyReader {
	var out []historyReader
	for _, h := range p.chain.Hooks() {
		if h.History() > 0 {
			out = append(out, historyReader{h: h, reader: p.q.RegisterReader(0)})
		}
	}
	return out
}

func (p *Path) registerDestinationReaders() []queue.ReaderID {
	ids := make([]queue.ReaderID, len(p.destinations))
	for i := range p.destinations {
		ids[i] = p.q.RegisterReader(0)
	}
	return ids
}

// evictHistory releases samples that have fallen further behind the writer
// than each history-bearing hook's retained window.
func (p *Path) evictHistory(scratch []*sample.Sample) {
	w := p.q.WriterPos()
	for _, hr := range p.historyReaders {
		pos := p.q.ReaderPos(hr.reader)
		excess := int64(w-pos) - int64(hr.h.History())
		if excess <= 0 {
			continue
		}
		if int(excess) > len(scratch) {
			excess = int64(len(scratch))
		}
		n := p.q.PullMany(hr.reader, scratch, int(excess))
		if n > 0 {
			p.releaseToPool(scratch[:n])
		}
	}
}

func (p *Path) releaseToPool(samples []*sample.Sample) {
	released, err := p.pool.Release(samples, len(samples))
	if err != nil {
		slog.Error("failed to release samples to pool", "path", p.Name, "error", err)
		return
	}
	if released != len(samples) {
		slog.Debug("samples retained by other readers", "path", p.Name, "pending", len(samples)-released)
	}
}
