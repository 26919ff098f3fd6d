package path

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/villasnode/villasnode-go/internal/hook"
	"github.com/villasnode/villasnode-go/internal/node"
	"github.com/villasnode/villasnode-go/internal/sample"
)

// seqSourceType is a deterministic test source: it emits a fixed list of
// values, one per Read call, then blocks on ctx.Done() once exhausted so the
// receive loop stops spinning instead of manufacturing further samples.
type seqSourceType struct{}

func (seqSourceType) Name() string { return "test-seq" }
func (seqSourceType) Instantiate(string, map[string]interface{}) (*node.Node, error) {
	return nil, nil
}

type seqState struct {
	mu     sync.Mutex
	values []float64
	idx    int
}

func (seqSourceType) Read(ctx context.Context, n *node.Node, out []*sample.Sample, count int) (int, error) {
	st := n.State.(*seqState)
	st.mu.Lock()
	if st.idx >= len(st.values) {
		st.mu.Unlock()
		<-ctx.Done()
		return 0, ctx.Err()
	}
	produced := 0
	for produced < count && produced < len(out) && st.idx < len(st.values) {
		out[produced].Values[0] = sample.FloatValue(st.values[st.idx])
		out[produced].Length = 1
		out[produced].Sequence = uint64(st.idx)
		st.idx++
		produced++
	}
	st.mu.Unlock()
	return produced, nil
}

func newSeqSource(name string, values []float64) *node.Node {
	return node.NewNode(name, seqSourceType{}, &seqState{values: values})
}

// sinkType is a Writable-only test double that records every batch handed
// to it, so tests can inspect both the flattened stream and the original
// per-call batching (needed to observe resend behavior).
type sinkType struct{}

func (sinkType) Name() string { return "test-sink" }
func (sinkType) Instantiate(string, map[string]interface{}) (*node.Node, error) {
	return nil, nil
}

func (sinkType) Write(ctx context.Context, n *node.Node, in []*sample.Sample, count int) (int, error) {
	st := n.State.(*sinkState)
	st.mu.Lock()
	defer st.mu.Unlock()
	batch := make([]float64, count)
	for i := 0; i < count; i++ {
		batch[i] = in[i].Values[0].Float
	}
	st.batches = append(st.batches, batch)
	return count, nil
}

type sinkState struct {
	mu      sync.Mutex
	batches [][]float64
}

func newSink(name string) (*node.Node, *sinkState) {
	st := &sinkState{}
	return node.NewNode(name, sinkType{}, st), st
}

func (st *sinkState) flat() []float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []float64
	for _, b := range st.batches {
		out = append(out, b...)
	}
	return out
}

func (st *sinkState) batchCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.batches)
}

func (st *sinkState) lastBatch() []float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.batches) == 0 {
		return nil
	}
	return append([]float64(nil), st.batches[len(st.batches)-1]...)
}

// waitFor polls cond every 2ms until it's true or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %v", timeout)
	}
}

// Scenario 1: samples flow end to end from source to destination, in order,
// with no hooks in the chain.
func TestBasicPassThroughPreservesOrder(t *testing.T) {
	src := newSeqSource("src", []float64{1, 2, 3, 4, 5})
	dst, sinkSt := newSink("dst")

	p, err := New("basic", src, []*node.Node{dst}, nil, 4, 1, 8, 0, 1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := p.Prepare(nil); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(sinkSt.flat()) == 5 })
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	got := sinkSt.flat()
	want := []float64{1, 2, 3, 4, 5}
	for i, v := range want {
		if got[i] != v {
			t.Fatalf("position %d: got %v, want %v (full: %v)", i, got[i], v, got)
		}
	}
}

// Scenario 2: every destination holds its own independent reader cursor, so
// each one receives the full stream regardless of how the others drain
// theirs. This exercises the refcount top-up applied before PushMany: if a
// sample's refcount weren't incremented once per consumer, the first
// destination to release it would free it back to the pool before the
// second had read it, and pool reuse would recycle it into the remaining
// batches — a deliberately tiny pool (2 slots for 6 values) forces that
// recycling to happen within the test.
func TestMultipleDestinationsEachReceiveFullStream(t *testing.T) {
	src := newSeqSource("src", []float64{1, 2, 3, 4, 5, 6})
	dstA, sinkA := newSink("a")
	dstB, sinkB := newSink("b")

	p, err := New("fanout", src, []*node.Node{dstA, dstB}, nil, 2, 1, 8, 0, 1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := p.Prepare(nil); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return len(sinkA.flat()) == 6 && len(sinkB.flat()) == 6
	})
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []float64{1, 2, 3, 4, 5, 6}
	for i, v := range want {
		if sinkA.flat()[i] != v {
			t.Fatalf("destination a, position %d: got %v, want %v", i, sinkA.flat()[i], v)
		}
		if sinkB.flat()[i] != v {
			t.Fatalf("destination b, position %d: got %v, want %v", i, sinkB.flat()[i], v)
		}
	}

	if avail := p.Pool().Available(); avail != 2 {
		t.Fatalf("expected both pool slots returned once every consumer released, got %d available", avail)
	}
}

// Scenario 6: a ratio-2 Decimate hook keeps every other sample.
func TestDecimateEndToEndThroughPath(t *testing.T) {
	src := newSeqSource("src", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	dst, sinkSt := newSink("dst")
	decimate := hook.NewDecimate(0, 2)

	p, err := New("decimated", src, []*node.Node{dst}, []hook.Hook{decimate}, 4, 1, 16, 0, 1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := p.Prepare(nil); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(sinkSt.flat()) == 5 })
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	got := sinkSt.flat()
	want := []float64{1, 3, 5, 7, 9}
	for i, v := range want {
		if got[i] != v {
			t.Fatalf("position %d: got %v, want %v (full: %v)", i, got[i], v, got)
		}
	}
	if p.Skipped() != 5 {
		t.Fatalf("expected 5 samples skipped, got %d", p.Skipped())
	}
}

// A rate > 0 path drives its destinations off a Timer instead of forwarding
// inline; once the source stops producing new data, each tick must resend
// the last batch rather than going silent.
func TestRateDrivenSendResendsWhenNoNewData(t *testing.T) {
	src := newSeqSource("src", []float64{1, 2})
	dst, sinkSt := newSink("dst")

	p, err := New("resend", src, []*node.Node{dst}, nil, 4, 1, 8, 50 /* Hz */, 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := p.Prepare(nil); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Several 20ms ticks: the first carries the 2 real samples, the rest
	// must be resends of the same batch since the source goes silent.
	waitFor(t, time.Second, func() bool { return sinkSt.batchCount() >= 3 })
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	last := sinkSt.lastBatch()
	if len(last) != 2 || last[0] != 1 || last[1] != 2 {
		t.Fatalf("expected resent batch to reproduce {1, 2}, got %v", last)
	}
}

// A registered reader that never advances (simulating a stalled consumer)
// forces the queue to fill and start truncating PushMany once the writer
// laps it; the dropped samples must count against Skipped() and be
// released back to the pool rather than leaked, per §4.4/§8.
func TestQueueOverflowCountsAndReleasesDroppedSamples(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	src := newSeqSource("src", values)
	dst, sinkSt := newSink("dst")

	const poolSize = 25
	p, err := New("overflow", src, []*node.Node{dst}, nil, poolSize, 1, 4, 0, 1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := p.Prepare(nil); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	// A reader that is registered but never pulled: once the writer has
	// advanced queuelen slots past it, every further push is truncated.
	p.Queue().RegisterReader(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(sinkSt.flat()) == 4 })
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	got := sinkSt.flat()
	want := []float64{1, 2, 3, 4}
	for i, v := range want {
		if got[i] != v {
			t.Fatalf("position %d: got %v, want %v (full: %v)", i, got[i], v, got)
		}
	}

	if p.Skipped() != uint64(len(values)-4) {
		t.Fatalf("expected %d samples skipped to queue overflow, got %d", len(values)-4, p.Skipped())
	}
	if avail := p.Pool().Available(); avail != poolSize {
		t.Fatalf("expected every acquired sample (delivered or dropped) to be released, got %d/%d available", avail, poolSize)
	}
}

func TestLifecycleRejectsOutOfOrderTransitions(t *testing.T) {
	src := newSeqSource("src", []float64{1})
	dst, _ := newSink("dst")

	p, err := New("lifecycle", src, []*node.Node{dst}, nil, 2, 1, 4, 0, 1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := p.Stop(); err == nil {
		t.Fatal("expected Stop to reject a path that was never started")
	}
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("expected Start to reject a path that hasn't been prepared")
	}
	if err := p.Prepare(nil); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := p.Prepare(nil); err == nil {
		t.Fatal("expected a second Prepare call to be rejected")
	}
}
