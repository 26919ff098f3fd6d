package hook

import (
	"testing"

	"github.com/villasnode/villasnode-go/internal/sample"
)

func makeSamples(seqs ...uint64) []*sample.Sample {
	out := make([]*sample.Sample, len(seqs))
	for i, seq := range seqs {
		out[i] = &sample.Sample{Sequence: seq}
	}
	return out
}

func TestDecimateKeepsEveryOtherSample(t *testing.T) {
	// Scenario 6: input {1..10}, decimate ratio 2 -> output {1,3,5,7,9}, skipped += 5.
	c := New([]Hook{NewDecimate(0, 2)})
	c.Sort()

	smps := makeSamples(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	kept, discarded, ok := c.Run(smps, len(smps), NodeRead)
	if !ok {
		t.Fatal("chain unexpectedly aborted")
	}
	if kept != 5 {
		t.Fatalf("expected 5 kept, got %d", kept)
	}
	want := []uint64{1, 3, 5, 7, 9}
	for i, w := range want {
		if smps[i].Sequence != w {
			t.Fatalf("index %d: expected seq %d, got %d", i, w, smps[i].Sequence)
		}
	}
	if c.Skipped() != 5 {
		t.Fatalf("expected skipped=5, got %d", c.Skipped())
	}

	// The skipped evens must come back via discarded so the caller can
	// release them to their pool instead of leaking the slot.
	if len(discarded) != 5 {
		t.Fatalf("expected 5 discarded samples, got %d", len(discarded))
	}
	wantDiscarded := []uint64{2, 4, 6, 8, 10}
	for i, w := range wantDiscarded {
		if discarded[i].Sequence != w {
			t.Fatalf("discarded index %d: expected seq %d, got %d", i, w, discarded[i].Sequence)
		}
	}
}

type stopHook struct{ Base }

func (stopHook) Kinds() Kind               { return NodeRead }
func (stopHook) Process(*sample.Sample) Action { return Stop }

func TestChainStopAbortsBatch(t *testing.T) {
	c := New([]Hook{&stopHook{}})
	c.Sort()

	smps := makeSamples(1, 2, 3)
	kept, discarded, ok := c.Run(smps, 3, NodeRead)
	if ok {
		t.Fatal("expected chain to report abort on Stop verdict")
	}
	if kept != 0 {
		t.Fatalf("expected 0 kept on abort, got %d", kept)
	}
	if discarded != nil {
		t.Fatalf("expected no discarded samples on abort, got %d", len(discarded))
	}
}

func TestChainRunsInPriorityOrder(t *testing.T) {
	var order []int
	mk := func(p int) Hook {
		return &orderHook{Base: Base{Prio: p}, id: p, order: &order}
	}
	c := New([]Hook{mk(3), mk(1), mk(2)})
	c.Sort()

	smps := makeSamples(1)
	c.Run(smps, 1, NodeRead)

	want := []int{1, 2, 3}
	if len(order) != 3 {
		t.Fatalf("expected 3 hooks to run, got %d", len(order))
	}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("expected priority order %v, got %v", want, order)
		}
	}
}

type orderHook struct {
	Base
	id    int
	order *[]int
}

func (*orderHook) Kinds() Kind { return NodeRead }
func (o *orderHook) Process(*sample.Sample) Action {
	*o.order = append(*o.order, o.id)
	return Ok
}
