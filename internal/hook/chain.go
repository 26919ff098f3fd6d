package hook

import (
	"context"
	"sort"

	"github.com/villasnode/villasnode-go/internal/sample"
)

// Chain is a priority-sorted list of Hooks attached to a single Path.
type Chain struct {
	hooks   []Hook
	sorted  bool
	skipped uint64
}

// New builds a Chain from an unordered hook list.
func New(hooks []Hook) *Chain {
	return &Chain{hooks: hooks}
}

// Sort orders the chain by ascending priority. Must be called once during
// path preparation before Run is used.
func (c *Chain) Sort() {
	sort.SliceStable(c.hooks, func(i, j int) bool {
		return c.hooks[i].Priority() < c.hooks[j].Priority()
	})
	c.sorted = true
}

// Hooks returns the chain's hooks in execution order.
func (c *Chain) Hooks() []Hook { return c.hooks }

// Skipped returns the cumulative count of samples discarded by Run across
// all kinds, accumulated on the owning Path.
func (c *Chain) Skipped() uint64 { return c.skipped }

// lifecycle runs f over every hook in priority order, in order for Init and
// Parse/Check/Start, and returns the first error encountered.
func (c *Chain) lifecycle(f func(Hook) error) error {
	for _, h := range c.hooks {
		if err := f(h); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) Init() error  { return c.lifecycle(func(h Hook) error { return h.Init() }) }
func (c *Chain) Check() error { return c.lifecycle(func(h Hook) error { return h.Check() }) }

func (c *Chain) Parse(configs map[string]map[string]interface{}) error {
	return c.lifecycle(func(h Hook) error {
		return h.Parse(configs[hookKey(h)])
	})
}

func (c *Chain) Start(ctx context.Context) error {
	return c.lifecycle(func(h Hook) error { return h.Start(ctx) })
}

func (c *Chain) Stop() error {
	var first error
	for _, h := range c.hooks {
		if err := h.Stop(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *Chain) Deinit() error {
	var first error
	for _, h := range c.hooks {
		if err := h.Deinit(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Run executes every hook matching kind, in priority order, over samples
// and returns the batch with kept samples compacted to the front, the
// number of samples retained, and the samples discarded along the way (the
// caller owns them after this returns and is responsible for releasing them
// back to their Pool). A Stop verdict from any hook aborts the chain and is
// propagated to the caller via the returned ok=false.
func (c *Chain) Run(samples []*sample.Sample, n int, kind Kind) (kept int, discarded []*sample.Sample, ok bool) {
	alive := make([]bool, n)
	for i := range alive {
		alive[i] = true
	}

	for _, h := range c.hooks {
		if h.Kinds()&kind == 0 {
			continue
		}
		for i := 0; i < n; i++ {
			if !alive[i] {
				continue
			}
			switch h.Process(samples[i]) {
			case Ok:
			case Skip:
				alive[i] = false
			case Error:
				alive[i] = false
			case Stop:
				return 0, nil, false
			}
		}
	}

	kept = 0
	for i := 0; i < n; i++ {
		if alive[i] {
			samples[kept] = samples[i]
			kept++
		} else {
			discarded = append(discarded, samples[i])
		}
	}
	c.skipped += uint64(n - kept)
	return kept, discarded, true
}

// RunPeriodic invokes the HOOK_PERIODIC verdict of every periodic hook; a
// single Skip verdict from any of them suppresses the caller's emission
// (used by the rate-driven resend path).
func (c *Chain) RunPeriodic() (suppress bool) {
	for _, h := range c.hooks {
		if h.Kinds()&Periodic == 0 {
			continue
		}
		switch h.RunPeriodic() {
		case Skip:
			suppress = true
		case Stop:
			return true
		}
	}
	return suppress
}

// hookKey names a hook for config lookup purposes. Concrete hooks that want
// named configuration implement an optional Name() string method; hooks
// that don't all share the empty key and are never matched by name.
func hookKey(h Hook) string {
	if n, ok := h.(interface{ Name() string }); ok {
		return n.Name()
	}
	return ""
}
