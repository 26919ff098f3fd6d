// Package path implements the receive/send state machine that moves
// Samples from one source node through a hook chain, a bounded Queue, and
// out to every destination node, grounded on lib/path.c.
package path

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/villasnode/villasnode-go/internal/hook"
	"github.com/villasnode/villasnode-go/internal/node"
	"github.com/villasnode/villasnode-go/internal/queue"
	"github.com/villasnode/villasnode-go/internal/sample"
	"github.com/villasnode/villasnode-go/internal/timer"
)

// State is the path's lifecycle stage.
type State int

const (
	StateCreated State = iota
	StatePrepared
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePrepared:
		return "prepared"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// destination tracks one output node's own read cursor into the path's
// queue, independent of every other destination and of the history hooks.
type destination struct {
	node *node.Node
	sent uint64
}

// Path wires one source node through a hook chain into a queue and out to
// every destination node. rate == 0 forwards inline from the receive loop;
// rate > 0 drives an independent send goroutine off a rate Timer, with the
// receive loop only enqueuing.
type Path struct {
	Name string

	in           *node.Node
	destinations []*destination
	chain        *hook.Chain
	pool         *sample.Pool
	q            *queue.Queue
	rate         float64
	vectorize    int

	state State

	historyReaders []historyReader
	destReaders    []queue.ReaderID
	skipped        atomic.Uint64
	queueDrops     atomic.Uint64
	overrun        atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Path in the Created state. queueLen must be a power of two.
func New(name string, in *node.Node, destinations []*node.Node, hooks []hook.Hook, poolSize, capacity, queueLen int, rate float64, vectorize int) (*Path, error) {
	q, err := queue.New(queueLen)
	if err != nil {
		return nil, fmt.Errorf("path %s: %w", name, err)
	}
	dests := make([]*destination, len(destinations))
	for i, d := range destinations {
		dests[i] = &destination{node: d}
	}
	return &Path{
		Name:         name,
		in:           in,
		destinations: dests,
		chain:        hook.New(hooks),
		pool:         sample.New(poolSize, capacity),
		q:            q,
		rate:         rate,
		vectorize:    vectorize,
		state:        StateCreated,
	}, nil
}

func (p *Path) State() State { return p.state }

// Skipped is the cumulative count of samples discarded by the path, both by
// hook-chain verdicts and by queue overflow (§4.4/§8).
func (p *Path) Skipped() uint64  { return p.skipped.Load() + p.queueDrops.Load() }
func (p *Path) Overruns() uint64 { return p.overrun.Load() }
func (p *Path) Pool() *sample.Pool  { return p.pool }
func (p *Path) Queue() *queue.Queue { return p.q }

// Prepare sorts the hook chain by priority and runs its Init/Parse/Check
// lifecycle, then registers one queue reader per history-bearing hook and
// one per destination. Must run before
// Start; must not run more than once.
func (p *Path) Prepare(hookConfigs map[string]map[string]interface{}) error {
	if p.state != StateCreated {
		return fmt.Errorf("path %s: Prepare called in state %s", p.Name, p.state)
	}
	p.chain.Sort()
	if err := p.chain.Init(); err != nil {
		return fmt.Errorf("path %s: hook init: %w", p.Name, err)
	}
	if err := p.chain.Parse(hookConfigs); err != nil {
		return fmt.Errorf("path %s: hook parse: %w", p.Name, err)
	}
	if err := p.chain.Check(); err != nil {
		return fmt.Errorf("path %s: hook check: %w", p.Name, err)
	}

	// Every destination and every history-bearing hook gets its own reader
	// cursor, registered up front: RegisterReader panics once the queue has
	// seen its first push, so this must happen before Start launches the
	// goroutines that will push and pull from it.
	p.historyReaders = p.registerHistoryReaders()
	p.destReaders = p.registerDestinationReaders()

	p.state = StatePrepared
	return nil
}

// Start runs HOOK_PATH_START, then launches the receive goroutine and (if
// rate > 0) the rate-driven send goroutine.
func (p *Path) Start(ctx context.Context) error {
	if p.state != StatePrepared {
		return fmt.Errorf("path %s: Start called in state %s", p.Name, p.state)
	}
	if err := p.chain.Start(ctx); err != nil {
		return fmt.Errorf("path %s: hook start: %w", p.Name, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	slog.Info("starting path", "path", p.Name, "hooks", len(p.chain.Hooks()), "rate", p.rate)

	var rateTimer *timer.Timer
	if p.rate > 0 {
		t, err := timer.New(p.rate)
		if err != nil {
			cancel()
			return fmt.Errorf("path %s: %w", p.Name, err)
		}
		rateTimer = t
	}

	p.wg.Add(1)
	go p.receiveLoop(runCtx)

	if rateTimer != nil {
		p.wg.Add(1)
		go p.sendLoop(runCtx, rateTimer)
	}

	p.state = StateRunning
	return nil
}

// Stop cancels the receive/send goroutines, waits for them to exit, and
// runs HOOK_PATH_STOP.
func (p *Path) Stop() error {
	if p.state != StateRunning {
		return fmt.Errorf("path %s: Stop called in state %s", p.Name, p.state)
	}
	slog.Info("stopping path", "path", p.Name)
	p.cancel()
	p.in.Wake()
	p.wg.Wait()

	p.state = StateStopped
	if err := p.chain.Stop(); err != nil {
		return fmt.Errorf("path %s: hook stop: %w", p.Name, err)
	}
	return nil
}
