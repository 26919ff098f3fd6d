// Package daemon orchestrates a whole VILLASnode-Go deployment: it builds
// the node registry, instantiates every configured node and path, and owns
// the process-wide start/stop sequencing, grounded on the teacher's
// internal/core/orion.go (the Orion struct and its Run/Shutdown methods).
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/villasnode/villasnode-go/internal/config"
	"github.com/villasnode/villasnode-go/internal/hook"
	"github.com/villasnode/villasnode-go/internal/node"
	"github.com/villasnode/villasnode-go/internal/path"
)

// Daemon is the top-level process orchestrator for one deployment.
type Daemon struct {
	cfg      *config.Config
	registry *node.Registry

	mu      sync.RWMutex
	nodes   map[string]*node.Node
	paths   []*path.Path
	started time.Time
	running bool
}

// New builds a Daemon from a parsed, validated Config. It uses the process
// registry (node.Default) that every node type's init() self-registers
// into, matching the pack's package-level registration idiom.
func New(cfg *config.Config) *Daemon {
	return &Daemon{
		cfg:      cfg,
		registry: node.Default,
		nodes:    make(map[string]*node.Node),
	}
}

// Build instantiates every configured node and path but does not start any
// of them. It must be called before Start.
func (d *Daemon) Build() error {
	for name, nc := range d.cfg.Nodes {
		typ, ok := d.registry.Lookup(nc.Type)
		if !ok {
			return fmt.Errorf("node %q: unknown type %q (registered: %v)", name, nc.Type, d.registry.Names())
		}
		n, err := typ.Instantiate(name, nc.Params)
		if err != nil {
			return fmt.Errorf("node %q: %w", name, err)
		}
		if err := n.Check(); err != nil {
			return fmt.Errorf("node %q: %w", name, err)
		}
		d.nodes[name] = n
	}

	for i, pc := range d.cfg.Paths {
		if !pc.IsEnabled() {
			continue
		}
		p, err := d.buildPath(fmt.Sprintf("path-%d", i), pc, false)
		if err != nil {
			return err
		}
		d.paths = append(d.paths, p)

		// reverse:true yields a second, independent path running the same
		// route backwards, per spec.md §8's boundary behavior.
		if pc.Reverse {
			rev, err := d.buildPath(fmt.Sprintf("path-%d-reverse", i), reversed(pc), true)
			if err != nil {
				return err
			}
			d.paths = append(d.paths, rev)
		}
	}

	return nil
}

// reversed swaps a path config's single-destination route, used to build
// the {out -> in} path of a reverse:true configuration. Multi-destination
// reverse paths aren't meaningful (a path has exactly one source), so
// reverse is only honored when there is exactly one "out".
func reversed(pc config.PathConfig) config.PathConfig {
	rev := pc
	rev.Reverse = false
	if len(pc.Out) == 1 {
		rev.In = pc.Out[0]
		rev.Out = config.NodeNameList{pc.In}
	}
	return rev
}

func (d *Daemon) buildPath(name string, pc config.PathConfig, isReverse bool) (*path.Path, error) {
	in, ok := d.nodes[pc.In]
	if !ok {
		return nil, fmt.Errorf("%s: unknown source node %q", name, pc.In)
	}
	if isReverse && len(pc.Out) != 1 {
		return nil, fmt.Errorf("%s: reverse path requires exactly one destination", name)
	}

	dests := make([]*node.Node, 0, len(pc.Out))
	for _, outName := range pc.Out {
		dn, ok := d.nodes[outName]
		if !ok {
			return nil, fmt.Errorf("%s: unknown destination node %q", name, outName)
		}
		dests = append(dests, dn)
	}

	hooks := make([]hook.Hook, 0, len(pc.Hooks))
	for _, hc := range pc.Hooks {
		h, err := buildHook(hc, name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		hooks = append(hooks, h)
	}

	poolSize := pc.QueueLen + pc.Vectorize
	p, err := path.New(name, in, dests, hooks, poolSize, pc.SampleLen, pc.QueueLen, pc.Rate, pc.Vectorize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := p.Prepare(nil); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return p, nil
}

// Start runs every registered node type's StartType hook, starts every node
// instance, then starts every path (paths were already prepared by Build).
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("daemon: already running")
	}

	if err := d.registry.StartAll(); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	for name, n := range d.nodes {
		if err := n.Start(ctx); err != nil {
			return fmt.Errorf("daemon: node %q: %w", name, err)
		}
	}
	for _, p := range d.paths {
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("daemon: %w", err)
		}
	}

	if d.cfg.Global.StatsS > 0 {
		go d.statsLoop(ctx, time.Duration(d.cfg.Global.StatsS)*time.Second)
	}

	d.started = time.Now()
	d.running = true
	slog.Info("daemon started", "nodes", len(d.nodes), "paths", len(d.paths))
	return nil
}

// Stop tears a running deployment down in order: it stops all paths, then
// stops all nodes, then runs every node type's StopType teardown. Node
// types stay registered.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}

	var firstErr error
	for _, p := range d.paths {
		if err := p.Stop(); err != nil {
			slog.Error("path stop failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	for name, n := range d.nodes {
		if err := n.Stop(); err != nil {
			slog.Error("node stop failed", "node", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if err := d.registry.StopAll(); err != nil {
		slog.Error("node type teardown failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	d.running = false
	slog.Info("daemon stopped", "uptime", time.Since(d.started))
	return firstErr
}

// Uptime returns how long the daemon has been running, or 0 if it isn't.
func (d *Daemon) Uptime() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return 0
	}
	return time.Since(d.started)
}

// Running reports whether Start has succeeded without a matching Stop.
func (d *Daemon) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Paths returns the daemon's built paths, for stats reporting or tests.
func (d *Daemon) Paths() []*path.Path {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*path.Path(nil), d.paths...)
}
