// Package hook implements the stateful per-path transformation chain: a
// priority-ordered list of Hooks, each with lifecycle callbacks and an
// optional history window that installs a trailing queue reader.
package hook

import (
	"context"

	"github.com/villasnode/villasnode-go/internal/sample"
)

// Kind is a bitmask selecting which point(s) in the path pipeline a Hook
// runs at.
type Kind uint32

const (
	NodeRead Kind = 1 << iota
	NodeWrite
	PathRead
	PathWrite
	Periodic
	PathStart
	PathStop
	Init
	Parse
	Deinit
)

// Action is the verdict a Hook's Process returns for a single Sample.
type Action int

const (
	// Ok keeps the sample in the batch.
	Ok Action = iota
	// Skip discards the sample from the batch (counted in Path.Skipped).
	Skip
	// Error marks the sample's processing as failed without stopping the path.
	Error
	// Stop is a fatal verdict: the owning path must transition to stopped.
	Stop
)

// Hook is the capability set every hook kind implements. Lifecycle methods
// with no work to do may be left as no-ops by embedding Base.
type Hook interface {
	// Kinds returns the bitmask of pipeline points this hook participates in.
	Kinds() Kind
	// Priority orders execution within a kind; lower runs first.
	Priority() int
	// History returns the number of past samples this hook needs retained,
	// or 0 if it needs none.
	History() int

	Init() error
	Parse(config map[string]interface{}) error
	Check() error
	Start(ctx context.Context) error
	Process(s *sample.Sample) Action
	RunPeriodic() Action
	Stop() error
	Deinit() error
}

// Base provides no-op implementations of every lifecycle method so concrete
// hooks only need to override what they use.
type Base struct {
	Prio    int
	HistLen int
}

func (Base) Init() error                              { return nil }
func (Base) Parse(map[string]interface{}) error        { return nil }
func (Base) Check() error                              { return nil }
func (Base) Start(context.Context) error               { return nil }
func (Base) Process(*sample.Sample) Action             { return Ok }
func (Base) RunPeriodic() Action                       { return Ok }
func (Base) Stop() error                               { return nil }
func (Base) Deinit() error                             { return nil }
func (b Base) Priority() int                           { return b.Prio }
func (b Base) History() int                            { return b.HistLen }
