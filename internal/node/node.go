// Package node defines the plug-in contract every node type implements and
// the registry that maps a config-file "type" string to one. A Node is an
// instance (one per configured endpoint); a Type is shared across every Node
// built from it and owns the capability table (the original's vtable).
package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/villasnode/villasnode-go/internal/sample"
)

// Direction selects which half of a node's I/O capability a caller wants.
type Direction int

const (
	DirRead Direction = iota
	DirWrite
)

// Type is the capability set a node plug-in implements. Not every node
// supports every capability (a pure sink has no Read, a pure source has no
// Write); Node.Type exposes which via the Readable/Writable/Reversible
// feature tests below, following the original's vtable member presence
// checks rather than returning ErrNotSupported from every stub.
type Type interface {
	// Name identifies the type string used in config ("file", "mqtt", ...).
	Name() string

	// Instantiate builds a new Node of this type from its parsed config.
	Instantiate(name string, config map[string]interface{}) (*Node, error)
}

// Readable is implemented by node types that can receive samples.
type Readable interface {
	Read(ctx context.Context, n *Node, out []*sample.Sample, count int) (int, error)
}

// Writable is implemented by node types that can send samples.
type Writable interface {
	Write(ctx context.Context, n *Node, in []*sample.Sample, count int) (int, error)
}

// Reversible is implemented by node types whose read/write direction can be
// swapped by configuration (e.g. a file node played back in reverse).
type Reversible interface {
	Reverse(n *Node) error
}

// Waker is an optional capability letting a broker-backed node type unblock
// a pending Read promptly when its context is cancelled, rather than relying
// solely on the next I/O deadline.
type Waker interface {
	Wake(n *Node) error
}

// Lifecycle is implemented by node types with process-wide (not per-node)
// setup/teardown, run for every registered type by Registry.StartAll and
// Registry.StopAll (called from the daemon's Start and Stop).
type Lifecycle interface {
	StartType() error
	StopType() error
}

// Poller is implemented by node types whose per-node state can be waited on
// via a file descriptor instead of a blocking Read call.
type Poller interface {
	PollFD(n *Node) (int, bool)
}

// Node is one configured instance of a Type: a name, its owning Type, and
// whatever private state the Type attaches via State.
type Node struct {
	name string
	typ  Type

	mu      sync.Mutex
	started bool

	// State is the Type-private instance data (file handles, MQTT client,
	// HTTP client, TCP connection, ...). Node itself never inspects it.
	State interface{}

	Signals []sample.Signal
}

// NewNode constructs a Node wrapping Type-specific state. Concrete Type
// implementations call this from their Instantiate method.
func NewNode(name string, typ Type, state interface{}) *Node {
	return &Node{name: name, typ: typ, State: state}
}

func (n *Node) Name() string { return n.name }
func (n *Node) Type() Type   { return n.typ }

// Started reports whether Start has been called without a matching Stop.
func (n *Node) Started() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started
}

func (n *Node) setStarted(v bool) {
	n.mu.Lock()
	n.started = v
	n.mu.Unlock()
}

// Check runs the type's Check method if present (config validation, run by
// the daemon right after the node is instantiated), via an optional
// interface so not every type needs to implement it.
func (n *Node) Check() error {
	if c, ok := n.typ.(interface{ Check(*Node) error }); ok {
		return c.Check(n)
	}
	return nil
}

// Start prepares the node for I/O. Node types with no start-time work
// implement no Start method; Start is then a no-op that just flips Started().
func (n *Node) Start(ctx context.Context) error {
	if s, ok := n.typ.(interface{ Start(context.Context, *Node) error }); ok {
		if err := s.Start(ctx, n); err != nil {
			return fmt.Errorf("node %s: start: %w", n.name, err)
		}
	}
	n.setStarted(true)
	return nil
}

// Stop releases I/O resources acquired by Start.
func (n *Node) Stop() error {
	if s, ok := n.typ.(interface{ Stop(*Node) error }); ok {
		if err := s.Stop(n); err != nil {
			return fmt.Errorf("node %s: stop: %w", n.name, err)
		}
	}
	n.setStarted(false)
	return nil
}

// Read delegates to the type's Readable capability. Returns an error if the
// type doesn't implement Readable.
func (n *Node) Read(ctx context.Context, out []*sample.Sample, count int) (int, error) {
	r, ok := n.typ.(Readable)
	if !ok {
		return 0, fmt.Errorf("node %s: type %s is not readable", n.name, n.typ.Name())
	}
	return r.Read(ctx, n, out, count)
}

// Write delegates to the type's Writable capability.
func (n *Node) Write(ctx context.Context, in []*sample.Sample, count int) (int, error) {
	w, ok := n.typ.(Writable)
	if !ok {
		return 0, fmt.Errorf("node %s: type %s is not writable", n.name, n.typ.Name())
	}
	return w.Write(ctx, n, in, count)
}

// Wake asks a Waker-capable type to interrupt a pending Read.
func (n *Node) Wake() error {
	if w, ok := n.typ.(Waker); ok {
		return w.Wake(n)
	}
	return nil
}

// Reverse asks a Reversible-capable type to swap read/write direction.
func (n *Node) Reverse() error {
	r, ok := n.typ.(Reversible)
	if !ok {
		return fmt.Errorf("node %s: type %s is not reversible", n.name, n.typ.Name())
	}
	return r.Reverse(n)
}
