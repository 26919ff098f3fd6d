package node

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/villasnode/villasnode-go/internal/sample"
)

// SignalType is a synthetic in-process source used for tests and demos, so
// that reading the core routing engine end-to-end never requires external
// infrastructure. Grounded on the teacher's stream.MockStream: a
// deterministic generator advancing on its own clock rather than blocking on
// a real transport.
type SignalType struct{}

func init() { Register(&SignalType{}) }

func (*SignalType) Name() string { return "signal" }

type signalKind int

const (
	signalSine signalKind = iota
	signalSquare
	signalRamp
	signalConstant
)

type signalState struct {
	mu sync.Mutex

	kind      signalKind
	amplitude float64
	frequency float64
	offset    float64

	startTime time.Time
	seq       uint64
}

func (*SignalType) Instantiate(name string, config map[string]interface{}) (*Node, error) {
	st := &signalState{amplitude: 1.0, frequency: 1.0}

	if kindStr, ok := config["signal"].(string); ok {
		switch kindStr {
		case "sine":
			st.kind = signalSine
		case "square":
			st.kind = signalSquare
		case "ramp":
			st.kind = signalRamp
		case "constant":
			st.kind = signalConstant
		default:
			return nil, fmt.Errorf("signal node %s: unknown signal kind %q", name, kindStr)
		}
	}
	if v, ok := config["amplitude"].(float64); ok {
		st.amplitude = v
	}
	if v, ok := config["frequency"].(float64); ok {
		st.frequency = v
	}
	if v, ok := config["offset"].(float64); ok {
		st.offset = v
	}

	return NewNode(name, &SignalType{}, st), nil
}

func (*SignalType) Start(_ context.Context, n *Node) error {
	st := n.State.(*signalState)
	st.mu.Lock()
	st.startTime = time.Now()
	st.seq = 0
	st.mu.Unlock()
	return nil
}

func (*SignalType) Read(ctx context.Context, n *Node, out []*sample.Sample, count int) (int, error) {
	st := n.State.(*signalState)
	st.mu.Lock()
	defer st.mu.Unlock()

	produced := 0
	for i := 0; i < count && i < len(out); i++ {
		select {
		case <-ctx.Done():
			return produced, ctx.Err()
		default:
		}

		t := time.Since(st.startTime).Seconds()
		s := out[i]
		s.Values[0] = sample.FloatValue(st.value(t))
		s.Length = 1
		s.Sequence = st.seq
		s.OriginTS = time.Now()
		st.seq++
		produced++
	}
	return produced, nil
}

func (st *signalState) value(t float64) float64 {
	switch st.kind {
	case signalSine:
		return st.offset + st.amplitude*math.Sin(2*math.Pi*st.frequency*t)
	case signalSquare:
		phase := math.Mod(st.frequency*t, 1.0)
		if phase < 0.5 {
			return st.offset + st.amplitude
		}
		return st.offset - st.amplitude
	case signalRamp:
		phase := math.Mod(st.frequency*t, 1.0)
		return st.offset + st.amplitude*(2*phase-1)
	default:
		return st.offset
	}
}
