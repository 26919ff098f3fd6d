package hook

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/villasnode/villasnode-go/internal/sample"
)

// Decimate keeps every Nth sample on HOOK_READ and skips the rest,
// grounded on the ratio-based decimation in lib/hooks/map.c. A ratio of 2
// keeps {1,3,5,...}, matching Testable Property scenario 6.
type Decimate struct {
	Base
	Ratio uint64

	counter uint64
}

func NewDecimate(priority int, ratio uint64) *Decimate {
	return &Decimate{Base: Base{Prio: priority}, Ratio: ratio}
}

func (*Decimate) Kinds() Kind { return NodeRead }

func (d *Decimate) Parse(config map[string]interface{}) error {
	if v, ok := config["ratio"]; ok {
		r, ok := v.(int)
		if !ok || r <= 0 {
			return fmt.Errorf("hook decimate: invalid ratio %v", v)
		}
		d.Ratio = uint64(r)
	}
	if d.Ratio == 0 {
		d.Ratio = 1
	}
	return nil
}

func (d *Decimate) Process(*sample.Sample) Action {
	n := atomic.AddUint64(&d.counter, 1)
	if (n-1)%d.Ratio != 0 {
		return Skip
	}
	return Ok
}

// Cast converts a named signal's value Kind in place, grounded on
// lib/hooks/cast.cpp. SignalIndex selects which value slot to convert.
type Cast struct {
	Base
	SignalIndex int
	NewKind     sample.Kind
}

func NewCast(priority int, signalIndex int, newKind sample.Kind) *Cast {
	return &Cast{Base: Base{Prio: priority}, SignalIndex: signalIndex, NewKind: newKind}
}

func (*Cast) Kinds() Kind { return NodeRead | NodeWrite }

func (c *Cast) Process(s *sample.Sample) Action {
	if c.SignalIndex < 0 || c.SignalIndex >= s.Length {
		return Ok
	}
	v := &s.Values[c.SignalIndex]
	switch c.NewKind {
	case sample.KindFloat:
		switch v.Kind {
		case sample.KindInt:
			*v = sample.FloatValue(float64(v.Int))
		case sample.KindBool:
			f := 0.0
			if v.Bool {
				f = 1.0
			}
			*v = sample.FloatValue(f)
		}
	case sample.KindInt:
		switch v.Kind {
		case sample.KindFloat:
			*v = sample.IntValue(int64(v.Float))
		case sample.KindBool:
			i := int64(0)
			if v.Bool {
				i = 1
			}
			*v = sample.IntValue(i)
		}
	}
	return Ok
}

// Stats counts the samples it sees on HOOK_READ, exposed through Seen. It
// also declares HOOK_PERIODIC, where it does nothing. It does not count
// skipped samples, and the daemon's periodic-stats line does not read it.
type Stats struct {
	Base

	seen atomic.Uint64
}

func NewStats(priority int) *Stats { return &Stats{Base: Base{Prio: priority}} }

func (*Stats) Kinds() Kind { return NodeRead | Periodic }

func (s *Stats) Process(*sample.Sample) Action {
	s.seen.Add(1)
	return Ok
}

// Seen returns the cumulative count of samples observed by this hook.
func (s *Stats) Seen() uint64 { return s.seen.Load() }

// Print logs every sample it sees via slog, grounded on
// plugins/example_hook.cpp's illustrative pass-through hook. Intended for
// debugging a path's wiring, not production use.
type Print struct {
	Base
	PathName string
}

func NewPrint(priority int, pathName string) *Print {
	return &Print{Base: Base{Prio: priority}, PathName: pathName}
}

func (*Print) Kinds() Kind { return NodeRead }

func (p *Print) Process(s *sample.Sample) Action {
	slog.Debug("sample", "path", p.PathName, "sequence", s.Sequence, "length", s.Length)
	return Ok
}

func (p *Print) Start(context.Context) error {
	slog.Info("print hook attached", "path", p.PathName)
	return nil
}
