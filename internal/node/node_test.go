package node

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/villasnode/villasnode-go/internal/sample"
)

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(&SignalType{}); err != nil {
		t.Fatalf("unexpected error on first add: %v", err)
	}
	if err := r.Add(&SignalType{}); err == nil {
		t.Fatal("expected error registering a duplicate type name")
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Add(&SignalType{})
	typ, ok := r.Lookup("signal")
	if !ok || typ.Name() != "signal" {
		t.Fatalf("expected to find the signal type, got %v, %v", typ, ok)
	}
	if _, ok := r.Lookup("nonexistent"); ok {
		t.Fatal("expected lookup of an unregistered name to fail")
	}
}

func TestSignalNodeProducesConstant(t *testing.T) {
	typ := &SignalType{}
	n, err := typ.Instantiate("gen", map[string]interface{}{
		"signal":    "constant",
		"amplitude": 0.0,
		"offset":    5.0,
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	p := sample.New(1, 4)
	out := make([]*sample.Sample, 1)
	p.Acquire(out)

	n2, err := n.Read(context.Background(), out, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n2 != 1 {
		t.Fatalf("expected 1 sample, got %d", n2)
	}
	if out[0].Values[0].Float != 5.0 {
		t.Fatalf("expected constant signal value 5.0, got %v", out[0].Values[0].Float)
	}
}

func TestFileNodeWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "samples.txt")

	typ := &FileType{}
	writer, err := typ.Instantiate("w", map[string]interface{}{
		"out": map[string]interface{}{"path": path},
	})
	if err != nil {
		t.Fatalf("instantiate writer: %v", err)
	}
	if err := writer.Start(context.Background()); err != nil {
		t.Fatalf("start writer: %v", err)
	}

	p := sample.New(2, 2)
	out := make([]*sample.Sample, 1)
	p.Acquire(out)
	out[0].Length = 2
	out[0].Values[0] = sample.FloatValue(1.5)
	out[0].Values[1] = sample.FloatValue(-2.5)

	if n, err := writer.Write(context.Background(), out, 1); err != nil || n != 1 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	writer.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty output file")
	}

	reader, err := typ.Instantiate("r", map[string]interface{}{
		"in": map[string]interface{}{"path": path},
	})
	if err != nil {
		t.Fatalf("instantiate reader: %v", err)
	}
	if err := reader.Start(context.Background()); err != nil {
		t.Fatalf("start reader: %v", err)
	}
	defer reader.Stop()

	in := make([]*sample.Sample, 1)
	p.Acquire(in)
	n3, err := reader.Read(context.Background(), in, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n3 != 1 {
		t.Fatalf("expected 1 sample read back, got %d", n3)
	}
	if in[0].Values[0].Float != 1.5 || in[0].Values[1].Float != -2.5 {
		t.Fatalf("expected round-tripped values, got %+v", in[0].Values[:2])
	}
}
