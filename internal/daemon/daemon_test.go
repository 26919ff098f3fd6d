package daemon

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/villasnode/villasnode-go/internal/config"
)

func waitForLines(t *testing.T, path string, min int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if countLines(path) >= min {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if countLines(path) < min {
		t.Fatalf("expected at least %d lines in %s within %v, got %d", min, path, timeout, countLines(path))
	}
}

func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n
}

func TestBuildStartStopRoutesSignalToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.dat")

	cfg := &config.Config{
		Nodes: map[string]config.NodeConfig{
			"src": {Type: "signal", Params: map[string]interface{}{
				"signal": "constant", "amplitude": 0.0, "offset": 5.0,
			}},
			"dst": {Type: "file", Params: map[string]interface{}{
				"out": map[string]interface{}{"path": out},
			}},
		},
		Paths: []config.PathConfig{
			{In: "src", Out: config.NodeNameList{"dst"}, QueueLen: 8, SampleLen: 1, Vectorize: 1},
		},
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}

	d := New(cfg)
	if err := d.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !d.Running() {
		t.Fatal("expected daemon to report running after Start")
	}

	waitForLines(t, out, 3, time.Second)

	if err := d.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if d.Running() {
		t.Fatal("expected daemon to report not running after Stop")
	}

	health := d.HealthCheck()
	if health.Status != "unhealthy" {
		t.Fatalf("expected unhealthy status once stopped, got %q", health.Status)
	}
}

func TestBuildRejectsUnknownNodeType(t *testing.T) {
	cfg := &config.Config{
		Nodes: map[string]config.NodeConfig{
			"src": {Type: "does-not-exist"},
			"dst": {Type: "file", Params: map[string]interface{}{
				"out": map[string]interface{}{"path": filepath.Join(t.TempDir(), "out.dat")},
			}},
		},
		Paths: []config.PathConfig{
			{In: "src", Out: config.NodeNameList{"dst"}, QueueLen: 8, SampleLen: 1, Vectorize: 1},
		},
	}
	d := New(cfg)
	if err := d.Build(); err == nil {
		t.Fatal("expected Build to reject an unregistered node type")
	}
}
