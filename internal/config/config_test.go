package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
global:
  name: test-node
  stats: 5

nodes:
  src:
    type: signal
    signal: sine
  dst:
    type: file
    out:
      path: /tmp/out.dat

paths:
  - in: src
    out: dst
    rate: 10
    hooks:
      - type: decimate
        ratio: 2
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return p
}

func TestLoadParsesGlobalNodesAndPaths(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Global.Name != "test-node" || cfg.Global.StatsS != 5 {
		t.Fatalf("unexpected global: %+v", cfg.Global)
	}

	src, ok := cfg.Nodes["src"]
	if !ok || src.Type != "signal" {
		t.Fatalf("expected node 'src' of type signal, got %+v", cfg.Nodes)
	}
	if src.Params["signal"] != "sine" {
		t.Fatalf("expected inline param 'signal: sine', got %+v", src.Params)
	}

	if len(cfg.Paths) != 1 {
		t.Fatalf("expected 1 path, got %d", len(cfg.Paths))
	}
	p := cfg.Paths[0]
	if p.In != "src" || len(p.Out) != 1 || p.Out[0] != "dst" {
		t.Fatalf("unexpected path routing: %+v", p)
	}
	if p.QueueLen != defaultQueueLen {
		t.Fatalf("expected queuelen to default to %d, got %d", defaultQueueLen, p.QueueLen)
	}
	if !p.IsEnabled() {
		t.Fatal("expected path to default to enabled")
	}
	if len(p.Hooks) != 1 || p.Hooks[0].Type != "decimate" {
		t.Fatalf("unexpected hooks: %+v", p.Hooks)
	}
}

func TestOutAcceptsSingleNameOrList(t *testing.T) {
	const multi = `
nodes:
  a: {type: signal}
  b: {type: file}
  c: {type: file}
paths:
  - in: a
    out: [b, c]
`
	cfg, err := Load(writeTempConfig(t, multi))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Paths[0].Out) != 2 {
		t.Fatalf("expected 2 destinations, got %v", cfg.Paths[0].Out)
	}
}

func TestValidateRejectsPathWithNoDestinations(t *testing.T) {
	const noOut = `
nodes:
  a: {type: signal}
paths:
  - in: a
    out: []
`
	if _, err := Load(writeTempConfig(t, noOut)); err == nil {
		t.Fatal("expected a configuration error for a path with zero destinations")
	}
}

func TestValidateRejectsUnknownNodeReference(t *testing.T) {
	const badRef = `
nodes:
  a: {type: signal}
paths:
  - in: a
    out: ghost
`
	if _, err := Load(writeTempConfig(t, badRef)); err == nil {
		t.Fatal("expected a configuration error for an unknown node reference")
	}
}

func TestValidateRejectsNonPowerOfTwoQueueLen(t *testing.T) {
	const badQueue = `
nodes:
  a: {type: signal}
  b: {type: file}
paths:
  - in: a
    out: b
    queuelen: 100
`
	if _, err := Load(writeTempConfig(t, badQueue)); err == nil {
		t.Fatal("expected a configuration error for a non-power-of-two queuelen")
	}
}
