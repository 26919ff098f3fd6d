// Package config loads and validates a VILLASnode-Go deployment file: the
// top-level {global, nodes, paths} groups of spec.md §6, grounded on the
// teacher's internal/config/config.go (same Load/Validate split, same
// gopkg.in/yaml.v3 decoding approach).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full parsed and validated deployment file.
type Config struct {
	Global GlobalConfig          `yaml:"global"`
	Nodes  map[string]NodeConfig `yaml:"nodes"`
	Paths  []PathConfig          `yaml:"paths"`
}

// GlobalConfig holds process-wide settings.
type GlobalConfig struct {
	Name     string `yaml:"name"`
	Affinity uint64 `yaml:"affinity"`
	Priority int    `yaml:"priority"`
	StatsS   int    `yaml:"stats"` // seconds between periodic-stats lines, 0 disables
	User     string `yaml:"user"`
	Group    string `yaml:"group"`
}

// NodeConfig is one entry of the nodes map: a registered type name plus
// whatever type-specific keys that node type's Instantiate expects. Params
// captures every key besides "type" via yaml's inline-map mechanism, and is
// handed to node.Type.Instantiate as-is.
type NodeConfig struct {
	Type   string                 `yaml:"type"`
	Params map[string]interface{} `yaml:",inline"`
}

// PathConfig is one entry of the paths list.
type PathConfig struct {
	In        string       `yaml:"in"`
	Out       NodeNameList `yaml:"out"`
	Hooks     []HookConfig `yaml:"hooks"`
	Rate      float64      `yaml:"rate"`
	Enabled   *bool        `yaml:"enabled"`
	Reverse   bool         `yaml:"reverse"`
	QueueLen  int          `yaml:"queuelen"`
	SampleLen int          `yaml:"samplelen"`
	Vectorize int          `yaml:"vectorize"`
}

// IsEnabled reports whether the path should be built, defaulting to true
// when the key is omitted.
func (p PathConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// HookConfig is one entry of a path's hooks list.
type HookConfig struct {
	Type     string                 `yaml:"type"`
	Priority int                    `yaml:"priority"`
	Params   map[string]interface{} `yaml:",inline"`
}

// NodeNameList accepts "out" as either a single node name or a list of
// names, matching spec.md §6's `out: node-name | [node-name,...]`.
type NodeNameList []string

func (n *NodeNameList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*n = NodeNameList{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*n = NodeNameList(list)
		return nil
	default:
		return fmt.Errorf("config: \"out\" must be a string or a list of strings")
	}
}

// Load reads, parses and validates a deployment file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}
	return &cfg, nil
}
