package config

import (
	"fmt"
	"regexp"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const (
	defaultQueueLen  = 1024
	defaultSampleLen = 64
	defaultVectorize = 1
)

// Validate checks structural correctness of a loaded Config and fills in
// defaults, grounded on the teacher's internal/config/validator.go (same
// required-field checks plus default-filling shape).
func Validate(cfg *Config) error {
	if len(cfg.Nodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}
	for name, n := range cfg.Nodes {
		if !namePattern.MatchString(name) {
			return fmt.Errorf("node %q: name must match [a-zA-Z0-9_-]+", name)
		}
		if n.Type == "" {
			return fmt.Errorf("node %q: type is required", name)
		}
	}

	if len(cfg.Paths) == 0 {
		return fmt.Errorf("at least one path is required")
	}
	for i := range cfg.Paths {
		if err := validatePath(cfg, i); err != nil {
			return fmt.Errorf("path %d: %w", i, err)
		}
	}

	if cfg.Global.StatsS < 0 {
		return fmt.Errorf("global.stats must be >= 0")
	}

	return nil
}

// validatePath checks one path's node references and fills its defaults.
// Indexing into cfg.Paths (rather than taking a *PathConfig parameter) lets
// it mutate the slice element in place.
func validatePath(cfg *Config, i int) error {
	p := &cfg.Paths[i]

	if p.In == "" {
		return fmt.Errorf("\"in\" is required")
	}
	if _, ok := cfg.Nodes[p.In]; !ok {
		return fmt.Errorf("\"in\" references unknown node %q", p.In)
	}

	if len(p.Out) == 0 {
		return fmt.Errorf("a path with zero destinations is a configuration error")
	}
	for _, out := range p.Out {
		if _, ok := cfg.Nodes[out]; !ok {
			return fmt.Errorf("\"out\" references unknown node %q", out)
		}
	}

	if p.Rate < 0 {
		return fmt.Errorf("rate must be >= 0")
	}

	if p.QueueLen <= 0 {
		p.QueueLen = defaultQueueLen
	} else if p.QueueLen&(p.QueueLen-1) != 0 {
		return fmt.Errorf("queuelen must be a power of two, got %d", p.QueueLen)
	}

	if p.SampleLen <= 0 {
		p.SampleLen = defaultSampleLen
	}
	if p.Vectorize <= 0 {
		p.Vectorize = defaultVectorize
	}

	for j, h := range p.Hooks {
		if h.Type == "" {
			return fmt.Errorf("hook %d: type is required", j)
		}
	}

	return nil
}
