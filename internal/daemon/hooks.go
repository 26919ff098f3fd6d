package daemon

import (
	"fmt"

	"github.com/villasnode/villasnode-go/internal/config"
	"github.com/villasnode/villasnode-go/internal/hook"
	"github.com/villasnode/villasnode-go/internal/sample"
)

// buildHook constructs a configured Hook instance from one path's hook
// config entry. Parameters are applied directly from Params at construction
// time rather than relying solely on the chain's Parse lifecycle call,
// since Path.Prepare keys hook configs by Hook.Name() and none of the
// builtin hooks implement it (Prepare's later Parse(nil) call is then a
// harmless no-op, since every builtin hook's Parse tolerates a nil map).
func buildHook(cfg config.HookConfig, pathName string) (hook.Hook, error) {
	switch cfg.Type {
	case "decimate":
		ratio := 1
		if v, ok := cfg.Params["ratio"].(int); ok && v > 0 {
			ratio = v
		}
		return hook.NewDecimate(cfg.Priority, uint64(ratio)), nil

	case "cast":
		idx, _ := cfg.Params["signal_index"].(int)
		kindStr, _ := cfg.Params["kind"].(string)
		kind, err := parseSampleKind(kindStr)
		if err != nil {
			return nil, fmt.Errorf("hook cast: %w", err)
		}
		return hook.NewCast(cfg.Priority, idx, kind), nil

	case "stats":
		return hook.NewStats(cfg.Priority), nil

	case "print":
		return hook.NewPrint(cfg.Priority, pathName), nil

	default:
		return nil, fmt.Errorf("unknown hook type %q", cfg.Type)
	}
}

func parseSampleKind(s string) (sample.Kind, error) {
	switch s {
	case "int":
		return sample.KindInt, nil
	case "float":
		return sample.KindFloat, nil
	case "bool":
		return sample.KindBool, nil
	case "complex":
		return sample.KindComplex, nil
	default:
		return 0, fmt.Errorf("unknown value kind %q", s)
	}
}
