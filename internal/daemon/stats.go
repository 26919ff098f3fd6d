package daemon

import (
	"context"
	"log/slog"
	"time"
)

// statsLoop emits one periodic-stats line per tick (spec.md §6), grounded
// on the teacher's frameBus.StartStatsLogger periodic-ticker pattern in
// internal/core/orion.go.
func (d *Daemon) statsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range d.Paths() {
				slog.Info("path stats",
					"path", p.Name,
					"state", p.State().String(),
					"skipped", p.Skipped(),
					"overruns", p.Overruns(),
					"queue_len", p.Queue().Len(),
					"writer_pos", p.Queue().WriterPos(),
				)
			}
		}
	}
}
