package daemon

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// PathHealth summarizes one path's counters for the /readiness response.
type PathHealth struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Skipped  uint64 `json:"skipped"`
	Overruns uint64 `json:"overruns"`
}

// HealthStatus is the daemon-wide health snapshot, grounded on the
// teacher's internal/core/health.go HealthStatus shape.
type HealthStatus struct {
	Status     string       `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSecs int64        `json:"uptime_seconds"`
	PathsUp    int          `json:"paths_up"`
	PathsTotal int          `json:"paths_total"`
	Paths      []PathHealth `json:"paths,omitempty"`
}

// HealthCheck returns the current health snapshot of the daemon.
func (d *Daemon) HealthCheck() HealthStatus {
	paths := d.Paths()
	status := HealthStatus{
		Status:     "healthy",
		UptimeSecs: int64(d.Uptime().Seconds()),
		PathsTotal: len(paths),
	}

	if !d.Running() {
		status.Status = "unhealthy"
		return status
	}

	for _, p := range paths {
		ph := PathHealth{Name: p.Name, State: p.State().String(), Skipped: p.Skipped(), Overruns: p.Overruns()}
		status.Paths = append(status.Paths, ph)
		if p.State().String() == "running" {
			status.PathsUp++
		}
	}
	if status.PathsUp < status.PathsTotal {
		status.Status = "degraded"
	}
	return status
}

// LivenessHandler serves /health: 200 if the process is alive.
func (d *Daemon) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": int64(d.Uptime().Seconds()),
	})
}

// ReadinessHandler serves /readiness: a full health snapshot, 503 when
// unhealthy.
func (d *Daemon) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	health := d.HealthCheck()
	code := http.StatusOK
	if health.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}

// StartHealthServer starts the /health and /readiness HTTP endpoints on
// port in a background goroutine; it does not block.
func (d *Daemon) StartHealthServer(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", d.LivenessHandler)
	mux.HandleFunc("/readiness", d.ReadinessHandler)

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting health check server", "addr", addr)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health check server failed", "error", err)
		}
	}()
	return nil
}
