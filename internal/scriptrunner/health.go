package scriptrunner

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Status reports the runner's current health, mirroring
// _examples/e7canasta-orion-care-sensor/References/orion-prototipe/internal/core/health.go's HealthStatus shape
// generalized from worker metrics to loader/player pool sizes.
type Status struct {
	Status        string `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds int64  `json:"uptime_seconds"`
	HasScript     bool   `json:"has_script"`
	LoadersUp     int    `json:"loaders_up"`
	PlayersUp     int    `json:"players_up"`
}

// Health reports the runner's current status. A runner with no script yet
// is "degraded" rather than "unhealthy" - it's alive and waiting, not
// broken.
func (r *Runner) Health() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(r.started).Seconds()),
		HasScript:     r.script != nil,
		LoadersUp:     len(r.loaders),
		PlayersUp:     len(r.players),
	}
	if !r.running {
		st.Status = "unhealthy"
	} else if !st.HasScript {
		st.Status = "degraded"
	}
	return st
}

// LivenessHandler serves /health: 200 if the process can execute this
// code at all.
func (r *Runner) LivenessHandler(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "alive",
		"uptime": int64(time.Since(r.started).Seconds()),
	})
}

// ReadinessHandler serves /readiness: 503 only when the runner isn't
// running at all.
func (r *Runner) ReadinessHandler(w http.ResponseWriter, req *http.Request) {
	st := r.Health()
	w.Header().Set("Content-Type", "application/json")
	code := http.StatusOK
	if st.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(st)
}

// MetricsHandler serves /metrics: a minimal text exposition of pool
// sizes, a placeholder for a future Prometheus exporter the same way
// core.Orion.MetricsHandler stubs one.
func (r *Runner) MetricsHandler(w http.ResponseWriter, req *http.Request) {
	st := r.Health()
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("# pivid runner metrics (placeholder)\n"))
	w.Write([]byte("pivid_loaders_up " + strconv.Itoa(st.LoadersUp) + "\n"))
	w.Write([]byte("pivid_players_up " + strconv.Itoa(st.PlayersUp) + "\n"))
	w.Write([]byte("pivid_uptime_seconds " + strconv.FormatInt(st.UptimeSeconds, 10) + "\n"))
}

// StartHealthServer starts the /health, /readiness, /metrics HTTP server
// on port, returning immediately - the daemon's only network surface, per
// spec.md §1's Non-goal that the core own none.
func (r *Runner) StartHealthServer(port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", r.LivenessHandler)
	mux.HandleFunc("/readiness", r.ReadinessHandler)
	mux.HandleFunc("/metrics", r.MetricsHandler)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("scriptrunner: starting health server", "port", port)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("scriptrunner: health server failed", "error", err)
		}
	}()
	return nil
}
