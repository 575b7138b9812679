package httpapi

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthStatus is the /healthz response body, grounded on the teacher's
// infrastructure/middleware.HealthChecker shape.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]string      `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Runtime   map[string]interface{} `json:"runtime"`
}

// HealthChecker runs a set of registered dependency checks (store ping,
// Redis ping) and reports process-level signals via gopsutil.
type HealthChecker struct {
	mu        sync.RWMutex
	version   string
	startTime time.Time
	checks    map[string]func() error
}

// NewHealthChecker constructs a HealthChecker stamped with the running
// binary's version string.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{version: version, startTime: time.Now(), checks: make(map[string]func() error)}
}

// RegisterCheck adds a named dependency check (e.g. "postgres", "redis").
func (h *HealthChecker) RegisterCheck(name string, check func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Handler returns the /healthz HTTP handler.
func (h *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		defer h.mu.RUnlock()

		status := HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.version,
			Uptime:    time.Since(h.startTime).String(),
			Checks:    make(map[string]string),
			Runtime:   runtimeStats(),
		}
		for name, check := range h.checks {
			if err := check(); err != nil {
				status.Status = "unhealthy"
				status.Checks[name] = err.Error()
			} else {
				status.Checks[name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if status.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	}
}

// runtimeStats reports process-level (stdlib runtime) and host-level
// (gopsutil) signals alongside the dependency checks, for operators
// diagnosing goroutine leaks, memory pressure, or noisy-neighbor CPU theft
// on the host running the decision core.
func runtimeStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"alloc_mb":   m.Alloc / 1024 / 1024,
		"num_gc":     m.NumGC,
		"go_version": runtime.Version(),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats["host_mem_used_percent"] = vm.UsedPercent
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		stats["host_cpu_percent"] = pct[0]
	}
	return stats
}
