package monitoring

import (
	"context"
	"sync"
	"time"

	"fleetcast/pkg/utils"
)

// Probe is one liveness check against a coordinator dependency.
type Probe struct {
	Name     string
	Check    func(ctx context.Context) error
	Interval time.Duration
	Timeout  time.Duration
}

// HealthStatus is the payload served on the health and readiness
// endpoints.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
}

// HealthChecker runs dependency probes on their own intervals and keeps
// the latest result per probe, so the health endpoint answers from the
// cache instead of hitting Redis on every scrape.
type HealthChecker struct {
	mu      sync.RWMutex
	probes  []Probe
	results map[string]error
	started time.Time
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		results: make(map[string]error),
		started: time.Now(),
	}
}

func (h *HealthChecker) AddProbe(p Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, p)
}

// CheckAll runs every probe right now and reports the combined status.
// Used by the readiness endpoint, where a stale cached answer could keep
// traffic flowing to a dead instance.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	probes := make([]Probe, len(h.probes))
	copy(probes, h.probes)
	h.mu.RUnlock()

	status := h.newStatus()
	for _, p := range probes {
		err := h.runProbe(ctx, p)
		h.record(p.Name, err)
		status.mark(p.Name, err)
	}
	return status
}

// Snapshot reports the cached results from the background probe loops
// without touching any dependency.
func (h *HealthChecker) Snapshot() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := h.newStatus()
	for _, p := range h.probes {
		status.mark(p.Name, h.results[p.Name])
	}
	return status
}

// IsReady reports whether every probe passes right now.
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == "healthy"
}

// StartBackgroundChecks launches one goroutine per probe. They stop when
// ctx is cancelled.
func (h *HealthChecker) StartBackgroundChecks(ctx context.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.probes {
		go h.probeLoop(ctx, p)
	}
}

func (h *HealthChecker) probeLoop(ctx context.Context, p Probe) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	h.record(p.Name, h.runProbe(ctx, p))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.record(p.Name, h.runProbe(ctx, p))
		}
	}
}

func (h *HealthChecker) runProbe(ctx context.Context, p Probe) error {
	probeCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return p.Check(probeCtx)
}

func (h *HealthChecker) record(name string, err error) {
	h.mu.Lock()
	h.results[name] = err
	h.mu.Unlock()
}

func (h *HealthChecker) newStatus() HealthStatus {
	return HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    utils.FormatDuration(time.Since(h.started)),
		Checks:    make(map[string]string),
	}
}

func (s *HealthStatus) mark(name string, err error) {
	if err != nil {
		s.Status = "unhealthy"
		s.Checks[name] = err.Error()
		return
	}
	s.Checks[name] = "healthy"
}
