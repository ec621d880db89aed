package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthChecker_CheckAllReportsFailures(t *testing.T) {
	h := NewHealthChecker()
	h.AddProbe(Probe{
		Name:     "device_store",
		Check:    func(ctx context.Context) error { return nil },
		Interval: time.Minute,
		Timeout:  time.Second,
	})
	h.AddProbe(Probe{
		Name:     "redis",
		Check:    func(ctx context.Context) error { return errors.New("connection refused") },
		Interval: time.Minute,
		Timeout:  time.Second,
	})

	status := h.CheckAll(context.Background())

	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["device_store"])
	assert.Equal(t, "connection refused", status.Checks["redis"])
	assert.NotEmpty(t, status.Uptime)
}

func TestHealthChecker_SnapshotUsesCachedResults(t *testing.T) {
	h := NewHealthChecker()
	calls := 0
	h.AddProbe(Probe{
		Name: "device_store",
		Check: func(ctx context.Context) error {
			calls++
			return nil
		},
		Interval: time.Minute,
		Timeout:  time.Second,
	})

	// No probe has run yet; the snapshot treats missing results as healthy
	// rather than failing a freshly started instance.
	status := h.Snapshot()
	assert.Equal(t, "healthy", status.Status)
	assert.Zero(t, calls)

	h.CheckAll(context.Background())
	assert.Equal(t, 1, calls)

	status = h.Snapshot()
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, 1, calls, "snapshot must not rerun probes")
}

func TestHealthChecker_IsReady(t *testing.T) {
	h := NewHealthChecker()
	healthy := true
	h.AddProbe(Probe{
		Name: "redis",
		Check: func(ctx context.Context) error {
			if !healthy {
				return errors.New("down")
			}
			return nil
		},
		Interval: time.Minute,
		Timeout:  time.Second,
	})

	assert.True(t, h.IsReady(context.Background()))
	healthy = false
	assert.False(t, h.IsReady(context.Background()))
}

func TestHealthChecker_ProbeTimeoutIsEnforced(t *testing.T) {
	h := NewHealthChecker()
	h.AddProbe(Probe{
		Name: "slow",
		Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Interval: time.Minute,
		Timeout:  10 * time.Millisecond,
	})

	done := make(chan HealthStatus, 1)
	go func() { done <- h.CheckAll(context.Background()) }()

	select {
	case status := <-done:
		assert.Equal(t, "unhealthy", status.Status)
	case <-time.After(time.Second):
		t.Fatal("CheckAll did not honor the probe timeout")
	}
}
