package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleetcast/internal/core/domain"
	"fleetcast/pkg/circuitbreaker"
	"fleetcast/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type mockBridge struct {
	mock.Mock
}

func (m *mockBridge) CreateIngress(ctx context.Context, name string, roomID domain.RoomID, participantIdentity string) (*domain.Ingress, error) {
	args := m.Called(ctx, name, roomID, participantIdentity)
	if ingress := args.Get(0); ingress != nil {
		return ingress.(*domain.Ingress), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBridge) DeleteIngress(ctx context.Context, ingressID string) error {
	return m.Called(ctx, ingressID).Error(0)
}

func newTestWrapper(bridge *mockBridge, cbFailures int) *MediaBridgeWrapper {
	return NewMediaBridgeWrapper(
		bridge,
		retry.Config{
			Enabled:      true,
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2.0,
		},
		circuitbreaker.Config{
			FailureThreshold:    cbFailures,
			SuccessThreshold:    1,
			Timeout:             time.Minute,
			MaxRequestsHalfOpen: 1,
		},
		zap.NewNop().Sugar(),
	)
}

func TestMediaBridgeWrapper_RetriesTransientFailure(t *testing.T) {
	bridge := new(mockBridge)
	wrapper := newTestWrapper(bridge, 10)

	want := &domain.Ingress{IngressID: "ing-1", BridgeURL: "rtmp://bridge/live"}
	bridge.On("CreateIngress", mock.Anything, "YRAT01-ingress", domain.RoomID("room-1"), "YRAT01").
		Return(nil, errors.New("timeout")).Once()
	bridge.On("CreateIngress", mock.Anything, "YRAT01-ingress", domain.RoomID("room-1"), "YRAT01").
		Return(want, nil).Once()

	got, err := wrapper.CreateIngress(context.Background(), "YRAT01-ingress", "room-1", "YRAT01")

	assert.NoError(t, err)
	assert.Equal(t, want, got)
	bridge.AssertNumberOfCalls(t, "CreateIngress", 2)
}

func TestMediaBridgeWrapper_OpenBreakerStopsRetrying(t *testing.T) {
	bridge := new(mockBridge)
	wrapper := newTestWrapper(bridge, 1)

	bridge.On("DeleteIngress", mock.Anything, "ing-1").Return(errors.New("timeout"))

	// First call fails and trips the breaker after one failure.
	err := wrapper.DeleteIngress(context.Background(), "ing-1")
	assert.Error(t, err)

	calls := len(bridge.Calls)

	// With the breaker open the wrapper must give up immediately instead
	// of burning the whole retry schedule against it.
	err = wrapper.DeleteIngress(context.Background(), "ing-1")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, calls, len(bridge.Calls), "open breaker must not reach the bridge")
}

func TestMediaBridgeWrapper_RetryDisabledPassesThrough(t *testing.T) {
	bridge := new(mockBridge)
	wrapper := NewMediaBridgeWrapper(
		bridge,
		retry.Config{Enabled: false},
		circuitbreaker.DefaultConfig(),
		zap.NewNop().Sugar(),
	)

	bridge.On("DeleteIngress", mock.Anything, "ing-2").Return(nil).Once()

	assert.NoError(t, wrapper.DeleteIngress(context.Background(), "ing-2"))
	bridge.AssertExpectations(t)
}
