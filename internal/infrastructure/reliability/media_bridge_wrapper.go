package reliability

import (
	"context"
	"errors"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"
	"fleetcast/pkg/circuitbreaker"
	"fleetcast/pkg/retry"

	"go.uber.org/zap"
)

// MediaBridgeWrapper wraps a MediaBridge with retry logic and a circuit
// breaker. The bridge sits across a WAN link to the media server, so
// transient failures are expected and a dead server must not stall every
// registration behind its timeout.
type MediaBridgeWrapper struct {
	bridge ports.MediaBridge
	logger *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewMediaBridgeWrapper(
	bridge ports.MediaBridge,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *MediaBridgeWrapper {
	wrapper := &MediaBridgeWrapper{
		bridge:         bridge,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
	}

	wrapper.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("media bridge circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

var _ ports.MediaBridge = (*MediaBridgeWrapper)(nil)

func (w *MediaBridgeWrapper) CreateIngress(ctx context.Context, name string, roomID domain.RoomID, participantIdentity string) (*domain.Ingress, error) {
	if !w.retryConfig.Enabled {
		return w.bridge.CreateIngress(ctx, name, roomID, participantIdentity)
	}

	return retry.RetryWithResult(ctx, w.retryConfig, func() (*domain.Ingress, error) {
		ingress, err := circuitbreaker.Do(ctx, w.circuitBreaker, func() (*domain.Ingress, error) {
			return w.bridge.CreateIngress(ctx, name, roomID, participantIdentity)
		})
		if errors.Is(err, circuitbreaker.ErrOpen) {
			// Retrying against an open breaker only burns the backoff budget.
			return nil, retry.Permanent(err)
		}
		return ingress, err
	})
}

func (w *MediaBridgeWrapper) DeleteIngress(ctx context.Context, ingressID string) error {
	if !w.retryConfig.Enabled {
		return w.bridge.DeleteIngress(ctx, ingressID)
	}

	return retry.Retry(ctx, w.retryConfig, func() error {
		err := w.circuitBreaker.Execute(ctx, func() error {
			return w.bridge.DeleteIngress(ctx, ingressID)
		})
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return retry.Permanent(err)
		}
		return err
	})
}
