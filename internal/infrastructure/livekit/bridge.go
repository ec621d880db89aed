package livekit

import (
	"context"
	"fmt"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"go.uber.org/zap"
)

// Bridge talks to the media server's ingress API. Each camera gets one
// WHIP ingress; the stream key it returns is what the device publishes
// with over its cell uplink.
type Bridge struct {
	client *lksdk.IngressClient
	logger *zap.SugaredLogger
}

func NewBridge(url, apiKey, apiSecret string, logger *zap.SugaredLogger) *Bridge {
	return &Bridge{
		client: lksdk.NewIngressClient(url, apiKey, apiSecret),
		logger: logger,
	}
}

var _ ports.MediaBridge = (*Bridge)(nil)

func (b *Bridge) CreateIngress(ctx context.Context, name string, roomID domain.RoomID, participantIdentity string) (*domain.Ingress, error) {
	info, err := b.client.CreateIngress(ctx, &livekit.CreateIngressRequest{
		InputType:           livekit.IngressInput_WHIP_INPUT,
		Name:                name,
		RoomName:            string(roomID),
		ParticipantIdentity: participantIdentity,
		ParticipantName:     participantIdentity,
	})
	if err != nil {
		return nil, fmt.Errorf("create ingress %s: %w", name, err)
	}

	b.logger.Infow("created ingress",
		"name", name,
		"room", roomID,
		"ingress_id", info.IngressId,
	)

	return &domain.Ingress{
		IngressID: info.IngressId,
		StreamKey: info.StreamKey,
		BridgeURL: info.Url,
	}, nil
}

func (b *Bridge) DeleteIngress(ctx context.Context, ingressID string) error {
	_, err := b.client.DeleteIngress(ctx, &livekit.DeleteIngressRequest{
		IngressId: ingressID,
	})
	if err != nil {
		return fmt.Errorf("delete ingress %s: %w", ingressID, err)
	}
	b.logger.Infow("deleted ingress", "ingress_id", ingressID)
	return nil
}
