package ports

import (
	"context"

	"fleetcast/internal/core/domain"
)

// MediaBridge is the external provisioning collaborator. It allocates named
// ingress endpoints that accept a device's outbound media stream and inject
// it into a room. The core never touches media itself.
type MediaBridge interface {
	CreateIngress(ctx context.Context, name string, roomID domain.RoomID, participantIdentity string) (*domain.Ingress, error)
	DeleteIngress(ctx context.Context, ingressID string) error
}

// EventBus carries Device/Room change events to any subscribed presentation
// layer. Publish must not block on slow subscribers.
type EventBus interface {
	Publish(ctx context.Context, event *domain.Event) error
	Subscribe(ctx context.Context) (<-chan *domain.Event, func(), error)
}

// LockManager provides a per-key mutual-exclusion scope. The ingress
// provisioner holds the device's lock across its check-then-create-then-persist
// sequence so a concurrent first registration cannot double-create an
// external resource.
type LockManager interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
