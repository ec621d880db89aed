package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventChannel = "fleetcast:events"

// RedisBus distributes change events across server instances over redis
// pub/sub, so every operator console sees mutations regardless of which
// instance applied them.
type RedisBus struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

func NewRedisBus(client *redis.Client, logger *zap.SugaredLogger) ports.EventBus {
	return &RedisBus{
		client: client,
		logger: logger,
	}
}

func (b *RedisBus) Publish(ctx context.Context, event *domain.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, eventChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if b.logger != nil {
		b.logger.Debugw("published event",
			"type", event.Type,
			"device_id", event.DeviceID,
			"room_id", event.RoomID,
		)
	}

	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan *domain.Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, eventChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan *domain.Event, subscriberBuffer)
	done := make(chan struct{})

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					if b.logger != nil {
						b.logger.Warnw("failed to unmarshal event",
							"error", err,
							"payload", msg.Payload,
						)
					}
					continue
				}
				select {
				case out <- &event:
				case <-done:
					return
				}
			}
		}
	}()

	cancel := func() {
		close(done)
		pubsub.Close()
	}

	return out, cancel, nil
}
