package events

import (
	"context"
	"sync"
	"time"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"

	"go.uber.org/zap"
)

const subscriberBuffer = 64

// MemoryBus fans change events out to in-process subscribers. Slow
// subscribers lose events rather than blocking publishers.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[int]chan *domain.Event
	nextID int
	logger *zap.SugaredLogger
}

func NewMemoryBus(logger *zap.SugaredLogger) ports.EventBus {
	return &MemoryBus{
		subs:   make(map[int]chan *domain.Event),
		logger: logger,
	}
}

func (b *MemoryBus) Publish(ctx context.Context, event *domain.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			if b.logger != nil {
				b.logger.Warnw("dropping event for slow subscriber",
					"subscriber", id,
					"type", event.Type,
				)
			}
		}
	}

	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan *domain.Event, func(), error) {
	ch := make(chan *domain.Event, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, cancel, nil
}
