// Package localbus provides an in-process event bus. Handlers run
// synchronously in subscription order; an optional forwarder relays
// every event to an external bus as well.
package localbus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"keepsake-backend/application/ports"
	"keepsake-backend/domain/events"
)

// Bus dispatches domain events to subscribed handlers by event type.
// Handler failures are logged and do not stop delivery to the other
// subscribers; delivery is at-least-once, never exactly-once.
type Bus struct {
	mu        sync.RWMutex
	handlers  map[string][]ports.EventHandler
	forwarder ports.EventPublisher
	logger    *zap.Logger
}

// New creates a bus. forwarder may be nil for purely local operation.
func New(forwarder ports.EventPublisher, logger *zap.Logger) *Bus {
	return &Bus{
		handlers:  make(map[string][]ports.EventHandler),
		forwarder: forwarder,
		logger:    logger,
	}
}

var _ ports.EventBus = (*Bus)(nil)

// Subscribe registers a handler for an event type
func (b *Bus) Subscribe(eventType string, handler ports.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish implements ports.EventPublisher
func (b *Bus) Publish(ctx context.Context, evts ...events.DomainEvent) error {
	for _, evt := range evts {
		b.mu.RLock()
		handlers := append([]ports.EventHandler{}, b.handlers[evt.GetEventType()]...)
		b.mu.RUnlock()

		for _, h := range handlers {
			if err := h.HandleEvent(ctx, evt); err != nil {
				b.logger.Error("event handler failed",
					zap.String("event_type", evt.GetEventType()),
					zap.String("aggregate_id", evt.GetAggregateID()),
					zap.Error(err))
			}
		}

		if b.forwarder != nil {
			if err := b.forwarder.Publish(ctx, evt); err != nil {
				b.logger.Warn("event forward failed",
					zap.String("event_type", evt.GetEventType()),
					zap.Error(err))
			}
		}
	}
	return nil
}
