// Package events wires the gateway's domain.Event envelope onto the generic
// lock-free pub/sub primitive, giving C8 a concrete, non-blocking bus shared
// by SSE fan-out and webhook dispatch.
package events

import (
	"context"

	"github.com/arcbridge/toolgate/internal/core/domain"
	"github.com/arcbridge/toolgate/pkg/eventbus"
)

// Bus implements ports.EventBus and breaker.EventPublisher.
type Bus struct {
	inner *eventbus.EventBus[domain.Event]
}

func New() *Bus {
	return &Bus{inner: eventbus.New[domain.Event]()}
}

func NewWithConfig(cfg eventbus.EventBusConfig) *Bus {
	return &Bus{inner: eventbus.NewWithConfig[domain.Event](cfg)}
}

// Publish fans the event out to every live subscriber without blocking the
// caller; slow subscribers drop events rather than stall the dataplane.
func (b *Bus) Publish(evt domain.Event) {
	b.inner.PublishAsync(evt)
}

func (b *Bus) Subscribe(ctx context.Context) (<-chan domain.Event, func()) {
	return b.inner.Subscribe(ctx)
}

func (b *Bus) Stats() eventbus.EventBusStats {
	return b.inner.Stats()
}

func (b *Bus) Shutdown() {
	b.inner.Shutdown()
}
