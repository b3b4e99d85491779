package events

import (
	"context"
	"testing"
	"time"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

func TestBusDeliversPublishedEventToSubscriber(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, cleanup := bus.Subscribe(ctx)
	defer cleanup()

	bus.Publish(domain.Event{Type: domain.EventCircuitOpened, ServerID: "srv-1"})

	select {
	case evt := <-ch:
		if evt.Type != domain.EventCircuitOpened || evt.ServerID != "srv-1" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestBusCleanupStopsFurtherDelivery(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	ctx := context.Background()
	ch, cleanup := bus.Subscribe(ctx)
	cleanup()

	bus.Publish(domain.Event{Type: domain.EventToolInvoked})

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected no delivery after cleanup")
		}
	case <-time.After(100 * time.Millisecond):
	}
}
