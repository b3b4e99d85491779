package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

type fakeBus struct {
	ch chan domain.Event
}

func newFakeBus() *fakeBus { return &fakeBus{ch: make(chan domain.Event, 10)} }

func (f *fakeBus) Publish(evt domain.Event) { f.ch <- evt }
func (f *fakeBus) Subscribe(ctx context.Context) (<-chan domain.Event, func()) {
	return f.ch, func() {}
}

func TestSSEStreamForwardsMatchingEvent(t *testing.T) {
	bus := newFakeBus()
	h := New(bus, time.Hour)
	server := httptest.NewServer(h)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/sse/events?types=circuit.opened", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	bus.Publish(domain.Event{Type: domain.EventCircuitOpened, ServerID: "srv-1", Timestamp: time.Now()})

	reader := bufio.NewReader(resp.Body)
	var sawConnected, sawEvent bool
	for i := 0; i < 10; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if strings.Contains(line, "event: connected") {
			sawConnected = true
		}
		if strings.Contains(line, "event: circuit.opened") {
			sawEvent = true
			break
		}
	}
	if !sawConnected {
		t.Fatalf("expected a connected control event")
	}
	if !sawEvent {
		t.Fatalf("expected the published event to be forwarded")
	}
}

func TestMatchesFilterByTypeAndServer(t *testing.T) {
	evt := domain.Event{Type: domain.EventCircuitOpened, ServerID: "srv-1"}
	if !matchesFilter(evt, nil, nil) {
		t.Fatalf("expected no filter to match everything")
	}
	if !matchesFilter(evt, []string{"circuit.opened"}, nil) {
		t.Fatalf("expected type match")
	}
	if matchesFilter(evt, []string{"tool.invoked"}, nil) {
		t.Fatalf("expected type mismatch to be filtered out")
	}
	if matchesFilter(evt, nil, []string{"srv-2"}) {
		t.Fatalf("expected server mismatch to be filtered out")
	}
}
