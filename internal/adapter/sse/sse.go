// Package sse implements C10: the filtered Server-Sent Events stream of
// gateway lifecycle events, fanned out from the C8 event bus.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/arcbridge/toolgate/internal/core/domain"
	"github.com/arcbridge/toolgate/internal/core/ports"
)

type Handler struct {
	bus           ports.EventBus
	keepalive     time.Duration
	activeClients atomic.Int64
}

func New(bus ports.EventBus, keepalive time.Duration) *Handler {
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	return &Handler{bus: bus, keepalive: keepalive}
}

func (h *Handler) ActiveClients() int64 { return h.activeClients.Load() }

// ServeHTTP implements the /sse/events?types=&servers= contract: a
// connected control event, then every matching bus event forwarded as
// "event: <type>\ndata: <json>\nid: <type>-<ms>", with periodic keepalives.
func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	types := splitFilter(req.URL.Query().Get("types"))
	servers := splitFilter(req.URL.Query().Get("servers"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	h.activeClients.Add(1)
	defer h.activeClients.Add(-1)

	writeConnected(w, flusher, types, servers)

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	events, unsubscribe := h.bus.Subscribe(ctx)
	defer unsubscribe()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, "event: keepalive\ndata: {}\n\n")
			flusher.Flush()
		case evt, ok := <-events:
			if !ok {
				return
			}
			if !matchesFilter(evt, types, servers) {
				continue
			}
			writeEvent(w, evt)
			flusher.Flush()
		}
	}
}

func splitFilter(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func matchesFilter(evt domain.Event, types, servers []string) bool {
	if len(types) > 0 && !contains(types, string(evt.Type)) {
		return false
	}
	if len(servers) > 0 && evt.ServerID != "" && !contains(servers, evt.ServerID) {
		return false
	}
	return true
}

func writeConnected(w http.ResponseWriter, flusher http.Flusher, types, servers []string) {
	payload, _ := json.Marshal(map[string]any{"types": types, "servers": servers})
	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", payload)
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, evt domain.Event) {
	payload, err := json.Marshal(eventWithoutType(evt))
	if err != nil {
		return
	}
	id := fmt.Sprintf("%s-%d", evt.Type, evt.Timestamp.UnixMilli())
	fmt.Fprintf(w, "event: %s\ndata: %s\nid: %s\n\n", evt.Type, payload, id)
}

func eventWithoutType(evt domain.Event) map[string]any {
	out := make(map[string]any, len(evt.Data)+1)
	for k, v := range evt.Data {
		out[k] = v
	}
	if evt.ServerID != "" {
		out["serverId"] = evt.ServerID
	}
	return out
}
