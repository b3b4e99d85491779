package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/arcbridge/toolgate/internal/core/domain"
	"github.com/arcbridge/toolgate/internal/logger"
)

// MaxConsecutiveFailures is how many consecutive health-check failures a
// connection tolerates before the pool logs a distinct disable-style
// warning. It does not close the connection — that stays the breaker's job.
const MaxConsecutiveFailures = 5

// EventPublisher is the narrow seam the pool needs onto the event bus.
type EventPublisher interface {
	Publish(evt domain.Event)
}

// Pool is C3: owns the lifecycle of every downstream transport connection,
// runs per-server health-check tickers, and never auto-reconnects — a
// disconnected server stays disconnected until an explicit Connect call.
type Pool struct {
	auth AuthHeaders
	log  *logger.StyledLogger
	bus  EventPublisher

	mu          sync.RWMutex
	connections map[string]*domain.Connection
	cancelFuncs map[string]context.CancelFunc

	// dialGroup coalesces concurrent Connect calls for the same serverId into
	// a single in-flight dial: every caller waiting on the same key gets the
	// one dialer's result instead of each spawning its own transport.
	dialGroup singleflight.Group
}

func New(auth AuthHeaders, log *logger.StyledLogger, bus EventPublisher) *Pool {
	return &Pool{
		auth:        auth,
		log:         log,
		bus:         bus,
		connections: make(map[string]*domain.Connection),
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

func (p *Pool) emit(evt domain.Event) {
	if p.bus == nil {
		return
	}
	evt.Timestamp = time.Now()
	p.bus.Publish(evt)
}

// Connect dials cfg.ID's transport, moving its status through
// connecting/connected/error and publishing the connected and error
// transitions on the bus. Concurrent Connect calls for the same serverId
// are coalesced through dialGroup: only the first caller actually dials,
// every other caller waiting on the same key blocks until it returns and
// shares that one result, so a server never ends up with two live
// transports (and two leaked processes, for stdio) from a race.
func (p *Pool) Connect(ctx context.Context, cfg *domain.ServerConfig) error {
	_, err, _ := p.dialGroup.Do(cfg.ID, func() (any, error) {
		p.mu.Lock()
		p.connections[cfg.ID] = &domain.Connection{ServerID: cfg.ID, Status: domain.StatusConnecting}
		p.mu.Unlock()

		client, dialErr := p.dial(ctx, cfg)
		if dialErr != nil {
			p.mu.Lock()
			p.connections[cfg.ID] = &domain.Connection{ServerID: cfg.ID, Status: domain.StatusError, Error: dialErr}
			p.mu.Unlock()
			p.emit(domain.Event{Type: domain.EventServerError, ServerID: cfg.ID, Data: map[string]any{"error": dialErr.Error()}})
			return nil, fmt.Errorf("connect to %q: %w", cfg.Name, dialErr)
		}

		p.mu.Lock()
		p.connections[cfg.ID] = &domain.Connection{ServerID: cfg.ID, Status: domain.StatusConnected, Client: client}
		p.mu.Unlock()

		if p.log != nil {
			p.log.InfoWithServer("connected to tool server", cfg.Name)
		}
		p.emit(domain.Event{Type: domain.EventServerConnected, ServerID: cfg.ID})

		if cfg.HealthCheck.Enabled {
			p.startHealthCheck(cfg, client)
		}
		return nil, nil
	})
	return err
}

func (p *Pool) dial(ctx context.Context, cfg *domain.ServerConfig) (domain.TransportClient, error) {
	switch cfg.Transport.Kind {
	case domain.TransportHTTP:
		timeout := time.Duration(cfg.HealthCheck.TimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		t := newHTTPTransport(cfg, p.auth, timeout)
		if err := t.Ping(ctx); err != nil {
			return nil, fmt.Errorf("http handshake: %w", err)
		}
		return t, nil
	case domain.TransportSSE:
		return newSSETransport(ctx, cfg, p.auth, 0)
	case domain.TransportStdio:
		return newStdioTransport(cfg)
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
}

func (p *Pool) startHealthCheck(cfg *domain.ServerConfig, client domain.TransportClient) {
	interval := time.Duration(cfg.HealthCheck.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := time.Duration(cfg.HealthCheck.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancelFuncs[cfg.ID] = cancel
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.pingOnce(ctx, cfg, client, timeout)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *Pool) pingOnce(ctx context.Context, cfg *domain.ServerConfig, client domain.TransportClient, timeout time.Duration) {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	now := time.Now()
	err := client.Ping(pingCtx)

	p.mu.Lock()
	defer p.mu.Unlock()
	conn, ok := p.connections[cfg.ID]
	if !ok {
		return
	}
	conn.LastHealthCheck = &now
	if err != nil {
		conn.Status = domain.StatusError
		conn.Error = err
		conn.ConsecutiveFailures++
		if p.log != nil {
			p.log.WarnWithServer("health check failed", cfg.Name, "error", err, "consecutive_failures", conn.ConsecutiveFailures)
		}
		if conn.ConsecutiveFailures == MaxConsecutiveFailures {
			if p.log != nil {
				p.log.WarnWithServer("health check failing repeatedly, connection is unhealthy", cfg.Name, "consecutive_failures", conn.ConsecutiveFailures)
			}
			p.emit(domain.Event{Type: domain.EventServerError, ServerID: cfg.ID, Data: map[string]any{"consecutiveFailures": conn.ConsecutiveFailures}})
		}
		return
	}
	wasUnhealthy := conn.Status != domain.StatusConnected
	conn.Status = domain.StatusConnected
	conn.Error = nil
	conn.ConsecutiveFailures = 0
	if wasUnhealthy {
		p.emit(domain.Event{Type: domain.EventServerConnected, ServerID: cfg.ID})
	}
}

func (p *Pool) Disconnect(serverID string) error {
	p.mu.Lock()
	conn, ok := p.connections[serverID]
	if cancel, hasTicker := p.cancelFuncs[serverID]; hasTicker {
		cancel()
		delete(p.cancelFuncs, serverID)
	}
	delete(p.connections, serverID)
	p.mu.Unlock()

	if ok {
		p.emit(domain.Event{Type: domain.EventServerDisconnected, ServerID: serverID})
	}
	if !ok || conn.Client == nil {
		return nil
	}
	return conn.Client.Close()
}

func (p *Pool) GetClient(serverID string) (domain.TransportClient, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.connections[serverID]
	if !ok || conn.Status != domain.StatusConnected {
		return nil, false
	}
	return conn.Client, true
}

func (p *Pool) GetConnectionStatus(serverID string) (domain.ConnectionStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.connections[serverID]
	if !ok {
		return "", false
	}
	return conn.Status, true
}

func (p *Pool) GetAllConnections() []*domain.Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*domain.Connection, 0, len(p.connections))
	for _, conn := range p.connections {
		out = append(out, conn)
	}
	return out
}

// Close tears down every connection, per the shutdown handler's "close
// connections" step.
func (p *Pool) Close() error {
	p.mu.Lock()
	ids := make([]string, 0, len(p.connections))
	for id := range p.connections {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := p.Disconnect(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
