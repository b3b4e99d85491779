package pool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

// sseTransport posts a request then reads its response from the server's
// SSE stream, correlating by the "id" field the server echoes back. A
// single persistent stream is shared by every call against the connection.
type sseTransport struct {
	cfg    *domain.ServerConfig
	auth   AuthHeaders
	client *http.Client

	mu      sync.Mutex
	pending map[string]chan sseMessage
	nextID  atomic.Uint64
	closeCh chan struct{}
	closed  atomic.Bool
}

type sseMessage struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func newSSETransport(ctx context.Context, cfg *domain.ServerConfig, auth AuthHeaders, timeout time.Duration) (*sseTransport, error) {
	t := &sseTransport{
		cfg:     cfg,
		auth:    auth,
		client:  &http.Client{Timeout: 0}, // streaming response, no overall timeout
		pending: make(map[string]chan sseMessage),
		closeCh: make(chan struct{}),
	}
	if err := t.connectStream(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *sseTransport) connectStream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, t.cfg.Transport.URL, nil)
	if err != nil {
		return fmt.Errorf("build sse stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range t.cfg.Transport.Headers {
		req.Header.Set(k, v)
	}
	if t.auth != nil {
		headers, err := t.auth.AuthHeaders(ctx, t.cfg)
		if err != nil {
			return fmt.Errorf("auth headers: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("open sse stream: %w", err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return fmt.Errorf("sse stream returned status %d", resp.StatusCode)
	}

	go t.readLoop(resp)
	return nil
}

func (t *sseTransport) readLoop(resp *http.Response) {
	defer resp.Body.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-t.closeCh:
			resp.Body.Close()
		case <-done:
		}
	}()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var dataLines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(dataLines) > 0 {
				t.dispatch(strings.Join(dataLines, "\n"))
				dataLines = nil
			}
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	t.mu.Lock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.mu.Unlock()
}

func (t *sseTransport) dispatch(payload string) {
	var msg sseMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return
	}
	t.mu.Lock()
	ch, ok := t.pending[msg.ID]
	if ok {
		delete(t.pending, msg.ID)
	}
	t.mu.Unlock()
	if ok {
		ch <- msg
	}
}

func (t *sseTransport) request(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	id := strconv.FormatUint(t.nextID.Add(1), 10)
	ch := make(chan sseMessage, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	body, err := json.Marshal(struct {
		ID     string         `json:"id"`
		Method string         `json:"method"`
		Params map[string]any `json:"params,omitempty"`
	}{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Transport.URL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if resp, err := t.client.Do(req); err != nil {
		return nil, err
	} else {
		resp.Body.Close()
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("sse stream closed before response for request %s", id)
		}
		if msg.Error != "" {
			return nil, fmt.Errorf("downstream error: %s", msg.Error)
		}
		return msg.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *sseTransport) CallTool(ctx context.Context, toolName string, params map[string]any) ([]byte, error) {
	result, err := t.request(ctx, "tools/call", map[string]any{"name": toolName, "arguments": params})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (t *sseTransport) Ping(ctx context.Context) error {
	_, err := t.request(ctx, "ping", nil)
	return err
}

func (t *sseTransport) ListTools(ctx context.Context) ([]domain.ToolDescriptor, error) {
	result, err := t.request(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("decode tools/list: %w", err)
	}
	out := make([]domain.ToolDescriptor, 0, len(parsed.Tools))
	for _, tl := range parsed.Tools {
		out = append(out, domain.ToolDescriptor{Name: tl.Name, Description: tl.Description, InputSchema: tl.InputSchema})
	}
	return out, nil
}

func (t *sseTransport) Close() error {
	if t.closed.CompareAndSwap(false, true) {
		close(t.closeCh)
	}
	return nil
}
