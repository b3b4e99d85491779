package pool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

// stdioTransport speaks line-delimited JSON-RPC over a child process's
// stdin/stdout, one request per line, one response per line.
type stdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	mu     sync.Mutex
	nextID atomic.Uint64

	pendingMu sync.Mutex
	pending   map[string]chan stdioMessage
}

type stdioMessage struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func newStdioTransport(cfg *domain.ServerConfig) (*stdioTransport, error) {
	cmd := exec.Command(cfg.Transport.Command, cfg.Transport.Args...)
	for k, v := range cfg.Transport.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", cfg.Transport.Command, err)
	}

	t := &stdioTransport{cmd: cmd, stdin: stdin, pending: make(map[string]chan stdioMessage)}
	go t.readLoop(stdout)
	return t, nil
}

func (t *stdioTransport) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		var msg stdioMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		t.pendingMu.Lock()
		ch, ok := t.pending[msg.ID]
		if ok {
			delete(t.pending, msg.ID)
		}
		t.pendingMu.Unlock()
		if ok {
			ch <- msg
		}
	}
	t.pendingMu.Lock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.pendingMu.Unlock()
}

func (t *stdioTransport) request(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	id := strconv.FormatUint(t.nextID.Add(1), 10)
	ch := make(chan stdioMessage, 1)
	t.pendingMu.Lock()
	t.pending[id] = ch
	t.pendingMu.Unlock()

	body, err := json.Marshal(struct {
		ID     string         `json:"id"`
		Method string         `json:"method"`
		Params map[string]any `json:"params,omitempty"`
	}{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	t.mu.Lock()
	_, writeErr := t.stdin.Write(append(body, '\n'))
	t.mu.Unlock()
	if writeErr != nil {
		return nil, fmt.Errorf("write to child process: %w", writeErr)
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("child process closed stdout before response for request %s", id)
		}
		if msg.Error != "" {
			return nil, fmt.Errorf("downstream error: %s", msg.Error)
		}
		return msg.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *stdioTransport) CallTool(ctx context.Context, toolName string, params map[string]any) ([]byte, error) {
	result, err := t.request(ctx, "tools/call", map[string]any{"name": toolName, "arguments": params})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (t *stdioTransport) Ping(ctx context.Context) error {
	_, err := t.request(ctx, "ping", nil)
	return err
}

func (t *stdioTransport) ListTools(ctx context.Context) ([]domain.ToolDescriptor, error) {
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

func (t *stdioTransport) Close() error {
	_ = t.stdin.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	return t.cmd.Wait()
}
