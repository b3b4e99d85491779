// Package pool implements C3: transport lifecycle management (connect,
// health-check, disconnect) for stdio, SSE and plain-HTTP tool servers.
package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

// AuthHeaders is the narrow slice of ports.TokenCache the transports need.
type AuthHeaders interface {
	AuthHeaders(ctx context.Context, cfg *domain.ServerConfig) (map[string]string, error)
}

type rpcRequest struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Message string `json:"message"`
}

// httpTransport speaks a minimal JSON-RPC-over-HTTP protocol: one POST per
// call, method name selects the operation.
type httpTransport struct {
	cfg    *domain.ServerConfig
	auth   AuthHeaders
	client *http.Client
}

func newHTTPTransport(cfg *domain.ServerConfig, auth AuthHeaders, timeout time.Duration) *httpTransport {
	return &httpTransport{cfg: cfg, auth: auth, client: &http.Client{Timeout: timeout}}
}

func (t *httpTransport) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Transport.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.cfg.Transport.Headers {
		req.Header.Set(k, v)
	}
	if t.auth != nil {
		headers, err := t.auth.AuthHeaders(ctx, t.cfg)
		if err != nil {
			return nil, fmt.Errorf("auth headers: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("downstream returned status %d: %s", resp.StatusCode, raw)
	}

	var rpc rpcResponse
	if err := json.Unmarshal(raw, &rpc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpc.Error != nil {
		return nil, fmt.Errorf("downstream error: %s", rpc.Error.Message)
	}
	return rpc.Result, nil
}

func (t *httpTransport) CallTool(ctx context.Context, toolName string, params map[string]any) ([]byte, error) {
	result, err := t.call(ctx, "tools/call", map[string]any{"name": toolName, "arguments": params})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (t *httpTransport) Ping(ctx context.Context) error {
	_, err := t.call(ctx, "ping", nil)
	return err
}

func (t *httpTransport) ListTools(ctx context.Context) ([]domain.ToolDescriptor, error) {
	result, err := t.call(ctx, "tools/list", nil)
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

func (t *httpTransport) Close() error { return nil }
