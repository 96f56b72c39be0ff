package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"goa.design/completions/provider"
)

type (
	// Request is one prepared completion request: the dialect-built wire
	// body plus the routing metadata transports need.
	Request struct {
		// ID correlates log lines, spans and recordings for one request.
		ID string
		// Config is the resolved model configuration.
		Config ModelConfig
		// Body is the dialect-built JSON payload.
		Body json.RawMessage
		// Stream requests incremental delivery.
		Stream bool
	}

	// Transport delivers a prepared request to a vendor endpoint. Streamed
	// requests invoke deliver with each raw chunk as it arrives and return
	// a nil body; non-streamed requests return the whole response body.
	Transport interface {
		Send(ctx context.Context, req *Request, deliver func([]byte)) (json.RawMessage, error)
	}

	// CompletionError is a vendor transport failure.
	CompletionError struct {
		StatusCode int
		Message    string
	}
)

// Error implements error.
func (e *CompletionError) Error() string {
	return fmt.Sprintf("llm: completion failed with status %d: %s", e.StatusCode, e.Message)
}

// HTTPTransport sends requests over HTTP with SSE streaming.
type HTTPTransport struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, req *Request, deliver func([]byte)) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Config.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	setAuthHeaders(httpReq, req.Config)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, &CompletionError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if !req.Stream {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("llm: read response: %w", err)
		}
		return body, nil
	}

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			deliver(buf[:n])
		}
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("llm: read stream: %w", err)
		}
	}
}

func setAuthHeaders(req *http.Request, cfg ModelConfig) {
	if cfg.APIKey == "" {
		return
	}
	switch cfg.Provider {
	case provider.Anthropic:
		req.Header.Set("x-api-key", cfg.APIKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	default:
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
}

type (
	// CannedResponse is one prepared reply for a CannedTransport. Exactly
	// one of Events, Body or Err should be set.
	CannedResponse struct {
		// Events are streamed event payloads, delivered SSE-framed.
		Events []json.RawMessage
		// Body is a whole non-streamed response body.
		Body json.RawMessage
		// Err is returned instead of a reply, for exercising caller error
		// handling.
		Err error
	}

	// CannedTransport replays prepared responses and records every request
	// it receives, making Generate deterministic without a network. It
	// satisfies the same contract as the real transport.
	CannedTransport struct {
		mu        sync.Mutex
		responses []CannedResponse
		recorded  []*Request
	}
)

// NewCannedTransport prepares a transport that replays responses in order.
func NewCannedTransport(responses ...CannedResponse) *CannedTransport {
	return &CannedTransport{responses: responses}
}

// Recorded returns the requests received so far, in order.
func (t *CannedTransport) Recorded() []*Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Request(nil), t.recorded...)
}

// Send implements Transport.
func (t *CannedTransport) Send(_ context.Context, req *Request, deliver func([]byte)) (json.RawMessage, error) {
	t.mu.Lock()
	t.recorded = append(t.recorded, req)
	if len(t.responses) == 0 {
		t.mu.Unlock()
		return nil, fmt.Errorf("llm: no canned response left for request %s", req.ID)
	}
	resp := t.responses[0]
	t.responses = t.responses[1:]
	t.mu.Unlock()

	if resp.Err != nil {
		return nil, resp.Err
	}
	if req.Stream && deliver != nil {
		for _, ev := range resp.Events {
			deliver([]byte("data: " + string(ev) + "\n"))
		}
		return nil, nil
	}
	return resp.Body, nil
}
