package intelligence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteGenerator calls an external intelligence service over HTTP. The
// request and response bodies are the JSON forms of Request and Response;
// only tokenized text ever reaches the wire.
type RemoteGenerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewRemoteGenerator creates a generator backed by the given endpoint.
// An empty apiKey sends unauthenticated requests. The client carries no
// timeout of its own; the bridge bounds each call through the context.
func NewRemoteGenerator(endpoint, apiKey string) *RemoteGenerator {
	return &RemoteGenerator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
	}
}

// Generate implements Generator.
func (g *RemoteGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode intelligence request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build intelligence request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	start := time.Now()
	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("intelligence request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused; the body is not useful
		// beyond the status line.
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))
		return nil, fmt.Errorf("intelligence service returned status %d", httpResp.StatusCode)
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode intelligence response: %w", err)
	}
	if resp.Intelligence == nil {
		resp.Intelligence = map[string]any{}
	}
	if resp.IntelligenceType == "" {
		resp.IntelligenceType = "external"
	}
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return &resp, nil
}
