package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseSize = 5 * 1024 * 1024 // 5MB

// ForwardRequest is the input to the HTTP forwarder. The original
// request body is passed through unmodified; proof-of-payment travels
// as request attributes, not yet settled on-chain.
type ForwardRequest struct {
	Endpoint  string
	Body      map[string]interface{}
	Payer     string
	Amount    string
	AttemptID string
	Timeout   time.Duration
}

// ForwardResponse is the HTTP forwarding result.
type ForwardResponse struct {
	StatusCode int
	Body       map[string]interface{}
	LatencyMs  int64
}

// Forwarder performs the single EXECUTE call to a downstream service.
type Forwarder struct {
	client *http.Client
}

// NewForwarder creates a new HTTP forwarder. Per-call timeouts come
// from ForwardRequest.Timeout, not the shared client.
func NewForwarder() *Forwarder {
	return &Forwarder{client: &http.Client{}}
}

// Forward sends a POST request to the service endpoint.
// A nil response means the service was never reached (transport
// failure or timeout); a non-nil response with an error means the
// service answered with a failure status.
func (f *Forwarder) Forward(ctx context.Context, req ForwardRequest) (*ForwardResponse, error) {
	body, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Payment-Amount", req.Amount)
	httpReq.Header.Set("X-Payment-From", req.Payer)
	httpReq.Header.Set("X-Payment-Reference", req.AttemptID)

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseSize)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed map[string]interface{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			// If not JSON, wrap raw body
			parsed = map[string]interface{}{
				"raw": string(respBody),
			}
		}
	}

	fwdResp := &ForwardResponse{
		StatusCode: resp.StatusCode,
		Body:       parsed,
		LatencyMs:  latency,
	}

	// Non-2xx means the service answered and declined; the caller maps
	// this to a void, never to a settlement.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fwdResp, fmt.Errorf("service returned HTTP %d", resp.StatusCode)
	}

	return fwdResp, nil
}
