// Package transport performs the single outbound HTTP POST the delivery
// worker, replay engine, and reconciliation redrive all funnel through.
// Generalizes the teacher's pkg/webhook.Sender.attemptDelivery: same
// timing/error capture shape, but the caller owns retries, signing, and
// circuit breaking (spec.md §4.G already owns that decision tree).
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxCapturedBody caps the stored response body (spec.md §4.G step 4).
const maxCapturedBody = 1024

// Request describes one delivery attempt.
type Request struct {
	URL           string
	Payload       []byte // raw stored bytes, never re-marshaled
	EventID       string
	IntegrationID string
	Timestamp     time.Time
	RetryCount    int  // 0 on first attempt, omitted from headers
	Replay        bool // set for replay-engine-originated attempts
	Timeout       time.Duration
}

// Response is what the worker needs to classify and persist the attempt.
type Response struct {
	StatusCode   int
	Body         string // truncated to maxCapturedBody bytes
	ResponseTime time.Duration
	RetryAfter   string
	TransportErr string // lower-cased transport-level error message, empty on a completed round trip
}

// Transport executes outbound webhook deliveries over a shared HTTP client.
type Transport struct {
	client *http.Client
}

// New builds a Transport with connection pooling tuned for many small
// endpoints, matching the teacher's NewSender defaults.
func New() *Transport {
	return &Transport{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// NewWithClient lets callers supply a custom *http.Client (tests, proxies).
func NewWithClient(client *http.Client) *Transport {
	if client == nil {
		return New()
	}
	return &Transport{client: client}
}

// Deliver POSTs the payload with the required HookWise headers and an
// explicit per-request deadline (spec.md §4.G step 3-4).
func (t *Transport) Deliver(ctx context.Context, req Request) Response {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, req.URL, bytes.NewReader(req.Payload))
	if err != nil {
		return Response{ResponseTime: time.Since(start), TransportErr: strings.ToLower(err.Error())}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-HookWise-Event-ID", req.EventID)
	httpReq.Header.Set("X-HookWise-Timestamp", req.Timestamp.UTC().Format(time.RFC3339))
	httpReq.Header.Set("X-HookWise-Integration-ID", req.IntegrationID)
	if req.RetryCount > 0 {
		httpReq.Header.Set("X-HookWise-Retry-Count", fmt.Sprintf("%d", req.RetryCount))
	}
	if req.Replay {
		httpReq.Header.Set("X-HookWise-Replay", "true")
	}

	resp, err := t.client.Do(httpReq)
	responseTime := time.Since(start)
	if err != nil {
		return Response{ResponseTime: responseTime, TransportErr: strings.ToLower(err.Error())}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxCapturedBody))

	return Response{
		StatusCode:   resp.StatusCode,
		Body:         string(body),
		ResponseTime: responseTime,
		RetryAfter:   resp.Header.Get("Retry-After"),
	}
}
