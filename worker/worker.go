// Package worker implements the delivery worker: the queue.Handler for
// webhook/received and webhook/retry that gates on the circuit breaker,
// invokes the outbound transport, classifies the outcome, and schedules
// the single permitted retry (spec.md §4.G).
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hookwise/core/breaker"
	"github.com/hookwise/core/pkg/queue"
	"github.com/hookwise/core/pkg/ratelimit"
	"github.com/hookwise/core/store"
	"github.com/hookwise/core/tasks"
	"github.com/hookwise/core/transport"
)

const (
	defaultTimeout = 5 * time.Second
	timeoutRetry   = 10 * time.Second
	halfOpenSleep  = time.Second
)

// Worker is the shared delivery logic behind both the webhook/received
// and webhook/retry queue.Handler implementations.
type Worker struct {
	events       store.EventStore
	integrations store.IntegrationStore
	endpoints    store.EndpointStore
	deliveries   store.DeliveryStore
	breaker      *breaker.Breaker
	transport    *transport.Transport
	enqueuer     *queue.Enqueuer
	halfOpen     ratelimit.Limiter
	logger       *slog.Logger
}

// New builds a Worker. halfOpen gates HALF_OPEN-state deliveries to ≤ 1/s
// per endpoint (spec.md §4.C); callers typically back it with
// ratelimit.NewTokenBucket over a per-endpoint key.
func New(
	events store.EventStore,
	integrations store.IntegrationStore,
	endpoints store.EndpointStore,
	deliveries store.DeliveryStore,
	b *breaker.Breaker,
	tr *transport.Transport,
	enqueuer *queue.Enqueuer,
	halfOpen ratelimit.Limiter,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		events:       events,
		integrations: integrations,
		endpoints:    endpoints,
		deliveries:   deliveries,
		breaker:      b,
		transport:    tr,
		enqueuer:     enqueuer,
		halfOpen:     halfOpen,
		logger:       logger,
	}
}

// ReceivedHandler returns the queue.Handler for webhook/received, the
// initial attempt at delivery (attempt = 1).
func (w *Worker) ReceivedHandler() queue.Handler {
	return receivedHandler{w: w}
}

// RetryHandler returns the queue.Handler for webhook/retry, the single
// permitted re-attempt spec.md §4.G step 7 schedules.
func (w *Worker) RetryHandler() queue.Handler {
	return retryHandler{w: w}
}

type receivedHandler struct{ w *Worker }

func (receivedHandler) Name() string { return tasks.WebhookReceived }

func (h receivedHandler) Handle(ctx context.Context, payload json.RawMessage) error {
	var p tasks.WebhookReceivedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("worker: unmarshal %s payload: %w", tasks.WebhookReceived, err)
	}
	return h.w.deliver(ctx, p.EventID, p.IntegrationID, p.DestinationURL, 1, defaultTimeout, true)
}

type retryHandler struct{ w *Worker }

func (retryHandler) Name() string { return tasks.WebhookRetry }

func (h retryHandler) Handle(ctx context.Context, payload json.RawMessage) error {
	var p tasks.WebhookRetryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("worker: unmarshal %s payload: %w", tasks.WebhookRetry, err)
	}
	timeout := time.Duration(p.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	// webhook/retry is re-entrant into steps 3-6 but never fans out another
	// retry (one retry maximum per bucket, spec.md §4.G).
	return h.w.deliver(ctx, p.EventID, p.IntegrationID, p.DestinationURL, p.AttemptNumber, timeout, false)
}

