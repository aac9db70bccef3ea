package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hookwise/core/classify"
	"github.com/hookwise/core/correlate"
	"github.com/hookwise/core/pkg/queue"
	"github.com/hookwise/core/store"
	"github.com/hookwise/core/tasks"
	"github.com/hookwise/core/transport"
)

// deliver implements spec.md §4.G steps 1-8. fanOut is false for
// webhook/retry re-entry, which may never schedule a second retry.
func (w *Worker) deliver(ctx context.Context, eventID, integrationID uuid.UUID, destinationURL string, attempt int, timeout time.Duration, fanOut bool) error {
	event, err := w.events.Get(ctx, eventID)
	if err != nil {
		return fmt.Errorf("worker: load event %s: %w", eventID, err)
	}

	integration, err := w.integrations.GetIntegration(ctx, integrationID)
	if err != nil {
		return fmt.Errorf("worker: load integration %s: %w", integrationID, err)
	}

	endpoint, err := w.endpoints.GetByIntegrationID(ctx, integrationID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("worker: load endpoint for integration %s: %w", integrationID, err)
		}
		endpoint = nil
	}

	var correlationKey *string
	if key := correlationKeyFor(integration.Provider, event.Payload); key != "" {
		correlationKey = &key
	}

	if endpoint != nil {
		switch endpoint.CircuitState {
		case store.CircuitOpen:
			if _, rerr := w.breaker.EnqueueForReplay(ctx, endpoint.ID, eventID, correlationKey); rerr != nil {
				return fmt.Errorf("worker: enqueue replay for endpoint %s: %w", endpoint.ID, rerr)
			}
			return nil
		case store.CircuitHalfOpen:
			if w.halfOpen != nil {
				if res, aerr := w.halfOpen.Allow(ctx, endpoint.ID.String()); aerr == nil && !res.Allowed {
					time.Sleep(res.RetryAfter())
				}
			}
			time.Sleep(halfOpenSleep)
		}
	}

	resp := w.transport.Deliver(ctx, transport.Request{
		URL:           destinationURL,
		Payload:       event.Payload,
		EventID:       eventID.String(),
		IntegrationID: integrationID.String(),
		Timestamp:     time.Now(),
		RetryCount:    attempt - 1,
		Timeout:       timeout,
	})

	outcome := classify.Classify(resp.StatusCode, resp.TransportErr, resp.RetryAfter)
	success := resp.StatusCode >= 200 && resp.StatusCode < 300 && resp.TransportErr == ""

	delivery := &store.Delivery{
		ID:              uuid.New(),
		EventID:         eventID,
		Status:          deliveryStatus(success),
		ResponseBody:    resp.Body,
		AttemptNumber:   attempt,
		AttemptedAt:     time.Now(),
	}
	if endpoint != nil {
		delivery.EndpointID = &endpoint.ID
	}
	if resp.StatusCode != 0 {
		sc := resp.StatusCode
		delivery.StatusCode = &sc
	}
	ms := int(resp.ResponseTime.Milliseconds())
	delivery.ResponseTimeMs = &ms
	if !success {
		et := outcome.ErrorType
		delivery.ErrorType = &et
	}

	if err := w.deliveries.Insert(ctx, delivery); err != nil {
		return fmt.Errorf("worker: insert delivery for event %s: %w", eventID, err)
	}

	if endpoint != nil {
		prev, next, berr := w.breaker.RecordDelivery(ctx, endpoint.ID, success, resp.ResponseTime)
		if berr != nil {
			return fmt.Errorf("worker: record delivery for endpoint %s: %w", endpoint.ID, berr)
		}
		if prev != store.CircuitOpen && next == store.CircuitOpen {
			w.emitBestEffort(ctx, tasks.EndpointCircuitOpened, tasks.EndpointCircuitOpenedPayload{
				EndpointID:    endpoint.ID,
				IntegrationID: integrationID,
			})
		}
	}

	if success {
		w.emitBestEffort(ctx, tasks.FlowStepCompleted, tasks.FlowStepCompletedPayload{EventID: eventID})
		return nil
	}

	if !fanOut {
		return nil
	}
	return w.scheduleRetry(ctx, eventID, integrationID, destinationURL, outcome)
}

// scheduleRetry applies spec.md §4.G step 7's per-error-type retry policy.
func (w *Worker) scheduleRetry(ctx context.Context, eventID, integrationID uuid.UUID, destinationURL string, outcome classify.Outcome) error {
	if outcome.ErrorType == store.ErrorSSL || outcome.ErrorType == store.ErrorConnectionRefused {
		return nil
	}

	nextTimeoutMs := int(defaultTimeout.Milliseconds())
	if outcome.ErrorType == store.ErrorTimeout {
		nextTimeoutMs = int(timeoutRetry.Milliseconds())
	}
	if outcome.RetryDelayMs != nil {
		time.Sleep(time.Duration(*outcome.RetryDelayMs) * time.Millisecond)
	}

	payload := tasks.WebhookRetryPayload{
		EventID:        eventID,
		IntegrationID:  integrationID,
		DestinationURL: destinationURL,
		AttemptNumber:  2,
		TimeoutMs:      nextTimeoutMs,
	}
	if err := w.enqueuer.Enqueue(ctx, payload, queue.WithTaskName(tasks.WebhookRetry)); err != nil {
		return fmt.Errorf("worker: enqueue %s for event %s: %w", tasks.WebhookRetry, eventID, err)
	}
	return nil
}

// emitBestEffort enqueues a notification task, logging but never failing
// the handler if the enqueue itself fails (spec.md §4.F's "best-effort"
// treatment applies equally to these downstream notifications).
func (w *Worker) emitBestEffort(ctx context.Context, topic string, payload any) {
	if err := w.enqueuer.Enqueue(ctx, payload, queue.WithTaskName(topic)); err != nil {
		w.logger.Error("best-effort task enqueue failed", "topic", topic, "error", err)
	}
}

func correlationKeyFor(provider store.Provider, rawPayload []byte) string {
	var decoded map[string]any
	if err := json.Unmarshal(rawPayload, &decoded); err != nil {
		return ""
	}
	return correlate.Key(provider, decoded)
}

func deliveryStatus(success bool) store.DeliveryStatus {
	if success {
		return store.DeliveryDelivered
	}
	return store.DeliveryFailed
}
