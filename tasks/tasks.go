// Package tasks names the canonical task-queue topics and payload shapes
// shared between producers (ingest, worker, prober, reconcile, sweeper,
// api) and the queue.Worker/queue.Scheduler that dispatch them.
package tasks

import "github.com/google/uuid"

// Topic names match spec.md §8's wire contract verbatim.
const (
	WebhookReceived      = "webhook/received"
	WebhookRetry         = "webhook/retry"
	EndpointCircuitOpened = "endpoint/circuit-opened"
	EndpointReplayStarted = "endpoint/replay-started"
	FlowStepCompleted    = "flow/step-completed"
)

// WebhookReceivedPayload carries the event/integration/destination triple
// the delivery worker needs to attempt first delivery (spec.md §4.G).
type WebhookReceivedPayload struct {
	EventID         uuid.UUID `json:"event_id"`
	IntegrationID   uuid.UUID `json:"integration_id"`
	DestinationURL  string    `json:"destination_url"`
}

// WebhookRetryPayload carries the one extra retry attempt spec.md §4.G
// step 7 schedules, including the attempt number and the timeout that
// attempt must use (10s for timeout-retries, default otherwise).
type WebhookRetryPayload struct {
	EventID       uuid.UUID `json:"event_id"`
	IntegrationID uuid.UUID `json:"integration_id"`
	DestinationURL string  `json:"destination_url"`
	AttemptNumber int       `json:"attempt_number"`
	TimeoutMs     int       `json:"timeout_ms"`
}

// EndpointCircuitOpenedPayload notifies observers of a CLOSED/HALF_OPEN →
// OPEN transition (spec.md §4.G step 6).
type EndpointCircuitOpenedPayload struct {
	EndpointID    uuid.UUID `json:"endpoint_id"`
	IntegrationID uuid.UUID `json:"integration_id"`
}

// EndpointReplayStartedPayload triggers the replay engine after an
// OPEN → HALF_OPEN transition (spec.md §4.H).
type EndpointReplayStartedPayload struct {
	EndpointID    uuid.UUID `json:"endpoint_id"`
	IntegrationID uuid.UUID `json:"integration_id"`
}

// FlowStepCompletedPayload is a best-effort notification to the
// out-of-scope flow tracker (spec.md §4.G step 8).
type FlowStepCompletedPayload struct {
	EventID uuid.UUID `json:"event_id"`
}
