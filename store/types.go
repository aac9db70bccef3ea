// Package store defines the persisted entities of the delivery engine and
// the narrow repository interfaces each component depends on. Concrete,
// Postgres-backed implementations live in store/pg.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies the third-party event producer a signature and
// correlation-key extraction ruleset applies to.
type Provider string

const (
	ProviderStripe  Provider = "stripe"
	ProviderShopify Provider = "shopify"
	ProviderGitHub  Provider = "github"
)

// IntegrationStatus gates whether the ingestion endpoint accepts events.
type IntegrationStatus string

const (
	IntegrationActive IntegrationStatus = "active"
	IntegrationPaused IntegrationStatus = "paused"
	IntegrationError  IntegrationStatus = "error"
)

// Integration is a producer configuration: one signing secret and
// destination URL per customer-facing source.
type Integration struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Provider Provider
	SigningSecret string
	DestinationURL string
	Status IntegrationStatus

	// ReconciliationCredential is ciphertext produced by secrets.EncryptString;
	// empty when the integration has no reconciliation configured.
	ReconciliationCredential string

	// ForwardInvalidSignatures controls whether events with signature_valid=false
	// are still enqueued for delivery (spec.md §9 Open Question a). Defaults true.
	ForwardInvalidSignatures bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the integration currently accepts ingestion.
func (i Integration) Active() bool {
	return i.Status == IntegrationActive
}

// HasReconciliation reports whether a reconciliation credential is configured.
func (i Integration) HasReconciliation() bool {
	return i.ReconciliationCredential != ""
}

// CircuitState is the breaker's current gate position for an endpoint.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitHalfOpen CircuitState = "half_open"
	CircuitOpen     CircuitState = "open"
)

// Endpoint holds the mutable health state the circuit breaker reads and
// writes. One row per Integration (1:1).
type Endpoint struct {
	ID            uuid.UUID
	IntegrationID uuid.UUID

	CircuitState CircuitState

	SuccessRate            float64
	AvgResponseTimeMs      float64
	ConsecutiveFailures    int
	ConsecutiveSuccesses   int
	ConsecutiveHealthOK    int
	LastHealthCheckAt      *time.Time
	StateChangedAt         time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventSource distinguishes webhook-delivered events from ones synthesized
// by the reconciliation job to fill a gap.
type EventSource string

const (
	EventSourceWebhook       EventSource = "webhook"
	EventSourceReconciliation EventSource = "reconciliation"
)

// Event is an immutable received notification.
type Event struct {
	ID              uuid.UUID
	IntegrationID   uuid.UUID
	EventType       string
	Payload         []byte // raw body bytes, never re-marshaled downstream
	Headers         map[string]string
	ReceivedAt      time.Time
	SignatureValid  bool
	ProviderEventID *string
	Source          EventSource
}

// DeliveryStatus is the terminal or in-flight state of one delivery attempt.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryFailed     DeliveryStatus = "failed"
	DeliveryDeadLetter DeliveryStatus = "dead_letter"
)

// ErrorType is the classifier's output taxonomy (classify.ErrorType
// mirrors this; store keeps its own copy to avoid store depending on
// classify).
type ErrorType string

const (
	ErrorTimeout            ErrorType = "timeout"
	ErrorServerError        ErrorType = "server_error"
	ErrorRateLimit          ErrorType = "rate_limit"
	ErrorSSL                ErrorType = "ssl"
	ErrorConnectionRefused  ErrorType = "connection_refused"
	ErrorUnknown            ErrorType = "unknown"
)

// Delivery is one attempt to forward an Event to its destination.
type Delivery struct {
	ID                 uuid.UUID
	EventID            uuid.UUID
	EndpointID         *uuid.UUID
	Status             DeliveryStatus
	StatusCode         *int
	ResponseTimeMs     *int
	ResponseBody       string // truncated to 1024 bytes
	ErrorType          *ErrorType
	AttemptNumber      int
	AttemptedAt        time.Time
	NextRetryAt        *time.Time
}

// Succeeded reports whether the attempt is considered a successful delivery
// for breaker/replay accounting purposes.
func (d Delivery) Succeeded() bool {
	return d.Status == DeliveryDelivered
}

// ReplayStatus is the lifecycle of one ReplayQueueItem.
type ReplayStatus string

const (
	ReplayPending    ReplayStatus = "pending"
	ReplayDelivering ReplayStatus = "delivering"
	ReplayDelivered  ReplayStatus = "delivered"
	ReplayFailed     ReplayStatus = "failed"
	ReplaySkipped    ReplayStatus = "skipped"
)

// ReplayQueueItem is one per-endpoint ordered buffer slot, populated while
// the breaker is OPEN and drained by the replay engine on recovery.
type ReplayQueueItem struct {
	ID             uuid.UUID
	EndpointID     uuid.UUID
	EventID        uuid.UUID
	Position       int64
	CorrelationKey *string
	Status         ReplayStatus
	Attempts       int
	CreatedAt      time.Time
	DeliveredAt    *time.Time
}

// SkipBudgetExceeded reports whether the item has exhausted its replay
// attempt budget (spec.md §9 Open Question b: fixed at 3).
func (r ReplayQueueItem) SkipBudgetExceeded() bool {
	const skipBudget = 3
	return r.Attempts >= skipBudget
}

// ReconciliationRun is an immutable audit record of one pull cycle.
type ReconciliationRun struct {
	ID                 uuid.UUID
	IntegrationID      uuid.UUID
	ProviderEventsFound int
	LocalEventsFound    int
	GapsDetected        int
	GapsResolved        int
	RanAt               time.Time
}
