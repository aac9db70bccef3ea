package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IntegrationStore reads and writes Integration configuration.
type IntegrationStore interface {
	GetIntegration(ctx context.Context, id uuid.UUID) (*Integration, error)
	ListActiveWithReconciliation(ctx context.Context) ([]Integration, error)
}

// EndpointStore reads and writes Endpoint health state. Mutating methods
// take the row-level lock spec.md §5 requires for the duration of their
// read-modify-write.
type EndpointStore interface {
	GetByIntegrationID(ctx context.Context, integrationID uuid.UUID) (*Endpoint, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Endpoint, error)
	ListOpen(ctx context.Context) ([]Endpoint, error)

	// WithLock loads the Endpoint row under SELECT ... FOR UPDATE, invokes fn,
	// and persists whatever fn returns within the same transaction.
	WithLock(ctx context.Context, endpointID uuid.UUID, fn func(e *Endpoint) (*Endpoint, error)) (*Endpoint, error)
}

// EventStore persists immutable received notifications.
type EventStore interface {
	Insert(ctx context.Context, e *Event) error
	Get(ctx context.Context, id uuid.UUID) (*Event, error)
	ExistsProviderEventID(ctx context.Context, integrationID uuid.UUID, providerEventID string, since time.Time) (bool, error)
	// WithoutDelivery returns events older than olderThan with no Delivery row,
	// for the orphan sweeper.
	WithoutDelivery(ctx context.Context, olderThan time.Time) ([]Event, error)
}

// DeliveryStore persists per-attempt delivery outcomes.
type DeliveryStore interface {
	Insert(ctx context.Context, d *Delivery) error
	RecentByEndpoint(ctx context.Context, endpointID uuid.UUID, limit int) ([]Delivery, error)
	// DeliveredWithProviderEventID reports whether a delivered Delivery exists
	// for an event sharing the given non-null provider_event_id.
	DeliveredWithProviderEventID(ctx context.Context, integrationID uuid.UUID, providerEventID string) (bool, error)
}

// ReplayQueueStore manages the per-endpoint ordered replay buffer.
type ReplayQueueStore interface {
	// Enqueue inserts at NextPosition(endpointID) under the endpoint lock.
	Enqueue(ctx context.Context, endpointID, eventID uuid.UUID, correlationKey *string) (*ReplayQueueItem, error)
	NextPosition(ctx context.Context, endpointID uuid.UUID) (int64, error)
	// NextBatch returns up to limit pending items ordered by position ASC.
	NextBatch(ctx context.Context, endpointID uuid.UUID, limit int) ([]ReplayQueueItem, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status ReplayStatus, attempts int) error
	MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error
}

// ReconciliationStore persists audit rows for each pull cycle.
type ReconciliationStore interface {
	Insert(ctx context.Context, r *ReconciliationRun) error
}
