// Package pg implements store's repository interfaces against Postgres via
// jackc/pgx/v5, built the way the teacher's pkg/pg wraps a pgxpool.Pool.
//
// Each store.*Store interface gets its own concrete type rather than one
// god object, mirroring the narrow-interface split the teacher uses for
// pkg/queue's EnqueuerRepository/WorkerRepository: callers depend on only
// the methods they use, and two interfaces never collide on a method name
// implemented by the same receiver.
package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookwise/core/store"
)

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Store bundles one instance of every repository over a shared pool, for
// convenience at wiring time (cmd/*). Components should still depend on the
// narrow store.*Store interfaces, not on *Store itself.
type Store struct {
	Integrations  *IntegrationStore
	Endpoints     *EndpointStore
	Events        *EventStore
	Deliveries    *DeliveryStore
	ReplayQueue   *ReplayQueueStore
	Reconciliation *ReconciliationStore
}

// New constructs every repository over pool (see pkg/pg.Connect).
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Integrations:   &IntegrationStore{pool: pool},
		Endpoints:      &EndpointStore{pool: pool},
		Events:         &EventStore{pool: pool},
		Deliveries:     &DeliveryStore{pool: pool},
		ReplayQueue:    &ReplayQueueStore{pool: pool},
		Reconciliation: &ReconciliationStore{pool: pool},
	}
}
