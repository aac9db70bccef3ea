package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookwise/core/store"
)

// ReconciliationStore implements store.ReconciliationStore.
type ReconciliationStore struct {
	pool *pgxpool.Pool
}

// Insert implements store.ReconciliationStore. One row is written per
// cycle regardless of outcome (spec.md §4.J).
func (s *ReconciliationStore) Insert(ctx context.Context, r *store.ReconciliationRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reconciliation_runs (
			id, integration_id, provider_events_found, local_events_found,
			gaps_detected, gaps_resolved, ran_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.IntegrationID, r.ProviderEventsFound, r.LocalEventsFound,
		r.GapsDetected, r.GapsResolved, r.RanAt,
	)
	if err != nil {
		return fmt.Errorf("store/pg: insert reconciliation run %s: %w", r.ID, err)
	}
	return nil
}
