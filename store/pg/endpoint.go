package pg

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookwise/core/store"
)

// EndpointStore implements store.EndpointStore.
type EndpointStore struct {
	pool *pgxpool.Pool
}

// GetByIntegrationID implements store.EndpointStore.
func (s *EndpointStore) GetByIntegrationID(ctx context.Context, integrationID uuid.UUID) (*store.Endpoint, error) {
	row := s.pool.QueryRow(ctx, endpointSelect+` WHERE integration_id = $1`, integrationID)
	e, err := scanEndpoint(row)
	if err != nil {
		return nil, fmt.Errorf("store/pg: get endpoint for integration %s: %w", integrationID, mapNotFound(err))
	}
	return e, nil
}

// GetByID implements store.EndpointStore.
func (s *EndpointStore) GetByID(ctx context.Context, id uuid.UUID) (*store.Endpoint, error) {
	row := s.pool.QueryRow(ctx, endpointSelect+` WHERE id = $1`, id)
	e, err := scanEndpoint(row)
	if err != nil {
		return nil, fmt.Errorf("store/pg: get endpoint %s: %w", id, mapNotFound(err))
	}
	return e, nil
}

// ListOpen implements store.EndpointStore, used by the health prober.
func (s *EndpointStore) ListOpen(ctx context.Context) ([]store.Endpoint, error) {
	rows, err := s.pool.Query(ctx, endpointSelect+` WHERE circuit_state = $1`, string(store.CircuitOpen))
	if err != nil {
		return nil, fmt.Errorf("store/pg: list open endpoints: %w", err)
	}
	defer rows.Close()

	var out []store.Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("store/pg: scan endpoint: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// WithLock implements store.EndpointStore. It is the sole write path for
// Endpoint rows: both callers (breaker.RecordDelivery, RecordHealthCheck)
// funnel through here so the row-level exclusive lock spec.md §5 requires
// is always taken for the full read-modify-write, never just the write.
// Replay position allocation takes the same row lock inside
// ReplayQueueStore.Enqueue.
func (s *EndpointStore) WithLock(ctx context.Context, endpointID uuid.UUID, fn func(e *store.Endpoint) (*store.Endpoint, error)) (*store.Endpoint, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store/pg: begin endpoint lock tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, endpointSelect+` WHERE id = $1 FOR UPDATE`, endpointID)
	current, err := scanEndpoint(row)
	if err != nil {
		return nil, fmt.Errorf("store/pg: load endpoint %s for update: %w", endpointID, mapNotFound(err))
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE endpoints SET
			circuit_state = $1, success_rate = $2, avg_response_time_ms = $3,
			consecutive_failures = $4, consecutive_successes = $5,
			consecutive_health_ok = $6, last_health_check_at = $7,
			state_changed_at = $8, updated_at = now()
		WHERE id = $9`,
		string(next.CircuitState), next.SuccessRate, next.AvgResponseTimeMs,
		next.ConsecutiveFailures, next.ConsecutiveSuccesses, next.ConsecutiveHealthOK,
		next.LastHealthCheckAt, next.StateChangedAt, endpointID,
	); err != nil {
		return nil, fmt.Errorf("store/pg: update endpoint %s: %w", endpointID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("store/pg: commit endpoint lock tx: %w", err)
	}

	return next, nil
}

const endpointSelect = `
	SELECT id, integration_id, circuit_state, success_rate, avg_response_time_ms,
	       consecutive_failures, consecutive_successes, consecutive_health_ok,
	       last_health_check_at, state_changed_at, created_at, updated_at
	FROM endpoints`

func scanEndpoint(row rowScanner) (*store.Endpoint, error) {
	var e store.Endpoint
	var state string

	if err := row.Scan(
		&e.ID, &e.IntegrationID, &state, &e.SuccessRate, &e.AvgResponseTimeMs,
		&e.ConsecutiveFailures, &e.ConsecutiveSuccesses, &e.ConsecutiveHealthOK,
		&e.LastHealthCheckAt, &e.StateChangedAt, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}

	e.CircuitState = store.CircuitState(state)
	return &e, nil
}
