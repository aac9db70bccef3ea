package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookwise/core/store"
)

// ReplayQueueStore implements store.ReplayQueueStore.
type ReplayQueueStore struct {
	pool *pgxpool.Pool
}

// NextPosition implements store.ReplayQueueStore: MAX(position)+1 for the
// endpoint, read without taking the endpoint row lock.
func (s *ReplayQueueStore) NextPosition(ctx context.Context, endpointID uuid.UUID) (int64, error) {
	var next int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(position), 0) + 1 FROM replay_queue_items WHERE endpoint_id = $1`,
		endpointID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("store/pg: next replay position for endpoint %s: %w", endpointID, err)
	}
	return next, nil
}

// Enqueue implements store.ReplayQueueStore. It takes the endpoint row lock
// (SELECT ... FOR UPDATE) in its own transaction, so the MAX(position)+1
// allocation and the insert are serialised against concurrent enqueues.
func (s *ReplayQueueStore) Enqueue(ctx context.Context, endpointID, eventID uuid.UUID, correlationKey *string) (*store.ReplayQueueItem, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store/pg: begin replay enqueue tx: %w", err)
	}
	defer tx.Rollback(ctx)
	var position int64
	if err := tx.QueryRow(ctx, `
		SELECT (SELECT COALESCE(MAX(position), 0) + 1 FROM replay_queue_items WHERE endpoint_id = $1)
		FROM endpoints WHERE id = $1 FOR UPDATE`, endpointID).Scan(&position); err != nil {
		return nil, fmt.Errorf("store/pg: next replay position for endpoint %s: %w", endpointID, err)
	}

	item := &store.ReplayQueueItem{
		ID:             uuid.New(),
		EndpointID:     endpointID,
		EventID:        eventID,
		Position:       position,
		CorrelationKey: correlationKey,
		Status:         store.ReplayPending,
		Attempts:       0,
		CreatedAt:      time.Now(),
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO replay_queue_items (
			id, endpoint_id, event_id, position, correlation_key, status, attempts, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID, item.EndpointID, item.EventID, item.Position, item.CorrelationKey,
		string(item.Status), item.Attempts, item.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store/pg: enqueue replay item for endpoint %s: %w", endpointID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("store/pg: commit replay enqueue tx: %w", err)
	}
	return item, nil
}

// NextBatch implements store.ReplayQueueStore: up to limit pending items
// ordered by position ASC (spec.md §4.I batching rule).
func (s *ReplayQueueStore) NextBatch(ctx context.Context, endpointID uuid.UUID, limit int) ([]store.ReplayQueueItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, endpoint_id, event_id, position, correlation_key, status, attempts, created_at, delivered_at
		FROM replay_queue_items
		WHERE endpoint_id = $1 AND status = $2
		ORDER BY position ASC
		LIMIT $3`, endpointID, string(store.ReplayPending), limit)
	if err != nil {
		return nil, fmt.Errorf("store/pg: next replay batch for endpoint %s: %w", endpointID, err)
	}
	defer rows.Close()

	var out []store.ReplayQueueItem
	for rows.Next() {
		var item store.ReplayQueueItem
		var status string
		if err := rows.Scan(
			&item.ID, &item.EndpointID, &item.EventID, &item.Position, &item.CorrelationKey,
			&status, &item.Attempts, &item.CreatedAt, &item.DeliveredAt,
		); err != nil {
			return nil, fmt.Errorf("store/pg: scan replay item: %w", err)
		}
		item.Status = store.ReplayStatus(status)
		out = append(out, item)
	}
	return out, rows.Err()
}

// UpdateStatus implements store.ReplayQueueStore.
func (s *ReplayQueueStore) UpdateStatus(ctx context.Context, id uuid.UUID, status store.ReplayStatus, attempts int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE replay_queue_items SET status = $1, attempts = $2 WHERE id = $3`,
		string(status), attempts, id)
	if err != nil {
		return fmt.Errorf("store/pg: update replay item %s: %w", id, err)
	}
	return nil
}

// MarkDelivered implements store.ReplayQueueStore.
func (s *ReplayQueueStore) MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE replay_queue_items SET status = $1, delivered_at = $2 WHERE id = $3`,
		string(store.ReplayDelivered), deliveredAt, id)
	if err != nil {
		return fmt.Errorf("store/pg: mark replay item %s delivered: %w", id, err)
	}
	return nil
}
