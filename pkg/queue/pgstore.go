package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoTaskToClaim is returned by ClaimTask when no eligible task is available.
var ErrNoTaskToClaim = errors.New("no task available to claim")

// PgStore implements EnqueuerRepository, SchedulerRepository and
// WorkerRepository against a Postgres `tasks`/`tasks_dlq` schema. The
// teacher ships only MemoryStorage; this is the production-grade
// replacement, built directly against pkg/pg's pgxpool.Pool.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore wraps an existing pgxpool.Pool (see pkg/pg.Connect) as a
// queue storage backend.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// CreateTask implements EnqueuerRepository and SchedulerRepository.
func (s *PgStore) CreateTask(ctx context.Context, task *Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (
			id, queue, task_type, task_name, payload, status, priority,
			retry_count, max_retries, scheduled_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		task.ID, task.Queue, string(task.TaskType), task.TaskName, task.Payload,
		string(task.Status), int16(task.Priority), int16(task.RetryCount),
		int16(task.MaxRetries), task.ScheduledAt, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("queue: create task %q: %w", task.TaskName, err)
	}
	return nil
}

// GetPendingTaskByName implements SchedulerRepository. It's used to avoid
// double-scheduling a periodic task that's already pending.
func (s *PgStore) GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, queue, task_type, task_name, payload, status, priority,
		       retry_count, max_retries, scheduled_at, locked_until, locked_by,
		       processed_at, error, created_at
		FROM tasks
		WHERE task_name = $1 AND status = $2
		ORDER BY scheduled_at DESC
		LIMIT 1`, taskName, string(TaskStatusPending))

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: get pending task %q: %w", taskName, err)
	}
	return task, nil
}

// ClaimTask implements WorkerRepository. It atomically picks the
// highest-priority, earliest-due pending task across the requested queues
// and locks it for lockDuration using SELECT ... FOR UPDATE SKIP LOCKED so
// concurrent workers never contend on the same row.
func (s *PgStore) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	row := tx.QueryRow(ctx, `
		SELECT id, queue, task_type, task_name, payload, status, priority,
		       retry_count, max_retries, scheduled_at, locked_until, locked_by,
		       processed_at, error, created_at
		FROM tasks
		WHERE queue = ANY($1)
		  AND status = $2
		  AND scheduled_at <= $3
		  AND (locked_until IS NULL OR locked_until <= $3)
		ORDER BY priority DESC, scheduled_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, queues, string(TaskStatusPending), now)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoTaskToClaim
		}
		return nil, fmt.Errorf("queue: claim task: %w", err)
	}

	lockedUntil := now.Add(lockDuration)
	if _, err := tx.Exec(ctx, `
		UPDATE tasks SET status = $1, locked_until = $2, locked_by = $3
		WHERE id = $4`, string(TaskStatusProcessing), lockedUntil, workerID, task.ID,
	); err != nil {
		return nil, fmt.Errorf("queue: lock claimed task %s: %w", task.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("queue: commit claim tx: %w", err)
	}

	task.Status = TaskStatusProcessing
	task.LockedUntil = &lockedUntil
	task.LockedBy = &workerID
	return task, nil
}

// CompleteTask implements WorkerRepository.
func (s *PgStore) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	now := time.Now()
	_, err := s.pool.Exec(ctx, `
		UPDATE tasks SET status = $1, processed_at = $2, locked_until = NULL, locked_by = NULL
		WHERE id = $3`, string(TaskStatusCompleted), now, taskID)
	if err != nil {
		return fmt.Errorf("queue: complete task %s: %w", taskID, err)
	}
	return nil
}

// FailTask implements WorkerRepository. It records the error, increments
// retry_count, and either reschedules the task (with quadratic backoff,
// retry_count² seconds)
// or leaves it for the caller to move to the DLQ once retries exhaust.
func (s *PgStore) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("queue: begin fail tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var retryCount, maxRetries int16
	if err := tx.QueryRow(ctx, `SELECT retry_count, max_retries FROM tasks WHERE id = $1 FOR UPDATE`, taskID).
		Scan(&retryCount, &maxRetries); err != nil {
		return fmt.Errorf("queue: load task %s for failure: %w", taskID, err)
	}

	retryCount++
	backoff := time.Duration(retryCount*retryCount) * time.Second

	status := TaskStatusPending
	scheduledAt := time.Now().Add(backoff)
	if retryCount >= maxRetries {
		status = TaskStatusFailed
	}

	if _, err := tx.Exec(ctx, `
		UPDATE tasks SET status = $1, retry_count = $2, error = $3,
		       scheduled_at = $4, locked_until = NULL, locked_by = NULL
		WHERE id = $5`, string(status), retryCount, errorMsg, scheduledAt, taskID,
	); err != nil {
		return fmt.Errorf("queue: update failed task %s: %w", taskID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("queue: commit fail tx: %w", err)
	}
	return nil
}

// MoveToDLQ implements WorkerRepository.
func (s *PgStore) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("queue: begin dlq tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT id, queue, task_type, task_name, payload, status, priority,
		       retry_count, max_retries, scheduled_at, locked_until, locked_by,
		       processed_at, error, created_at
		FROM tasks WHERE id = $1 FOR UPDATE`, taskID)

	task, err := scanTask(row)
	if err != nil {
		return fmt.Errorf("queue: load task %s for dlq: %w", taskID, err)
	}

	errMsg := ""
	if task.Error != nil {
		errMsg = *task.Error
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO tasks_dlq (id, task_id, queue, task_type, task_name, payload,
		       priority, error, retry_count, failed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New(), task.ID, task.Queue, string(task.TaskType), task.TaskName,
		task.Payload, int16(task.Priority), errMsg, int16(task.RetryCount),
		time.Now(), task.CreatedAt,
	); err != nil {
		return fmt.Errorf("queue: insert dlq row for task %s: %w", taskID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID); err != nil {
		return fmt.Errorf("queue: remove dlq'd task %s: %w", taskID, err)
	}

	return tx.Commit(ctx)
}

// ExtendLock implements WorkerRepository.
func (s *PgStore) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tasks SET locked_until = $1 WHERE id = $2`,
		time.Now().Add(duration), taskID)
	if err != nil {
		return fmt.Errorf("queue: extend lock for task %s: %w", taskID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t           Task
		taskType    string
		status      string
		priority    int16
		retryCount  int16
		maxRetries  int16
	)

	if err := row.Scan(
		&t.ID, &t.Queue, &taskType, &t.TaskName, &t.Payload, &status, &priority,
		&retryCount, &maxRetries, &t.ScheduledAt, &t.LockedUntil, &t.LockedBy,
		&t.ProcessedAt, &t.Error, &t.CreatedAt,
	); err != nil {
		return nil, err
	}

	t.TaskType = TaskType(taskType)
	t.Status = TaskStatus(status)
	t.Priority = Priority(priority)
	t.RetryCount = int8(retryCount)
	t.MaxRetries = int8(maxRetries)

	return &t, nil
}
