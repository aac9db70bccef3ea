// Package breaker implements the per-endpoint circuit breaker: a state
// derived from a sliding window of recent deliveries, recomputed and
// persisted atomically under the endpoint's row lock (spec.md §4.C).
// Transition bookkeeping is driven by pkg/statemachine, the same way the
// teacher drives other lifecycle transitions elsewhere in the module;
// guards evaluate the window stats, actions are no-ops here since the
// counter mutation happens in the snapshot before Fire is even called.
package breaker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hookwise/core/pkg/cache"
	"github.com/hookwise/core/pkg/statemachine"
	"github.com/hookwise/core/store"
)

const (
	windowSize = 20

	openMinConsecutiveFailures = 5
	openMinWindowForRate       = 5
	openMaxSuccessRate         = 0.50

	halfOpenMinHealthOK           = 3
	halfOpenCloseConsecutiveOK    = 10
	halfOpenOpenConsecutiveFailed = 2
)

const (
	eventDelivery    = statemachine.StringEvent("delivery")
	eventHealthCheck = statemachine.StringEvent("health_check")
)

// Breaker computes and persists circuit-breaker state transitions.
type Breaker struct {
	endpoints store.EndpointStore
	deliveries store.DeliveryStore
	replay    store.ReplayQueueStore

	snapshots *cache.LRUCache[uuid.UUID, store.Endpoint]
}

// New builds a Breaker. cacheSize bounds the hot-read snapshot cache that
// Snapshot serves, sparing the replay engine a round trip for each of its
// per-batch state checks.
func New(endpoints store.EndpointStore, deliveries store.DeliveryStore, replay store.ReplayQueueStore, cacheSize int) *Breaker {
	return &Breaker{
		endpoints:  endpoints,
		deliveries: deliveries,
		replay:     replay,
		snapshots:  cache.NewLRUCache[uuid.UUID, store.Endpoint](cacheSize),
	}
}

// Snapshot returns the endpoint's last-known state without taking the row
// lock, serving cached reads for the replay engine's breaker re-checks.
// Falls back to a direct read on a cache miss.
func (b *Breaker) Snapshot(ctx context.Context, endpointID uuid.UUID) (store.Endpoint, error) {
	if e, ok := b.snapshots.Get(endpointID); ok {
		return e, nil
	}
	e, err := b.endpoints.GetByID(ctx, endpointID)
	if err != nil {
		return store.Endpoint{}, err
	}
	b.snapshots.Put(endpointID, *e)
	return *e, nil
}

// RecordDelivery folds one more delivery outcome into the endpoint's
// sliding window and applies the CLOSED/HALF_OPEN/OPEN transition rules,
// atomically under the endpoint's row lock. Returns the state before and
// after.
func (b *Breaker) RecordDelivery(ctx context.Context, endpointID uuid.UUID, success bool, rtt time.Duration) (prev, next store.CircuitState, err error) {
	updated, err := b.endpoints.WithLock(ctx, endpointID, func(e *store.Endpoint) (*store.Endpoint, error) {
		prev = e.CircuitState

		recent, rerr := b.deliveries.RecentByEndpoint(ctx, endpointID, windowSize)
		if rerr != nil {
			return nil, fmt.Errorf("breaker: load window for endpoint %s: %w", endpointID, rerr)
		}
		stats := computeWindow(recent, success, rtt)
		e.SuccessRate = stats.successRate
		e.AvgResponseTimeMs = stats.avgResponseMs

		if success {
			e.ConsecutiveFailures = 0
			e.ConsecutiveSuccesses++
		} else {
			e.ConsecutiveSuccesses = 0
			e.ConsecutiveFailures++
		}

		to := applyDeliveryTransition(e, stats)
		if to != e.CircuitState {
			e.CircuitState = to
			e.StateChangedAt = time.Now()
			e.ConsecutiveFailures = 0
			e.ConsecutiveSuccesses = 0
			e.ConsecutiveHealthOK = 0
		}
		return e, nil
	})
	if err != nil {
		return prev, prev, err
	}

	b.snapshots.Put(endpointID, *updated)
	return prev, updated.CircuitState, nil
}

// RecordHealthCheck feeds a health-probe outcome into the breaker. Per
// spec.md §4.C, outcomes are ignored unless the endpoint is OPEN.
func (b *Breaker) RecordHealthCheck(ctx context.Context, endpointID uuid.UUID, success bool) (prev, next store.CircuitState, err error) {
	updated, err := b.endpoints.WithLock(ctx, endpointID, func(e *store.Endpoint) (*store.Endpoint, error) {
		prev = e.CircuitState
		now := time.Now()
		e.LastHealthCheckAt = &now

		if e.CircuitState != store.CircuitOpen {
			return e, nil
		}

		if !success {
			e.ConsecutiveHealthOK = 0
			return e, nil
		}

		e.ConsecutiveHealthOK++
		if e.ConsecutiveHealthOK >= halfOpenMinHealthOK {
			e.CircuitState = store.CircuitHalfOpen
			e.StateChangedAt = now
			e.ConsecutiveFailures = 0
			e.ConsecutiveSuccesses = 0
			e.ConsecutiveHealthOK = 0
		}
		return e, nil
	})
	if err != nil {
		return prev, prev, err
	}

	b.snapshots.Put(endpointID, *updated)
	return prev, updated.CircuitState, nil
}

// EnqueueForReplay appends an event to the endpoint's ordered replay
// buffer. Per spec.md §4.C this is how an OPEN endpoint absorbs a delivery
// attempt instead of calling out.
func (b *Breaker) EnqueueForReplay(ctx context.Context, endpointID, eventID uuid.UUID, correlationKey *string) (int64, error) {
	item, err := b.replay.Enqueue(ctx, endpointID, eventID, correlationKey)
	if err != nil {
		return 0, fmt.Errorf("breaker: enqueue replay for endpoint %s: %w", endpointID, err)
	}
	return item.Position, nil
}

// NextReplayPosition reports the position the next EnqueueForReplay call
// would assign, without reserving it.
func (b *Breaker) NextReplayPosition(ctx context.Context, endpointID uuid.UUID) (int64, error) {
	return b.replay.NextPosition(ctx, endpointID)
}

// applyDeliveryTransition encodes spec.md §4.C's transition table using a
// fresh statemachine seeded at e's current state; guards read the counters
// already updated on e and the freshly computed window stats.
func applyDeliveryTransition(e *store.Endpoint, stats windowStats) store.CircuitState {
	sm := statemachine.NewSimpleStateMachine(statemachine.StringState(string(e.CircuitState)))

	closed := statemachine.StringState(string(store.CircuitClosed))
	halfOpen := statemachine.StringState(string(store.CircuitHalfOpen))
	open := statemachine.StringState(string(store.CircuitOpen))

	_ = sm.AddTransition(closed, open, eventDelivery, []statemachine.Guard{
		func(_ context.Context, _ statemachine.State, _ statemachine.Event, _ any) bool {
			return e.ConsecutiveFailures >= openMinConsecutiveFailures ||
				(stats.windowSize >= openMinWindowForRate && stats.successRate < openMaxSuccessRate)
		},
	}, nil)

	_ = sm.AddTransition(halfOpen, open, eventDelivery, []statemachine.Guard{
		func(_ context.Context, _ statemachine.State, _ statemachine.Event, _ any) bool {
			return e.ConsecutiveFailures >= halfOpenOpenConsecutiveFailed
		},
	}, nil)
	_ = sm.AddTransition(halfOpen, closed, eventDelivery, []statemachine.Guard{
		func(_ context.Context, _ statemachine.State, _ statemachine.Event, _ any) bool {
			return e.ConsecutiveSuccesses >= halfOpenCloseConsecutiveOK
		},
	}, nil)

	if err := sm.Fire(context.Background(), eventDelivery, nil); err != nil {
		if statemachine.IsNoTransitionAvailableError(err) || statemachine.IsTransitionRejectedError(err) {
			return e.CircuitState
		}
	}
	return store.CircuitState(sm.Current().Name())
}
