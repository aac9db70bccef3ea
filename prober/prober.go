// Package prober implements the 60s health-check sweep over OPEN
// endpoints: HEAD with a GET fallback, fed into the circuit breaker's
// recordHealthCheck, firing endpoint/replay-started exactly once per
// OPEN → HALF_OPEN transition (spec.md §4.H).
package prober

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hookwise/core/breaker"
	"github.com/hookwise/core/pkg/queue"
	"github.com/hookwise/core/store"
	"github.com/hookwise/core/tasks"
)

const (
	probeTimeout = 5 * time.Second
	dedupTTL     = 5 * time.Minute
)

// Prober periodically probes every OPEN endpoint's destination.
type Prober struct {
	endpoints    store.EndpointStore
	integrations store.IntegrationStore
	breaker      *breaker.Breaker
	enqueuer     *queue.Enqueuer
	client       *http.Client
	dedup        redis.UniversalClient
	logger       *slog.Logger
}

// New builds a Prober. dedup may be nil, in which case the
// once-per-transition guarantee is best-effort only (single replica).
func New(
	endpoints store.EndpointStore,
	integrations store.IntegrationStore,
	b *breaker.Breaker,
	enqueuer *queue.Enqueuer,
	dedup redis.UniversalClient,
	logger *slog.Logger,
) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		endpoints:    endpoints,
		integrations: integrations,
		breaker:      b,
		enqueuer:     enqueuer,
		client:       &http.Client{Timeout: probeTimeout},
		dedup:        dedup,
		logger:       logger,
	}
}

// Handler returns the queue.Handler driving the 60s periodic sweep,
// registered with a queue.Scheduler under the given task name.
func (p *Prober) Handler(taskName string) queue.Handler {
	return queue.NewPeriodicTaskHandler(taskName, p.run)
}

func (p *Prober) run(ctx context.Context) error {
	open, err := p.endpoints.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("prober: list open endpoints: %w", err)
	}

	for _, e := range open {
		if err := p.probeOne(ctx, e); err != nil {
			p.logger.Error("probe failed", "endpoint_id", e.ID, "error", err)
		}
	}
	return nil
}

func (p *Prober) probeOne(ctx context.Context, e store.Endpoint) error {
	integration, err := p.integrations.GetIntegration(ctx, e.IntegrationID)
	if err != nil {
		return fmt.Errorf("load integration %s: %w", e.IntegrationID, err)
	}

	ok := p.check(ctx, integration.DestinationURL)

	prev, next, err := p.breaker.RecordHealthCheck(ctx, e.ID, ok)
	if err != nil {
		return fmt.Errorf("record health check for endpoint %s: %w", e.ID, err)
	}

	if prev == store.CircuitOpen && next == store.CircuitHalfOpen {
		p.notifyReplayOnce(ctx, e.ID, integration.ID)
	}
	return nil
}

// check issues HEAD first, falling back to GET on any non-2xx response or
// transport error, treating any 2xx as success (spec.md §4.H).
func (p *Prober) check(ctx context.Context, url string) bool {
	if p.do(ctx, http.MethodHead, url) {
		return true
	}
	return p.do(ctx, http.MethodGet, url)
}

func (p *Prober) do(ctx context.Context, method, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// notifyReplayOnce emits endpoint/replay-started, guarding against a
// double-fire across replicas with a Redis SETNX keyed by endpoint id.
// Without a dedup client the guard is skipped and at-most-once is not
// guaranteed, matching the degraded single-replica behaviour.
func (p *Prober) notifyReplayOnce(ctx context.Context, endpointID, integrationID uuid.UUID) {
	if p.dedup != nil {
		key := "hookwise:replay-started:" + endpointID.String()
		acquired, err := p.dedup.SetNX(ctx, key, "1", dedupTTL).Result()
		if err != nil {
			p.logger.Error("replay-started dedup check failed", "endpoint_id", endpointID, "error", err)
		} else if !acquired {
			return
		}
	}

	payload := tasks.EndpointReplayStartedPayload{EndpointID: endpointID, IntegrationID: integrationID}
	if err := p.enqueuer.Enqueue(ctx, payload, queue.WithTaskName(tasks.EndpointReplayStarted)); err != nil {
		p.logger.Error("enqueue endpoint/replay-started failed", "endpoint_id", endpointID, "error", err)
	}
}
