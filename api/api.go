// Package api exposes the read-only dashboard projections and the manual
// replay trigger described in spec.md §7's management-API line: thin JSON
// views over the store, plus a way to force a redrive without waiting for
// the breaker to recover on its own (SPEC_FULL.md §7).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hookwise/core/binder"
	"github.com/hookwise/core/correlate"
	"github.com/hookwise/core/handler"
	"github.com/hookwise/core/pkg/validator"
	"github.com/hookwise/core/store"
)

// Service serves the dashboard/management read surface.
type Service struct {
	integrations store.IntegrationStore
	endpoints    store.EndpointStore
	events       store.EventStore
	replay       store.ReplayQueueStore
	errorHandler handler.ErrorHandler[handler.Context]
	logger       *slog.Logger
}

// New builds a Service.
func New(integrations store.IntegrationStore, endpoints store.EndpointStore, events store.EventStore, replay store.ReplayQueueStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		integrations: integrations,
		endpoints:    endpoints,
		events:       events,
		replay:       replay,
		errorHandler: handler.NewErrorHandler(logger),
		logger:       logger,
	}
}

// Handle mounts the API routes, satisfying the teacher's Mountable convention.
func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()

	r.Post("/replay", handler.Wrap(
		handler.HandlerFunc[handler.Context, replayRequest](s.replayEvents),
		handler.WithBinders[handler.Context, replayRequest](binder.BindJSON()),
		handler.WithErrorHandler[handler.Context, replayRequest](s.errorHandler),
	))

	r.Get("/events/{id}", handler.Wrap(
		handler.HandlerFunc[handler.Context, idRequest](s.getEvent),
		handler.WithBinders[handler.Context, idRequest](binder.Path(chi.URLParam)),
		handler.WithErrorHandler[handler.Context, idRequest](s.errorHandler),
	))

	r.Get("/integrations/{id}/endpoint", handler.Wrap(
		handler.HandlerFunc[handler.Context, idRequest](s.getIntegrationEndpoint),
		handler.WithBinders[handler.Context, idRequest](binder.Path(chi.URLParam)),
		handler.WithErrorHandler[handler.Context, idRequest](s.errorHandler),
	))

	return r
}

type idRequest struct {
	ID string `path:"id"`
}

type replayRequest struct {
	EventIDs []string `json:"eventIds"`
}

func (s *Service) replayEvents(ctx handler.Context, body replayRequest) handler.Response {
	if err := validator.Apply(validator.Rule{
		Check: func() bool { return len(body.EventIDs) > 0 },
		Error: validator.ValidationError{Field: "eventIds", Message: "must not be empty"},
	}); err != nil {
		return handler.JSONError(handler.ErrBadRequest)
	}

	accepted := make([]uuid.UUID, 0, len(body.EventIDs))
	for i, raw := range body.EventIDs {
		if err := validator.Apply(validator.ValidUUID(fmt.Sprintf("eventIds[%d]", i), raw)); err != nil {
			continue
		}
		eventID := uuid.MustParse(raw)

		event, err := s.events.Get(ctx, eventID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			s.logger.Error("load event failed", "event_id", eventID, "error", err)
			continue
		}

		endpoint, err := s.endpoints.GetByIntegrationID(ctx, event.IntegrationID)
		if err != nil {
			s.logger.Error("load endpoint failed", "integration_id", event.IntegrationID, "error", err)
			continue
		}

		var correlationKey *string
		var payload map[string]any
		if err := json.Unmarshal(event.Payload, &payload); err == nil {
			integration, err := s.integrations.GetIntegration(ctx, event.IntegrationID)
			if err == nil {
				if key := correlate.Key(integration.Provider, payload); key != "" {
					correlationKey = &key
				}
			}
		}

		if _, err := s.replay.Enqueue(ctx, endpoint.ID, event.ID, correlationKey); err != nil {
			s.logger.Error("manual replay enqueue failed", "event_id", event.ID, "error", err)
			continue
		}
		accepted = append(accepted, event.ID)
	}

	return handler.JSON(map[string]any{"accepted": accepted}, handler.WithJSONStatus(http.StatusAccepted))
}

func (s *Service) getEvent(ctx handler.Context, req idRequest) handler.Response {
	eventID, err := uuid.Parse(req.ID)
	if err != nil {
		return handler.JSONError(handler.ErrNotFound)
	}

	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return handler.JSONError(handler.ErrNotFound)
		}
		s.logger.Error("load event failed", "event_id", eventID, "error", err)
		return handler.JSONError(handler.ErrInternalServerError)
	}

	return handler.JSON(event)
}

func (s *Service) getIntegrationEndpoint(ctx handler.Context, req idRequest) handler.Response {
	integrationID, err := uuid.Parse(req.ID)
	if err != nil {
		return handler.JSONError(handler.ErrNotFound)
	}

	endpoint, err := s.endpoints.GetByIntegrationID(ctx, integrationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return handler.JSONError(handler.ErrNotFound)
		}
		s.logger.Error("load endpoint failed", "integration_id", integrationID, "error", err)
		return handler.JSONError(handler.ErrInternalServerError)
	}

	return handler.JSON(endpoint)
}
