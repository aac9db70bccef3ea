// Package handler provides type-safe HTTP request handling for the webhook
// ingestion and management API.
//
// The package centers around generic handler functions that bind HTTP
// requests to Go structs and return typed responses, eliminating manual
// request parsing and response encoding while keeping compile-time
// guarantees:
//
//	type CreateEndpointRequest struct {
//		URL    string `json:"url" validate:"required,url"`
//		Secret string `json:"secret" validate:"required,min=16"`
//	}
//
//	func createEndpoint(ctx handler.Context, req CreateEndpointRequest) handler.Response {
//		endpoint, err := endpoints.Create(ctx, req)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(endpoint)
//	}
//
//	http.HandleFunc("/endpoints", handler.Wrap(createEndpoint))
//
// # Architecture
//
// 1. HandlerFunc - generic function type that accepts a typed request and returns a Response
// 2. Response - common interface implemented by every response type
// 3. Context - request-scoped context giving access to the request and response writer
// 4. Decorators - middleware-like functions for cross-cutting concerns
// 5. ErrorHandler - customizable error response formatting
//
// # Response Types
//
//	handler.JSON(data)                     // 200 OK with data
//	handler.JSON(data, WithJSONStatus(201)) // custom status
//	handler.JSONError(err)                 // error envelope
//	handler.Empty()                        // 204 No Content
//
// # Error Handling
//
//	handler.ErrNotFound     // 404 with key "not_found"
//	handler.ErrUnauthorized // 401 with key "unauthorized"
//
//	err := handler.NewValidationError()
//	err.Add("url", "must be a valid https URL")
//	return handler.JSONError(err) // 422 with per-field details
//
// # Context
//
// The Context interface extends standard context.Context with HTTP-specific
// accessors:
//
//	ctx.Request()        // access the HTTP request
//	ctx.ResponseWriter()  // access the response writer
//
// # Usage
//
//	import "github.com/hookwise/core/handler"
//
//	http.HandleFunc("/endpoints", handler.Wrap(createEndpoint,
//		handler.WithBinders(
//			binder.BindJSON(),
//		),
//		handler.WithErrorHandler(handler.NewErrorHandler(logger)),
//	))
package handler
