package binder

import "errors"

// Common binding errors
var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrInvalidJSON          = errors.New("invalid JSON")
	ErrInvalidForm          = errors.New("invalid form data")
	ErrInvalidQuery         = errors.New("invalid query parameter")
	ErrInvalidPath          = errors.New("invalid path parameter")
	ErrMissingContentType   = errors.New("missing content type")

	// ErrBinderNotApplicable signals that a binder declines to handle the
	// request (e.g. wrong content type for a multi-binder chain) and Wrap
	// should move on to the next binder instead of failing the request.
	ErrBinderNotApplicable = errors.New("binder not applicable")
)
