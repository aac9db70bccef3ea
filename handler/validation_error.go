package handler

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError collects per-field validation failures. Multiple messages
// per field are preserved in the order they were added.
type ValidationError map[string][]string

// NewValidationError creates an empty ValidationError ready for Add calls.
func NewValidationError() ValidationError {
	return ValidationError{}
}

// Add appends a message for field. Calling Add multiple times for the same
// field accumulates messages rather than overwriting them.
func (v ValidationError) Add(field, message string) {
	v[field] = append(v[field], message)
}

// Has reports whether field has at least one recorded message.
func (v ValidationError) Has(field string) bool {
	return len(v[field]) > 0
}

// Get returns the first message recorded for field, or "" if none.
func (v ValidationError) Get(field string) string {
	if msgs := v[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// IsEmpty reports whether no field has a recorded message.
func (v ValidationError) IsEmpty() bool {
	return len(v) == 0
}

// Error implements the error interface. It reports the first message of
// every field, sorted by field name for deterministic output.
func (v ValidationError) Error() string {
	if v.IsEmpty() {
		return "Validation failed"
	}

	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, v.Get(field)))
	}

	return "validation error: " + strings.Join(parts, "; ")
}
