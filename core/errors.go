package core

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline. Callers classify with
// errors.Is / errors.As rather than matching message text.
var (
	// ErrNotFound marks a missing video or transcript. Batch indexing
	// skips it; single-item calls surface it.
	ErrNotFound = errors.New("not found")

	// ErrNoTranscript marks a video with no transcript and no
	// transcriber configured to generate one.
	ErrNoTranscript = errors.New("no transcript available")

	// ErrBackendUnavailable marks an unreachable vector store or model
	// backend. At the search boundary it distinguishes "search failed"
	// from "confidently zero results".
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// ValidationError reports a user-correctable problem with a query or
// its parameters. It is never logged as a system fault.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for one parameter.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ParseError reports an unreadable or cue-less caption file.
type ParseError struct {
	Path   string
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Path, e.Reason, e.Cause)
	}
	return fmt.Sprintf("parse %s: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// RateLimitError marks a retryable rate-limit rejection from the model
// backend. The model client classifies these structurally; nothing in
// the pipeline matches on error message text.
type RateLimitError struct {
	Cause error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %v", e.Cause)
}

func (e *RateLimitError) Unwrap() error { return e.Cause }

// IsRateLimit reports whether err is classified as a rate limit.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// MalformedRecordError reports a record that could not be coerced into
// its typed form. Such records are dropped with a warning, never fatal
// to a batch.
type MalformedRecordError struct {
	Field string
	Value any
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record: field %q has value %v", e.Field, e.Value)
}

// NewMalformedRecord builds a MalformedRecordError for one field.
func NewMalformedRecord(field string, value any) *MalformedRecordError {
	return &MalformedRecordError{Field: field, Value: value}
}
