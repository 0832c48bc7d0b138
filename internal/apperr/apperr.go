// Package apperr defines the error taxonomy shared by the pipeline
// orchestrators. Every failure that crosses a package boundary carries a
// Kind, so callers can decide between aborting the whole call (fatal kinds)
// and recording the failure in a per-item result slot (isolated kinds).
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindExtraction: the source document could not be read. Fatal.
	KindExtraction Kind = "extraction"

	// KindGeneration: the language-model provider failed after retries. Fatal.
	KindGeneration Kind = "generation"

	// KindImageGeneration: image provider or download failure. Isolated per asset.
	KindImageGeneration Kind = "image_generation"

	// KindStorageUpload: durable storage write failure. Isolated per asset.
	KindStorageUpload Kind = "storage_upload"

	// KindAuth: invalid or expired bearer token. Fatal, before any remote side effect.
	KindAuth Kind = "auth"

	// KindPlatformAPI: course-authoring platform error. Fatal for course
	// creation, isolated for section creation.
	KindPlatformAPI Kind = "platform_api"

	// KindTimeout: a fan-out job exceeded its deadline. Isolated.
	KindTimeout Kind = "timeout"

	// KindInvalidInput: caller-side contract violation. Never retried.
	KindInvalidInput Kind = "invalid_input"
)

// Error is a classified pipeline error.
type Error struct {
	Kind      Kind
	Msg       string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Transient marks an error as retryable under the fan-out retry policy.
func Transient(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Retryable: true, Err: err}
}

// KindOf returns the Kind of err, or "" if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTransient reports whether err should be retried. Context deadline
// expiry counts as transient: the per-attempt deadline may simply have
// been too tight, and the retry loop re-checks the overall deadline.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
