// Package common defines shared constants and sentinel errors used across
// driftletter components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Validation errors (oversized or malformed submission content,
	// malformed user IDs).
	ErrorInvalidInput = errors.New("invalid input")

	// ErrorInvalidTransition signals an attempted mutation on a letter
	// that already left the waiting state. It marks a race or a
	// programming error and must never be retried: a retry could
	// reassign a delivered letter.
	ErrorInvalidTransition = errors.New("invalid transition")

	// ErrorIOFailure wraps failures of the persistence medium.
	ErrorIOFailure = errors.New("io failure")

	// ErrorSubmissionFailed is the aggregate failure of a letter
	// submission; the underlying cause is attached with %w.
	ErrorSubmissionFailed = errors.New("submission failed")

	// Generic/internal flow control.
	ErrorInternal = errors.New("internal error")
)
