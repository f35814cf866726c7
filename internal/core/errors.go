package core

import (
	"errors"
	"fmt"
)

// ErrIndexingInProgress is returned when a retrain is triggered for an item
// that already has an indexing run in flight.
var ErrIndexingInProgress = errors.New("indexing already in progress for this item")

// ValidationError rejects malformed input before any side effect.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// QuotaError denies a turn because a monthly limit is reached. Reason
// distinguishes which limit tripped.
type QuotaError struct {
	Reason string // "messages" or "tokens"
	Used   int
	Limit  int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("monthly %s limit reached (%d/%d)", e.Reason, e.Used, e.Limit)
}

// CompletionErrorKind classifies completion-provider failures so the API
// layer can map them to distinct statuses.
type CompletionErrorKind string

const (
	CompletionAuth        CompletionErrorKind = "auth"
	CompletionRateLimited CompletionErrorKind = "rate_limited"
	CompletionTimeout     CompletionErrorKind = "timeout"
	CompletionGeneric     CompletionErrorKind = "generic"
)

// CompletionError wraps a provider failure. The underlying error is logged,
// never rendered to clients.
type CompletionError struct {
	Kind CompletionErrorKind
	Err  error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed (%s): %v", e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }
