package jobs

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the stable code exposed in a failed job's error field and
// returned to callers of Submit.
type ErrorKind string

const (
	// Returned synchronously by Submit; no job is created.
	KindUnknownCollection ErrorKind = "UnknownCollection"
	KindInvalidLimit      ErrorKind = "InvalidLimit"
	KindUnauthenticated   ErrorKind = "Unauthenticated"

	// Raised while a worker runs; retried before they fail a job.
	KindSourceUnreachable ErrorKind = "SourceUnreachable"
	KindRateLimited       ErrorKind = "RateLimited"
	KindParseFailure      ErrorKind = "ParseFailure"

	KindCancelled ErrorKind = "Cancelled"
	KindInternal  ErrorKind = "Internal"
)

var (
	// ErrNotFound is returned when a job id is unknown.
	ErrNotFound = errors.New("job not found")
	// ErrTerminal is returned when mutating a completed or failed job.
	ErrTerminal = errors.New("job already finished")
	// ErrShuttingDown is returned by Submit once Shutdown has started.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// Error carries a kind, a user-facing message, and the internal cause. Only
// Kind and Msg ever reach a job's status payload.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err. Context cancellation maps to
// KindCancelled; anything unrecognised is KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// IsRetryable reports whether an error of this kind is worth another attempt.
func (k ErrorKind) IsRetryable() bool {
	switch k {
	case KindSourceUnreachable, KindRateLimited, KindParseFailure:
		return true
	}
	return false
}

// publicMessage is the text shown for err in a job's message field.
func publicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	switch KindOf(err) {
	case KindCancelled:
		return "Scrape cancelled"
	case KindSourceUnreachable:
		return "Source unreachable"
	case KindRateLimited:
		return "Rate limited by source"
	case KindParseFailure:
		return "Could not parse source page"
	}
	return "Scrape failed"
}
