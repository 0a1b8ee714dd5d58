// Package scraper implements job-board fetching, parsing, and the worker that
// turns one scrape job into persisted postings.
package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/elektrikmusik/linkedin-scraper/internal/jobs"
)

const maxBackoff = 10 * time.Second

// RetryPolicy bounds how often a failed fetch is attempted again.
// Attempt n waits BaseDelay·2^(n-1) before attempt n+1, or the source's
// Retry-After when that is longer. Waits never exceed MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is three attempts with a 500ms initial backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: maxBackoff}
}

// Do runs fn until it succeeds, returns a non-retryable error, attempts run
// out, or ctx is done. It returns the last error from fn, or ctx's error
// if cancelled while waiting.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.attempts()
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = maxBackoff
	}

	var err error
	delay := p.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !jobs.KindOf(err).IsRetryable() || attempt == attempts {
			return err
		}

		wait := delay
		var ra *retryAfterError
		if errors.As(err, &ra) && ra.after > wait {
			wait = ra.after
		}
		if wait > maxDelay {
			wait = maxDelay
		}
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		delay *= 2
	}
	return err
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// retryAfterError carries the source's Retry-After hint.
type retryAfterError struct {
	after time.Duration
	err   error
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }
