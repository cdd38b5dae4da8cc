package fipe

import (
	"errors"
	"fmt"
)

// RateLimitedError reports that an operation exhausted its backoff budget
// against upstream throttling. Callers treat it as a soft failure: skip the
// item, count it, move on.
type RateLimitedError struct {
	Operation string
	Attempts  int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited after %d attempts", e.Operation, e.Attempts)
}

// IsRateLimited reports whether err is (or wraps) a RateLimitedError.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// StatusError is a non-429 HTTP failure from the upstream.
type StatusError struct {
	Operation string
	Code      int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Operation, e.Code)
}
