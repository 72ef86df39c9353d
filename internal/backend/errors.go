package backend

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TransportError means an exchange with the service could not complete:
// the connection failed, timed out, or the reply could not be decoded.
// Elapsed is zero when the failure happened after the reply arrived.
type TransportError struct {
	Op      string
	Err     error
	Elapsed time.Duration
}

func (e *TransportError) Error() string {
	if e.Elapsed > 0 {
		return fmt.Sprintf("%s after %s: %v", e.Op, e.Elapsed.Round(time.Millisecond), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the exchange was cut short by a deadline.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// StatusError is a reply with a non-success HTTP status.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
}

// Kind classifies an error returned by Client for diagnostics.
func Kind(err error) string {
	var te *TransportError
	var se *StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &te) && te.Timeout():
		return "timeout"
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &se):
		return "status"
	default:
		return "other"
	}
}
