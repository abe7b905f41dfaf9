package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Typed failures raised by the client. The client never retries internally;
// retry policy belongs to the caller.
var (
	// ErrTimeout indicates the request did not complete within its deadline.
	ErrTimeout = errors.New("exchange: request timed out")

	// ErrRateLimited indicates the exchange throttled the request.
	ErrRateLimited = errors.New("exchange: rate limited")

	// ErrUnavailable indicates a server-side failure (5xx).
	ErrUnavailable = errors.New("exchange: unavailable")
)

// RejectedError is a terminal rejection by the exchange (invalid size,
// insufficient balance, unknown order, ...). Not retriable.
type RejectedError struct {
	Code   string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("exchange: rejected (code %s): %s", e.Code, e.Reason)
}

// IsTransient reports whether the error is worth retrying with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable)
}

// classifyNetErr maps a transport-level error onto the taxonomy.
func classifyNetErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
