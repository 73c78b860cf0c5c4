package usecase

import (
	"errors"
	"fmt"
	"net/http"

	"support-router/internal/domain"
)

type ErrorCode string

const (
	// ErrorInvalidInput is a caller mistake; retrying the same request fails again.
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorRateLimited  ErrorCode = "RATE_LIMITED"
	// ErrorUpstream means the classification backend was unavailable.
	ErrorUpstream ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal ErrorCode = "INTERNAL_ERROR"
)

// Error is the only error type Process returns. Reason is a stable
// snake_case label for logs and metrics.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err == nil:
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	default:
		return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool {
	return e != nil && (e.Code == ErrorUpstream || e.Code == ErrorRateLimited)
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// routingError maps a router failure onto the usecase taxonomy. Only an
// unavailable classifier is upstream; a 429 from it is rate limiting.
func routingError(err error) *Error {
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		return newError(ErrorInternal, "routing_error", err)
	}
	var statusErr httpStatusCoder
	if errors.As(err, &statusErr) && statusErr.HTTPStatusCode() == http.StatusTooManyRequests {
		return newError(ErrorRateLimited, "classifier_rate_limited", err)
	}
	return newError(ErrorUpstream, "classifier_unavailable", err)
}
