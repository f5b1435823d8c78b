package backend

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	"ghostd/pkg/types"
)

// Error is a classified backend failure. The coordinator decides retry and
// status behavior from Kind alone.
type Error struct {
	Kind    types.FailureKind
	Backend string
	// RetryAfter is the provider's hint for rate-limit failures, zero if absent.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Backend != "" {
		msg = e.Backend + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind types.FailureKind, backend string, err error) *Error {
	return &Error{Kind: kind, Backend: backend, Err: err}
}

// ErrNoBackend is returned by Select when no descriptor may be used.
var ErrNoBackend = &Error{Kind: types.FailureBackendUnavailable, Err: errors.New("no healthy backend")}

// ErrUnavailable builds a BackendUnavailable failure, e.g. a missing runtime.
func ErrUnavailable(backend, msg string) error {
	return newError(types.FailureBackendUnavailable, backend, errors.New(msg))
}

// ErrAcceleratorLoad wraps a model load failure on a local accelerator.
func ErrAcceleratorLoad(backend string, err error) error {
	return newError(types.FailureAcceleratorLoad, backend, err)
}

// Classify maps any error returned by a backend call to a FailureKind.
func Classify(err error) types.FailureKind {
	if err == nil {
		return types.FailureNone
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.FailureTimeout
	case errors.Is(err, context.Canceled):
		return types.FailureCanceled
	}
	var ne net.Error
	var ue *url.Error
	if errors.As(err, &ne) || errors.As(err, &ue) {
		return types.FailureNetwork
	}
	return types.FailureBadResponse
}

// RetryAfter returns the rate-limit hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var be *Error
	if errors.As(err, &be) {
		return be.RetryAfter
	}
	return 0
}

// IsAuth reports whether err is a credential rejection.
func IsAuth(err error) bool { return Classify(err) == types.FailureAuth }

// IsRateLimited reports whether the provider throttled the request.
func IsRateLimited(err error) bool { return Classify(err) == types.FailureRateLimited }

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool { return Classify(err).Retryable() }

// IsAcceleratorLoad reports whether a local accelerator failed to load a model.
func IsAcceleratorLoad(err error) bool { return Classify(err) == types.FailureAcceleratorLoad }

// IsBackendUnavailable reports whether no backend could serve the request,
// e.g. a missing model file or an unknown provider.
func IsBackendUnavailable(err error) bool { return Classify(err) == types.FailureBackendUnavailable }
