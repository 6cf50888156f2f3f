package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrPrecondition marks a failure the subject's data makes impossible to ever
// satisfy.
var ErrPrecondition = errors.New("precondition not met")

// ErrNotConfigured is returned when a collaborator has no endpoint.
var ErrNotConfigured = errors.New("collaborator not configured")

// DeliveryError carries the retry classification of a collaborator failure.
type DeliveryError struct {
	Transient  bool
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s delivery error (status %d): %v", kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s delivery error: %v", kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func TransientError(err error) error {
	return &DeliveryError{Transient: true, Err: err}
}

func PermanentError(err error) error {
	return &DeliveryError{Err: err}
}

// ClassifyStatus maps a non 2xx HTTP status to a DeliveryError: timeouts,
// throttling and server errors are worth retrying, everything else is not.
func ClassifyStatus(code int, detail string) error {
	err := &DeliveryError{StatusCode: code, Err: fmt.Errorf("%s: %s", http.StatusText(code), detail)}
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		err.Transient = true
	}
	return err
}

// OutcomeFromError classifies an adapter error. Anything not explicitly
// permanent is retried; the attempt budget bounds the cost of being wrong.
func OutcomeFromError(err error) Outcome {
	if err == nil {
		return Done("")
	}
	if errors.Is(err, ErrPrecondition) {
		return Impossible(err.Error())
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		if de.Transient {
			return Transient(err.Error())
		}
		return Permanent(err.Error())
	}
	if errors.Is(err, ErrNotConfigured) {
		return Permanent(err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient("timeout: " + err.Error())
	}
	return Transient(err.Error())
}
