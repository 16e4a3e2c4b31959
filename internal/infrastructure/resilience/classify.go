package resilience

import (
	"errors"
	"net"

	"github.com/kirillkom/raglite/internal/core/domain"
)

var (
	// Transient failures are retried and count against the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Permanent failures count against the breaker but are not retried.
	Permanent = ErrorClassification{RecordFailure: true}
	// Ignored failures are the caller's doing: a cancelled context, a 4xx.
	Ignored = ErrorClassification{}
)

// ClassifyCommon covers what every remote dependency shares: context
// errors are ignored, an open breaker and network errors are transient.
// ok is false when the caller has to decide.
func ClassifyCommon(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return Ignored, true
	case IsContextError(err):
		return Ignored, true
	case IsCircuitOpen(err):
		return Transient, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient, true
	}
	return ErrorClassification{}, false
}

// WrapTemporary marks err as domain.ErrTemporary when classify would retry
// it, so the HTTP layer answers 503 instead of 500.
func WrapTemporary(operation string, err error, classify ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if IsCircuitOpen(err) || (classify != nil && classify(err).Retryable) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
