package ollama

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/infrastructure/resilience"
)

// classifyEmbedError drives retries for /api/embed. Client errors other
// than 408 and 429 are the request's fault and leave the breaker alone.
func classifyEmbedError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return resilience.Transient
		}
		if statusErr.StatusCode >= 500 {
			return resilience.Transient
		}
		return resilience.Ignored
	}
	return resilience.Permanent
}

// classifyGenerateError maps a failed /api/generate call onto the
// generation failure kinds. A 404 from Ollama means the model is not pulled.
func classifyGenerateError(err error) error {
	const op = "ollama generate"

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusNotFound {
			return domain.WrapError(domain.ErrModelNotFound, op, err)
		}
		return domain.WrapError(domain.ErrGenerationTransport, op, err)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.ErrGenerationTimeout, op, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.WrapError(domain.ErrGenerationTimeout, op, err)
	case errors.As(err, &netErr), errors.Is(err, context.Canceled):
		return domain.WrapError(domain.ErrGenerationTransport, op, err)
	default:
		return domain.WrapError(domain.ErrGenerationUnexpected, op, err)
	}
}
