package httpadapter

import (
	"net/http"

	"github.com/kirillkom/raglite/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrDocumentNotFound),
		domain.IsKind(err, domain.ErrChatNotFound),
		domain.IsKind(err, domain.ErrNoRelevantDocuments):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary),
		domain.IsKind(err, domain.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage hides internal detail behind 5xx responses.
func errorMessage(status int, err error) string {
	switch {
	case status == http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	case status >= 500:
		return "internal server error"
	default:
		return err.Error()
	}
}
