package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrChatNotFound     = errors.New("chat not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")

	ErrDuplicateDocument  = errors.New("document already exists")
	ErrDocumentProcessing = errors.New("document processing failed")

	ErrIndexUnavailable    = errors.New("vector index unavailable")
	ErrNoRelevantDocuments = errors.New("no relevant documents")

	ErrModelNotFound        = errors.New("model not found")
	ErrGenerationTransport  = errors.New("generation transport error")
	ErrGenerationTimeout    = errors.New("generation timed out")
	ErrGenerationUnexpected = errors.New("generation unexpected error")
	ErrEmptyGeneration      = errors.New("empty generation result")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindOf returns the first known kind carried by err, or nil.
func KindOf(err error) error {
	for _, kind := range knownKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

var knownKinds = []error{
	ErrModelNotFound,
	ErrGenerationTimeout,
	ErrGenerationTransport,
	ErrGenerationUnexpected,
	ErrEmptyGeneration,
	ErrIndexUnavailable,
	ErrNoRelevantDocuments,
	ErrDuplicateDocument,
	ErrDocumentProcessing,
	ErrDocumentNotFound,
	ErrChatNotFound,
	ErrInvalidInput,
	ErrTemporary,
}
