package httpadapter

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kirillkom/raglite/internal/core/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// queryRequest accepts the question under either "query" or "question".
type queryRequest struct {
	Query      string `json:"query" validate:"omitempty,max=1000"`
	Question   string `json:"question" validate:"omitempty,max=1000"`
	DocumentID string `json:"document_id" validate:"omitempty,uuid"`
	Model      string `json:"model" validate:"omitempty,max=50"`
}

func (r queryRequest) toDomain() (domain.QueryRequest, error) {
	if err := validate.Struct(r); err != nil {
		return domain.QueryRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode query", describeValidation(err))
	}
	text := strings.TrimSpace(r.Query)
	if text == "" {
		text = strings.TrimSpace(r.Question)
	}
	if text == "" {
		return domain.QueryRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode query", errors.New("query is required"))
	}
	return domain.QueryRequest{
		Text:       text,
		DocumentID: strings.TrimSpace(r.DocumentID),
		Model:      strings.TrimSpace(r.Model),
	}, nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		case "uuid":
			parts = append(parts, fmt.Sprintf("%s must be a valid UUID", fe.Field()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(parts, "; "))
}

type queryResponse struct {
	Answer          string                 `json:"answer"`
	Source          domain.QuerySource     `json:"source"`
	ChatID          string                 `json:"chat_id"`
	SourceChunks    []domain.ChunkMetadata `json:"source_chunks"`
	SimilarityScore *float64               `json:"similarity_score,omitempty"`
	ChunksUsed      *int                   `json:"chunks_used,omitempty"`
}

func newQueryResponse(out domain.Outcome) queryResponse {
	resp := queryResponse{
		Answer:          out.Answer,
		Source:          out.Source(),
		ChatID:          out.ChatID,
		SourceChunks:    out.SourceChunks,
		SimilarityScore: out.SimilarityScore,
	}
	if resp.SourceChunks == nil {
		resp.SourceChunks = []domain.ChunkMetadata{}
	}
	if out.Kind == domain.OutcomeGenerated {
		used := out.ChunksUsed
		resp.ChunksUsed = &used
	}
	return resp
}

type messageResponse struct {
	Message string `json:"message"`
}

type uploadResponse struct {
	Message    string                    `json:"message"`
	Document   *domain.Document          `json:"document,omitempty"`
	Processing *domain.ProcessingSummary `json:"processing,omitempty"`
	Error      string                    `json:"error,omitempty"`
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type healthResponse struct {
	Status      string             `json:"status"`
	Database    string             `json:"database"`
	VectorIndex *domain.IndexStats `json:"vector_index,omitempty"`
	Models      []string           `json:"models,omitempty"`
}
