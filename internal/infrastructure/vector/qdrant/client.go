package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
	"github.com/kirillkom/raglite/internal/infrastructure/resilience"
)

const (
	payloadTextKey     = "text"
	payloadRecordIDKey = "record_id"
)

// pointNamespace turns non-UUID record ids into stable Qdrant point ids.
var pointNamespace = uuid.MustParse("6f1c3a52-6a0e-4f43-9a43-3b7f2f1d9e10")

// Client serves every logical collection from one Qdrant instance. Each
// collection maps to "<prefix><name>" and is created on first write with
// the embedder's vector size.
type Client struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
	embedder   ports.Embedder
	executor   *resilience.Executor

	ensureMu sync.Mutex
	ensured  map[string]int
}

func New(baseURL, prefix string, embedder ports.Embedder, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		prefix:     prefix,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		embedder:   embedder,
		executor:   executor,
		ensured:    make(map[string]int),
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Upsert(ctx context.Context, collection domain.Collection, ids, texts []string, metadatas []map[string]any) error {
	if len(ids) != len(texts) || len(ids) != len(metadatas) {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("ids/texts/metadatas mismatch: %d/%d/%d", len(ids), len(texts), len(metadatas)))
	}
	if len(ids) == 0 {
		return nil
	}

	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return domain.WrapError(domain.ErrIndexUnavailable, "qdrant upsert", fmt.Errorf("embed: %w", err))
	}
	if len(vectors) != len(ids) {
		return domain.WrapError(domain.ErrIndexUnavailable, "qdrant upsert", fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(ids)))
	}

	name := c.collectionName(collection)
	if err := c.ensureCollection(ctx, name, len(vectors[0])); err != nil {
		return domain.WrapError(domain.ErrIndexUnavailable, "qdrant upsert", err)
	}

	points := make([]point, 0, len(ids))
	for i, id := range ids {
		payload := make(map[string]any, len(metadatas[i])+2)
		for k, v := range metadatas[i] {
			payload[k] = v
		}
		payload[payloadTextKey] = texts[i]
		payload[payloadRecordIDKey] = id
		points = append(points, point{ID: pointID(id), Vector: vectors[i], Payload: payload})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, name)
	err = c.executor.Execute(ctx, "qdrant.upsert", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert")
	}, classifyQdrantError)
	if err != nil {
		return domain.WrapError(domain.ErrIndexUnavailable, "qdrant upsert", err)
	}
	return nil
}

func (c *Client) QueryNearest(ctx context.Context, collection domain.Collection, text string, k int, filter domain.Filter) ([]domain.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "qdrant query", fmt.Errorf("embed: %w", err))
	}

	reqBody := map[string]any{
		"query":        vector,
		"limit":        k,
		"with_payload": true,
	}
	if !filter.IsZero() {
		reqBody["filter"] = map[string]any{
			"must": []map[string]any{
				{
					"key":   filter.Key,
					"match": map[string]any{"value": filter.Value},
				},
			},
		}
	}

	var resp struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collectionName(collection))
	err = c.executor.Execute(ctx, "qdrant.query", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPost, url, reqBody, &resp, "query")
	}, classifyQdrantError)
	if err != nil {
		// collection not created yet: nothing has been written to it
		if isNotFound(err) {
			return nil, nil
		}
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "qdrant query", err)
	}

	out := make([]domain.Match, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		meta := make(map[string]any, len(p.Payload))
		for key, v := range p.Payload {
			if key == payloadTextKey || key == payloadRecordIDKey {
				continue
			}
			meta[key] = v
		}
		id := getStringPayload(p.Payload, payloadRecordIDKey)
		if id == "" {
			id = fmt.Sprintf("%v", p.ID)
		}
		out = append(out, domain.Match{
			ID:       id,
			Text:     getStringPayload(p.Payload, payloadTextKey),
			Metadata: meta,
			Distance: 1 - p.Score,
		})
	}
	return out, nil
}

func (c *Client) Exists(ctx context.Context, collection domain.Collection, id string) (bool, error) {
	var resp struct {
		Result []struct {
			ID any `json:"id"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points", c.baseURL, c.collectionName(collection))
	body := map[string]any{"ids": []string{pointID(id)}, "with_payload": false}
	err := c.executor.Execute(ctx, "qdrant.retrieve", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPost, url, body, &resp, "retrieve")
	}, classifyQdrantError)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, domain.WrapError(domain.ErrIndexUnavailable, "qdrant exists", err)
	}
	return len(resp.Result) > 0, nil
}

func (c *Client) Delete(ctx context.Context, collection domain.Collection, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, 0, len(ids))
	for _, id := range ids {
		points = append(points, pointID(id))
	}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collectionName(collection))
	err := c.executor.Execute(ctx, "qdrant.delete", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPost, url, map[string]any{"points": points}, nil, "delete")
	}, classifyQdrantError)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return domain.WrapError(domain.ErrIndexUnavailable, "qdrant delete", err)
	}
	return nil
}

func (c *Client) Count(ctx context.Context, collection domain.Collection) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/count", c.baseURL, c.collectionName(collection))
	err := c.executor.Execute(ctx, "qdrant.count", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPost, url, map[string]any{"exact": true}, &resp, "count")
	}, classifyQdrantError)
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, domain.WrapError(domain.ErrIndexUnavailable, "qdrant count", err)
	}
	return resp.Result.Count, nil
}

func (c *Client) collectionName(collection domain.Collection) string {
	return c.prefix + string(collection)
}

func (c *Client) ensureCollection(ctx context.Context, name string, vectorSize int) error {
	c.ensureMu.Lock()
	if size, ok := c.ensured[name]; ok && size == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, name)
	err := c.executor.Execute(ctx, "qdrant.ensure_collection", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPut, url, reqBody, nil, "ensure collection")
	}, classifyQdrantError)

	// 409 if it already exists (depends on version/config).
	var statusErr *StatusError
	if err != nil && !(errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict) {
		return err
	}

	c.ensureMu.Lock()
	c.ensured[name] = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(msg)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, e.Body)
}

func isNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

func classifyQdrantError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500 {
			return resilience.Transient
		}
		return resilience.Ignored
	}
	return resilience.Permanent
}

// pointID keeps UUID record ids as they are; Qdrant rejects other strings.
func pointID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

var _ ports.VectorIndex = (*Client)(nil)
