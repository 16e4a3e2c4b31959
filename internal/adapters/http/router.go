package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kirillkom/raglite/internal/config"
	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
	"github.com/kirillkom/raglite/internal/observability/metrics"
)

// HealthChecker reports whether the relational store is reachable.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// ModelLister reports the generation models the server can route to.
type ModelLister interface {
	Models() []string
}

type Dependencies struct {
	Ingest    ports.DocumentIngestor
	Query     ports.QueryResolver
	Documents ports.DocumentService
	Chats     ports.ChatService
	Stats     ports.StatsReader

	// Optional.
	Database HealthChecker
	Models   ModelLister
	Metrics  *metrics.HTTPServerMetrics
	Logger   *slog.Logger
}

type Router struct {
	cfg       config.Config
	deps      Dependencies
	validator *requestValidator
	logger    *slog.Logger
}

func NewRouter(cfg config.Config, deps Dependencies) (*Router, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:       cfg,
		deps:      deps,
		validator: validator,
		logger:    logger,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /ragengine/documents/upload/{$}", rt.uploadDocument)
	api.HandleFunc("GET /ragengine/documents/{$}", rt.listDocuments)
	api.HandleFunc("GET /ragengine/documents/{id}/{$}", rt.getDocument)
	api.HandleFunc("DELETE /ragengine/documents/{id}/{$}", rt.deleteDocument)
	api.HandleFunc("POST /ragengine/documents/{id}/reindex/{$}", rt.reindexDocument)
	api.HandleFunc("POST /ragengine/chats/query/{$}", rt.queryChat)
	api.HandleFunc("GET /ragengine/chats/{$}", rt.listChats)
	api.HandleFunc("GET /ragengine/chats/{id}/{$}", rt.getChat)
	api.HandleFunc("DELETE /ragengine/chats/{id}/{$}", rt.deleteChat)
	api.HandleFunc("GET /ragengine/stats/{$}", rt.stats)

	onReject := func(string) {}
	if rt.deps.Metrics != nil {
		onReject = rt.deps.Metrics.RecordRejected
	}
	var limited http.Handler = rt.validator.middleware(api)
	limited = backpressureMiddleware(limited, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, onReject)
	limited = rateLimitMiddleware(limited, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", rt.health)
	mux.Handle("/ragengine/", limited)
	if rt.deps.Metrics != nil {
		mux.Handle("GET /metrics", rt.deps.Metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware("api", handler)
	}
	return requestIDMiddleware(accessLogMiddleware(rt.logger, handler))
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK

	if rt.deps.Database != nil {
		if err := rt.deps.Database.PingContext(r.Context()); err != nil {
			rt.logger.Warn("health_database_unreachable", "error", err)
			resp.Database = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	if rt.deps.Stats != nil {
		stats, err := rt.deps.Stats.Stats(r.Context())
		if err != nil {
			rt.logger.Warn("health_stats_failed", "error", err)
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			resp.VectorIndex = &stats.VectorIndex
		}
	}
	if rt.deps.Models != nil {
		resp.Models = rt.deps.Models.Models()
	}
	writeJSON(w, status, resp)
}

func (rt *Router) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.deps.Stats.Stats(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		status = http.StatusRequestEntityTooLarge
		err = fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
	}
	if status >= 500 {
		rt.logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": errorMessage(status, err)})
}

func parseListOptions(r *http.Request) (domain.ListOptions, error) {
	var opts domain.ListOptions
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return opts, domain.WrapError(domain.ErrInvalidInput, "parse list options", fmt.Errorf("limit must be a positive integer"))
		}
		opts.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, domain.WrapError(domain.ErrInvalidInput, "parse list options", fmt.Errorf("offset must be a non-negative integer"))
		}
		opts.Offset = n
	}
	return opts.Normalize(), nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
