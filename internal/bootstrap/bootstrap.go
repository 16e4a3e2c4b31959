package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/raglite/internal/config"
	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
	"github.com/kirillkom/raglite/internal/core/usecase"
	"github.com/kirillkom/raglite/internal/infrastructure/chunking"
	"github.com/kirillkom/raglite/internal/infrastructure/extractor"
	"github.com/kirillkom/raglite/internal/infrastructure/extractor/html"
	"github.com/kirillkom/raglite/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/raglite/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/raglite/internal/infrastructure/extractor/xlsx"
	"github.com/kirillkom/raglite/internal/infrastructure/fingerprint"
	"github.com/kirillkom/raglite/internal/infrastructure/llm"
	"github.com/kirillkom/raglite/internal/infrastructure/llm/anthropic"
	"github.com/kirillkom/raglite/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/raglite/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/raglite/internal/infrastructure/queue/nats"
	"github.com/kirillkom/raglite/internal/infrastructure/repository/sqlstore"
	"github.com/kirillkom/raglite/internal/infrastructure/resilience"
	"github.com/kirillkom/raglite/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/raglite/internal/infrastructure/vector/boltindex"
	"github.com/kirillkom/raglite/internal/infrastructure/vector/hashembed"
	"github.com/kirillkom/raglite/internal/infrastructure/vector/qdrant"
)

// Options lets each process plug in its own observers.
type Options struct {
	Logger             *slog.Logger
	QueryObserver      usecase.QueryObserver
	IngestObserver     usecase.IngestObserver
	GenerationObserver llm.GenerationObserver
	// WithoutQueue skips the NATS connection even when NATS_URL is set.
	WithoutQueue bool
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	DB    *sqlstore.DB
	Queue *nats.Queue
	Index ports.VectorIndex

	IngestUC      *usecase.IngestDocumentUseCase
	ProcessUC     *usecase.ProcessDocumentUseCase
	QueryUC       *usecase.QueryResolverUseCase
	DocumentSvc   *usecase.DocumentService
	ChatSvc       *usecase.ChatService
	StatsUC       *usecase.StatsUseCase
	MaintenanceUC *usecase.MaintenanceUseCase
	Generator     *llm.Router

	closers []func() error
}

func New(ctx context.Context, cfg config.Config, opts Options) (app *App, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	dialect, err := sqlstore.ParseDialect(cfg.DBDriver)
	if err != nil {
		return app, err
	}
	dsn := cfg.PostgresDSN
	if dialect == sqlstore.DialectSQLite {
		dsn = cfg.SQLitePath
	}
	db, err := sqlstore.Open(dialect, dsn)
	if err != nil {
		return app, fmt.Errorf("open %s: %w", dialect, err)
	}
	app.DB = db
	app.closers = append(app.closers, db.Close)
	if err := db.EnsureSchema(ctx); err != nil {
		return app, fmt.Errorf("ensure schema: %w", err)
	}
	docRepo := sqlstore.NewDocumentRepository(db)
	chatRepo := sqlstore.NewChatRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return app, fmt.Errorf("init object storage: %w", err)
	}

	ollamaClient := ollama.New(
		cfg.OllamaURL,
		cfg.OllamaEmbedModel,
		resilience.NewExecutor(resilience.DefaultConfig()).WithLogger(logger),
	)

	index, err := app.openIndex(cfg, ollamaClient, logger)
	if err != nil {
		return app, err
	}
	app.Index = index

	generator, err := newGenerator(ctx, cfg, ollamaClient, opts.GenerationObserver, logger)
	if err != nil {
		return app, err
	}
	app.Generator = generator

	chunker, err := chunking.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, chunking.IDMode(cfg.ChunkIDMode))
	if err != nil {
		return app, fmt.Errorf("init chunker: %w", err)
	}
	registry := extractor.NewRegistry(storage, cfg.MaxUploadBytes,
		plaintext.New(),
		pdf.New(),
		xlsx.New(),
		html.New(),
	)

	var queue ports.ReindexQueue
	if cfg.NATSURL != "" && !opts.WithoutQueue {
		q, err := nats.NewWithOptions(cfg.NATSURL, cfg.ReindexSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.QueueConfig()).WithLogger(logger),
			Logger:             logger,
		})
		if err != nil {
			return app, fmt.Errorf("init reindex queue: %w", err)
		}
		app.Queue = q
		app.closers = append(app.closers, func() error { q.Close(); return nil })
		queue = q
	}

	app.ProcessUC = usecase.NewProcessDocumentUseCase(docRepo, registry, chunker, index,
		usecase.WithChunkStrategy(domain.ChunkType(cfg.ChunkStrategy)),
		usecase.WithProcessLogger(logger),
	)
	ingestOpts := []usecase.IngestOption{
		usecase.WithMaxUploadBytes(cfg.MaxUploadBytes),
		usecase.WithIngestLogger(logger),
	}
	if opts.IngestObserver != nil {
		ingestOpts = append(ingestOpts, usecase.WithIngestObserver(opts.IngestObserver))
	}
	app.IngestUC = usecase.NewIngestDocumentUseCase(docRepo, storage, fingerprint.NewMD5(), registry, app.ProcessUC, ingestOpts...)

	queryOpts := []usecase.QueryOption{
		usecase.WithSimilarityThreshold(cfg.SimilarityThreshold),
		usecase.WithRetrievalTopK(cfg.RetrievalTopK),
		usecase.WithSimilarityScope(usecase.SimilarityScope(cfg.SimilarityScope)),
		usecase.WithDefaultModel(cfg.DefaultModel),
		usecase.WithTemperature(cfg.DefaultTemperature),
		usecase.WithQueryLogger(logger),
	}
	if opts.QueryObserver != nil {
		queryOpts = append(queryOpts, usecase.WithQueryObserver(opts.QueryObserver))
	}
	app.QueryUC = usecase.NewQueryResolverUseCase(chatRepo, index, generator, queryOpts...)

	app.DocumentSvc = usecase.NewDocumentService(docRepo, storage, index, app.ProcessUC, queue, logger)
	app.ChatSvc = usecase.NewChatService(chatRepo, index)
	app.StatsUC = usecase.NewStatsUseCase(docRepo, chatRepo, index)
	app.MaintenanceUC = usecase.NewMaintenanceUseCase(docRepo, logger)

	return app, nil
}

func (a *App) openIndex(cfg config.Config, ollamaClient *ollama.Client, logger *slog.Logger) (ports.VectorIndex, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendBolt:
		ix, err := boltindex.Open(cfg.BoltIndexPath, hashembed.New(cfg.HashEmbedDims))
		if err != nil {
			return nil, fmt.Errorf("open bolt index: %w", err)
		}
		a.closers = append(a.closers, ix.Close)
		return ix, nil
	case config.VectorBackendQdrant:
		return qdrant.New(
			cfg.QdrantURL,
			cfg.QdrantCollectionPrefix,
			ollama.NewEmbedder(ollamaClient),
			resilience.NewExecutor(resilience.IndexConfig()).WithLogger(logger),
		), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

func newGenerator(ctx context.Context, cfg config.Config, ollamaClient *ollama.Client, observer llm.GenerationObserver, logger *slog.Logger) (*llm.Router, error) {
	providers := map[string]llm.Provider{
		llm.ProviderOllama: ollamaClient,
	}
	if cfg.AnthropicAPIKey != "" {
		providers[llm.ProviderAnthropic] = anthropic.New(cfg.AnthropicAPIKey, cfg.AnthropicMaxTokens)
	}

	endpoints := make([]llm.Endpoint, 0, len(cfg.LLMEndpoints))
	geminiURL := ""
	for _, e := range cfg.LLMEndpoints {
		endpoints = append(endpoints, llm.Endpoint{Model: e.Model, URL: e.URL, Provider: e.Provider})
		if e.Provider == llm.ProviderGemini && geminiURL == "" {
			geminiURL = e.URL
		}
	}
	if cfg.GeminiAPIKey != "" {
		p, err := gemini.New(ctx, cfg.GeminiAPIKey, geminiURL)
		if err != nil {
			return nil, err
		}
		providers[llm.ProviderGemini] = p
	}

	routerOpts := []llm.Option{
		llm.WithTimeout(cfg.GenerationTimeout),
		llm.WithDefaultModel(cfg.DefaultModel),
		llm.WithExecutor(resilience.NewExecutor(resilience.GenerationConfig()).WithLogger(logger)),
		llm.WithLogger(logger),
	}
	if observer != nil {
		routerOpts = append(routerOpts, llm.WithObserver(observer))
	}
	router, err := llm.NewRouter(endpoints, providers, routerOpts...)
	if err != nil {
		return nil, fmt.Errorf("init llm router: %w", err)
	}
	return router, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
