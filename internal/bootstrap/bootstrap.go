package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/draftwell/docassist/internal/config"
	"github.com/draftwell/docassist/internal/core/ports"
	"github.com/draftwell/docassist/internal/core/usecase"
	"github.com/draftwell/docassist/internal/infrastructure/chunking"
	"github.com/draftwell/docassist/internal/infrastructure/extractor"
	"github.com/draftwell/docassist/internal/infrastructure/llm/openaiapi"
	"github.com/draftwell/docassist/internal/infrastructure/queue/nats"
	"github.com/draftwell/docassist/internal/infrastructure/repository/postgres"
	"github.com/draftwell/docassist/internal/infrastructure/resilience"
	"github.com/draftwell/docassist/internal/infrastructure/storage/localfs"
)

// App wires the full dependency graph once for both processes; api and
// worker pick the pieces they serve.
type App struct {
	Config config.Config

	Queue     *nats.Queue
	IngestUC  ports.DocumentIngestor
	ProcessUC ports.SourceProcessor
	QueryUC   ports.QueryService
	SourceUC  *usecase.SourceAdminUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db, cfg.EmbedDimension); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	capability, err := postgres.DetectCapability(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("detect vector capability: %w", err)
	}
	slog.Info("vector_capability", "mode", capability.String())

	sources := postgres.NewSourceRepository(db)
	chunks := postgres.NewChunkStore(db, capability, cfg.EmbedDimension)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	provider := openaiapi.New(cfg.ProviderURL, cfg.ProviderAPIKey, cfg.ProviderEmbedModel, cfg.ProviderChatModel, openaiapi.Options{
		Timeout:  cfg.ProviderTimeout,
		Executor: executor,
	})
	embedder := openaiapi.NewEmbedder(provider)
	completer := openaiapi.NewCompleter(provider)

	textExtractor := extractor.New(cfg.ExtractMaxChars)
	splitter := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.MaxChunks)

	indexUC := usecase.NewIndexDocumentUseCase(textExtractor, splitter, embedder, chunks, storage, cfg.EmbedTimeout)
	ingestUC := usecase.NewIngestDocumentUseCase(sources, storage, queue)
	processUC := usecase.NewProcessSourceUseCase(sources, storage, indexUC)
	retrieveUC := usecase.NewRetrieveUseCase(embedder, chunks, cfg.RAGTopK, cfg.RetrievalScanLimit)
	queryUC := usecase.NewAnswerQueryUseCase(sources, usecase.NewScopeResolver(), indexUC, retrieveUC, completer, cfg.RAGTopK, cfg.MaxContextChars)
	sourceUC := usecase.NewSourceAdminUseCase(sources, chunks, storage)

	return &App{
		Config: cfg,

		Queue:     queue,
		IngestUC:  ingestUC,
		ProcessUC: processUC,
		QueryUC:   queryUC,
		SourceUC:  sourceUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
