package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/draftwell/docassist/internal/core/domain"
	"github.com/draftwell/docassist/internal/core/ports"
)

// ProcessSourceUseCase indexes an already-uploaded source by id. It is the
// worker-side entry point behind the message queue.
type ProcessSourceUseCase struct {
	sources ports.SourceRepository
	storage ports.ObjectStorage
	indexer ports.DocumentIndexer
}

func NewProcessSourceUseCase(
	sources ports.SourceRepository,
	storage ports.ObjectStorage,
	indexer ports.DocumentIndexer,
) *ProcessSourceUseCase {
	return &ProcessSourceUseCase{
		sources: sources,
		storage: storage,
		indexer: indexer,
	}
}

func (uc *ProcessSourceUseCase) ProcessByID(ctx context.Context, scope domain.Scope, sourceID string) (domain.IndexSummary, error) {
	src, err := uc.sources.GetByID(ctx, scope, sourceID)
	if err != nil {
		return domain.IndexSummary{}, fmt.Errorf("fetch source by id: %w", err)
	}

	reader, err := uc.storage.Open(ctx, src.StoragePath)
	if err != nil {
		return domain.IndexSummary{}, fmt.Errorf("open stored document: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return domain.IndexSummary{}, fmt.Errorf("read stored document: %w", err)
	}

	summary, err := uc.indexer.IndexDocument(ctx, src, data)
	if err != nil {
		return summary, fmt.Errorf("index document: %w", err)
	}
	if summary.Warning != "" {
		slog.Warn("index_degraded",
			"tenant_id", src.TenantID, "source_id", src.ID,
			"chunks", summary.Chunks, "embedded", summary.Embedded,
			"warning", summary.Warning)
	}
	return summary, nil
}
