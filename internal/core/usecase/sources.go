package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/draftwell/docassist/internal/core/domain"
	"github.com/draftwell/docassist/internal/core/ports"
)

// SourceAdminUseCase exposes source metadata reads and full deletion: the
// metadata row, the indexed chunks, and the stored blob.
type SourceAdminUseCase struct {
	sources ports.SourceRepository
	chunks  ports.ChunkStore
	storage ports.ObjectStorage
}

func NewSourceAdminUseCase(
	sources ports.SourceRepository,
	chunks ports.ChunkStore,
	storage ports.ObjectStorage,
) *SourceAdminUseCase {
	return &SourceAdminUseCase{
		sources: sources,
		chunks:  chunks,
		storage: storage,
	}
}

func (uc *SourceAdminUseCase) GetByID(ctx context.Context, scope domain.Scope, id string) (*domain.Source, error) {
	if !scope.Valid() {
		return nil, domain.WrapError(domain.ErrUnauthorized, "get source", fmt.Errorf("missing tenant or user"))
	}
	return uc.sources.GetByID(ctx, scope, id)
}

// Delete removes chunks first so a failure partway leaves the source
// re-indexable rather than orphaned.
func (uc *SourceAdminUseCase) Delete(ctx context.Context, scope domain.Scope, id string) error {
	if !scope.Valid() {
		return domain.WrapError(domain.ErrUnauthorized, "delete source", fmt.Errorf("missing tenant or user"))
	}

	src, err := uc.sources.GetByID(ctx, scope, id)
	if err != nil {
		return err
	}

	key := domain.ChunkKey{Scope: scope, ChatID: src.ChatID, SourceID: src.ID}
	if err := uc.chunks.DeleteChunks(ctx, key); err != nil {
		return fmt.Errorf("delete source chunks: %w", err)
	}

	if err := uc.sources.Delete(ctx, scope, id); err != nil {
		return err
	}

	if err := uc.storage.Delete(ctx, src.StoragePath); err != nil {
		slog.Warn("source_blob_delete_failed", "source_id", id, "error", err)
	}
	return nil
}
