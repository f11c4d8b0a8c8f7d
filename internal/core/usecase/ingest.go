package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/draftwell/docassist/internal/core/domain"
	"github.com/draftwell/docassist/internal/core/ports"
)

// maxUploadBytes bounds a single uploaded document.
const maxUploadBytes = 50 << 20

type IngestDocumentUseCase struct {
	sources ports.SourceRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(
	sources ports.SourceRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		sources: sources,
		storage: storage,
		queue:   queue,
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	scope domain.Scope,
	chatID, filename, mimeType string,
	body io.Reader,
) (*domain.Source, error) {
	if !scope.Valid() {
		return nil, domain.WrapError(domain.ErrUnauthorized, "upload document", fmt.Errorf("missing tenant or user"))
	}
	if chatID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("chat id is required"))
	}

	raw, err := io.ReadAll(io.LimitReader(body, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload body: %w", err)
	}
	if len(raw) > maxUploadBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("file exceeds %d bytes", maxUploadBytes))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s/%s/%s_%s", scope.TenantID, scope.UserID, id, sanitizeFilename(filename))

	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	src := &domain.Source{
		ID:          id,
		TenantID:    scope.TenantID,
		UserID:      scope.UserID,
		ChatID:      chatID,
		Name:        filename,
		MimeType:    mimeType,
		StoragePath: storageKey,
		SizeBytes:   int64(len(raw)),
		CreatedAt:   time.Now().UTC(),
	}

	if err := uc.sources.Create(ctx, src); err != nil {
		return nil, fmt.Errorf("create source metadata: %w", err)
	}

	event := domain.IngestEvent{
		TenantID:   scope.TenantID,
		UserID:     scope.UserID,
		SourceID:   src.ID,
		UploadedAt: src.CreatedAt,
	}
	if err := uc.queue.PublishSourceUploaded(ctx, event); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	return src, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
