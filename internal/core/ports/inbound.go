package ports

import (
	"context"
	"io"

	"github.com/draftwell/docassist/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload: bytes and
// metadata are persisted and an indexing event is published, the pipeline
// itself runs out of band.
type DocumentIngestor interface {
	Upload(ctx context.Context, scope domain.Scope, chatID, filename, mimeType string, body io.Reader) (*domain.Source, error)
}

// DocumentIndexer runs the full ingestion pipeline for one source document
// and reports how many chunks were stored and embedded.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, src *domain.Source, data []byte) (domain.IndexSummary, error)
	EnsureIndexed(ctx context.Context, scope domain.Scope, chatID string, sources []domain.Source) error
}

// SourceProcessor is the inbound contract for asynchronous indexing of an
// already-uploaded source. The summary is returned even when indexing
// degraded, so the caller can account for lexical-only sources.
type SourceProcessor interface {
	ProcessByID(ctx context.Context, scope domain.Scope, sourceID string) (domain.IndexSummary, error)
}

// QueryService answers one chat turn, retrieving document context when the
// resolved source scope is non-empty.
type QueryService interface {
	AnswerQuery(ctx context.Context, scope domain.Scope, chatID, question string, explicitSources []string) (*domain.QueryResult, error)
	AnswerQueryStream(ctx context.Context, scope domain.Scope, chatID, question string, explicitSources []string, emit func(delta string) error) (*domain.QueryResult, error)
}

// SourceReader is the inbound read model for source metadata.
type SourceReader interface {
	GetByID(ctx context.Context, scope domain.Scope, id string) (*domain.Source, error)
}

// SourceRemover deletes a source together with its chunks and stored blob.
type SourceRemover interface {
	Delete(ctx context.Context, scope domain.Scope, id string) error
}
