package ports

import (
	"context"
	"io"

	"github.com/draftwell/docassist/internal/core/domain"
)

// SourceRepository persists source document metadata.
type SourceRepository interface {
	Create(ctx context.Context, src *domain.Source) error
	GetByID(ctx context.Context, scope domain.Scope, id string) (*domain.Source, error)
	ListByChat(ctx context.Context, scope domain.Scope, chatID string) ([]domain.Source, error)
	Delete(ctx context.Context, scope domain.Scope, id string) error
}

// ChunkStore owns chunk rows. The ingestion orchestrator is the only writer;
// the retrieval engine only reads.
type ChunkStore interface {
	Capability() domain.VectorCapability
	ReplaceChunks(ctx context.Context, key domain.ChunkKey, chunks []domain.Chunk) error
	DeleteChunks(ctx context.Context, key domain.ChunkKey) error
	CountBySource(ctx context.Context, scope domain.Scope, chatID string, sourceIDs []string) (map[string]int, error)

	// SearchNearest orders by the native distance operator; valid only in
	// CapabilityNative mode.
	SearchNearest(ctx context.Context, scope domain.Scope, chatID string, sourceIDs []string, queryVector []float32, limit int) ([]domain.ChunkHit, error)
	// ScanEmbedded returns rows with a stored vector for in-process scoring.
	ScanEmbedded(ctx context.Context, scope domain.Scope, chatID string, sourceIDs []string, limit int) ([]domain.ChunkHit, error)
	// ScanContent returns rows regardless of embedding, for lexical scoring.
	ScanContent(ctx context.Context, scope domain.Scope, chatID string, sourceIDs []string, limit int) ([]domain.ChunkHit, error)
}

// ObjectStorage stores the raw uploaded bytes.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes source-uploaded events.
type MessageQueue interface {
	PublishSourceUploaded(ctx context.Context, event domain.IngestEvent) error
	SubscribeSourceUploaded(ctx context.Context, handler func(context.Context, domain.IngestEvent) error) error
}

// TextExtractor converts raw file bytes into plain text. It never fails;
// unsupported or corrupt input yields an empty string.
type TextExtractor interface {
	Extract(name string, data []byte) string
}

// Chunker splits normalized text into bounded, overlapping segments.
type Chunker interface {
	Split(text string) []string
}

// Embedder builds vectors for chunk batches and query text. Callers must
// treat it as optional: a failed call degrades to lexical-only retrieval.
type Embedder interface {
	EmbedTexts(ctx context.Context, tenantID string, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, tenantID string, text string) ([]float32, error)
}

// Completer turns assembled context plus the question into an answer.
type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, maxTokens int) (string, error)
	CompleteStream(ctx context.Context, messages []domain.ChatMessage, maxTokens int, emit func(delta string) error) error
}
