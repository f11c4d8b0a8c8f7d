package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/draftwell/docassist/internal/core/domain"
	"github.com/draftwell/docassist/internal/core/ports"
)

// ensureIndexedParallelism bounds concurrent per-source indexing inside one
// EnsureIndexed call. Sources are independent; chunk rows of a single source
// are still replaced as one unit by the chunk store.
const ensureIndexedParallelism = 4

// IndexDocumentUseCase is the ingestion orchestrator: extract, chunk, embed
// (best effort), store. It is the only writer of chunk rows.
type IndexDocumentUseCase struct {
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	chunks    ports.ChunkStore
	storage   ports.ObjectStorage

	embedTimeout time.Duration
}

func NewIndexDocumentUseCase(
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	chunks ports.ChunkStore,
	storage ports.ObjectStorage,
	embedTimeout time.Duration,
) *IndexDocumentUseCase {
	if embedTimeout <= 0 {
		embedTimeout = 30 * time.Second
	}
	return &IndexDocumentUseCase{
		extractor:    extractor,
		chunker:      chunker,
		embedder:     embedder,
		chunks:       chunks,
		storage:      storage,
		embedTimeout: embedTimeout,
	}
}

// IndexDocument runs the full pipeline for one source. Extraction and
// embedding failures degrade the result (zero chunks, or chunks without
// vectors) and surface as a warning; only a chunk-store write failure is an
// error.
func (uc *IndexDocumentUseCase) IndexDocument(ctx context.Context, src *domain.Source, data []byte) (domain.IndexSummary, error) {
	summary := domain.IndexSummary{SourceID: src.ID}
	key := domain.ChunkKey{
		Scope:    domain.Scope{TenantID: src.TenantID, UserID: src.UserID},
		ChatID:   src.ChatID,
		SourceID: src.ID,
	}

	text := uc.extractor.Extract(src.Name, data)
	segments := uc.chunker.Split(text)
	if len(segments) == 0 {
		// Re-index must not leave stale chunks behind even when the new
		// upload yields no text.
		if err := uc.chunks.DeleteChunks(ctx, key); err != nil {
			return summary, fmt.Errorf("delete stale chunks: %w", err)
		}
		summary.Warning = "no extractable text in document"
		return summary, nil
	}

	vectors := uc.embedSegments(ctx, src.TenantID, segments, &summary)

	now := time.Now().UTC()
	rows := make([]domain.Chunk, 0, len(segments))
	for i, segment := range segments {
		var vec []float32
		if i < len(vectors) {
			vec = vectors[i]
		}
		if len(vec) > 0 {
			summary.Embedded++
		}
		rows = append(rows, domain.Chunk{
			TenantID:   src.TenantID,
			UserID:     src.UserID,
			ChatID:     src.ChatID,
			SourceID:   src.ID,
			ChunkIndex: i,
			Content:    segment,
			Embedding:  vec,
			Metadata: map[string]string{
				"source_name": src.Name,
				"chunk_index": strconv.Itoa(i),
				"indexed_at":  now.Format(time.RFC3339),
			},
			CreatedAt: now,
		})
	}

	if err := uc.chunks.ReplaceChunks(ctx, key, rows); err != nil {
		return summary, fmt.Errorf("replace chunks: %w", err)
	}
	summary.Chunks = len(rows)
	return summary, nil
}

// embedSegments calls the embedding gateway with a bounded timeout and
// degrades to no vectors on any failure. Non-finite components are dropped;
// a vector left empty by the filter counts as no embedding.
func (uc *IndexDocumentUseCase) embedSegments(ctx context.Context, tenantID string, segments []string, summary *domain.IndexSummary) [][]float32 {
	embedCtx, cancel := context.WithTimeout(ctx, uc.embedTimeout)
	defer cancel()

	vectors, err := uc.embedder.EmbedTexts(embedCtx, tenantID, segments)
	if err != nil {
		slog.Warn("embedding_unavailable", "tenant_id", tenantID, "segments", len(segments), "error", err)
		summary.Warning = "embeddings unavailable, retrieval will be lexical-only"
		return nil
	}
	if len(vectors) != len(segments) {
		slog.Warn("embedding_count_mismatch", "tenant_id", tenantID, "got", len(vectors), "want", len(segments))
		summary.Warning = "embedding result mismatch, retrieval will be lexical-only"
		return nil
	}

	for i := range vectors {
		vectors[i] = dropNonFinite(vectors[i])
	}
	return vectors
}

func dropNonFinite(vec []float32) []float32 {
	out := vec[:0]
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// EnsureIndexed lazily backfills chunks for sources that have none yet.
// Sources with at least one stored chunk are skipped; a failure indexing one
// source never blocks the others.
func (uc *IndexDocumentUseCase) EnsureIndexed(ctx context.Context, scope domain.Scope, chatID string, sources []domain.Source) error {
	if len(sources) == 0 {
		return nil
	}

	ids := make([]string, 0, len(sources))
	for _, src := range sources {
		ids = append(ids, src.ID)
	}
	counts, err := uc.chunks.CountBySource(ctx, scope, chatID, ids)
	if err != nil {
		return fmt.Errorf("count chunks by source: %w", err)
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(ensureIndexedParallelism)
	for _, src := range sources {
		if counts[src.ID] > 0 {
			continue
		}
		g.Go(func() error {
			if err := uc.indexFromStorage(groupCtx, src); err != nil {
				slog.Warn("ensure_indexed_source_failed",
					"tenant_id", src.TenantID, "chat_id", chatID, "source_id", src.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (uc *IndexDocumentUseCase) indexFromStorage(ctx context.Context, src domain.Source) error {
	reader, err := uc.storage.Open(ctx, src.StoragePath)
	if err != nil {
		return fmt.Errorf("open stored document: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read stored document: %w", err)
	}

	if _, err := uc.IndexDocument(ctx, &src, data); err != nil {
		return err
	}
	return nil
}
