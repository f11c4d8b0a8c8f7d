package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/draftwell/docassist/internal/core/domain"
)

// ChunkStore persists and reads chunk rows. The capability decides how
// embeddings are stored and queried: pgvector column with the <=> operator,
// plain real[] scanned in the application, or lexical-only.
type ChunkStore struct {
	db         *sql.DB
	capability domain.VectorCapability
	targetDim  int
}

func NewChunkStore(db *sql.DB, capability domain.VectorCapability, targetDim int) *ChunkStore {
	if targetDim <= 0 {
		targetDim = 1536
	}
	return &ChunkStore{
		db:         db,
		capability: capability,
		targetDim:  targetDim,
	}
}

func (s *ChunkStore) Capability() domain.VectorCapability {
	return s.capability
}

// ReplaceChunks deletes the source's existing chunk set and inserts the new
// one inside a single transaction, serialized per (chat, source) by an
// advisory lock so concurrent re-uploads cannot interleave partial sets.
func (s *ChunkStore) ReplaceChunks(ctx context.Context, key domain.ChunkKey, chunks []domain.Chunk) error {
	return withScope(ctx, s.db, key.Scope, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`,
			key.ChatID, key.SourceID,
		); err != nil {
			return fmt.Errorf("acquire source lock: %w", err)
		}

		if err := deleteChunksTx(ctx, tx, key); err != nil {
			return err
		}

		for _, chunk := range chunks {
			metadata, err := json.Marshal(chunk.Metadata)
			if err != nil {
				return fmt.Errorf("marshal chunk metadata: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
INSERT INTO document_chunks (tenant_id, user_id, chat_id, source_id, chunk_index, content, embedding, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
				chunk.TenantID, chunk.UserID, chunk.ChatID, chunk.SourceID,
				chunk.ChunkIndex, chunk.Content, s.embeddingValue(chunk.Embedding),
				metadata, chunk.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert chunk %d: %w", chunk.ChunkIndex, err)
			}
		}
		return nil
	})
}

func (s *ChunkStore) DeleteChunks(ctx context.Context, key domain.ChunkKey) error {
	return withScope(ctx, s.db, key.Scope, func(tx *sql.Tx) error {
		return deleteChunksTx(ctx, tx, key)
	})
}

func deleteChunksTx(ctx context.Context, tx *sql.Tx, key domain.ChunkKey) error {
	_, err := tx.ExecContext(ctx, `
DELETE FROM document_chunks
WHERE tenant_id = $1 AND user_id = $2 AND chat_id = $3 AND source_id = $4
`, key.Scope.TenantID, key.Scope.UserID, key.ChatID, key.SourceID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// embeddingValue adapts a raw vector to the column type. Native mode forces
// the fixed target dimension (truncate or zero-pad); array mode keeps the
// provider's dimension; a missing vector is stored as NULL either way.
func (s *ChunkStore) embeddingValue(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	switch s.capability {
	case domain.CapabilityNative:
		return pgvector.NewVector(NormalizeDimension(vec, s.targetDim))
	case domain.CapabilityArray:
		return float4Array(vec)
	default:
		return nil
	}
}

// NormalizeDimension truncates or zero-pads a vector to dim.
func NormalizeDimension(vec []float32, dim int) []float32 {
	if len(vec) == dim {
		return vec
	}
	out := make([]float32, dim)
	copy(out, vec)
	return out
}

func (s *ChunkStore) CountBySource(ctx context.Context, scope domain.Scope, chatID string, sourceIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(sourceIDs))
	if len(sourceIDs) == 0 {
		return counts, nil
	}
	err := withScope(ctx, s.db, scope, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
SELECT source_id, COUNT(*)
FROM document_chunks
WHERE tenant_id = $1 AND user_id = $2 AND chat_id = $3 AND source_id = ANY($4)
GROUP BY source_id
`, scope.TenantID, scope.UserID, chatID, sourceIDs)
		if err != nil {
			return fmt.Errorf("count chunks: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var sourceID string
			var count int
			if err := rows.Scan(&sourceID, &count); err != nil {
				return fmt.Errorf("scan chunk count: %w", err)
			}
			counts[sourceID] = count
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// SearchNearest runs the native nearest-neighbor query. Only valid in
// CapabilityNative mode; the query vector is normalized to the column's
// fixed dimension first.
func (s *ChunkStore) SearchNearest(
	ctx context.Context,
	scope domain.Scope,
	chatID string,
	sourceIDs []string,
	queryVector []float32,
	limit int,
) ([]domain.ChunkHit, error) {
	if s.capability != domain.CapabilityNative {
		return nil, fmt.Errorf("nearest-neighbor search requires the native vector column")
	}
	if len(sourceIDs) == 0 || len(queryVector) == 0 {
		return nil, nil
	}
	query := pgvector.NewVector(NormalizeDimension(queryVector, s.targetDim))

	var out []domain.ChunkHit
	err := withScope(ctx, s.db, scope, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
SELECT c.source_id, s.name, c.chunk_index, c.content, c.metadata, c.embedding <=> $5 AS distance
FROM document_chunks c
JOIN sources s ON s.id = c.source_id AND s.tenant_id = c.tenant_id AND s.user_id = c.user_id
WHERE c.tenant_id = $1 AND c.user_id = $2 AND c.chat_id = $3 AND c.source_id = ANY($4)
  AND c.embedding IS NOT NULL
ORDER BY c.embedding <=> $5
LIMIT $6
`, scope.TenantID, scope.UserID, chatID, sourceIDs, query, limit)
		if err != nil {
			return fmt.Errorf("nearest-neighbor query: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var hit domain.ChunkHit
			var metadata []byte
			if err := rows.Scan(&hit.SourceID, &hit.SourceName, &hit.ChunkIndex, &hit.Content, &metadata, &hit.Distance); err != nil {
				return fmt.Errorf("scan nearest hit: %w", err)
			}
			hit.Metadata = unmarshalMetadata(metadata)
			out = append(out, hit)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ScanEmbedded loads rows with a stored vector for in-process cosine
// scoring, bounded by limit. Used in array mode, where no native operator
// exists.
func (s *ChunkStore) ScanEmbedded(
	ctx context.Context,
	scope domain.Scope,
	chatID string,
	sourceIDs []string,
	limit int,
) ([]domain.ChunkHit, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	var out []domain.ChunkHit
	err := withScope(ctx, s.db, scope, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
SELECT c.source_id, s.name, c.chunk_index, c.content, c.metadata, c.embedding
FROM document_chunks c
JOIN sources s ON s.id = c.source_id AND s.tenant_id = c.tenant_id AND s.user_id = c.user_id
WHERE c.tenant_id = $1 AND c.user_id = $2 AND c.chat_id = $3 AND c.source_id = ANY($4)
  AND c.embedding IS NOT NULL
ORDER BY c.source_id, c.chunk_index
LIMIT $5
`, scope.TenantID, scope.UserID, chatID, sourceIDs, limit)
		if err != nil {
			return fmt.Errorf("embedded scan query: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var hit domain.ChunkHit
			var metadata []byte
			var embedded float4Array
			if err := rows.Scan(&hit.SourceID, &hit.SourceName, &hit.ChunkIndex, &hit.Content, &metadata, &embedded); err != nil {
				return fmt.Errorf("scan embedded row: %w", err)
			}
			hit.Metadata = unmarshalMetadata(metadata)
			hit.Embedding = []float32(embedded)
			out = append(out, hit)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ScanContent loads rows regardless of embedding presence for lexical
// scoring, bounded by limit.
func (s *ChunkStore) ScanContent(
	ctx context.Context,
	scope domain.Scope,
	chatID string,
	sourceIDs []string,
	limit int,
) ([]domain.ChunkHit, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	var out []domain.ChunkHit
	err := withScope(ctx, s.db, scope, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
SELECT c.source_id, s.name, c.chunk_index, c.content, c.metadata
FROM document_chunks c
JOIN sources s ON s.id = c.source_id AND s.tenant_id = c.tenant_id AND s.user_id = c.user_id
WHERE c.tenant_id = $1 AND c.user_id = $2 AND c.chat_id = $3 AND c.source_id = ANY($4)
ORDER BY c.source_id, c.chunk_index
LIMIT $5
`, scope.TenantID, scope.UserID, chatID, sourceIDs, limit)
		if err != nil {
			return fmt.Errorf("content scan query: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var hit domain.ChunkHit
			var metadata []byte
			if err := rows.Scan(&hit.SourceID, &hit.SourceName, &hit.ChunkIndex, &hit.Content, &metadata); err != nil {
				return fmt.Errorf("scan content row: %w", err)
			}
			hit.Metadata = unmarshalMetadata(metadata)
			out = append(out, hit)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func unmarshalMetadata(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// float4Array adapts []float32 to the real[] column for drivers speaking
// database/sql, which cannot pass slices natively.
type float4Array []float32

func (a float4Array) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	parts := make([]string, len(a))
	for i, v := range a {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

func (a *float4Array) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("unsupported array source %T", src)
	}

	raw = strings.Trim(strings.TrimSpace(raw), "{}")
	if raw == "" {
		*a = nil
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float32, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return fmt.Errorf("parse array element %q: %w", part, err)
		}
		out = append(out, float32(f))
	}
	*a = out
	return nil
}
