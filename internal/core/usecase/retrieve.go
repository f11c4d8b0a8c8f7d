package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/draftwell/docassist/internal/core/domain"
	"github.com/draftwell/docassist/internal/core/ports"
)

const (
	defaultTopK       = 6
	minSearchPool     = 40
	searchPoolFactor  = 6
	defaultScanLimit  = 400
	mergeKeyPrefixLen = 64
)

// RetrieveUseCase ranks the chunks of a source set against a question. It
// blends strategies rather than falling back: vector candidates (native
// operator or in-process cosine) are merged with lexical-overlap candidates,
// and every survivor is ranked by the higher of its two scores so that a
// verbatim lexical hit can outrank a weak embedding.
type RetrieveUseCase struct {
	embedder ports.Embedder
	chunks   ports.ChunkStore

	topK      int
	scanLimit int
}

func NewRetrieveUseCase(embedder ports.Embedder, chunks ports.ChunkStore, topK, scanLimit int) *RetrieveUseCase {
	if topK <= 0 {
		topK = defaultTopK
	}
	if scanLimit <= 0 {
		scanLimit = defaultScanLimit
	}
	return &RetrieveUseCase{
		embedder:  embedder,
		chunks:    chunks,
		topK:      topK,
		scanLimit: scanLimit,
	}
}

// Mode names the active retrieval path, used for response metadata and
// metrics labels.
func (uc *RetrieveUseCase) Mode() string {
	return uc.chunks.Capability().String()
}

type scoredCandidate struct {
	candidate domain.Candidate
	order     int
}

func (uc *RetrieveUseCase) Retrieve(
	ctx context.Context,
	scope domain.Scope,
	chatID, question string,
	sourceIDs []string,
	topK int,
) ([]domain.Candidate, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = uc.topK
	}

	queryVector := uc.embedQuestion(ctx, scope.TenantID, question)

	acc := make(map[string]*scoredCandidate)
	order := 0
	add := func(hit domain.ChunkHit, vectorScore float64) {
		key := mergeKey(hit)
		existing, ok := acc[key]
		if !ok {
			acc[key] = &scoredCandidate{
				candidate: domain.Candidate{
					SourceID:    hit.SourceID,
					SourceName:  hit.SourceName,
					ChunkIndex:  hit.ChunkIndex,
					Content:     hit.Content,
					VectorScore: vectorScore,
					Metadata:    hit.Metadata,
				},
				order: order,
			}
			order++
			return
		}
		if vectorScore > existing.candidate.VectorScore {
			existing.candidate.VectorScore = vectorScore
		}
	}

	if len(queryVector) > 0 {
		switch uc.chunks.Capability() {
		case domain.CapabilityNative:
			uc.gatherNative(ctx, scope, chatID, sourceIDs, queryVector, topK, add)
		case domain.CapabilityArray:
			uc.gatherCosine(ctx, scope, chatID, sourceIDs, queryVector, add)
		}
	}

	// Lexical pass: always runs when the vector strategies came up short,
	// which includes the no-embedding case.
	if len(acc) < topK {
		uc.gatherLexical(ctx, scope, chatID, sourceIDs, question, add)
	}

	if len(acc) == 0 {
		return nil, nil
	}

	queryTokens := toTokenSet(question)
	out := make([]*scoredCandidate, 0, len(acc))
	for _, sc := range acc {
		sc.candidate.LexicalScore = lexicalOverlap(queryTokens, sc.candidate.Content)
		sc.candidate.Score = math.Max(sc.candidate.VectorScore, sc.candidate.LexicalScore)
		if sc.candidate.Score <= 0 {
			continue
		}
		out = append(out, sc)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].candidate.Score != out[j].candidate.Score {
			return out[i].candidate.Score > out[j].candidate.Score
		}
		return out[i].order < out[j].order
	})

	if len(out) > topK {
		out = out[:topK]
	}
	result := make([]domain.Candidate, 0, len(out))
	for _, sc := range out {
		result = append(result, sc.candidate)
	}
	return result, nil
}

// embedQuestion is best effort: a provider failure yields no vector, never
// an error, so lexical retrieval still runs.
func (uc *RetrieveUseCase) embedQuestion(ctx context.Context, tenantID, question string) []float32 {
	vector, err := uc.embedder.EmbedQuery(ctx, tenantID, question)
	if err != nil {
		slog.Debug("query_embed_unavailable", "tenant_id", tenantID, "error", err)
		return nil
	}
	return dropNonFinite(vector)
}

func (uc *RetrieveUseCase) gatherNative(
	ctx context.Context,
	scope domain.Scope,
	chatID string,
	sourceIDs []string,
	queryVector []float32,
	topK int,
	add func(domain.ChunkHit, float64),
) {
	pool := topK * searchPoolFactor
	if pool < minSearchPool {
		pool = minSearchPool
	}
	hits, err := uc.chunks.SearchNearest(ctx, scope, chatID, sourceIDs, queryVector, pool)
	if err != nil {
		slog.Warn("vector_search_failed", "tenant_id", scope.TenantID, "chat_id", chatID, "error", err)
		return
	}
	for _, hit := range hits {
		add(hit, distanceToSimilarity(hit.Distance))
	}
}

func (uc *RetrieveUseCase) gatherCosine(
	ctx context.Context,
	scope domain.Scope,
	chatID string,
	sourceIDs []string,
	queryVector []float32,
	add func(domain.ChunkHit, float64),
) {
	hits, err := uc.chunks.ScanEmbedded(ctx, scope, chatID, sourceIDs, uc.scanLimit)
	if err != nil {
		slog.Warn("vector_scan_failed", "tenant_id", scope.TenantID, "chat_id", chatID, "error", err)
		return
	}
	for _, hit := range hits {
		score := cosineSimilarity(queryVector, hit.Embedding)
		if score <= 0 {
			continue
		}
		hit.Embedding = nil
		add(hit, score)
	}
}

func (uc *RetrieveUseCase) gatherLexical(
	ctx context.Context,
	scope domain.Scope,
	chatID string,
	sourceIDs []string,
	question string,
	add func(domain.ChunkHit, float64),
) {
	hits, err := uc.chunks.ScanContent(ctx, scope, chatID, sourceIDs, uc.scanLimit)
	if err != nil {
		slog.Warn("lexical_scan_failed", "tenant_id", scope.TenantID, "chat_id", chatID, "error", err)
		return
	}
	queryTokens := toTokenSet(question)
	for _, hit := range hits {
		if lexicalOverlap(queryTokens, hit.Content) <= 0 {
			continue
		}
		add(hit, 0)
	}
}

// mergeKey identifies a chunk across strategies without relying on the
// chunk index being populated by every query path.
func mergeKey(hit domain.ChunkHit) string {
	prefix := hit.Content
	if len(prefix) > mergeKeyPrefixLen {
		prefix = prefix[:mergeKeyPrefixLen]
	}
	return fmt.Sprintf("%s|%s|%d", hit.SourceID, prefix, len(hit.Content))
}

func distanceToSimilarity(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
