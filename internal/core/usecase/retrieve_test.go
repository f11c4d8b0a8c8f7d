package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/draftwell/docassist/internal/core/domain"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (f *stubEmbedder) EmbedTexts(_ context.Context, _ string, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *stubEmbedder) EmbedQuery(context.Context, string, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type stubChunkStore struct {
	capability domain.VectorCapability

	nearestHits  []domain.ChunkHit
	nearestErr   error
	nearestLimit int

	embeddedHits []domain.ChunkHit
	embeddedErr  error

	contentHits    []domain.ChunkHit
	contentErr     error
	contentQueried bool

	replaced map[string][]domain.Chunk
	deleted  []domain.ChunkKey
	counts   map[string]int
}

func (f *stubChunkStore) Capability() domain.VectorCapability { return f.capability }

func (f *stubChunkStore) ReplaceChunks(_ context.Context, key domain.ChunkKey, chunks []domain.Chunk) error {
	if f.replaced == nil {
		f.replaced = make(map[string][]domain.Chunk)
	}
	f.replaced[key.SourceID] = chunks
	return nil
}

func (f *stubChunkStore) DeleteChunks(_ context.Context, key domain.ChunkKey) error {
	f.deleted = append(f.deleted, key)
	if f.replaced != nil {
		delete(f.replaced, key.SourceID)
	}
	return nil
}

func (f *stubChunkStore) CountBySource(_ context.Context, _ domain.Scope, _ string, sourceIDs []string) (map[string]int, error) {
	out := make(map[string]int)
	for _, id := range sourceIDs {
		if n, ok := f.counts[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func (f *stubChunkStore) SearchNearest(_ context.Context, _ domain.Scope, _ string, _ []string, _ []float32, limit int) ([]domain.ChunkHit, error) {
	f.nearestLimit = limit
	if f.nearestErr != nil {
		return nil, f.nearestErr
	}
	return f.nearestHits, nil
}

func (f *stubChunkStore) ScanEmbedded(context.Context, domain.Scope, string, []string, int) ([]domain.ChunkHit, error) {
	if f.embeddedErr != nil {
		return nil, f.embeddedErr
	}
	return f.embeddedHits, nil
}

func (f *stubChunkStore) ScanContent(context.Context, domain.Scope, string, []string, int) ([]domain.ChunkHit, error) {
	f.contentQueried = true
	if f.contentErr != nil {
		return nil, f.contentErr
	}
	return f.contentHits, nil
}

func retrieveScope() domain.Scope {
	return domain.Scope{TenantID: "tenant-1", UserID: "user-1"}
}

func TestRetrieveEmptySourceSetReturnsNothing(t *testing.T) {
	store := &stubChunkStore{capability: domain.CapabilityNative}
	uc := NewRetrieveUseCase(&stubEmbedder{vector: []float32{1, 0}}, store, 6, 400)

	got, err := uc.Retrieve(context.Background(), retrieveScope(), "chat-1", "question", nil, 6)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got != nil {
		t.Fatalf("expected no candidates, got %v", got)
	}
}

func TestRetrieveNativeConvertsDistanceAndExpandsPool(t *testing.T) {
	store := &stubChunkStore{
		capability: domain.CapabilityNative,
		nearestHits: []domain.ChunkHit{
			{SourceID: "src-1", SourceName: "a.pdf", Content: "exact match chunk", Distance: 0},
			{SourceID: "src-1", SourceName: "a.pdf", Content: "further away chunk", Distance: 1},
		},
	}
	uc := NewRetrieveUseCase(&stubEmbedder{vector: []float32{1, 0}}, store, 6, 400)

	got, err := uc.Retrieve(context.Background(), retrieveScope(), "chat-1", "zzqx", []string{"src-1"}, 6)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if store.nearestLimit != 40 {
		t.Fatalf("pool = %d, want 40 for topK=6", store.nearestLimit)
	}
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2", len(got))
	}
	if got[0].Score != 1.0 {
		t.Fatalf("zero distance should score 1.0, got %v", got[0].Score)
	}
	if got[1].Score != 0.5 {
		t.Fatalf("distance 1 should score 0.5, got %v", got[1].Score)
	}
}

func TestRetrieveVectorFailureStillRunsLexical(t *testing.T) {
	store := &stubChunkStore{
		capability: domain.CapabilityNative,
		nearestErr: errors.New("index corrupted"),
		contentHits: []domain.ChunkHit{
			{SourceID: "src-1", SourceName: "a.pdf", Content: "delivery schedule for the contract"},
		},
	}
	uc := NewRetrieveUseCase(&stubEmbedder{vector: []float32{1, 0}}, store, 6, 400)

	got, err := uc.Retrieve(context.Background(), retrieveScope(), "chat-1", "delivery schedule", []string{"src-1"}, 6)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected lexical candidate despite vector failure, got %d", len(got))
	}
	if got[0].VectorScore != 0 || got[0].LexicalScore != 1 {
		t.Fatalf("scores = vector %v lexical %v", got[0].VectorScore, got[0].LexicalScore)
	}
}

func TestRetrieveEmbedderFailureDegradesToLexical(t *testing.T) {
	store := &stubChunkStore{
		capability: domain.CapabilityNative,
		contentHits: []domain.ChunkHit{
			{SourceID: "src-1", SourceName: "a.pdf", Content: "pricing table"},
		},
	}
	uc := NewRetrieveUseCase(&stubEmbedder{err: errors.New("provider down")}, store, 6, 400)

	got, err := uc.Retrieve(context.Background(), retrieveScope(), "chat-1", "pricing", []string{"src-1"}, 6)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if store.nearestLimit != 0 {
		t.Fatalf("nearest search should be skipped without a query vector")
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 lexical candidate, got %d", len(got))
	}
}

func TestRetrieveMergesDuplicatesByMaxScore(t *testing.T) {
	content := "the delivery schedule is in section four"
	store := &stubChunkStore{
		capability: domain.CapabilityNative,
		nearestHits: []domain.ChunkHit{
			{SourceID: "src-1", SourceName: "a.pdf", Content: content, Distance: 4},
		},
		contentHits: []domain.ChunkHit{
			{SourceID: "src-1", SourceName: "a.pdf", Content: content},
		},
	}
	uc := NewRetrieveUseCase(&stubEmbedder{vector: []float32{1, 0}}, store, 6, 400)

	got, err := uc.Retrieve(context.Background(), retrieveScope(), "chat-1", "delivery schedule", []string{"src-1"}, 6)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("duplicate chunk should merge into one candidate, got %d", len(got))
	}
	// Vector similarity for distance 4 is 0.2; both query tokens appear, so
	// the lexical side wins.
	if got[0].Score != 1 {
		t.Fatalf("merged score = %v, want lexical 1", got[0].Score)
	}
	if got[0].VectorScore != 0.2 {
		t.Fatalf("vector score = %v, want 0.2", got[0].VectorScore)
	}
}

func TestRetrieveArrayModeUsesCosineScan(t *testing.T) {
	store := &stubChunkStore{
		capability: domain.CapabilityArray,
		embeddedHits: []domain.ChunkHit{
			{SourceID: "src-1", SourceName: "a.pdf", Content: "aligned", Embedding: []float32{1, 0}},
			{SourceID: "src-1", SourceName: "a.pdf", Content: "orthogonal", Embedding: []float32{0, 1}},
			{SourceID: "src-1", SourceName: "a.pdf", Content: "opposed", Embedding: []float32{-1, 0}},
		},
		counts: map[string]int{},
	}
	uc := NewRetrieveUseCase(&stubEmbedder{vector: []float32{1, 0}}, store, 1, 400)

	got, err := uc.Retrieve(context.Background(), retrieveScope(), "chat-1", "zzqx", []string{"src-1"}, 1)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}
	if got[0].Content != "aligned" || got[0].Score != 1 {
		t.Fatalf("best candidate = %+v", got[0])
	}
}

func TestRetrieveTruncatesToTopKWithStableOrder(t *testing.T) {
	hits := []domain.ChunkHit{
		{SourceID: "src-1", SourceName: "a.pdf", Content: "first equal chunk", Distance: 1},
		{SourceID: "src-1", SourceName: "a.pdf", Content: "second equal chunk", Distance: 1},
		{SourceID: "src-1", SourceName: "a.pdf", Content: "third equal chunk", Distance: 1},
	}
	store := &stubChunkStore{capability: domain.CapabilityNative, nearestHits: hits}
	uc := NewRetrieveUseCase(&stubEmbedder{vector: []float32{1, 0}}, store, 2, 400)

	got, err := uc.Retrieve(context.Background(), retrieveScope(), "chat-1", "zzqx", []string{"src-1"}, 2)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2", len(got))
	}
	if got[0].Content != "first equal chunk" || got[1].Content != "second equal chunk" {
		t.Fatalf("ties must keep discovery order, got %q then %q", got[0].Content, got[1].Content)
	}
}

func TestRetrieveSkipsLexicalWhenVectorPoolIsFull(t *testing.T) {
	store := &stubChunkStore{
		capability: domain.CapabilityNative,
		nearestHits: []domain.ChunkHit{
			{SourceID: "src-1", SourceName: "a.pdf", Content: "alpha", Distance: 0.1},
			{SourceID: "src-1", SourceName: "a.pdf", Content: "beta", Distance: 0.2},
		},
	}
	uc := NewRetrieveUseCase(&stubEmbedder{vector: []float32{1, 0}}, store, 2, 400)

	if _, err := uc.Retrieve(context.Background(), retrieveScope(), "chat-1", "zzqx", []string{"src-1"}, 2); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if store.contentQueried {
		t.Fatalf("lexical scan should not run when vector candidates reach topK")
	}
}

func TestCosineSimilarityZeroNorm(t *testing.T) {
	if got := cosineSimilarity([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Fatalf("zero-norm vector similarity = %v, want 0", got)
	}
	if got := cosineSimilarity(nil, []float32{1}); got != 0 {
		t.Fatalf("empty vector similarity = %v, want 0", got)
	}
}
