package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/draftwell/docassist/internal/core/domain"
)

type fakeCompleter struct {
	answer   string
	deltas   []string
	messages []domain.ChatMessage
	err      error
}

func (f *fakeCompleter) Complete(_ context.Context, messages []domain.ChatMessage, _ int) (string, error) {
	f.messages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeCompleter) CompleteStream(_ context.Context, messages []domain.ChatMessage, _ int, emit func(string) error) error {
	f.messages = messages
	if f.err != nil {
		return f.err
	}
	for _, delta := range f.deltas {
		if err := emit(delta); err != nil {
			return err
		}
	}
	return nil
}

type fakeIndexer struct {
	ensured []domain.Source
	err     error
}

func (f *fakeIndexer) IndexDocument(context.Context, *domain.Source, []byte) (domain.IndexSummary, error) {
	return domain.IndexSummary{}, nil
}

func (f *fakeIndexer) EnsureIndexed(_ context.Context, _ domain.Scope, _ string, sources []domain.Source) error {
	f.ensured = append(f.ensured, sources...)
	return f.err
}

func newAnswerFixture(repo *memSourceRepo, store *stubChunkStore, completer *fakeCompleter, indexer *fakeIndexer) *AnswerQueryUseCase {
	retriever := NewRetrieveUseCase(&stubEmbedder{vector: []float32{1, 0}}, store, 6, 400)
	return NewAnswerQueryUseCase(repo, NewScopeResolver(), indexer, retriever, completer, 6, 12000)
}

func TestAnswerQueryGroundedPrompt(t *testing.T) {
	repo := &memSourceRepo{listed: chatSources(
		"contract-terms.pdf",
	)}
	store := &stubChunkStore{
		capability: domain.CapabilityNative,
		nearestHits: []domain.ChunkHit{
			{SourceID: "src-0", SourceName: "contract-terms.pdf", Content: "payment due within 30 days", Distance: 0},
		},
	}
	completer := &fakeCompleter{answer: "Payment is due within 30 days."}
	indexer := &fakeIndexer{}
	uc := newAnswerFixture(repo, store, completer, indexer)
	scope := domain.Scope{TenantID: "tenant-1", UserID: "user-1"}

	result, err := uc.AnswerQuery(context.Background(), scope, "chat-1", "when is payment due in @contract-terms?", nil)
	if err != nil {
		t.Fatalf("AnswerQuery() error = %v", err)
	}
	if result.Answer != "Payment is due within 30 days." {
		t.Fatalf("answer = %q", result.Answer)
	}
	if result.Mode != "native" {
		t.Fatalf("mode = %q", result.Mode)
	}
	if len(result.Sources) != 1 || result.Sources[0] != "contract-terms.pdf" {
		t.Fatalf("sources = %v", result.Sources)
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("candidates = %v", result.Candidates)
	}
	if !strings.Contains(result.ContextText, "payment due within 30 days") {
		t.Fatalf("context = %q", result.ContextText)
	}

	if len(completer.messages) != 2 {
		t.Fatalf("messages = %v", completer.messages)
	}
	if !strings.Contains(completer.messages[0].Content, "only the provided document excerpts") {
		t.Fatalf("system prompt = %q", completer.messages[0].Content)
	}
	if !strings.Contains(completer.messages[1].Content, "[source: contract-terms.pdf]") {
		t.Fatalf("user message = %q", completer.messages[1].Content)
	}
	if len(indexer.ensured) != 1 {
		t.Fatalf("in-scope sources should be lazily indexed, got %v", indexer.ensured)
	}
}

func TestAnswerQueryUngroundedWhenNoScope(t *testing.T) {
	repo := &memSourceRepo{listed: chatSources("contract-terms.pdf")}
	store := &stubChunkStore{capability: domain.CapabilityNative}
	completer := &fakeCompleter{answer: "I cannot cite documents here."}
	uc := newAnswerFixture(repo, store, completer, &fakeIndexer{})
	scope := domain.Scope{TenantID: "tenant-1", UserID: "user-1"}

	// No mention, no recency cue: the scope resolver picks nothing.
	result, err := uc.AnswerQuery(context.Background(), scope, "chat-1", "what is a firm fixed price contract?", nil)
	if err != nil {
		t.Fatalf("AnswerQuery() error = %v", err)
	}
	if result.ContextText != "" || len(result.Candidates) != 0 {
		t.Fatalf("result should be ungrounded, got %+v", result)
	}
	if !strings.Contains(completer.messages[0].Content, "No supporting documents") {
		t.Fatalf("system prompt = %q", completer.messages[0].Content)
	}
	if completer.messages[1].Content != "what is a firm fixed price contract?" {
		t.Fatalf("user message = %q", completer.messages[1].Content)
	}
}

func TestAnswerQueryEnsureIndexedFailureOnlyWarns(t *testing.T) {
	repo := &memSourceRepo{listed: chatSources("notes.txt")}
	store := &stubChunkStore{
		capability:  domain.CapabilityNative,
		nearestHits: []domain.ChunkHit{{SourceID: "src-0", SourceName: "notes.txt", Content: "meeting at noon", Distance: 1}},
	}
	completer := &fakeCompleter{answer: "Noon."}
	indexer := &fakeIndexer{err: context.DeadlineExceeded}
	uc := newAnswerFixture(repo, store, completer, indexer)
	scope := domain.Scope{TenantID: "tenant-1", UserID: "user-1"}

	result, err := uc.AnswerQuery(context.Background(), scope, "chat-1", "what time is the meeting per @notes?", nil)
	if err != nil {
		t.Fatalf("AnswerQuery() should tolerate backfill failure, got %v", err)
	}
	if result.Answer != "Noon." {
		t.Fatalf("answer = %q", result.Answer)
	}
}

func TestAnswerQueryValidation(t *testing.T) {
	uc := newAnswerFixture(&memSourceRepo{}, &stubChunkStore{}, &fakeCompleter{}, &fakeIndexer{})

	_, err := uc.AnswerQuery(context.Background(), domain.Scope{}, "chat-1", "hello", nil)
	if !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("error = %v, want unauthorized", err)
	}

	scope := domain.Scope{TenantID: "tenant-1", UserID: "user-1"}
	_, err = uc.AnswerQuery(context.Background(), scope, "chat-1", "   ", nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("error = %v, want invalid input", err)
	}
}

func TestAnswerQueryStreamAccumulatesDeltas(t *testing.T) {
	repo := &memSourceRepo{listed: chatSources("contract-terms.pdf")}
	store := &stubChunkStore{
		capability:  domain.CapabilityNative,
		nearestHits: []domain.ChunkHit{{SourceID: "src-0", SourceName: "contract-terms.pdf", Content: "net 30 terms", Distance: 0}},
	}
	completer := &fakeCompleter{deltas: []string{"Net ", "30 ", "days."}}
	uc := newAnswerFixture(repo, store, completer, &fakeIndexer{})
	scope := domain.Scope{TenantID: "tenant-1", UserID: "user-1"}

	var got []string
	result, err := uc.AnswerQueryStream(context.Background(), scope, "chat-1", "terms in @contract-terms?", nil, func(delta string) error {
		got = append(got, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("AnswerQueryStream() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("deltas = %v", got)
	}
	if result.Answer != "Net 30 days." {
		t.Fatalf("accumulated answer = %q", result.Answer)
	}
	if result.Mode != "native" {
		t.Fatalf("mode = %q", result.Mode)
	}
}

func TestAssembleContextRespectsBudget(t *testing.T) {
	candidates := []domain.Candidate{
		{SourceName: "a.txt", Content: strings.Repeat("x", 50)},
		{SourceName: "b.txt", Content: strings.Repeat("y", 50)},
	}

	full := assembleContext(candidates, 12000)
	if !strings.Contains(full, "[source: a.txt]") || !strings.Contains(full, "[source: b.txt]") {
		t.Fatalf("context = %q", full)
	}

	tight := assembleContext(candidates, 80)
	if !strings.Contains(tight, "[source: a.txt]") {
		t.Fatalf("first candidate should fit, got %q", tight)
	}
	if strings.Contains(tight, "b.txt") {
		t.Fatalf("second candidate should be cut, got %q", tight)
	}

	if assembleContext(nil, 100) != "" {
		t.Fatalf("empty candidates should yield empty context")
	}
}
