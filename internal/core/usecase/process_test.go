package usecase

import (
	"context"
	"testing"

	"github.com/draftwell/docassist/internal/core/domain"
)

type recordingIndexer struct {
	fakeIndexer
	indexed []string
	data    []byte
}

func (f *recordingIndexer) IndexDocument(_ context.Context, src *domain.Source, data []byte) (domain.IndexSummary, error) {
	f.indexed = append(f.indexed, src.ID)
	f.data = data
	return domain.IndexSummary{SourceID: src.ID, Chunks: 1, Embedded: 1}, nil
}

func TestProcessByIDIndexesStoredBlob(t *testing.T) {
	src := &domain.Source{
		ID: "src-1", TenantID: "tenant-1", UserID: "user-1",
		ChatID: "chat-1", Name: "a.txt", StoragePath: "k",
	}
	repo := &memSourceRepo{byID: map[string]*domain.Source{"src-1": src}}
	storage := &memStorage{blobs: map[string][]byte{"k": []byte("stored bytes")}}
	indexer := &recordingIndexer{}
	uc := NewProcessSourceUseCase(repo, storage, indexer)
	scope := domain.Scope{TenantID: "tenant-1", UserID: "user-1"}

	summary, err := uc.ProcessByID(context.Background(), scope, "src-1")
	if err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if summary.Chunks != 1 || summary.Embedded != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(indexer.indexed) != 1 || indexer.indexed[0] != "src-1" {
		t.Fatalf("indexed = %v", indexer.indexed)
	}
	if string(indexer.data) != "stored bytes" {
		t.Fatalf("data = %q", indexer.data)
	}
}

func TestProcessByIDUnknownSource(t *testing.T) {
	uc := NewProcessSourceUseCase(&memSourceRepo{}, &memStorage{}, &recordingIndexer{})
	scope := domain.Scope{TenantID: "tenant-1", UserID: "user-1"}

	_, err := uc.ProcessByID(context.Background(), scope, "missing")
	if !domain.IsKind(err, domain.ErrSourceNotFound) {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestProcessByIDMissingBlob(t *testing.T) {
	src := &domain.Source{ID: "src-1", TenantID: "tenant-1", UserID: "user-1", ChatID: "chat-1", StoragePath: "absent"}
	repo := &memSourceRepo{byID: map[string]*domain.Source{"src-1": src}}
	uc := NewProcessSourceUseCase(repo, &memStorage{}, &recordingIndexer{})
	scope := domain.Scope{TenantID: "tenant-1", UserID: "user-1"}

	if _, err := uc.ProcessByID(context.Background(), scope, "src-1"); err == nil {
		t.Fatalf("missing blob should fail")
	}
}
