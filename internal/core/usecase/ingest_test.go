package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/draftwell/docassist/internal/core/domain"
)

type memSourceRepo struct {
	created []domain.Source
	byID    map[string]*domain.Source
	listed  []domain.Source
	deleted []string
	listErr error
}

func (f *memSourceRepo) Create(_ context.Context, src *domain.Source) error {
	f.created = append(f.created, *src)
	return nil
}

func (f *memSourceRepo) GetByID(_ context.Context, _ domain.Scope, id string) (*domain.Source, error) {
	src, ok := f.byID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSourceNotFound, "get source", errors.New("no row"))
	}
	return src, nil
}

func (f *memSourceRepo) ListByChat(context.Context, domain.Scope, string) ([]domain.Source, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listed, nil
}

func (f *memSourceRepo) Delete(_ context.Context, _ domain.Scope, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type memQueue struct {
	published []domain.IngestEvent
	err       error
}

func (f *memQueue) PublishSourceUploaded(_ context.Context, event domain.IngestEvent) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, event)
	return nil
}

func (f *memQueue) SubscribeSourceUploaded(context.Context, func(context.Context, domain.IngestEvent) error) error {
	return nil
}

func TestUploadPersistsAndPublishes(t *testing.T) {
	repo := &memSourceRepo{}
	storage := &memStorage{}
	queue := &memQueue{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)
	scope := domain.Scope{TenantID: "tenant-1", UserID: "user-1"}

	src, err := uc.Upload(context.Background(), scope, "chat-1", "Q3 Report.pdf", "application/pdf", strings.NewReader("content"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if src.ID == "" {
		t.Fatalf("source id not assigned")
	}
	if src.Name != "Q3 Report.pdf" || src.SizeBytes != int64(len("content")) {
		t.Fatalf("source = %+v", src)
	}
	if !strings.HasPrefix(src.StoragePath, "tenant-1/user-1/") {
		t.Fatalf("storage path = %q", src.StoragePath)
	}
	if strings.Contains(src.StoragePath, " ") {
		t.Fatalf("storage path should be sanitized: %q", src.StoragePath)
	}
	if _, ok := storage.blobs[src.StoragePath]; !ok {
		t.Fatalf("blob not saved under %q", src.StoragePath)
	}
	if len(repo.created) != 1 {
		t.Fatalf("created rows = %d", len(repo.created))
	}

	if len(queue.published) != 1 {
		t.Fatalf("published events = %d", len(queue.published))
	}
	event := queue.published[0]
	if event.SourceID != src.ID || event.TenantID != "tenant-1" || event.UserID != "user-1" {
		t.Fatalf("event = %+v", event)
	}
	if !event.UploadedAt.Equal(src.CreatedAt) {
		t.Fatalf("event timestamp = %v, want %v", event.UploadedAt, src.CreatedAt)
	}
}

func TestUploadRejectsMissingScope(t *testing.T) {
	uc := NewIngestDocumentUseCase(&memSourceRepo{}, &memStorage{}, &memQueue{})

	_, err := uc.Upload(context.Background(), domain.Scope{TenantID: "tenant-1"}, "chat-1", "a.txt", "text/plain", strings.NewReader("x"))
	if !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("error = %v, want unauthorized", err)
	}
}

func TestUploadRejectsEmptyChat(t *testing.T) {
	uc := NewIngestDocumentUseCase(&memSourceRepo{}, &memStorage{}, &memQueue{})
	scope := domain.Scope{TenantID: "tenant-1", UserID: "user-1"}

	_, err := uc.Upload(context.Background(), scope, "", "a.txt", "text/plain", strings.NewReader("x"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("error = %v, want invalid input", err)
	}
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	storage := &memStorage{}
	uc := NewIngestDocumentUseCase(&memSourceRepo{}, storage, &memQueue{})
	scope := domain.Scope{TenantID: "tenant-1", UserID: "user-1"}

	big := bytes.NewReader(make([]byte, maxUploadBytes+1))
	_, err := uc.Upload(context.Background(), scope, "chat-1", "big.bin", "application/octet-stream", big)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("error = %v, want invalid input", err)
	}
	if len(storage.blobs) != 0 {
		t.Fatalf("oversized body must not reach storage")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Q3 Report.pdf", "Q3_Report.pdf"},
		{"../../etc/passwd", "passwd"},
		{"résumé.docx", "r_sum_.docx"},
		{"", "document.bin"},
		{"...", "..."},
		{"notes-v2_final.TXT", "notes-v2_final.TXT"},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
