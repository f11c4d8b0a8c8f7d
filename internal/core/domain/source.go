package domain

import "time"

// Scope identifies the caller every operation is executed for. All reads and
// writes are filtered by it; a Source or Chunk is never visible outside the
// scope it was created under.
type Scope struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
}

func (s Scope) Valid() bool {
	return s.TenantID != "" && s.UserID != ""
}

// Source is an uploaded file owned by exactly one chat. Immutable once
// stored; re-uploading under the same name creates a new Source id.
type Source struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id"`
	ChatID      string    `json:"chat_id"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mime_type"`
	StoragePath string    `json:"storage_path"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}
