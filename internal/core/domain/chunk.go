package domain

import "time"

// Chunk is the atomic retrievable unit: one bounded text segment of a source
// document. (tenant, user, chat, source, index) is unique; all chunks of a
// source are deleted and recreated together on re-index.
type Chunk struct {
	TenantID   string            `json:"tenant_id"`
	UserID     string            `json:"user_id"`
	ChatID     string            `json:"chat_id"`
	SourceID   string            `json:"source_id"`
	ChunkIndex int               `json:"chunk_index"`
	Content    string            `json:"content"`
	Embedding  []float32         `json:"embedding,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ChunkKey addresses the chunk set of one source document within a chat.
type ChunkKey struct {
	Scope    Scope
	ChatID   string
	SourceID string
}

// VectorCapability is the storage strategy for embeddings, resolved once at
// startup from the live column type and passed through the chunk store
// constructor.
type VectorCapability int

const (
	// CapabilityNone: no usable embedding column; rows participate only in
	// lexical search.
	CapabilityNone VectorCapability = iota
	// CapabilityArray: plain float array column; similarity is computed
	// in-process, vectors are stored at whatever length the provider returned.
	CapabilityArray
	// CapabilityNative: pgvector column with a native distance operator;
	// vectors are normalized to the fixed target dimension before insert.
	CapabilityNative
)

func (c VectorCapability) String() string {
	switch c {
	case CapabilityNative:
		return "native"
	case CapabilityArray:
		return "array"
	default:
		return "none"
	}
}
