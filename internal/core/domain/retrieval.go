package domain

import "time"

// Candidate is a transient retrieval result. Score is a unitless combined
// similarity, roughly in [0, 1]: vector distance converted to a similarity,
// or lexical token overlap, whichever is higher.
type Candidate struct {
	SourceID     string            `json:"source_id"`
	SourceName   string            `json:"source_name"`
	ChunkIndex   int               `json:"chunk_index"`
	Content      string            `json:"content"`
	Score        float64           `json:"score"`
	VectorScore  float64           `json:"vector_score,omitempty"`
	LexicalScore float64           `json:"lexical_score,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// IndexSummary reports the outcome of indexing one source document.
// Warning is set when indexing succeeded but retrieval quality is degraded
// (empty extraction, embedding provider unavailable).
type IndexSummary struct {
	SourceID string `json:"source_id"`
	Chunks   int    `json:"chunks"`
	Embedded int    `json:"embedded"`
	Warning  string `json:"warning,omitempty"`
}

// ChunkHit is a raw row read back from the chunk store before scoring.
// Distance is set only by the native nearest-neighbor query; Embedding is
// loaded only by the array-mode vector scan.
type ChunkHit struct {
	SourceID   string
	SourceName string
	ChunkIndex int
	Content    string
	Metadata   map[string]string
	Embedding  []float32
	Distance   float64
}

// ChatMessage is one turn handed to the completion provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IngestEvent is the queue payload linking an uploaded source to the scope
// it must be indexed under.
type IngestEvent struct {
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	SourceID   string    `json:"source_id"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// QueryResult is the answer to one chat turn. Candidates may be empty, which
// is a valid state: the answer was produced without document grounding.
type QueryResult struct {
	Answer      string      `json:"answer"`
	ContextText string      `json:"context_text,omitempty"`
	Sources     []string    `json:"sources,omitempty"`
	Candidates  []Candidate `json:"candidates,omitempty"`
	Mode        string      `json:"mode,omitempty"`
}
