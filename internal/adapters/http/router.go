package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/draftwell/docassist/internal/core/domain"
	"github.com/draftwell/docassist/internal/core/ports"
	"github.com/draftwell/docassist/internal/observability/metrics"
)

const (
	tenantHeader = "X-Tenant-Id"
	userHeader   = "X-User-Id"
)

type RouterConfig struct {
	ServiceName    string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Router exposes the document and query API. Every tenant-scoped route
// reads the caller identity from headers set by the edge proxy.
type Router struct {
	ingestor ports.DocumentIngestor
	query    ports.QueryService
	reader   ports.SourceReader
	remover  ports.SourceRemover
	metrics  *metrics.HTTPServerMetrics
	cfg      RouterConfig
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	query ports.QueryService,
	reader ports.SourceReader,
	remover ports.SourceRemover,
	httpMetrics *metrics.HTTPServerMetrics,
	cfg RouterConfig,
) *Router {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "api"
	}
	return &Router{
		ingestor: ingestor,
		query:    query,
		reader:   reader,
		remover:  remover,
		metrics:  httpMetrics,
		cfg:      cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/chats/{chat_id}/documents", rt.uploadDocument)
	mux.HandleFunc("POST /v1/chats/{chat_id}/query", rt.answerQuery)
	mux.HandleFunc("GET /v1/documents/{document_id}", rt.getDocument)
	mux.HandleFunc("DELETE /v1/documents/{document_id}", rt.deleteDocument)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.cfg.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.cfg.ServiceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// scopeFromRequest extracts the caller identity. Both headers are required
// on tenant-scoped routes.
func scopeFromRequest(r *http.Request) (domain.Scope, bool) {
	scope := domain.Scope{
		TenantID: strings.TrimSpace(r.Header.Get(tenantHeader)),
		UserID:   strings.TrimSpace(r.Header.Get(userHeader)),
	}
	return scope, scope.Valid()
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "tenant and user headers are required"})
		return
	}
	chatID := r.PathValue("chat_id")

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	src, err := rt.ingestor.Upload(
		r.Context(),
		scope,
		chatID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordUpload(rt.cfg.ServiceName, src.SizeBytes)
	}
	writeJSON(w, http.StatusAccepted, sourceResponse(src))
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "tenant and user headers are required"})
		return
	}

	src, err := rt.reader.GetByID(r.Context(), scope, r.PathValue("document_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sourceResponse(src))
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "tenant and user headers are required"})
		return
	}

	if err := rt.remover.Delete(r.Context(), scope, r.PathValue("document_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type queryRequest struct {
	Question string   `json:"question"`
	Sources  []string `json:"sources,omitempty"`
	Stream   bool     `json:"stream,omitempty"`
}

type queryResponse struct {
	Answer     string          `json:"answer"`
	Sources    []string        `json:"sources"`
	Candidates []candidateView `json:"candidates,omitempty"`
}

type candidateView struct {
	SourceID   string  `json:"source_id"`
	SourceName string  `json:"source_name"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

func (rt *Router) answerQuery(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "tenant and user headers are required"})
		return
	}
	chatID := r.PathValue("chat_id")

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	if req.Stream {
		rt.answerQueryStream(w, r, scope, chatID, req)
		return
	}

	start := time.Now()
	result, err := rt.query.AnswerQuery(r.Context(), scope, chatID, req.Question, req.Sources)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.recordQuery(result, time.Since(start))

	writeJSON(w, http.StatusOK, queryResult(result))
}

// answerQueryStream emits answer deltas as server-sent events and closes
// with a final event carrying the resolved sources.
func (rt *Router) answerQueryStream(w http.ResponseWriter, r *http.Request, scope domain.Scope, chatID string, req queryRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "streaming is not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	start := time.Now()
	result, err := rt.query.AnswerQueryStream(r.Context(), scope, chatID, req.Question, req.Sources, func(delta string) error {
		payload, err := json.Marshal(map[string]string{"delta": delta})
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		_, _ = w.Write([]byte("data: " + string(payload) + "\n\n"))
		flusher.Flush()
		return
	}
	rt.recordQuery(result, time.Since(start))

	final, _ := json.Marshal(map[string]any{"sources": result.Sources, "done": true})
	_, _ = w.Write([]byte("data: " + string(final) + "\n\n"))
	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

func (rt *Router) recordQuery(result *domain.QueryResult, duration time.Duration) {
	if rt.metrics == nil || result == nil {
		return
	}
	rt.metrics.RecordQuery(rt.cfg.ServiceName, result.Mode, len(result.Candidates), duration)
}

func queryResult(result *domain.QueryResult) queryResponse {
	resp := queryResponse{
		Answer:  result.Answer,
		Sources: result.Sources,
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}
	for _, c := range result.Candidates {
		resp.Candidates = append(resp.Candidates, candidateView{
			SourceID:   c.SourceID,
			SourceName: c.SourceName,
			ChunkIndex: c.ChunkIndex,
			Content:    c.Content,
			Score:      c.Score,
		})
	}
	return resp
}

type sourceView struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

func sourceResponse(src *domain.Source) sourceView {
	return sourceView{
		ID:        src.ID,
		ChatID:    src.ChatID,
		Name:      src.Name,
		MimeType:  src.MimeType,
		SizeBytes: src.SizeBytes,
		CreatedAt: src.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
