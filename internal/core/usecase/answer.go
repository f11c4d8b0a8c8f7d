package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/draftwell/docassist/internal/core/domain"
	"github.com/draftwell/docassist/internal/core/ports"
)

const (
	defaultMaxContextChars = 12000
	defaultAnswerTokens    = 1024

	systemPromptGrounded = "You are a document assistant for a government-contracting workspace. " +
		"Answer using only the provided document excerpts. When the excerpts do not " +
		"contain the answer, say so instead of guessing."
	systemPromptUngrounded = "You are a document assistant for a government-contracting workspace. " +
		"No supporting documents were found for this question; answer from general " +
		"knowledge and tell the user that no uploaded documents were used."
)

// AnswerQueryUseCase handles one chat turn: resolve the source scope, make
// sure those sources are indexed, retrieve ranked chunks, assemble a bounded
// context block, and ask the completion provider.
type AnswerQueryUseCase struct {
	sources   ports.SourceRepository
	resolver  *ScopeResolver
	indexer   ports.DocumentIndexer
	retriever *RetrieveUseCase
	completer ports.Completer

	topK            int
	maxContextChars int
}

func NewAnswerQueryUseCase(
	sources ports.SourceRepository,
	resolver *ScopeResolver,
	indexer ports.DocumentIndexer,
	retriever *RetrieveUseCase,
	completer ports.Completer,
	topK, maxContextChars int,
) *AnswerQueryUseCase {
	if topK <= 0 {
		topK = defaultTopK
	}
	if maxContextChars <= 0 {
		maxContextChars = defaultMaxContextChars
	}
	return &AnswerQueryUseCase{
		sources:         sources,
		resolver:        resolver,
		indexer:         indexer,
		retriever:       retriever,
		completer:       completer,
		topK:            topK,
		maxContextChars: maxContextChars,
	}
}

func (uc *AnswerQueryUseCase) AnswerQuery(
	ctx context.Context,
	scope domain.Scope,
	chatID, question string,
	explicitSources []string,
) (*domain.QueryResult, error) {
	if !scope.Valid() {
		return nil, domain.WrapError(domain.ErrUnauthorized, "answer query", fmt.Errorf("missing tenant or user"))
	}
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer query", fmt.Errorf("question is empty"))
	}

	available, err := uc.sources.ListByChat(ctx, scope, chatID)
	if err != nil {
		return nil, fmt.Errorf("list chat sources: %w", err)
	}

	names := uc.resolver.Resolve(question, explicitSources, available)
	inScope := sourcesByName(available, names)

	candidates, err := uc.retrieveForScope(ctx, scope, chatID, question, inScope)
	if err != nil {
		return nil, err
	}

	contextText := assembleContext(candidates, uc.maxContextChars)
	answer, err := uc.completer.Complete(ctx, buildMessages(question, contextText), defaultAnswerTokens)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &domain.QueryResult{
		Answer:      answer,
		ContextText: contextText,
		Sources:     names,
		Candidates:  candidates,
		Mode:        uc.retriever.Mode(),
	}, nil
}

// AnswerQueryStream runs the same pipeline but hands answer deltas to emit
// as the provider produces them. The returned result carries the full
// accumulated answer.
func (uc *AnswerQueryUseCase) AnswerQueryStream(
	ctx context.Context,
	scope domain.Scope,
	chatID, question string,
	explicitSources []string,
	emit func(delta string) error,
) (*domain.QueryResult, error) {
	if !scope.Valid() {
		return nil, domain.WrapError(domain.ErrUnauthorized, "answer query", fmt.Errorf("missing tenant or user"))
	}
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer query", fmt.Errorf("question is empty"))
	}

	available, err := uc.sources.ListByChat(ctx, scope, chatID)
	if err != nil {
		return nil, fmt.Errorf("list chat sources: %w", err)
	}

	names := uc.resolver.Resolve(question, explicitSources, available)
	inScope := sourcesByName(available, names)

	candidates, err := uc.retrieveForScope(ctx, scope, chatID, question, inScope)
	if err != nil {
		return nil, err
	}

	contextText := assembleContext(candidates, uc.maxContextChars)

	var answer strings.Builder
	err = uc.completer.CompleteStream(ctx, buildMessages(question, contextText), defaultAnswerTokens, func(delta string) error {
		answer.WriteString(delta)
		return emit(delta)
	})
	if err != nil {
		return nil, fmt.Errorf("generate streamed answer: %w", err)
	}

	return &domain.QueryResult{
		Answer:      answer.String(),
		ContextText: contextText,
		Sources:     names,
		Candidates:  candidates,
		Mode:        uc.retriever.Mode(),
	}, nil
}

func (uc *AnswerQueryUseCase) retrieveForScope(
	ctx context.Context,
	scope domain.Scope,
	chatID, question string,
	inScope []domain.Source,
) ([]domain.Candidate, error) {
	if len(inScope) == 0 {
		return nil, nil
	}

	// Lazy backfill: a source uploaded while the embedding provider was
	// down, or one never touched by the worker, gets indexed here.
	if err := uc.indexer.EnsureIndexed(ctx, scope, chatID, inScope); err != nil {
		slog.Warn("ensure_indexed_failed", "tenant_id", scope.TenantID, "chat_id", chatID, "error", err)
	}

	ids := make([]string, 0, len(inScope))
	for _, src := range inScope {
		ids = append(ids, src.ID)
	}
	candidates, err := uc.retriever.Retrieve(ctx, scope, chatID, question, ids, uc.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve chunks: %w", err)
	}
	return candidates, nil
}

func buildMessages(question, contextText string) []domain.ChatMessage {
	systemPrompt := systemPromptUngrounded
	userContent := question
	if contextText != "" {
		systemPrompt = systemPromptGrounded
		userContent = fmt.Sprintf("Document excerpts:\n\n%s\n\nQuestion: %s", contextText, question)
	}
	return []domain.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userContent},
	}
}

func sourcesByName(available []domain.Source, names []string) []domain.Source {
	if len(names) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}
	out := make([]domain.Source, 0, len(names))
	for _, src := range available {
		if _, ok := wanted[src.Name]; ok {
			out = append(out, src)
		}
	}
	return out
}

// assembleContext renders candidates into labeled sections, stopping before
// the character budget is exceeded.
func assembleContext(candidates []domain.Candidate, maxChars int) string {
	if len(candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range candidates {
		section := fmt.Sprintf("[source: %s]\n%s\n\n", c.SourceName, c.Content)
		if b.Len()+len(section) > maxChars {
			break
		}
		b.WriteString(section)
	}
	return strings.TrimSpace(b.String())
}
