package usecase

import (
	"sort"
	"strings"

	"github.com/draftwell/docassist/internal/core/domain"
)

// Word classes gating the recency heuristic. The gate is deliberately
// conjunctive: returning no documents is better than guessing a wrong set.
var (
	fileWords = map[string]struct{}{
		"file": {}, "files": {}, "document": {}, "documents": {},
		"attachment": {}, "attachments": {}, "pdf": {}, "pdfs": {},
		"doc": {}, "docs": {}, "docx": {}, "sheet": {}, "sheets": {},
		"spreadsheet": {}, "spreadsheets": {}, "csv": {}, "xlsx": {},
	}
	pluralFileWords = map[string]struct{}{
		"files": {}, "documents": {}, "attachments": {}, "pdfs": {},
		"docs": {}, "sheets": {}, "spreadsheets": {},
	}
	uploadWords = map[string]struct{}{
		"upload": {}, "uploaded": {}, "uploading": {}, "uploads": {},
		"attach": {}, "attached": {}, "attaching": {}, "added": {},
		"add": {}, "sent": {}, "shared": {},
	}
	recencyWords = map[string]struct{}{
		"latest": {}, "last": {}, "recent": {}, "recently": {},
		"just": {}, "today": {}, "now": {}, "new": {}, "newest": {},
	}
	determinerWords = map[string]struct{}{
		"this": {}, "that": {}, "the": {}, "a": {}, "an": {}, "my": {},
		"these": {}, "those": {}, "new": {},
	}
)

// ScopeResolver decides which of a chat's uploaded documents are in play for
// one user turn: an explicit UI selection always wins, then @-mentions, then
// a conservative recency inference. Resolution is never an error; the worst
// case is an empty scope and the query proceeds without retrieval.
type ScopeResolver struct{}

func NewScopeResolver() *ScopeResolver {
	return &ScopeResolver{}
}

// Resolve returns the names of the in-scope sources, a subset of available.
func (r *ScopeResolver) Resolve(message string, explicitSources []string, available []domain.Source) []string {
	if len(available) == 0 {
		return nil
	}

	if len(explicitSources) > 0 {
		return intersectByName(explicitSources, available)
	}

	// A message with @ mentions is an explicit reference: when nothing
	// matches, the scope stays empty rather than degrading to the recency
	// inference.
	if mentions := extractMentions(message); len(mentions) > 0 {
		return matchMentions(mentions, available)
	}

	return r.resolveRecency(message, available)
}

func intersectByName(wanted []string, available []domain.Source) []string {
	known := make(map[string]struct{}, len(available))
	for _, src := range available {
		known[src.Name] = struct{}{}
	}
	out := make([]string, 0, len(wanted))
	seen := make(map[string]struct{}, len(wanted))
	for _, name := range wanted {
		if _, ok := known[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// matchMentions matches each @token against source filename stems by
// normalized slug: exact equality, then prefix, then substring containment.
func matchMentions(mentions []string, available []domain.Source) []string {
	out := make([]string, 0, len(mentions))
	seen := make(map[string]struct{}, len(mentions))
	for _, mention := range mentions {
		name := matchMention(mention, available)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func extractMentions(message string) []string {
	var mentions []string
	fields := strings.Fields(message)
	for _, field := range fields {
		if !strings.HasPrefix(field, "@") {
			continue
		}
		slug := slugify(strings.TrimPrefix(field, "@"))
		if slug != "" {
			mentions = append(mentions, slug)
		}
	}
	return mentions
}

func matchMention(mention string, available []domain.Source) string {
	var prefixMatch, containsMatch string
	for _, src := range available {
		slug := slugify(filenameStem(src.Name))
		if slug == "" {
			continue
		}
		if slug == mention {
			return src.Name
		}
		if prefixMatch == "" && (strings.HasPrefix(slug, mention) || strings.HasPrefix(mention, slug)) {
			prefixMatch = src.Name
			continue
		}
		if containsMatch == "" && (strings.Contains(slug, mention) || strings.Contains(mention, slug)) {
			containsMatch = src.Name
		}
	}
	if prefixMatch != "" {
		return prefixMatch
	}
	return containsMatch
}

// resolveRecency requires a file word AND an upload word, plus either a
// recency cue or an "uploaded this file" verb-object pattern, before it
// returns the most recent source (or three for a plural file word).
func (r *ScopeResolver) resolveRecency(message string, available []domain.Source) []string {
	tokens := splitAlphaNumLower(message)

	hasFile, hasPlural, hasUpload, hasRecency := false, false, false, false
	for _, token := range tokens {
		if _, ok := fileWords[token]; ok {
			hasFile = true
		}
		if _, ok := pluralFileWords[token]; ok {
			hasPlural = true
		}
		if _, ok := uploadWords[token]; ok {
			hasUpload = true
		}
		if _, ok := recencyWords[token]; ok {
			hasRecency = true
		}
	}
	if !hasFile || !hasUpload {
		return nil
	}
	if !hasRecency && !hasUploadObjectPattern(tokens) {
		return nil
	}

	recent := make([]domain.Source, len(available))
	copy(recent, available)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})

	take := 1
	if hasPlural {
		take = 3
	}
	if take > len(recent) {
		take = len(recent)
	}
	out := make([]string, 0, take)
	for _, src := range recent[:take] {
		out = append(out, src.Name)
	}
	return out
}

// hasUploadObjectPattern detects "uploaded this file"-style phrasing: an
// upload word followed by a file word within a short determiner-only window.
func hasUploadObjectPattern(tokens []string) bool {
	for i, token := range tokens {
		if _, ok := uploadWords[token]; !ok {
			continue
		}
		for j := i + 1; j < len(tokens) && j <= i+3; j++ {
			if _, ok := fileWords[tokens[j]]; ok {
				return true
			}
			if _, ok := determinerWords[tokens[j]]; !ok {
				break
			}
		}
	}
	return false
}

func filenameStem(name string) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		return name[:idx]
	}
	return name
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
