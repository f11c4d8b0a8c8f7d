package usecase

import (
	"testing"
	"time"

	"github.com/draftwell/docassist/internal/core/domain"
)

func chatSources(names ...string) []domain.Source {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	out := make([]domain.Source, 0, len(names))
	for i, name := range names {
		out = append(out, domain.Source{
			ID:        name,
			Name:      name,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	return out
}

func TestResolveExplicitSelectionWins(t *testing.T) {
	resolver := NewScopeResolver()
	available := chatSources("a.pdf", "b.pdf", "c.pdf")

	got := resolver.Resolve("summarize @c please", []string{"b.pdf", "b.pdf", "ghost.pdf"}, available)
	if len(got) != 1 || got[0] != "b.pdf" {
		t.Fatalf("explicit selection should win and be deduplicated, got %v", got)
	}
}

func TestResolveMentionExactMatch(t *testing.T) {
	resolver := NewScopeResolver()
	available := chatSources("Q3-Report.pdf", "notes.txt")

	got := resolver.Resolve("what does @q3-report conclude?", nil, available)
	if len(got) != 1 || got[0] != "Q3-Report.pdf" {
		t.Fatalf("mention should slug-match the filename stem, got %v", got)
	}
}

func TestResolveMentionPrefixBeatsSubstring(t *testing.T) {
	resolver := NewScopeResolver()
	available := chatSources("annual-budget-2026.xlsx", "budget-notes.txt")

	// "annual-budget-2026" only contains the mention; "budget-notes" starts
	// with it, and the prefix match wins regardless of list order.
	got := resolver.Resolve("open @budget", nil, available)
	if len(got) != 1 || got[0] != "budget-notes.txt" {
		t.Fatalf("expected prefix match to win, got %v", got)
	}

	got = resolver.Resolve("open @2026", nil, available)
	if len(got) != 1 || got[0] != "annual-budget-2026.xlsx" {
		t.Fatalf("expected substring match when no prefix matches, got %v", got)
	}
}

func TestResolveMentionUnknownYieldsNothing(t *testing.T) {
	resolver := NewScopeResolver()
	available := chatSources("a.pdf")

	got := resolver.Resolve("check @nonexistent now", nil, available)
	if len(got) != 0 {
		t.Fatalf("unmatched mention must not fall through to recency, got %v", got)
	}

	// Even with file/upload/recency cues in the same message, an unmatched
	// mention keeps the scope empty.
	got = resolver.Resolve("@typo summarize the file I just uploaded", nil, available)
	if len(got) != 0 {
		t.Fatalf("recency inference must not run when a mention is present, got %v", got)
	}
}

func TestResolveRecencySingleFile(t *testing.T) {
	resolver := NewScopeResolver()
	available := chatSources("old.pdf", "mid.pdf", "new.pdf")

	got := resolver.Resolve("what does the file I just uploaded say?", nil, available)
	if len(got) != 1 || got[0] != "new.pdf" {
		t.Fatalf("expected single most recent source, got %v", got)
	}
}

func TestResolveRecencyPluralTakesThree(t *testing.T) {
	resolver := NewScopeResolver()
	available := chatSources("one.pdf", "two.pdf", "three.pdf", "four.pdf")

	got := resolver.Resolve("summarize the files I uploaded recently", nil, available)
	if len(got) != 3 {
		t.Fatalf("plural file word should take 3 sources, got %v", got)
	}
	if got[0] != "four.pdf" || got[1] != "three.pdf" || got[2] != "two.pdf" {
		t.Fatalf("expected newest first, got %v", got)
	}
}

func TestResolveRecencyVerbObjectPattern(t *testing.T) {
	resolver := NewScopeResolver()
	available := chatSources("a.pdf", "b.pdf")

	// No recency cue, but "uploaded this document" matches the verb-object
	// window.
	got := resolver.Resolve("I uploaded this document, can you review it?", nil, available)
	if len(got) != 1 || got[0] != "b.pdf" {
		t.Fatalf("verb-object pattern should select the most recent, got %v", got)
	}
}

func TestResolveRecencyRequiresBothWordClasses(t *testing.T) {
	resolver := NewScopeResolver()
	available := chatSources("a.pdf")

	for _, message := range []string{
		"tell me about the latest file",         // file + recency, no upload word
		"what did I upload recently?",           // upload + recency, no file word
		"describe the document in the contract", // file word only
		"what is new today?",                    // recency only
	} {
		if got := resolver.Resolve(message, nil, available); len(got) != 0 {
			t.Fatalf("message %q should not trigger recency scope, got %v", message, got)
		}
	}
}

func TestResolveNoSourcesAvailable(t *testing.T) {
	resolver := NewScopeResolver()
	if got := resolver.Resolve("summarize the file I uploaded", nil, nil); got != nil {
		t.Fatalf("no available sources should resolve to nil, got %v", got)
	}
}
