package chunking

import (
	"regexp"
	"strings"
)

const (
	defaultChunkSize = 900
	defaultOverlap   = 150
	defaultMaxChunks = 200
)

var (
	crlfRe     = regexp.MustCompile(`\r\n?`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
	spaceRunRe = regexp.MustCompile(`[ \t]{2,}`)
	trailingWS = regexp.MustCompile(`[ \t]+\n`)
)

// Splitter cuts normalized text into overlapping windows, snapping the cut
// to a paragraph break, sentence end, or space so chunks do not end
// mid-word. Deterministic for identical input.
type Splitter struct {
	ChunkSize int
	Overlap   int
	MaxChunks int
}

func NewSplitter(chunkSize, overlap, maxChunks int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	if maxChunks <= 0 {
		maxChunks = defaultMaxChunks
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
		MaxChunks: maxChunks,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(normalize(text))
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/s.ChunkSize+1)
	start := 0
	for start < len(runes) && len(out) < s.MaxChunks {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = snapBoundary(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}

		// Step back by the overlap but always move forward, so the loop
		// terminates even with degenerate boundaries.
		step := (end - start) - s.Overlap
		if step < 1 {
			step = 1
		}
		start += step
	}
	return out
}

// snapBoundary searches backward from the window's right edge, down to its
// midpoint, for the best cut: paragraph break, then sentence-ending period
// plus space, then plain space.
func snapBoundary(runes []rune, start, end int) int {
	mid := start + (end-start)/2

	for i := end - 1; i > mid; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i
		}
	}
	for i := end - 1; i > mid; i-- {
		if runes[i] == ' ' && runes[i-1] == '.' {
			return i
		}
	}
	for i := end - 1; i > mid; i-- {
		if runes[i] == ' ' || runes[i] == '\n' {
			return i
		}
	}
	return end
}

// normalize unifies line endings and collapses whitespace runs so chunk
// boundaries do not depend on the source format's layout quirks.
func normalize(text string) string {
	text = crlfRe.ReplaceAllString(text, "\n")
	text = trailingWS.ReplaceAllString(text, "\n")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
