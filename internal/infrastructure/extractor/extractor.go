// Package extractor converts uploaded file bytes into plain text for
// chunking. Extraction is a pure function over the bytes and never fails:
// unsupported or corrupt input yields an empty string, which the pipeline
// reports as a zero-chunk indexing result.
package extractor

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

const (
	defaultMaxChars = 60000
	// jsonListLimit bounds how many items of a top-level JSON array are kept
	// before re-serializing.
	jsonListLimit = 50
)

type Extractor struct {
	maxChars int
}

func New(maxChars int) *Extractor {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &Extractor{maxChars: maxChars}
}

func (e *Extractor) Extract(name string, data []byte) string {
	if len(data) == 0 {
		return ""
	}

	var text string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		text = extractPDF(data)
	case ".docx":
		text = extractDOCX(data)
	case ".xlsx", ".xlsm":
		text = extractXLSX(data)
	case ".json":
		text = extractJSON(data)
	default:
		// csv, tsv, txt, md and anything else: byte-preserving decode.
		text = decodeText(data)
	}

	return truncateRunes(strings.TrimSpace(text), e.maxChars)
}

// extractPDF concatenates per-page text with newlines. The pdf package can
// panic on malformed files, so the whole extraction is fenced.
func extractPDF(data []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("pdf_extract_panic", "panic", r)
			text = ""
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return b.String()
}

func extractDOCX(data []byte) string {
	text, _, err := docconv.ConvertDocx(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return text
}

// extractXLSX renders every sheet as tab-separated rows, prefixed by the
// sheet name. Pricing workbooks are a common upload in this domain.
func extractXLSX(data []byte) string {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		b.WriteString(sheet)
		b.WriteString("\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// extractJSON keeps only the head of a top-level array before
// re-serializing; anything unparseable falls back to the raw decode.
func extractJSON(data []byte) string {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return decodeText(data)
	}

	if list, ok := value.([]any); ok && len(list) > jsonListLimit {
		value = list[:jsonListLimit]
	}
	out, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return decodeText(data)
	}
	return string(out)
}

// decodeText never raises a decode error: valid UTF-8 is used as is (minus
// a BOM), anything else gets a byte-preserving Latin-1 interpretation.
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return string(data)
	}

	runes := make([]rune, 0, len(data))
	for _, b := range data {
		runes = append(runes, rune(b))
	}
	return string(runes)
}

func truncateRunes(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
