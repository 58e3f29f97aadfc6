package extractor

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ragd-project/ragd/internal/ragerr"
)

// PlainTextExtractor handles .txt and .md files: the normalized text is the
// file's UTF-8 content with trailing whitespace trimmed per line, split
// into pages of a fixed line count for callers that want page numbers.
type PlainTextExtractor struct {
	LinesPerPage int
}

func (e *PlainTextExtractor) SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown"}
}

func (e *PlainTextExtractor) Extract(ctx context.Context, path string, hints Hints) (*Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return &Result{Success: false, Err: err}, ragerr.New(ragerr.ErrCodeFileNotFound, "cannot read "+path, err)
	}

	text := strings.TrimRight(normalizeText(string(raw)), "\n")
	linesPerPage := e.LinesPerPage
	if linesPerPage <= 0 {
		linesPerPage = 60
	}

	lines := strings.Split(text, "\n")
	var pages []Page
	for i := 0; i < len(lines); i += linesPerPage {
		end := i + linesPerPage
		if end > len(lines) {
			end = len(lines)
		}
		pages = append(pages, Page{Number: i/linesPerPage + 1, Text: strings.Join(lines[i:end], "\n")})
	}
	if len(pages) == 0 {
		pages = []Page{{Number: 1, Text: text}}
	}

	info, statErr := os.Stat(path)
	meta := map[string]string{
		"file_type":   strings.TrimPrefix(filepath.Ext(path), "."),
		"source_path": path,
		"page_count":  itoa(len(pages)),
	}
	if statErr == nil {
		meta["size_bytes"] = itoa64(info.Size())
	}

	return &Result{
		Text:             text,
		Pages:            pages,
		Metadata:         meta,
		ExtractionMethod: "plaintext",
		Success:          true,
	}, nil
}

// normalizeText trims trailing whitespace per line and collapses a
// leading UTF-8 BOM, matching the normalization chunkers assume (spec §3).
func normalizeText(s string) string {
	s = strings.TrimPrefix(s, string(rune(0xFEFF)))
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return strings.Join(lines, "\n")
}

func itoa(n int) string    { return itoa64(int64(n)) }
func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
