package chunker

import (
	"strings"

	"github.com/ragd-project/ragd/internal/ragdoc"
)

// recursiveSeparators are tried coarsest to finest (spec §4.2).
var recursiveSeparators = []string{"\n## ", "\n# ", "\n\n\n", "\n\n", "\n", ". ", " "}

// RecursiveChunker splits on the coarsest separator that occurs in the
// text, recursing with finer separators on any piece still over ChunkSize
// tokens, and merging pieces under MinChunkSize tokens into their
// predecessor.
type RecursiveChunker struct {
	opts Options
}

type textSpan struct {
	text       string
	start, end int
}

func (c *RecursiveChunker) Chunk(text string, metadata ragdoc.Metadata) []*ragdoc.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	spans := c.split(textSpan{text: text, start: 0, end: len(text)}, 0)
	spans = c.mergeShortSpans(spans)

	chunks := make([]*ragdoc.Chunk, 0, len(spans))
	for _, s := range spans {
		trimmed := strings.TrimSpace(s.text)
		if trimmed == "" {
			continue
		}
		chunks = append(chunks, newChunk(len(chunks), trimmed, s.start, s.end, metadata, c.opts.CountTokens))
	}
	return reindex(chunks)
}

// split recursively divides span using separators[sepIdx:], descending to
// finer separators only for pieces that are still too large.
func (c *RecursiveChunker) split(span textSpan, sepIdx int) []textSpan {
	if c.opts.CountTokens(span.text) <= c.opts.ChunkSize || sepIdx >= len(recursiveSeparators) {
		return []textSpan{span}
	}

	sep := recursiveSeparators[sepIdx]
	pieces := splitKeepOffsets(span.text, sep)
	if len(pieces) <= 1 {
		// This separator doesn't occur in the span; try the next one.
		return c.split(span, sepIdx+1)
	}

	var result []textSpan
	for _, p := range pieces {
		abs := textSpan{text: p.text, start: span.start + p.start, end: span.start + p.end}
		if c.opts.CountTokens(abs.text) <= c.opts.ChunkSize {
			result = append(result, abs)
		} else {
			result = append(result, c.split(abs, sepIdx+1)...)
		}
	}
	return result
}

// splitKeepOffsets splits s on sep, preserving start/end offsets into s for
// each piece (the separator itself is dropped, as in the teacher's
// paragraph-splitting helpers).
func splitKeepOffsets(s string, sep string) []textSpan {
	var pieces []textSpan
	last := 0
	for {
		idx := strings.Index(s[last:], sep)
		if idx < 0 {
			break
		}
		abs := last + idx
		pieces = append(pieces, textSpan{text: s[last:abs], start: last, end: abs})
		last = abs + len(sep)
	}
	pieces = append(pieces, textSpan{text: s[last:], start: last, end: len(s)})
	return pieces
}

// mergeShortSpans merges any span below MinChunkSize tokens into its
// predecessor (spec §4.2: "merged into the preceding emitted piece").
func (c *RecursiveChunker) mergeShortSpans(spans []textSpan) []textSpan {
	if len(spans) <= 1 {
		return spans
	}
	merged := make([]textSpan, 0, len(spans))
	for _, s := range spans {
		if strings.TrimSpace(s.text) == "" {
			continue
		}
		if len(merged) > 0 && c.opts.CountTokens(s.text) < c.opts.MinChunkSize {
			prev := merged[len(merged)-1]
			prev.text = prev.text + " " + s.text
			prev.end = s.end
			merged[len(merged)-1] = prev
			continue
		}
		merged = append(merged, s)
	}
	return merged
}
