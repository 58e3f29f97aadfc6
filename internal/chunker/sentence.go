package chunker

import (
	"regexp"
	"strings"

	"github.com/ragd-project/ragd/internal/ragdoc"
)

// sentenceBoundary matches the end of a sentence: terminal punctuation
// followed by whitespace and a capital letter, a paragraph break, or a
// colon followed by a newline (spec §4.2).
var sentenceBoundary = regexp.MustCompile(`([.!?])\s+([A-Z])|\n\s*\n|:\s*\n`)

// SentenceChunker aggregates consecutive sentences until the next sentence
// would exceed ChunkSize tokens, then seeds the following chunk with the
// trailing sentences that fit within Overlap tokens.
type SentenceChunker struct {
	opts Options
}

type sentenceSpan struct {
	text       string
	start, end int
}

func (c *SentenceChunker) splitSentences(text string) []sentenceSpan {
	var spans []sentenceSpan
	last := 0
	for _, loc := range sentenceBoundary.FindAllStringSubmatchIndex(text, -1) {
		// loc[0],loc[1] is the full match span; the boundary sits inside it.
		// Cut after the punctuation/paragraph break, before the next sentence's
		// leading capital (loc[2],loc[3] is group 1, loc[4],loc[5] group 2).
		var cut int
		if loc[2] >= 0 {
			cut = loc[3] // end of the terminal punctuation
		} else {
			cut = loc[1] // paragraph break or colon+newline: cut at match end
		}
		if cut <= last {
			continue
		}
		spans = append(spans, sentenceSpan{text: text[last:cut], start: last, end: cut})
		last = cut
	}
	if last < len(text) {
		spans = append(spans, sentenceSpan{text: text[last:], start: last, end: len(text)})
	}
	return trimSpans(spans)
}

// trimSpans drops whitespace-only spans and tightens offsets to the
// trimmed content so StartChar/EndChar point at real text.
func trimSpans(spans []sentenceSpan) []sentenceSpan {
	var out []sentenceSpan
	for _, s := range spans {
		trimmed := strings.TrimSpace(s.text)
		if trimmed == "" {
			continue
		}
		leading := strings.Index(s.text, trimmed)
		out = append(out, sentenceSpan{
			text:  trimmed,
			start: s.start + leading,
			end:   s.start + leading + len(trimmed),
		})
	}
	return out
}

func (c *SentenceChunker) Chunk(text string, metadata ragdoc.Metadata) []*ragdoc.Chunk {
	sentences := c.splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []*ragdoc.Chunk
	var cur []sentenceSpan
	curTokens := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		content := joinSpans(cur)
		ch := newChunk(len(chunks), content, cur[0].start, cur[len(cur)-1].end, metadata, c.opts.CountTokens)
		chunks = append(chunks, ch)
	}

	for _, s := range sentences {
		st := c.opts.CountTokens(s.text)
		if curTokens > 0 && curTokens+st > c.opts.ChunkSize {
			flush()
			cur = overlapTail(cur, c.opts.Overlap, c.opts.CountTokens)
			curTokens = 0
			for _, t := range cur {
				curTokens += c.opts.CountTokens(t.text)
			}
		}
		cur = append(cur, s)
		curTokens += st
	}
	flush()

	return mergeShortChunks(chunks, c.opts.MinChunkSize, c.opts.CountTokens)
}

// overlapTail returns the trailing sentences of cur whose combined token
// count fits within the overlap budget, seeding the next chunk (spec §4.2
// "On overflow... seed the next chunk with the trailing sentences").
func overlapTail(cur []sentenceSpan, overlap int, count TokenCounter) []sentenceSpan {
	if overlap <= 0 || len(cur) == 0 {
		return nil
	}
	total := 0
	i := len(cur)
	for i > 0 {
		t := count(cur[i-1].text)
		if total+t > overlap {
			break
		}
		total += t
		i--
	}
	if i == len(cur) {
		return nil
	}
	tail := make([]sentenceSpan, len(cur)-i)
	copy(tail, cur[i:])
	return tail
}

func joinSpans(spans []sentenceSpan) string {
	parts := make([]string, len(spans))
	for i, s := range spans {
		parts[i] = s.text
	}
	return strings.Join(parts, " ")
}

// mergeShortChunks merges any chunk below minTokens into the preceding
// chunk on emit; a remaining short tail is appended to the last chunk
// (spec §4.2).
func mergeShortChunks(chunks []*ragdoc.Chunk, minTokens int, count TokenCounter) []*ragdoc.Chunk {
	if len(chunks) <= 1 {
		return reindex(chunks)
	}

	merged := make([]*ragdoc.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if len(merged) > 0 && c.TokenCount < minTokens {
			prev := merged[len(merged)-1]
			prev.Content = prev.Content + " " + c.Content
			prev.EndChar = c.EndChar
			prev.TokenCount = count(prev.Content)
			continue
		}
		merged = append(merged, c)
	}

	if len(merged) > 1 && merged[len(merged)-1].TokenCount < minTokens {
		last := merged[len(merged)-1]
		prev := merged[len(merged)-2]
		prev.Content = prev.Content + " " + last.Content
		prev.EndChar = last.EndChar
		prev.TokenCount = count(prev.Content)
		merged = merged[:len(merged)-1]
	}

	return reindex(merged)
}
