package chunker

import (
	"strings"

	"github.com/ragd-project/ragd/internal/ragdoc"
)

// FixedChunker splits text into fixed-size character windows, approximating
// TokensPerChar chars/token, snapping the right edge back to the nearest
// preceding space so chunks don't split mid-word, and striding back
// Overlap tokens worth of characters between consecutive windows.
type FixedChunker struct {
	opts Options
}

func (c *FixedChunker) Chunk(text string, metadata ragdoc.Metadata) []*ragdoc.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	windowChars := c.opts.ChunkSize * TokensPerChar
	overlapChars := c.opts.Overlap * TokensPerChar
	if overlapChars >= windowChars {
		overlapChars = windowChars / 2
	}

	var chunks []*ragdoc.Chunk
	n := len(text)
	start := 0

	for start < n {
		end := start + windowChars
		if end >= n {
			end = n
		} else if sp := strings.LastIndex(text[start:end], " "); sp > 0 {
			// Snap to the nearest preceding word boundary within the window.
			end = start + sp
		}

		content := strings.TrimSpace(text[start:end])
		if content != "" {
			chunks = append(chunks, newChunk(len(chunks), content, start, end, metadata, c.opts.CountTokens))
		}

		if end >= n {
			break
		}
		next := end - overlapChars
		if next <= start {
			next = end
		}
		start = next
	}

	return mergeShortChunks(chunks, c.opts.MinChunkSize, c.opts.CountTokens)
}
