package chunker

import (
	"strings"
	"testing"

	"github.com/ragd-project/ragd/internal/ragdoc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func denseIndices(t *testing.T, chunks []*ragdoc.Chunk) {
	t.Helper()
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.GreaterOrEqual(t, c.TokenCount, 1)
	}
}

func TestSentenceChunkerBoundaries(t *testing.T) {
	// Scenario 3: "A. " * 500 (1500 chars), chunk_size=50 tokens, overlap=10.
	text := strings.Repeat("A. ", 500)
	ch := New(StrategySentence, Options{ChunkSize: 50, Overlap: 10, MinChunkSize: 1})
	chunks := ch.Chunk(text, ragdoc.Metadata{})

	require.GreaterOrEqual(t, len(chunks), 2)
	denseIndices(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, 50)
	}
	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i].StartChar, 0)
		assert.GreaterOrEqual(t, chunks[i].EndChar, chunks[i-1].StartChar)
	}
}

func TestSentenceChunkerMergesShortTail(t *testing.T) {
	text := "This is one real sentence that is reasonably long. Tiny."
	ch := New(StrategySentence, Options{ChunkSize: 12, Overlap: 0, MinChunkSize: 50})
	chunks := ch.Chunk(text, ragdoc.Metadata{})
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "Tiny")
}

func TestFixedChunkerRespectsWordBoundaries(t *testing.T) {
	text := strings.Repeat("word ", 400)
	ch := New(StrategyFixed, Options{ChunkSize: 20, Overlap: 5, MinChunkSize: 1})
	chunks := ch.Chunk(text, ragdoc.Metadata{})

	require.NotEmpty(t, chunks)
	denseIndices(t, chunks)
	for _, c := range chunks {
		assert.False(t, strings.HasPrefix(c.Content, " "))
		assert.NotContains(t, c.Content, "wor d")
	}
}

func TestFixedChunkerOverlapStride(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 100)
	ch := New(StrategyFixed, Options{ChunkSize: 30, Overlap: 10, MinChunkSize: 1})
	chunks := ch.Chunk(text, ragdoc.Metadata{})
	require.GreaterOrEqual(t, len(chunks), 2)
	// With overlap, chunk k+1 starts before chunk k ends.
	assert.Less(t, chunks[1].StartChar, chunks[0].EndChar)
}

func TestRecursiveChunkerHeaderSeparators(t *testing.T) {
	text := "\n## Section One\n" + strings.Repeat("alpha beta gamma. ", 100) +
		"\n## Section Two\n" + strings.Repeat("delta epsilon zeta. ", 100)
	ch := New(StrategyRecursive, Options{ChunkSize: 80, Overlap: 0, MinChunkSize: 1})
	chunks := ch.Chunk(text, ragdoc.Metadata{})

	require.GreaterOrEqual(t, len(chunks), 2)
	denseIndices(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, 80)
	}
}

func TestRecursiveChunkerFallsBackToFinestSeparator(t *testing.T) {
	text := strings.Repeat("x", 2000) // no separators at all except none; single run of chars
	ch := New(StrategyRecursive, Options{ChunkSize: 50, Overlap: 0, MinChunkSize: 1})
	chunks := ch.Chunk(text, ragdoc.Metadata{})
	// No separator applies; the whole text stays one oversized chunk rather
	// than panicking or looping forever.
	require.Len(t, chunks, 1)
}

func TestEmptyTextProducesNoChunks(t *testing.T) {
	for _, strategy := range []string{StrategySentence, StrategyFixed, StrategyRecursive} {
		ch := New(strategy, Options{})
		assert.Empty(t, ch.Chunk("   \n\t  ", ragdoc.Metadata{}))
	}
}

func TestChunksInheritMetadata(t *testing.T) {
	ch := New(StrategyFixed, Options{ChunkSize: 50, MinChunkSize: 1})
	md := ragdoc.Metadata{"project": "demo"}
	chunks := ch.Chunk("hello world, this is a test of metadata inheritance across chunks.", md)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, "demo", c.Metadata["project"])
	}
}
