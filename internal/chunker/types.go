// Package chunker splits normalized document text into ordered, overlapping
// chunks. Three strategies are provided: sentence, fixed, and recursive.
// See spec §4.2.
package chunker

import "github.com/ragd-project/ragd/internal/ragdoc"

// Chunk size defaults, chosen to match the teacher's own defaults for
// general-purpose text (spec leaves exact defaults to the implementer).
const (
	DefaultChunkSize    = 512 // tokens
	DefaultOverlap      = 64  // tokens
	DefaultMinChunkSize = 100 // tokens
	TokensPerChar       = 4   // fallback approximation: 4 chars = 1 token
)

// TokenCounter estimates the number of tokens in a string. The host may
// supply a real tokenizer; DefaultTokenCounter is the deterministic
// len(text)/4 fallback mandated by spec §4.2 when none is available.
type TokenCounter func(text string) int

// DefaultTokenCounter is the stdlib-only fallback token estimator.
func DefaultTokenCounter(text string) int {
	n := len(text) / TokensPerChar
	if n < 1 && len(text) > 0 {
		n = 1
	}
	return n
}

// Options configures any of the three chunking strategies.
type Options struct {
	ChunkSize    int // target tokens per chunk
	Overlap      int // tokens of overlap between consecutive chunks
	MinChunkSize int // chunks below this are merged into a neighbor
	CountTokens  TokenCounter
}

// WithDefaults fills a non-positive ChunkSize or MinChunkSize, a negative
// Overlap, and a nil CountTokens with package defaults. A zero Overlap is
// kept and means no overlap.
func (o Options) WithDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Overlap < 0 {
		o.Overlap = DefaultOverlap
	}
	if o.MinChunkSize <= 0 {
		o.MinChunkSize = DefaultMinChunkSize
	}
	if o.CountTokens == nil {
		o.CountTokens = DefaultTokenCounter
	}
	return o
}

// Strategy names recognized by chunking.strategy configuration.
const (
	StrategySentence  = "sentence"
	StrategyFixed     = "fixed"
	StrategyRecursive = "recursive"
)

// Chunker splits document text into ordered chunks with character offsets.
type Chunker interface {
	// Chunk splits text into ordered chunks. metadata is inherited by every
	// produced chunk (spec §3: "inherits document metadata").
	Chunk(text string, metadata ragdoc.Metadata) []*ragdoc.Chunk
}

// New constructs the named strategy with the given options.
func New(strategy string, opts Options) Chunker {
	opts = opts.WithDefaults()
	switch strategy {
	case StrategyFixed:
		return &FixedChunker{opts: opts}
	case StrategyRecursive:
		return &RecursiveChunker{opts: opts}
	default:
		return &SentenceChunker{opts: opts}
	}
}

// newChunk builds a ragdoc.Chunk for position idx, stamping document
// metadata and computing the token count with the configured counter.
func newChunk(idx int, content string, start, end int, md ragdoc.Metadata, count TokenCounter) *ragdoc.Chunk {
	tc := count(content)
	if tc < 1 {
		tc = 1
	}
	return &ragdoc.Chunk{
		ChunkIndex: idx,
		Content:    content,
		StartChar:  start,
		EndChar:    end,
		TokenCount: tc,
		Metadata:   md.Clone(),
	}
}

// reindex assigns dense 0..N-1 ChunkIndex values (spec invariant P3/I4).
func reindex(chunks []*ragdoc.Chunk) []*ragdoc.Chunk {
	for i, c := range chunks {
		c.ChunkIndex = i
	}
	return chunks
}
