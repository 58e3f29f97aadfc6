package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/ragd-project/ragd/internal/ragerr"
)

// StaticDimension is the width of vectors produced by StaticEmbedder.
const StaticDimension = 256

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "is": true, "it": true, "this": true, "that": true,
}

// StaticEmbedder is a hash-based, dependency-free embedder: deterministic
// and fast, with reduced semantic quality relative to a learned model. It
// exists so the core, and its tests, never require a network call or a
// model download to exercise the full pipeline.
type StaticEmbedder struct {
	closed bool
}

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

func (e *StaticEmbedder) Dimension() int    { return StaticDimension }
func (e *StaticEmbedder) ModelName() string { return "static-hash-256" }
func (e *StaticEmbedder) Close() error      { e.closed = true; return nil }

func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.closed {
		return nil, ragerr.New(ragerr.ErrCodeEmbeddingFailed, "embedder is closed", nil)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		out[i] = e.embedOne(t)
	}
	return out, nil
}

func (e *StaticEmbedder) embedOne(text string) []float32 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimension)
	}
	return normalizeVector(e.generateVector(trimmed))
}

func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimension)
	tokens := filterStopWords(tokenRegex.FindAllString(strings.ToLower(text), -1))

	for _, token := range tokens {
		vector[hashToIndex(token)] += tokenWeight
		for _, gram := range ngrams(token, ngramSize) {
			vector[hashToIndex(gram)] += ngramWeight
		}
	}
	return vector
}

func filterStopWords(tokens []string) []string {
	out := tokens[:0]
	for _, t := range tokens {
		if !stopWords[t] {
			out = append(out, t)
		}
	}
	return out
}

func ngrams(s string, n int) []string {
	if len(s) < n {
		return nil
	}
	var out []string
	for i := 0; i+n <= len(s); i++ {
		out = append(out, s[i:i+n])
	}
	return out
}

func hashToIndex(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % StaticDimension)
}
