// Package searcher implements the hybrid searcher: fan-out to the vector
// and keyword stores, per-query score normalization, and weighted-sum
// fusion with reciprocal-rank-fusion tie-breaking. See spec §4.7.
package searcher

import "github.com/ragd-project/ragd/internal/store"

// Mode selects which branch(es) of the hybrid searcher run.
type Mode string

const (
	ModeSemantic Mode = "SEMANTIC"
	ModeKeyword  Mode = "KEYWORD"
	ModeHybrid   Mode = "HYBRID"
)

// DefaultRRFConstant is the standard RRF smoothing parameter (spec
// glossary: "RRF", k≈60).
const DefaultRRFConstant = 60

// Weights controls the weighted-sum fusion contribution of each branch;
// w_sem + w_kw must equal 1 (spec §4.7 step 5).
type Weights struct {
	Semantic float64
	Keyword  float64
}

// Options configures one Search call.
type Options struct {
	Mode      Mode
	Limit     int
	Overfetch int // limit multiplier applied to each branch before fusion
	Weights   Weights
	RRFK      int
	Filter    store.MetadataFilter
}

// HybridSearchResult is one fused, ranked hit (spec §4.7).
type HybridSearchResult struct {
	ChunkID       string
	DocumentID    string
	DocumentName  string
	Content       string
	Location      string
	CombinedScore float64
	SemanticScore float64
	KeywordScore  float64
	RRFScore      float64
	Metadata      map[string]string
}
