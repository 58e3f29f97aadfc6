package searcher

import (
	"sort"

	"github.com/ragd-project/ragd/internal/store"
)

// branchHit is one side's scored chunk plus its 1-indexed rank in that
// branch's result list (0 when the chunk never appeared in this branch).
type branchHit struct {
	chunk store.ScoredChunk
	rank  int
}

// fuse combines normalized semantic and keyword hits into ranked
// HybridSearchResults, per spec §4.7 steps 4-6:
//  1. keyword scores are min-max normalized to [0,1] over this result set
//     (semantic scores already are);
//  2. combined = w_sem*sem + w_kw*kw, zero for the missing side;
//  3. rrf(k) = sum 1/(k+rank_i) across both orderings, used only to break
//     combined-score ties;
//  4. sort by combined desc, then rrf desc, then chunk_id asc.
func fuse(semantic, keyword []store.ScoredChunk, weights Weights, rrfK int) []HybridSearchResult {
	if rrfK <= 0 {
		rrfK = DefaultRRFConstant
	}

	semByID := indexBranch(semantic)
	kwByID := indexBranch(normalizeMinMax(keyword))

	ids := make(map[string]struct{}, len(semByID)+len(kwByID))
	for id := range semByID {
		ids[id] = struct{}{}
	}
	for id := range kwByID {
		ids[id] = struct{}{}
	}

	results := make([]HybridSearchResult, 0, len(ids))
	for id := range ids {
		sem, hasSem := semByID[id]
		kw, hasKw := kwByID[id]

		var combined, semScore, kwScore, rrf float64
		if hasSem {
			semScore = float64(sem.chunk.Score)
			combined += weights.Semantic * semScore
			rrf += 1.0 / float64(rrfK+sem.rank)
		}
		if hasKw {
			kwScore = float64(kw.chunk.Score)
			combined += weights.Keyword * kwScore
			rrf += 1.0 / float64(rrfK+kw.rank)
		}

		source := sem.chunk
		if !hasSem {
			source = kw.chunk
		}

		results = append(results, HybridSearchResult{
			ChunkID:       id,
			DocumentID:    source.DocumentID,
			Content:       source.Content,
			CombinedScore: combined,
			SemanticScore: semScore,
			KeywordScore:  kwScore,
			RRFScore:      rrf,
			Metadata:      source.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		return a.ChunkID < b.ChunkID
	})
	return results
}

func indexBranch(hits []store.ScoredChunk) map[string]branchHit {
	out := make(map[string]branchHit, len(hits))
	for i, h := range hits {
		out[h.ChunkID] = branchHit{chunk: h, rank: i + 1}
	}
	return out
}

// normalizeMinMax rescales scores in hits to [0,1] via min-max over this
// result set (spec §4.7 step 4: per-query normalization for BM25-family
// scores, which are not naturally bounded).
func normalizeMinMax(hits []store.ScoredChunk) []store.ScoredChunk {
	if len(hits) == 0 {
		return hits
	}
	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	if max == min {
		out := make([]store.ScoredChunk, len(hits))
		for i, h := range hits {
			h.Score = 1.0
			out[i] = h
		}
		return out
	}
	out := make([]store.ScoredChunk, len(hits))
	spread := max - min
	for i, h := range hits {
		h.Score = (h.Score - min) / spread
		out[i] = h
	}
	return out
}
