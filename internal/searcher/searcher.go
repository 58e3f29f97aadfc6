package searcher

import (
	"context"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/ragd-project/ragd/internal/embed"
	"github.com/ragd-project/ragd/internal/query"
	"github.com/ragd-project/ragd/internal/ragerr"
	"github.com/ragd-project/ragd/internal/store"
)

// HybridSearcher fans out a query to the vector and keyword stores
// concurrently, then fuses the two ranked lists (spec §4.7).
type HybridSearcher struct {
	vectors  store.VectorStore
	keywords store.KeywordStore
	metadata store.MetadataStore
	embedder embed.Embedder
}

// New constructs a HybridSearcher over the given store triple and embedder.
func New(vectors store.VectorStore, keywords store.KeywordStore, metadata store.MetadataStore, embedder embed.Embedder) *HybridSearcher {
	return &HybridSearcher{vectors: vectors, keywords: keywords, metadata: metadata, embedder: embedder}
}

// Search runs the hybrid algorithm of spec §4.7 and returns up to
// opts.Limit fused results.
func (s *HybridSearcher) Search(ctx context.Context, rawQuery string, opts Options) ([]HybridSearchResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.Overfetch <= 0 {
		opts.Overfetch = 3
	}
	if opts.Weights.Semantic == 0 && opts.Weights.Keyword == 0 {
		opts.Weights = Weights{Semantic: 0.5, Keyword: 0.5}
	}
	fetchLimit := opts.Limit * opts.Overfetch

	var semanticHits, keywordHits []store.ScoredChunk

	g, gctx := errgroup.WithContext(ctx)

	if opts.Mode == ModeSemantic || opts.Mode == ModeHybrid {
		g.Go(func() error {
			vecs, err := s.embedder.EmbedBatch(gctx, []string{rawQuery})
			if err != nil {
				return ragerr.New(ragerr.ErrCodeEmbeddingFailed, "embed query", err)
			}
			hits, err := s.vectors.Search(gctx, vecs[0], fetchLimit, opts.Filter)
			if err != nil {
				return err
			}
			semanticHits = hits
			return nil
		})
	}

	if opts.Mode == ModeKeyword || opts.Mode == ModeHybrid {
		g.Go(func() error {
			ftsExpr := s.toFTSExpr(rawQuery)
			if ftsExpr == "" {
				return nil
			}
			hits, err := s.keywords.Search(gctx, ftsExpr, fetchLimit, opts.Filter)
			if err != nil {
				return err
			}
			keywordHits = hits
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var fused []HybridSearchResult
	switch opts.Mode {
	case ModeSemantic:
		fused = passthrough(semanticHits, true)
	case ModeKeyword:
		fused = passthrough(keywordHits, false)
	default:
		fused = fuse(semanticHits, keywordHits, opts.Weights, opts.RRFK)
	}

	if len(fused) > opts.Limit {
		fused = fused[:opts.Limit]
	}

	s.attachDocumentInfo(ctx, fused)
	return fused, nil
}

// toFTSExpr parses rawQuery into the keyword store's native expression,
// falling back to a phrase-quoted form if parsing fails (spec §4.7 step 2).
func (s *HybridSearcher) toFTSExpr(rawQuery string) string {
	ast, err := query.Parse(rawQuery)
	if err != nil {
		return query.Fallback(rawQuery)
	}
	return query.ToFTS(ast)
}

// passthrough builds HybridSearchResults from a single branch when mode is
// not HYBRID; normalization is skipped entirely (spec §4.7 edge cases).
func passthrough(hits []store.ScoredChunk, isSemantic bool) []HybridSearchResult {
	out := make([]HybridSearchResult, len(hits))
	for i, h := range hits {
		r := HybridSearchResult{
			ChunkID:       h.ChunkID,
			DocumentID:    h.DocumentID,
			Content:       h.Content,
			CombinedScore: float64(h.Score),
			Metadata:      h.Metadata,
		}
		if isSemantic {
			r.SemanticScore = float64(h.Score)
		} else {
			r.KeywordScore = float64(h.Score)
		}
		out[i] = r
	}
	return out
}

func (s *HybridSearcher) attachDocumentInfo(ctx context.Context, results []HybridSearchResult) {
	cache := make(map[string]string)
	for i := range results {
		docID := results[i].DocumentID
		name, ok := cache[docID]
		if !ok {
			name = s.documentName(ctx, docID)
			cache[docID] = name
		}
		results[i].DocumentName = name
		if page, ok := results[i].Metadata["page_number"]; ok {
			results[i].Location = "page " + page
		}
	}
}

func (s *HybridSearcher) documentName(ctx context.Context, docID string) string {
	meta, err := s.metadata.Get(ctx, docID)
	if err != nil || meta == nil || meta.SourcePath == "" {
		return docID
	}
	return filepath.Base(meta.SourcePath)
}
