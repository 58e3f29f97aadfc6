package searcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragd-project/ragd/internal/embed"
	"github.com/ragd-project/ragd/internal/ragdoc"
	"github.com/ragd-project/ragd/internal/store"
)

func TestHybridSearchEmptyCorpusReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	vecs := store.NewHNSWVectorStore(embed.StaticDimension, "")
	kws, err := store.NewBleveKeywordStore("")
	require.NoError(t, err)
	defer kws.Close()
	meta, err := store.OpenSQLiteMetadataStore("")
	require.NoError(t, err)
	defer meta.Close()

	s := New(vecs, kws, meta, embed.NewStaticEmbedder())
	results, err := s.Search(ctx, "anything", Options{Mode: ModeHybrid, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHybridSearchReturnsFusedResults(t *testing.T) {
	ctx := context.Background()
	embedder := embed.NewStaticEmbedder()
	vecs := store.NewHNSWVectorStore(embed.StaticDimension, "")
	kws, err := store.NewBleveKeywordStore("")
	require.NoError(t, err)
	defer kws.Close()
	meta, err := store.OpenSQLiteMetadataStore("")
	require.NoError(t, err)
	defer meta.Close()

	require.NoError(t, meta.Set(ctx, "doc1", ragdoc.DocumentMetadata{SourcePath: "/notes/alpha.txt", SourceHash: "h1"}))

	texts := []string{"python programming language basics", "rust systems programming guide"}
	vecOut, err := embedder.EmbedBatch(ctx, texts)
	require.NoError(t, err)

	require.NoError(t, vecs.Add(ctx, []ragdoc.VectorRecord{
		{ChunkID: "c1", DocumentID: "doc1", Embedding: vecOut[0], Content: texts[0]},
		{ChunkID: "c2", DocumentID: "doc1", Embedding: vecOut[1], Content: texts[1]},
	}))
	require.NoError(t, kws.Add(ctx, []ragdoc.KeywordRecord{
		{ChunkID: "c1", DocumentID: "doc1", Content: texts[0]},
		{ChunkID: "c2", DocumentID: "doc1", Content: texts[1]},
	}))

	s := New(vecs, kws, meta, embedder)
	results, err := s.Search(ctx, "python programming", Options{Mode: ModeHybrid, Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Equal(t, "alpha.txt", results[0].DocumentName)
	assert.GreaterOrEqual(t, results[0].CombinedScore, results[len(results)-1].CombinedScore)
}

func TestHybridSearchSemanticOnlyModeSkipsKeywordBranch(t *testing.T) {
	ctx := context.Background()
	embedder := embed.NewStaticEmbedder()
	vecs := store.NewHNSWVectorStore(embed.StaticDimension, "")
	kws, err := store.NewBleveKeywordStore("")
	require.NoError(t, err)
	defer kws.Close()
	meta, err := store.OpenSQLiteMetadataStore("")
	require.NoError(t, err)
	defer meta.Close()

	vecOut, err := embedder.EmbedBatch(ctx, []string{"alpha content"})
	require.NoError(t, err)
	require.NoError(t, vecs.Add(ctx, []ragdoc.VectorRecord{{ChunkID: "c1", DocumentID: "doc1", Embedding: vecOut[0], Content: "alpha content"}}))

	s := New(vecs, kws, meta, embedder)
	results, err := s.Search(ctx, "alpha content", Options{Mode: ModeSemantic, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].KeywordScore)
}
