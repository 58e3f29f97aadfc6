package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragd-project/ragd/internal/chunker"
	"github.com/ragd-project/ragd/internal/embed"
	"github.com/ragd-project/ragd/internal/extractor"
	"github.com/ragd-project/ragd/internal/ragdoc"
	"github.com/ragd-project/ragd/internal/store"
)

func newTestPipeline(t *testing.T) (*Pipeline, store.VectorStore, store.KeywordStore, store.MetadataStore) {
	t.Helper()
	embedder := embed.NewStaticEmbedder()
	vectors := store.NewHNSWVectorStore(embed.StaticDimension, "")
	keywords, err := store.NewBleveKeywordStore("")
	require.NoError(t, err)
	metadata, err := store.OpenSQLiteMetadataStore("")
	require.NoError(t, err)
	reg := extractor.NewRegistry()
	ch := chunker.New(chunker.StrategySentence, chunker.Options{})
	p := New(vectors, keywords, metadata, reg, ch, embedder, "")
	return p, vectors, keywords, metadata
}

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIndexSingleFileSucceeds(t *testing.T) {
	p, vectors, keywords, metadata := newTestPipeline(t)
	dir := t.TempDir()
	path := writeTempFile(t, dir, "doc.txt", "The quick fox jumps. It runs across the field. Then it rests under a tree.")

	results, err := p.Index(context.Background(), []string{path}, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.False(t, results[0].Skipped)
	assert.Greater(t, results[0].ChunkCount, 0)
	assert.Equal(t, results[0].ChunkCount, vectors.Count())
	assert.Equal(t, results[0].ChunkCount, keywords.Count())
	assert.Equal(t, 1, metadata.Count())
}

func TestIndexSkipsDuplicateContent(t *testing.T) {
	p, _, _, _ := newTestPipeline(t)
	dir := t.TempDir()
	pathA := writeTempFile(t, dir, "a.txt", "Identical content appears in both files for dedup testing.")
	pathB := writeTempFile(t, dir, "b.txt", "Identical content appears in both files for dedup testing.")

	results, err := p.Index(context.Background(), []string{pathA, pathB}, Options{SkipDuplicates: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[0].Skipped)
	assert.True(t, results[1].Skipped)
}

func TestIndexMissingFileReportsError(t *testing.T) {
	p, _, _, _ := newTestPipeline(t)
	results, err := p.Index(context.Background(), []string{"/nonexistent/path.txt"}, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Error(t, results[0].Error)
}

func TestIndexRollsBackOnKeywordFailure(t *testing.T) {
	p, vectors, _, metadata := newTestPipeline(t)
	failing := &failingKeywordStore{}
	p.keywords = failing

	dir := t.TempDir()
	path := writeTempFile(t, dir, "doc.txt", "A sentence here. Another sentence follows.")

	results, err := p.Index(context.Background(), []string{path}, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, 0, vectors.Count())
	assert.Equal(t, 0, metadata.Count())
}

func TestListFilesRecursive(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeTempFile(t, dir, "top.txt", "top")
	writeTempFile(t, sub, "nested.txt", "nested")

	flat, err := ListFiles(dir, false)
	require.NoError(t, err)
	assert.Len(t, flat, 1)

	recursive, err := ListFiles(dir, true)
	require.NoError(t, err)
	assert.Len(t, recursive, 2)
}

// failingKeywordStore always fails Add, to exercise the rollback path.
type failingKeywordStore struct{}

func (f *failingKeywordStore) Add(ctx context.Context, records []ragdoc.KeywordRecord) error {
	return assert.AnError
}

func (f *failingKeywordStore) Search(ctx context.Context, ftsExpr string, limit int, filter store.MetadataFilter) ([]store.ScoredChunk, error) {
	return nil, nil
}

func (f *failingKeywordStore) Get(ctx context.Context, ids []string) ([]*ragdoc.KeywordRecord, error) {
	return nil, nil
}

func (f *failingKeywordStore) Delete(ctx context.Context, ids []string) (int, error) { return 0, nil }
func (f *failingKeywordStore) Count() int                                           { return 0 }
func (f *failingKeywordStore) Exists(id string) bool                                { return false }
func (f *failingKeywordStore) Persist(ctx context.Context) error                    { return nil }
func (f *failingKeywordStore) Reset(ctx context.Context) error                      { return nil }
func (f *failingKeywordStore) Close() error                                         { return nil }
