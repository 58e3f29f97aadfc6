package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragd-project/ragd/internal/ragdoc"
)

func kwRecord(id, content string) ragdoc.KeywordRecord {
	return ragdoc.KeywordRecord{ChunkID: id, DocumentID: "doc1", Content: content, MetadataSubset: ragdoc.Metadata{"project": "p1"}}
}

func TestBleveKeywordStoreSearchFindsMatchingContent(t *testing.T) {
	ctx := context.Background()
	s, err := NewBleveKeywordStore("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Add(ctx, []ragdoc.KeywordRecord{
		kwRecord("a", "python programming language"),
		kwRecord("b", "rust systems programming"),
	}))

	results, err := s.Search(ctx, "python", 10, MetadataFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestBleveKeywordStoreDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewBleveKeywordStore("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Add(ctx, []ragdoc.KeywordRecord{kwRecord("a", "hello world")}))
	n, err := s.Delete(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, s.Exists("a"))
}

func TestBleveKeywordStoreAllIDs(t *testing.T) {
	ctx := context.Background()
	s, err := NewBleveKeywordStore("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Add(ctx, []ragdoc.KeywordRecord{
		kwRecord("a", "hello world"),
		kwRecord("b", "another document"),
	}))
	assert.ElementsMatch(t, []string{"a", "b"}, s.AllIDs())
}

func TestBleveKeywordStoreFilterByProject(t *testing.T) {
	ctx := context.Background()
	s, err := NewBleveKeywordStore("")
	require.NoError(t, err)
	defer s.Close()

	other := kwRecord("b", "hello world")
	other.MetadataSubset = ragdoc.Metadata{"project": "other"}
	require.NoError(t, s.Add(ctx, []ragdoc.KeywordRecord{kwRecord("a", "hello world"), other}))

	results, err := s.Search(ctx, "hello", 10, MetadataFilter{Project: "p1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}
