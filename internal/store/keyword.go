package store

import (
	"context"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/ragd-project/ragd/internal/ragdoc"
	"github.com/ragd-project/ragd/internal/ragerr"
)

// bleveDoc is the shape indexed for each chunk: content is analyzed for
// BM25 scoring, everything else is stored verbatim for retrieval/filtering.
type bleveDoc struct {
	DocumentID string            `json:"document_id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
}

// BleveKeywordStore implements KeywordStore on top of a bleve full-text
// index, which natively expresses the boolean/phrase/prefix grammar the
// query transformer produces (spec §4.6).
type BleveKeywordStore struct {
	mu    sync.RWMutex
	index bleve.Index
	path  string
}

// NewBleveKeywordStore opens (or creates) a bleve index at path. An empty
// path creates an in-memory index, useful for tests.
func NewBleveKeywordStore(path string) (*BleveKeywordStore, error) {
	var idx bleve.Index
	var err error

	if path == "" {
		idx, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	} else if _, statErr := os.Stat(path); statErr == nil {
		idx, err = bleve.Open(path)
	} else {
		idx, err = bleve.New(path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeStoreTransient, "open keyword index", err)
	}
	return &BleveKeywordStore{index: idx, path: path}, nil
}

func (s *BleveKeywordStore) Add(ctx context.Context, records []ragdoc.KeywordRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.index.NewBatch()
	for _, r := range records {
		doc := bleveDoc{DocumentID: r.DocumentID, Content: r.Content, Metadata: r.MetadataSubset}
		if err := batch.Index(r.ChunkID, doc); err != nil {
			return ragerr.New(ragerr.ErrCodeStoreTransient, "index keyword record: "+r.ChunkID, err)
		}
	}
	if err := s.index.Batch(batch); err != nil {
		return ragerr.New(ragerr.ErrCodeStoreTransient, "commit keyword batch", err)
	}
	return nil
}

func (s *BleveKeywordStore) Search(ctx context.Context, ftsExpr string, limit int, filter MetadataFilter) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ftsExpr == "" {
		return []ScoredChunk{}, nil
	}

	q := bleve.NewQueryStringQuery(ftsExpr)
	req := bleve.NewSearchRequestOptions(q, overfetchLimit(limit, filter), 0, false)
	req.Fields = []string{"document_id", "content", "metadata"}

	result, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeSearchFailed, "keyword search: "+ftsExpr, err)
	}

	out := make([]ScoredChunk, 0, len(result.Hits))
	for _, hit := range result.Hits {
		meta := decodeMetadata(hit.Fields["metadata"])
		if !filter.Match(meta) {
			continue
		}
		out = append(out, ScoredChunk{
			ChunkID:    hit.ID,
			DocumentID: fieldString(hit.Fields["document_id"]),
			Content:    fieldString(hit.Fields["content"]),
			Metadata:   meta,
			Score:      float32(hit.Score),
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func overfetchLimit(limit int, filter MetadataFilter) int {
	n := limit
	if n < 1 {
		n = 1
	}
	if filter.Project != "" || len(filter.Tags) > 0 || filter.PathContains != "" {
		n *= 5
	}
	return n
}

func fieldString(v any) string {
	s, _ := v.(string)
	return s
}

func decodeMetadata(v any) ragdoc.Metadata {
	m, ok := v.(map[string]any)
	if !ok {
		return ragdoc.Metadata{}
	}
	out := make(ragdoc.Metadata, len(m))
	for k, val := range m {
		out[k] = fieldString(val)
	}
	return out
}

func (s *BleveKeywordStore) Get(ctx context.Context, ids []string) ([]*ragdoc.KeywordRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ragdoc.KeywordRecord, len(ids))
	for i, id := range ids {
		q := bleve.NewDocIDQuery([]string{id})
		req := bleve.NewSearchRequestOptions(q, 1, 0, false)
		req.Fields = []string{"document_id", "content", "metadata"}
		res, err := s.index.Search(req)
		if err != nil || len(res.Hits) == 0 {
			continue
		}
		hit := res.Hits[0]
		out[i] = &ragdoc.KeywordRecord{
			ChunkID:        id,
			DocumentID:     fieldString(hit.Fields["document_id"]),
			Content:        fieldString(hit.Fields["content"]),
			MetadataSubset: decodeMetadata(hit.Fields["metadata"]),
		}
	}
	return out, nil
}

func (s *BleveKeywordStore) Delete(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if !s.exists(id) {
			continue
		}
		if err := s.index.Delete(id); err != nil {
			return removed, ragerr.New(ragerr.ErrCodeStoreTransient, "delete keyword record: "+id, err)
		}
		removed++
	}
	return removed, nil
}

func (s *BleveKeywordStore) exists(id string) bool {
	doc, err := s.index.Document(id)
	return err == nil && doc != nil
}

func (s *BleveKeywordStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists(id)
}

func (s *BleveKeywordStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, _ := s.index.DocCount()
	return int(n)
}

func (s *BleveKeywordStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.index.DocCount()
	if err != nil || n == 0 {
		return nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(n), 0, false)
	result, err := s.index.Search(req)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids
}

func (s *BleveKeywordStore) Persist(ctx context.Context) error {
	// bleve writes through to disk on every batch commit; nothing to flush.
	return nil
}

func (s *BleveKeywordStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Close(); err != nil {
		return ragerr.New(ragerr.ErrCodeStoreTransient, "close keyword index for reset", err)
	}
	if s.path != "" {
		if err := os.RemoveAll(s.path); err != nil {
			return ragerr.New(ragerr.ErrCodeStoreTransient, "remove keyword index directory", err)
		}
	}
	idx, err := newBleveIndex(s.path)
	if err != nil {
		return err
	}
	s.index = idx
	return nil
}

func newBleveIndex(path string) (bleve.Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
		if err != nil {
			return nil, ragerr.New(ragerr.ErrCodeStoreTransient, "recreate keyword index", err)
		}
		return idx, nil
	}
	idx, err := bleve.New(path, bleve.NewIndexMapping())
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeStoreTransient, "recreate keyword index", err)
	}
	return idx, nil
}

func (s *BleveKeywordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

var _ KeywordStore = (*BleveKeywordStore)(nil)
