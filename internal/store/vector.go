package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/ragd-project/ragd/internal/ragdoc"
	"github.com/ragd-project/ragd/internal/ragerr"
)

// HNSWVectorStore implements VectorStore using coder/hnsw, a pure-Go HNSW
// graph. It keeps a denormalized sidecar of content/metadata per chunk so
// search results can be returned without a second round trip (spec §3
// VectorRecord), and has no native metadata-filter predicate push-down.
type HNSWVectorStore struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dim   int

	idMap   map[string]uint64
	keyMap  map[uint64]string
	sidecar map[string]ragdoc.VectorRecord
	nextKey uint64

	path   string
	closed bool
}

type hnswPersisted struct {
	IDMap   map[string]uint64
	Sidecar map[string]ragdoc.VectorRecord
	NextKey uint64
	Dim     int
}

// NewHNSWVectorStore creates an empty HNSW-backed vector store for the
// given embedding dimension. path, when non-empty, is where Persist writes
// the graph and sidecar.
func NewHNSWVectorStore(dim int, path string) *HNSWVectorStore {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &HNSWVectorStore{
		graph:   graph,
		dim:     dim,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		sidecar: make(map[string]ragdoc.VectorRecord),
		path:    path,
	}
}

func (s *HNSWVectorStore) Dimension() int                     { return s.dim }
func (s *HNSWVectorStore) SupportsMetadataFiltering() bool    { return false }

func (s *HNSWVectorStore) Add(ctx context.Context, records []ragdoc.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ragerr.New(ragerr.ErrCodeStorePermanent, "vector store is closed", nil)
	}

	for _, r := range records {
		if len(r.Embedding) != s.dim {
			return ErrDimensionMismatch{Expected: s.dim, Got: len(r.Embedding)}
		}
	}

	for _, r := range records {
		// Lazy deletion: orphan the old graph node rather than calling
		// graph.Delete, which misbehaves on the last remaining node.
		if existingKey, exists := s.idMap[r.ChunkID]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, r.ChunkID)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(r.Embedding))
		copy(vec, r.Embedding)
		normalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[r.ChunkID] = key
		s.keyMap[key] = r.ChunkID
		s.sidecar[r.ChunkID] = r
	}
	return nil
}

func (s *HNSWVectorStore) Search(ctx context.Context, queryEmbedding []float32, limit int, filter MetadataFilter) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ragerr.New(ragerr.ErrCodeStorePermanent, "vector store is closed", nil)
	}
	if len(queryEmbedding) != s.dim {
		return nil, ErrDimensionMismatch{Expected: s.dim, Got: len(queryEmbedding)}
	}
	if s.graph.Len() == 0 {
		return []ScoredChunk{}, nil
	}

	q := make([]float32, len(queryEmbedding))
	copy(q, queryEmbedding)
	normalizeInPlace(q)

	// Overfetch generously before the post-hoc filter narrows the set, so
	// a restrictive filter doesn't starve the caller of limit results.
	fetch := limit
	if fetch < 1 {
		fetch = 1
	}
	if filter.Project != "" || len(filter.Tags) > 0 || filter.PathContains != "" {
		fetch *= 5
	}

	nodes := s.graph.Search(q, fetch)
	out := make([]ScoredChunk, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		rec := s.sidecar[id]
		if !filter.Match(rec.MetadataSubset) {
			continue
		}
		dist := s.graph.Distance(q, node.Value)
		out = append(out, ScoredChunk{
			ChunkID:    rec.ChunkID,
			DocumentID: rec.DocumentID,
			Content:    rec.Content,
			Metadata:   rec.MetadataSubset,
			Score:      cosineDistanceToScore(dist),
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *HNSWVectorStore) Get(ctx context.Context, ids []string) ([]*ragdoc.VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ragdoc.VectorRecord, len(ids))
	for i, id := range ids {
		if rec, ok := s.sidecar[id]; ok {
			cp := rec
			out[i] = &cp
		}
	}
	return out, nil
}

func (s *HNSWVectorStore) Delete(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ragerr.New(ragerr.ErrCodeStorePermanent, "vector store is closed", nil)
	}
	removed := 0
	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.sidecar, id)
			removed++
		}
	}
	return removed, nil
}

func (s *HNSWVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

func (s *HNSWVectorStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idMap[id]
	return ok
}

func (s *HNSWVectorStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

func (s *HNSWVectorStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25
	s.graph = graph
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.sidecar = make(map[string]ragdoc.VectorRecord)
	s.nextKey = 0
	return nil
}

func (s *HNSWVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Persist writes the graph and sidecar to s.path atomically (temp + rename).
func (s *HNSWVectorStore) Persist(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return ragerr.New(ragerr.ErrCodeStoreTransient, "create vector store directory", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return ragerr.New(ragerr.ErrCodeStoreTransient, "create vector index file", err)
	}
	if err := s.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return ragerr.New(ragerr.ErrCodeStoreTransient, "export vector graph", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return ragerr.New(ragerr.ErrCodeStoreTransient, "close vector index file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return ragerr.New(ragerr.ErrCodeStoreTransient, "rename vector index file", err)
	}

	return s.persistSidecar(s.path + ".meta")
}

func (s *HNSWVectorStore) persistSidecar(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return ragerr.New(ragerr.ErrCodeStoreTransient, "create vector sidecar file", err)
	}
	meta := hnswPersisted{IDMap: s.idMap, Sidecar: s.sidecar, NextKey: s.nextKey, Dim: s.dim}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		f.Close()
		os.Remove(tmp)
		return ragerr.New(ragerr.ErrCodeStoreTransient, "encode vector sidecar", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return ragerr.New(ragerr.ErrCodeStoreTransient, "close vector sidecar file", err)
	}
	return os.Rename(tmp, path)
}

// LoadHNSWVectorStore reads a previously persisted store from path. It
// returns a fresh empty store if no file exists yet.
func LoadHNSWVectorStore(dim int, path string) (*HNSWVectorStore, error) {
	s := NewHNSWVectorStore(dim, path)
	if path == "" {
		return s, nil
	}
	metaPath := path + ".meta"
	metaFile, err := os.Open(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, ragerr.New(ragerr.ErrCodeStoreTransient, "open vector sidecar", err)
	}
	defer metaFile.Close()

	var persisted hnswPersisted
	if err := gob.NewDecoder(metaFile).Decode(&persisted); err != nil {
		return nil, ragerr.New(ragerr.ErrCodeStoreCorrupt, "decode vector sidecar", err)
	}

	graphFile, err := os.Open(path)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeStoreTransient, "open vector index", err)
	}
	defer graphFile.Close()

	if err := s.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return nil, ragerr.New(ragerr.ErrCodeStoreCorrupt, "import vector graph", err)
	}

	s.idMap = persisted.IDMap
	s.sidecar = persisted.Sidecar
	s.nextKey = persisted.NextKey
	s.keyMap = make(map[uint64]string, len(persisted.IDMap))
	for id, key := range persisted.IDMap {
		s.keyMap[key] = id
	}
	return s, nil
}

var _ VectorStore = (*HNSWVectorStore)(nil)

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// cosineDistanceToScore normalizes cosine distance in [0,2] to a similarity
// score in [0,1], per spec §4.5: score = clamp(1 - distance/2, 0, 1).
func cosineDistanceToScore(distance float32) float32 {
	score := 1.0 - distance/2.0
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
