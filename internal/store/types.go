// Package store implements the dual storage plane: a vector store, a
// keyword (full-text) store, and a metadata store, plus the adapter
// contracts the rest of the core programs against. See spec §3, §4.4–§4.6.
package store

import (
	"context"
	"time"

	"github.com/ragd-project/ragd/internal/ragdoc"
)

// MetadataFilter is a conjunctive filter applied at search time. An empty
// filter matches everything. The HNSW vector store and the bleve keyword
// store overfetch and apply it post hoc to each hit's denormalized
// metadata subset (spec §4.5).
type MetadataFilter struct {
	Project      string
	Tags         []string // document must carry every tag
	PathContains string
}

// Match reports whether a chunk's denormalized metadata subset satisfies f.
func (f MetadataFilter) Match(m ragdoc.Metadata) bool {
	if f.Project != "" && m["project"] != f.Project {
		return false
	}
	for _, tag := range f.Tags {
		if !hasTag(m["tags"], tag) {
			return false
		}
	}
	if f.PathContains != "" && !containsSubstr(m["source_path"], f.PathContains) {
		return false
	}
	return true
}

func hasTag(csv, tag string) bool {
	for _, t := range splitComma(csv) {
		if t == tag {
			return true
		}
	}
	return false
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func containsSubstr(haystack, needle string) bool {
	return len(needle) == 0 || indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	if m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}

// ScoredChunk is a single vector or keyword hit with its score.
type ScoredChunk struct {
	ChunkID    string
	DocumentID string
	Content    string
	Metadata   ragdoc.Metadata
	Score      float32 // vector: [0,1] cosine similarity; keyword: raw BM25
}

// VectorStore persists embeddings and supports nearest-neighbor search.
// See spec §4.5.
type VectorStore interface {
	// Add upserts vector records; duplicate chunk IDs replace in place.
	// Returns ErrDimensionMismatch if any embedding's width differs from
	// the store's configured dimension.
	Add(ctx context.Context, records []ragdoc.VectorRecord) error

	// Search returns up to limit nearest neighbors to queryEmbedding,
	// ordered by descending score in [0,1]. filter is applied post hoc
	// when SupportsMetadataFiltering is false.
	Search(ctx context.Context, queryEmbedding []float32, limit int, filter MetadataFilter) ([]ScoredChunk, error)

	// Get returns records for ids, preserving order; missing IDs are nil.
	Get(ctx context.Context, ids []string) ([]*ragdoc.VectorRecord, error)

	// Delete removes ids and returns the count actually removed.
	Delete(ctx context.Context, ids []string) (int, error)

	Count() int
	Exists(id string) bool

	// AllIDs returns every chunk ID currently stored, for cross-store
	// consistency auditing (spec §4.10 supplemented feature).
	AllIDs() []string

	// Persist flushes durable structures to the backing path.
	Persist(ctx context.Context) error
	Reset(ctx context.Context) error
	Close() error

	SupportsMetadataFiltering() bool
	Dimension() int
}

// KeywordStore indexes chunk content for full-text retrieval. See spec §4.6.
type KeywordStore interface {
	// Add upserts keyword records; duplicate chunk IDs replace in place.
	Add(ctx context.Context, records []ragdoc.KeywordRecord) error

	// Search runs a backend-native FTS expression (produced by the query
	// transformer) and returns up to limit hits ordered by descending
	// BM25-family score.
	Search(ctx context.Context, ftsExpr string, limit int, filter MetadataFilter) ([]ScoredChunk, error)

	Get(ctx context.Context, ids []string) ([]*ragdoc.KeywordRecord, error)
	Delete(ctx context.Context, ids []string) (int, error)

	Count() int
	Exists(id string) bool

	// AllIDs returns every chunk ID currently indexed, for cross-store
	// consistency auditing (spec §4.10 supplemented feature).
	AllIDs() []string

	Persist(ctx context.Context) error
	Reset(ctx context.Context) error
	Close() error
}

// DocQuery is the conjunctive filter accepted by MetadataStore.Query.
type DocQuery struct {
	Project      string
	Tags         []string
	PathContains string
	Since        *time.Time
	Until        *time.Time
	Limit        int
}

// MetadataStore durably maps document_id to DocumentMetadata. See spec §4.4.
type MetadataStore interface {
	Set(ctx context.Context, id string, meta ragdoc.DocumentMetadata) error
	Get(ctx context.Context, id string) (*ragdoc.DocumentMetadata, error)

	// Update applies a partial field set; unknown fields are logged and
	// ignored. Returns false if id is absent.
	Update(ctx context.Context, id string, fields map[string]any) (bool, error)

	Delete(ctx context.Context, id string) (bool, error)
	Query(ctx context.Context, q DocQuery) ([]*ragdoc.DocumentMetadata, error)

	// ExistsByHash reports whether a row with this content hash exists,
	// and if so, its document_id (spec I3 / P2 dedup check).
	ExistsByHash(ctx context.Context, contentHash string) (string, bool, error)

	// MigrateAll sweeps all rows, migrating any below CurrentSchemaVersion.
	MigrateAll(ctx context.Context, batchSize int) (int, error)

	Count() int
	Close() error
}

// ErrDimensionMismatch indicates a vector whose width disagrees with the
// store's configured embedding dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return "dimension mismatch: expected " + itoa(e.Expected) + ", got " + itoa(e.Got)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
