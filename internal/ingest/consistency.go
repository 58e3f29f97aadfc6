package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/ragd-project/ragd/internal/store"
)

// InconsistencyType categorizes a detected cross-store issue.
type InconsistencyType string

const (
	InconsistencyOrphanVector    InconsistencyType = "orphan_vector"
	InconsistencyOrphanKeyword   InconsistencyType = "orphan_keyword"
	InconsistencyChunkCountDrift InconsistencyType = "chunk_count_mismatch"
)

// Inconsistency is one detected issue.
type Inconsistency struct {
	Type       InconsistencyType
	ChunkID    string
	DocumentID string
	Details    string
}

// CheckResult is the outcome of a full consistency check.
type CheckResult struct {
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// ConsistencyChecker audits invariants I1/I2 across the store triple: every
// chunk in the vector store has a sibling in the keyword store and vice
// versa (W2), and every document's recorded chunk_count matches what the
// keyword store actually holds for it (W1). It never mutates state on its
// own; callers invoke Repair explicitly.
type ConsistencyChecker struct {
	vectors  store.VectorStore
	keywords store.KeywordStore
	metadata store.MetadataStore
}

// NewConsistencyChecker builds a checker over the given store triple.
func NewConsistencyChecker(vectors store.VectorStore, keywords store.KeywordStore, metadata store.MetadataStore) *ConsistencyChecker {
	return &ConsistencyChecker{vectors: vectors, keywords: keywords, metadata: metadata}
}

// Check scans all stores for inconsistencies. O(n) in chunk count.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()
	var issues []Inconsistency

	vectorIDs := toSet(c.vectors.AllIDs())
	keywordIDs := toSet(c.keywords.AllIDs())

	for id := range vectorIDs {
		if !keywordIDs[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanVector, ChunkID: id, Details: "vector record without a matching keyword record"})
		}
	}
	for id := range keywordIDs {
		if !vectorIDs[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanKeyword, ChunkID: id, Details: "keyword record without a matching vector record"})
		}
	}

	chunkCounts := make(map[string]int)
	records, err := c.keywords.Get(ctx, keys(keywordIDs))
	if err != nil {
		slog.Warn("consistency check: failed to read keyword records", slog.String("error", err.Error()))
	} else {
		for _, r := range records {
			if r != nil {
				chunkCounts[r.DocumentID]++
			}
		}
	}

	docs, err := c.metadata.Query(ctx, store.DocQuery{})
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		actual := chunkCounts[doc.DocumentID]
		if actual != doc.ChunkCount {
			issues = append(issues, Inconsistency{
				Type:       InconsistencyChunkCountDrift,
				DocumentID: doc.DocumentID,
				Details:    "metadata reports a different chunk_count than the keyword store holds",
			})
		}
	}

	return &CheckResult{
		Checked:         len(vectorIDs) + len(keywordIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair deletes orphaned chunk IDs from whichever store holds them, and
// logs chunk-count drift for operator follow-up (re-index is required to
// fix a genuine drift; this checker does not re-ingest).
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) error {
	var orphanVector, orphanKeyword []string
	var driftCount int

	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphanVector:
			orphanVector = append(orphanVector, issue.ChunkID)
		case InconsistencyOrphanKeyword:
			orphanKeyword = append(orphanKeyword, issue.ChunkID)
		case InconsistencyChunkCountDrift:
			driftCount++
		}
	}

	if len(orphanVector) > 0 {
		if _, err := c.vectors.Delete(ctx, orphanVector); err != nil {
			slog.Warn("failed to delete orphan vector records", slog.Int("count", len(orphanVector)), slog.String("error", err.Error()))
		} else {
			slog.Info("deleted orphan vector records", slog.Int("count", len(orphanVector)))
		}
	}
	if len(orphanKeyword) > 0 {
		if _, err := c.keywords.Delete(ctx, orphanKeyword); err != nil {
			slog.Warn("failed to delete orphan keyword records", slog.Int("count", len(orphanKeyword)), slog.String("error", err.Error()))
		} else {
			slog.Info("deleted orphan keyword records", slog.Int("count", len(orphanKeyword)))
		}
	}
	if driftCount > 0 {
		slog.Warn("documents have chunk_count drift, re-index to fix", slog.Int("count", driftCount))
	}
	return nil
}

// QuickCheck is a lightweight O(1) consistency signal: whether the two
// stores report the same chunk count. It cannot detect same-count
// corruption (e.g. matched counts with swapped IDs); Check does.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) bool {
	return c.vectors.Count() == c.keywords.Count()
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
