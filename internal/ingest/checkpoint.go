package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ragd-project/ragd/internal/ragerr"
)

// Checkpoint records how far one Index call got, so a crashed run can
// resume at the document boundary instead of losing all progress
// (sharpens spec §4.10 step 8's "persist after each document").
type Checkpoint struct {
	Stage          string
	TotalPaths     int
	CompletedPaths int
	EmbedderModel  string
	UpdatedAt      time.Time
}

// CheckpointStore persists a single in-flight Checkpoint to a JSON file.
// Only one checkpoint is ever live at a time, matching the pipeline's
// single-writer model (spec §5).
type CheckpointStore struct {
	path string
	mu   sync.Mutex
}

// NewCheckpointStore returns a store writing to path. An empty path makes
// Save/Load/Clear no-ops, so checkpointing is opt-in.
func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

func (c *CheckpointStore) Save(ctx context.Context, cp Checkpoint) error {
	if c.path == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cp.UpdatedAt = time.Now().UTC()
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return ragerr.New(ragerr.ErrCodeStoreTransient, "create checkpoint directory", err)
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return ragerr.New(ragerr.ErrCodeInternal, "marshal checkpoint", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ragerr.New(ragerr.ErrCodeStoreTransient, "write checkpoint", err)
	}
	return os.Rename(tmp, c.path)
}

// Load returns nil, nil if no checkpoint file exists yet.
func (c *CheckpointStore) Load(ctx context.Context) (*Checkpoint, error) {
	if c.path == "" {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ragerr.New(ragerr.ErrCodeStoreTransient, "read checkpoint", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, ragerr.New(ragerr.ErrCodeStoreCorrupt, "decode checkpoint", err)
	}
	return &cp, nil
}

func (c *CheckpointStore) Clear(ctx context.Context) error {
	if c.path == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return ragerr.New(ragerr.ErrCodeStoreTransient, "clear checkpoint", err)
	}
	return nil
}

// resumeOffset reports how many leading paths to treat as already done,
// given a prior checkpoint for the same path list and embedder. Returns 0
// if the checkpoint is absent, stale, or for a different run shape.
func resumeOffset(cp *Checkpoint, totalPaths int, embedderModel string) int {
	if cp == nil {
		return 0
	}
	if cp.TotalPaths != totalPaths || cp.EmbedderModel != embedderModel {
		return 0
	}
	if cp.CompletedPaths < 0 || cp.CompletedPaths > totalPaths {
		return 0
	}
	return cp.CompletedPaths
}
