package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ragd-project/ragd/internal/config"
	"github.com/ragd-project/ragd/internal/embed"
	"github.com/ragd-project/ragd/internal/store"
)

const (
	vectorFileName   = "vectors.hnsw"
	keywordDirName   = "keyword.bleve"
	metadataFileName = "metadata.db"
	checkpointName   = "checkpoint.json"
	lockFileName     = "write.lock"
	auditFileName    = "audit.jsonl"
)

// openConfig loads ragd.yaml, falling back to defaults if it doesn't exist.
func openConfig() (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// openEmbedder constructs the static, dependency-free embedder wrapped in
// an LRU cache (spec §4.3); concrete network/FFI embedders are host-supplied
// and are not part of this binary.
func openEmbedder(cfg *config.Config) embed.Embedder {
	return embed.NewCachedEmbedder(embed.NewStaticEmbedder(), cfg.Embedding.CacheSize)
}

// openVectorStore opens the persisted HNSW graph at dir, or creates an
// empty one if none exists yet.
func openVectorStore(dir string, dim int) (*store.HNSWVectorStore, error) {
	path := filepath.Join(dir, vectorFileName)
	if _, err := os.Stat(path); err == nil {
		vs, err := store.LoadHNSWVectorStore(dim, path)
		if err != nil {
			return nil, fmt.Errorf("load vector store: %w", err)
		}
		return vs, nil
	}
	return store.NewHNSWVectorStore(dim, path), nil
}

// openKeywordStore opens (or creates) the bleve index at dir.
func openKeywordStore(dir string) (*store.BleveKeywordStore, error) {
	path := filepath.Join(dir, keywordDirName)
	ks, err := store.NewBleveKeywordStore(path)
	if err != nil {
		return nil, fmt.Errorf("open keyword store: %w", err)
	}
	return ks, nil
}

// openMetadataStore opens (or creates) the SQLite metadata store at dir.
func openMetadataStore(dir string) (*store.SQLiteMetadataStore, error) {
	path := filepath.Join(dir, metadataFileName)
	ms, err := store.OpenSQLiteMetadataStore(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	return ms, nil
}

// ensureDataDir creates dir if it doesn't already exist.
func ensureDataDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}
