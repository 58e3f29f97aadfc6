// Package config loads ragd's YAML configuration, covering exactly the
// option groups spec §6 recognizes: embedding, storage, search, chunking,
// retrieval, deletion.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/ragd-project/ragd/internal/ragerr"
)

// Config is ragd's complete configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Chunking  ChunkingConfig  `yaml:"chunking" json:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Deletion  DeletionConfig  `yaml:"deletion" json:"deletion"`
}

// EmbeddingConfig configures the embedding backend (§6 embedding.*).
type EmbeddingConfig struct {
	Model     string `yaml:"model" json:"model"`
	Device    string `yaml:"device" json:"device"`
	Dimension int    `yaml:"dimension" json:"dimension"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
	CacheSize int    `yaml:"cache_size" json:"cache_size"`
}

// StorageConfig configures where and how the dual store plane persists
// (§6 storage.*, §6 "Persisted state layout").
type StorageConfig struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
	Backend string `yaml:"backend" json:"backend"` // reserved for future backend selection
}

// SearchConfig configures hybrid fusion (§6 search.*).
type SearchConfig struct {
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight" json:"keyword_weight"`
	RRFK           int     `yaml:"rrf_k" json:"rrf_k"`
	Overfetch      int     `yaml:"overfetch" json:"overfetch"`
}

// ChunkingConfig configures the chunker (§6 chunking.*).
type ChunkingConfig struct {
	Strategy     string `yaml:"strategy" json:"strategy"`
	ChunkSize    int    `yaml:"chunk_size" json:"chunk_size"`
	Overlap      int    `yaml:"overlap" json:"overlap"`
	MinChunkSize int    `yaml:"min_chunk_size" json:"min_chunk_size"`
}

// RetrievalConfig configures context assembly (§6 retrieval.*).
type RetrievalConfig struct {
	MinRelevance   float64 `yaml:"min_relevance" json:"min_relevance"`
	ContextWindow  int     `yaml:"context_window" json:"context_window"`
	ReservedTokens int     `yaml:"reserved_tokens" json:"reserved_tokens"`
	MaxResults     int     `yaml:"max_results" json:"max_results"`
}

// DeletionConfig configures the deletion engine (§6 deletion.*).
type DeletionConfig struct {
	EnableAudit bool `yaml:"enable_audit" json:"enable_audit"`
}

// New returns a Config populated with sensible defaults.
func New() *Config {
	return &Config{
		Version: 1,
		Embedding: EmbeddingConfig{
			Model:     "static-hash-256",
			Device:    "cpu",
			Dimension: 256,
			BatchSize: 32,
			CacheSize: 4096,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			Backend: "default",
		},
		Search: SearchConfig{
			SemanticWeight: 0.5,
			KeywordWeight:  0.5,
			RRFK:           60,
			Overfetch:      3,
		},
		Chunking: ChunkingConfig{
			Strategy:     "sentence",
			ChunkSize:    512,
			Overlap:      64,
			MinChunkSize: 100,
		},
		Retrieval: RetrievalConfig{
			MinRelevance:   0.3,
			ContextWindow:  8000,
			ReservedTokens: 1000,
			MaxResults:     0, // 0 = unbounded, budget alone decides
		},
		Deletion: DeletionConfig{
			EnableAudit: true,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragd"
	}
	return filepath.Join(home, ".ragd")
}

// Load reads and parses a YAML config file, filling unset fields with
// New()'s defaults (lazy, additive — absent keys never zero out a default).
func Load(path string) (*Config, error) {
	cfg := New()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, ragerr.New(ragerr.ErrCodeConfigNotFound, "cannot read config: "+path, err)
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, ragerr.New(ragerr.ErrCodeConfigInvalid, "cannot parse config: "+path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants the spec calls out explicitly
// (search weights summing to 1.0 per §4.7).
func (c *Config) Validate() error {
	const eps = 1e-6
	sum := c.Search.SemanticWeight + c.Search.KeywordWeight
	if sum < 1-eps || sum > 1+eps {
		return ragerr.New(ragerr.ErrCodeConfigInvalid,
			"search.semantic_weight + search.keyword_weight must sum to 1.0", nil).
			WithDetail("sum", ftoa(sum))
	}
	if c.Chunking.Overlap >= c.Chunking.ChunkSize && c.Chunking.ChunkSize > 0 {
		return ragerr.New(ragerr.ErrCodeConfigInvalid, "chunking.overlap must be smaller than chunking.chunk_size", nil)
	}
	return nil
}

// Save writes the config back to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return ragerr.New(ragerr.ErrCodeConfigInvalid, "cannot marshal config", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ragerr.New(ragerr.ErrCodeConfigPermission, "cannot create config directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ragerr.New(ragerr.ErrCodeConfigPermission, "cannot write config: "+path, err)
	}
	return nil
}

// DefaultIndexWorkers returns a sensible extraction worker-pool size.
func DefaultIndexWorkers() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
