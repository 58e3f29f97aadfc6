// Package deletion implements document removal at three levels of
// assurance, plus the append-only audit trail that records every
// deletion (spec §4.11).
package deletion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragd-project/ragd/internal/ragerr"
	"github.com/ragd-project/ragd/internal/store"
)

// Level is the assurance level requested for a deletion (spec §4.11).
type Level string

const (
	// LevelStandard removes rows from all three stores in the order
	// required for read-side safety (spec §5 W3): keyword, vector, metadata.
	LevelStandard Level = "STANDARD"

	// LevelSecure is LevelStandard plus an explicit vector-store persist
	// so the removal survives a crash immediately. No in-memory content or
	// embedding buffers are zeroed.
	LevelSecure Level = "SECURE"

	// LevelCryptographic rotates the document's encryption key, marking
	// the old key destroyed so any ciphertext copies left outside the
	// stores (backups, replicas) become permanently unreadable. Requires
	// Confirmed and a non-empty Password.
	LevelCryptographic Level = "CRYPTOGRAPHIC"
)

// Request describes one deletion call.
type Request struct {
	DocumentID string
	Level      Level
	Confirmed  bool
	Password   string
	ChunkIDs   []string // optional: restrict to a subset of the document's chunks
}

// Result reports what a deletion actually removed.
type Result struct {
	DocumentID    string
	ChunksRemoved int
	KeyRotated    bool
	Level         Level
}

// AuditEntry is one append-only line in the deletion audit log.
// DocumentIDHash is a truncated SHA-256 of the document ID, not the ID
// itself, so the log can be shared without leaking document identifiers.
type AuditEntry struct {
	CorrelationID  string    `json:"correlation_id"`
	Timestamp      time.Time `json:"timestamp"`
	DocumentIDHash string    `json:"document_id_hash"`
	Action         string    `json:"action"`
	ChunksRemoved  int       `json:"chunks_removed"`
	KeyRotated     bool      `json:"key_rotated"`
	Level          Level     `json:"level"`
}

// KeyRegistry tracks the current encryption key generation per document for
// CRYPTOGRAPHIC deletion. It does not perform encryption itself; encryption
// at rest is a host-level concern (see glossary: Session). Rotation here
// models the guarantee that a destroyed key cannot be recovered from this
// process's state.
type KeyRegistry interface {
	// Rotate replaces the active key for documentID with a new one and
	// marks the previous generation destroyed. Returns false if the
	// document had no tracked key (rotation is then a no-op, not an error).
	Rotate(documentID string) (rotated bool, err error)
}

// Engine removes documents from the store triple and records an audit
// trail. See spec §4.11.
type Engine struct {
	vectors   store.VectorStore
	keywords  store.KeywordStore
	metadata  store.MetadataStore
	keys      KeyRegistry
	auditPath string
	mu        sync.Mutex
}

// New constructs an Engine. keys may be nil if CRYPTOGRAPHIC deletion is
// never requested. auditPath, when non-empty, is the JSON-lines file
// deletions are appended to.
func New(vectors store.VectorStore, keywords store.KeywordStore, metadata store.MetadataStore, keys KeyRegistry, auditPath string) *Engine {
	return &Engine{vectors: vectors, keywords: keywords, metadata: metadata, keys: keys, auditPath: auditPath}
}

// Delete removes a document (or a subset of its chunks) at the requested
// assurance level and appends an audit entry. The entry is appended even
// when a store removal fails partway, and a failure to write it does not
// roll back the deletion (spec §4.11).
func (e *Engine) Delete(ctx context.Context, req Request) (Result, error) {
	if req.Level == LevelCryptographic && !req.Confirmed {
		return Result{}, ragerr.New(ragerr.ErrCodeInvalidInput, "cryptographic deletion requires confirmation", nil)
	}
	if req.Level == LevelCryptographic && req.Password == "" {
		return Result{}, ragerr.New(ragerr.ErrCodeInvalidInput, "cryptographic deletion requires a password", nil)
	}

	chunkIDs := req.ChunkIDs
	if len(chunkIDs) == 0 {
		ids, err := e.chunksForDocument(ctx, req.DocumentID)
		if err != nil {
			return Result{}, err
		}
		chunkIDs = ids
	}

	// W3 (spec §5): delete inverts insert order — keyword, vector, metadata.
	if _, err := e.keywords.Delete(ctx, chunkIDs); err != nil {
		e.appendAudit(Result{DocumentID: req.DocumentID, Level: req.Level})
		return Result{}, ragerr.New(ragerr.ErrCodeDeletionFailed, "delete keyword records: "+req.DocumentID, err)
	}
	removed, err := e.vectors.Delete(ctx, chunkIDs)
	if err != nil {
		e.appendAudit(Result{DocumentID: req.DocumentID, ChunksRemoved: removed, Level: req.Level})
		return Result{}, ragerr.New(ragerr.ErrCodeDeletionFailed, "delete vector records: "+req.DocumentID, err)
	}

	removeWholeDocument := len(req.ChunkIDs) == 0
	if removeWholeDocument {
		if _, err := e.metadata.Delete(ctx, req.DocumentID); err != nil {
			e.appendAudit(Result{DocumentID: req.DocumentID, ChunksRemoved: removed, Level: req.Level})
			return Result{}, ragerr.New(ragerr.ErrCodeDeletionFailed, "delete document metadata: "+req.DocumentID, err)
		}
	}

	keyRotated := false
	if req.Level == LevelSecure || req.Level == LevelCryptographic {
		if err := e.vectors.Persist(ctx); err != nil {
			slog.Warn("secure deletion: vector persist failed", slog.String("document_id", req.DocumentID), slog.String("error", err.Error()))
		}
	}
	if req.Level == LevelCryptographic && e.keys != nil {
		rotated, err := e.keys.Rotate(req.DocumentID)
		if err != nil {
			slog.Warn("cryptographic deletion: key rotation failed", slog.String("document_id", req.DocumentID), slog.String("error", err.Error()))
		}
		keyRotated = rotated
	}

	result := Result{DocumentID: req.DocumentID, ChunksRemoved: removed, KeyRotated: keyRotated, Level: req.Level}
	e.appendAudit(result)
	return result, nil
}

// maxChunksPerDocument bounds the chunk-enumeration query; no real
// document is expected to approach this many chunks (spec's largest
// sample corpus is far smaller).
const maxChunksPerDocument = 100000

// chunksForDocument enumerates a document's chunk IDs via the keyword
// store's document_id field, since neither store carries a direct
// chunks-by-document index (spec §4.11: "via MetadataStore or sidecar").
func (e *Engine) chunksForDocument(ctx context.Context, documentID string) ([]string, error) {
	expr := `document_id:"` + documentID + `"`
	hits, err := e.keywords.Search(ctx, expr, maxChunksPerDocument, store.MetadataFilter{})
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeDeletionFailed, "enumerate chunks for document: "+documentID, err)
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.DocumentID == documentID {
			ids = append(ids, h.ChunkID)
		}
	}
	return ids, nil
}

func (e *Engine) appendAudit(result Result) {
	if e.auditPath == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sum := sha256.Sum256([]byte(result.DocumentID))
	entry := AuditEntry{
		CorrelationID:  uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		DocumentIDHash: hex.EncodeToString(sum[:])[:16],
		Action:         "delete",
		ChunksRemoved:  result.ChunksRemoved,
		KeyRotated:     result.KeyRotated,
		Level:          result.Level,
	}

	if err := os.MkdirAll(filepath.Dir(e.auditPath), 0o755); err != nil {
		slog.Warn("audit log: failed to create directory", slog.String("error", err.Error()))
		return
	}
	f, err := os.OpenFile(e.auditPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("audit log: failed to open file", slog.String("error", err.Error()))
		return
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("audit log: failed to marshal entry", slog.String("error", err.Error()))
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		slog.Warn("audit log: failed to append entry", slog.String("error", err.Error()))
	}
}
