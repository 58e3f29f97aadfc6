// Package ingest implements the indexing pipeline: extract → chunk →
// embed → persist, with content-addressed deduplication and ordered
// cross-store writes. See spec §4.10, §5.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ragd-project/ragd/internal/chunker"
	"github.com/ragd-project/ragd/internal/embed"
	"github.com/ragd-project/ragd/internal/extractor"
	"github.com/ragd-project/ragd/internal/ragdoc"
	"github.com/ragd-project/ragd/internal/ragerr"
	"github.com/ragd-project/ragd/internal/store"
)

// IndexResult reports the outcome of indexing one path (spec §4.10).
type IndexResult struct {
	Path       string
	Success    bool
	Skipped    bool
	ChunkCount int
	DocumentID string
	Error      error
}

// Options configures one Index call.
type Options struct {
	Recursive      bool
	SkipDuplicates bool
	ExtractWorkers int
	Project        string
	Progress       func(done, total int)
}

// Pipeline orchestrates extract → chunk → embed → persist over the store
// triple. Writes are serialized process-wide by a file lock (spec §5:
// single-writer, multiple-reader).
type Pipeline struct {
	vectors     store.VectorStore
	keywords    store.KeywordStore
	metadata    store.MetadataStore
	extractor   *extractor.Registry
	chunker     chunker.Chunker
	embedder    embed.Embedder
	lock        *flock.Flock
	checkpoints *CheckpointStore
}

// New constructs a Pipeline over the given store triple and components.
// lockPath, when non-empty, is the process-level write lock file (spec §5).
func New(vectors store.VectorStore, keywords store.KeywordStore, metadata store.MetadataStore, extr *extractor.Registry, ch chunker.Chunker, embedder embed.Embedder, lockPath string) *Pipeline {
	var lock *flock.Flock
	if lockPath != "" {
		lock = flock.New(lockPath)
	}
	return &Pipeline{vectors: vectors, keywords: keywords, metadata: metadata, extractor: extr, chunker: ch, embedder: embedder, lock: lock, checkpoints: NewCheckpointStore("")}
}

// WithCheckpoint enables resumable progress tracking at checkpointPath.
func (p *Pipeline) WithCheckpoint(checkpointPath string) *Pipeline {
	p.checkpoints = NewCheckpointStore(checkpointPath)
	return p
}

// Index runs the pipeline over paths in order, producing one IndexResult
// per path (spec §4.10). Extraction is bounded-concurrent; persistence is
// per-document and ordered.
func (p *Pipeline) Index(ctx context.Context, paths []string, opts Options) ([]IndexResult, error) {
	if opts.ExtractWorkers <= 0 {
		opts.ExtractWorkers = 4
	}

	if p.lock != nil {
		locked, err := p.lock.TryLockContext(ctx, 200*time.Millisecond)
		if err != nil || !locked {
			return nil, ragerr.New(ragerr.ErrCodeStoreTransient, "another write is in progress", err)
		}
		defer p.lock.Unlock()
	}

	type extraction struct {
		path string
		res  *extractor.Result
		hash string
		err  error
	}

	extracted := make([]extraction, len(paths))
	sem := semaphore.NewWeighted(int64(opts.ExtractWorkers))
	g, gctx := errgroup.WithContext(ctx)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			hash, err := hashFile(path)
			if err != nil {
				extracted[i] = extraction{path: path, err: err}
				return nil
			}
			res, err := p.extractor.Extract(gctx, path, extractor.Hints{})
			extracted[i] = extraction{path: path, res: res, hash: hash, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	embedderModel := p.embedder.ModelName()
	prior, err := p.checkpoints.Load(ctx)
	if err != nil {
		return nil, err
	}
	resumeFrom := resumeOffset(prior, len(paths), embedderModel)

	results := make([]IndexResult, len(paths))
	for i := 0; i < resumeFrom; i++ {
		results[i] = IndexResult{Path: extracted[i].path, Success: true, Skipped: true}
	}

	for i := resumeFrom; i < len(extracted); i++ {
		ex := extracted[i]
		select {
		case <-ctx.Done():
			results[i] = IndexResult{Path: ex.path, Error: ctx.Err()}
			continue
		default:
		}

		result := p.indexOne(ctx, ex.path, ex.hash, ex.res, ex.err, opts)
		results[i] = result
		if opts.Progress != nil {
			opts.Progress(i+1, len(paths))
		}
		if err := p.checkpoints.Save(ctx, Checkpoint{Stage: "indexing", TotalPaths: len(paths), CompletedPaths: i + 1, EmbedderModel: embedderModel}); err != nil {
			slog.Warn("failed to save ingestion checkpoint", slog.String("error", err.Error()))
		}
	}

	if err := p.checkpoints.Clear(ctx); err != nil {
		slog.Warn("failed to clear ingestion checkpoint", slog.String("error", err.Error()))
	}
	return results, nil
}

func (p *Pipeline) indexOne(ctx context.Context, path, contentHash string, extracted *extractor.Result, extractErr error, opts Options) IndexResult {
	if extractErr != nil {
		return IndexResult{Path: path, Error: extractErr}
	}

	if opts.SkipDuplicates && contentHash != "" {
		if _, found, err := p.metadata.ExistsByHash(ctx, contentHash); err == nil && found {
			return IndexResult{Path: path, Skipped: true, Success: true}
		}
	}

	if extracted == nil || !extracted.Success {
		var err error
		if extracted != nil {
			err = extracted.Err
		}
		return IndexResult{Path: path, Error: ragerr.New(ragerr.ErrCodeExtractFailed, "extraction failed: "+path, err)}
	}

	documentID := deriveDocumentID(path, contentHash)

	docMetadata := ragdoc.Metadata{}
	for k, v := range extracted.Metadata {
		docMetadata[k] = v
	}

	chunks := p.chunker.Chunk(extracted.Text, docMetadata)
	if len(chunks) == 0 {
		return IndexResult{Path: path, Success: true, DocumentID: documentID, ChunkCount: 0}
	}

	for i := range chunks {
		chunks[i].DocumentID = documentID
		chunks[i].ChunkID = fmt.Sprintf("%s#%d", documentID, chunks[i].ChunkIndex)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return IndexResult{Path: path, Error: ragerr.New(ragerr.ErrCodeEmbeddingFailed, "embed chunks: "+path, err)}
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	if err := p.persist(ctx, documentID, path, contentHash, extracted, chunks, opts); err != nil {
		return IndexResult{Path: path, Error: err}
	}

	return IndexResult{Path: path, Success: true, DocumentID: documentID, ChunkCount: len(chunks)}
}

// persist writes DocumentMetadata, then vectors, then keyword records
// (spec §5 W1/W2). If the keyword write fails, vectors and the metadata
// row are rolled back so no document is left partially visible.
func (p *Pipeline) persist(ctx context.Context, documentID, path, contentHash string, extracted *extractor.Result, chunks []*ragdoc.Chunk, opts Options) error {
	meta := ragdoc.DocumentMetadata{
		DocumentID:    documentID,
		SourcePath:    path,
		SourceHash:    contentHash,
		Title:         extracted.Metadata["title"],
		Language:      extracted.Metadata["language"],
		AuthorHint:    extracted.Metadata["author_hint"],
		Project:       opts.Project,
		ChunkCount:    len(chunks),
		IngestionDate: time.Now().UTC(),
	}
	if err := p.metadata.Set(ctx, documentID, meta); err != nil {
		return ragerr.New(ragerr.ErrCodeStoreTransient, "write document metadata: "+documentID, err)
	}

	vectorRecords := make([]ragdoc.VectorRecord, len(chunks))
	keywordRecords := make([]ragdoc.KeywordRecord, len(chunks))
	for i, c := range chunks {
		vectorRecords[i] = ragdoc.VectorRecord{ChunkID: c.ChunkID, DocumentID: documentID, Embedding: c.Embedding, Content: c.Content, MetadataSubset: ragdoc.MetadataSubset(c)}
		keywordRecords[i] = ragdoc.KeywordRecord{ChunkID: c.ChunkID, DocumentID: documentID, Content: c.Content, MetadataSubset: ragdoc.MetadataSubset(c)}
	}

	if err := p.vectors.Add(ctx, vectorRecords); err != nil {
		p.rollbackMetadata(ctx, documentID)
		return ragerr.New(ragerr.ErrCodeStoreTransient, "write vector records: "+documentID, err)
	}

	if err := p.keywords.Add(ctx, keywordRecords); err != nil {
		ids := chunkIDs(chunks)
		if _, delErr := p.vectors.Delete(ctx, ids); delErr != nil {
			slog.Warn("rollback: failed to remove vector records after keyword write failure",
				slog.String("document_id", documentID), slog.String("error", delErr.Error()))
		}
		p.rollbackMetadata(ctx, documentID)
		return ragerr.New(ragerr.ErrCodeStoreTransient, "write keyword records: "+documentID, err)
	}

	if err := p.vectors.Persist(ctx); err != nil {
		slog.Warn("failed to persist vector store", slog.String("error", err.Error()))
	}
	if err := p.keywords.Persist(ctx); err != nil {
		slog.Warn("failed to persist keyword store", slog.String("error", err.Error()))
	}

	return nil
}

func (p *Pipeline) rollbackMetadata(ctx context.Context, documentID string) {
	if _, err := p.metadata.Delete(ctx, documentID); err != nil {
		slog.Warn("rollback: failed to remove document metadata", slog.String("document_id", documentID), slog.String("error", err.Error()))
	}
}

func chunkIDs(chunks []*ragdoc.Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
	}
	return ids
}

func deriveDocumentID(sourcePath, contentHash string) string {
	sum := sha256.Sum256([]byte(sourcePath + "\x00" + contentHash))
	return hex.EncodeToString(sum[:])[:32]
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ragerr.New(ragerr.ErrCodeFileNotFound, "read file: "+path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ListFiles enumerates indexable files under root, optionally recursively.
func ListFiles(root string, recursive bool) ([]string, error) {
	var out []string
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeFileNotFound, "read directory: "+root, err)
	}
	for _, e := range entries {
		full := filepath.Join(root, e.Name())
		if e.IsDir() {
			if recursive {
				sub, err := ListFiles(full, recursive)
				if err != nil {
					return nil, err
				}
				out = append(out, sub...)
			}
			continue
		}
		out = append(out, full)
	}
	return out, nil
}
