package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no CGO

	"github.com/ragd-project/ragd/internal/ragdoc"
	"github.com/ragd-project/ragd/internal/ragerr"
)

// SQLiteMetadataStore persists DocumentMetadata as JSON blobs in an
// embedded SQLite database, with project, tags, path and hash kept in their
// own columns for the conjunctive Query filters spec §4.4 requires; project,
// path, hash and ingestion date are indexed, tags is not.
type SQLiteMetadataStore struct {
	mu sync.Mutex
	db *sql.DB
}

const metadataSchema = `
CREATE TABLE IF NOT EXISTS documents (
	document_id     TEXT PRIMARY KEY,
	schema_version  INTEGER NOT NULL,
	source_path     TEXT NOT NULL,
	source_hash     TEXT NOT NULL,
	project         TEXT NOT NULL DEFAULT '',
	tags            TEXT NOT NULL DEFAULT '',
	ingestion_date  TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL,
	blob            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(source_hash);
CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(source_path);
CREATE INDEX IF NOT EXISTS idx_documents_ingestion_date ON documents(ingestion_date);
`

// OpenSQLiteMetadataStore opens (or creates) the metadata database at path.
// An empty path opens an in-memory database, useful for tests.
func OpenSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeStoreTransient, "open metadata database", err)
	}
	db.SetMaxOpenConns(1) // single-writer per spec §5

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, ragerr.New(ragerr.ErrCodeStoreTransient, "apply pragma: "+pragma, err)
		}
	}

	if _, err := db.Exec(metadataSchema); err != nil {
		db.Close()
		return nil, ragerr.New(ragerr.ErrCodeStoreCorrupt, "create metadata schema", err)
	}

	return &SQLiteMetadataStore{db: db}, nil
}

type metadataBlob struct {
	SchemaVersion int      `json:"schema_version"`
	Title         string   `json:"title"`
	Creators      []string `json:"creators"`
	Subject       []string `json:"subject"`
	Language      string   `json:"language"`
	Date          string   `json:"date"`
	ChunkCount    int      `json:"chunk_count"`
	DataTier      string   `json:"data_tier"`
	AuthorHint    string   `json:"author_hint"`
	Year          int      `json:"year"`
}

func toBlob(m ragdoc.DocumentMetadata) metadataBlob {
	return metadataBlob{
		SchemaVersion: m.SchemaVersion,
		Title:         m.Title,
		Creators:      m.Creators,
		Subject:       m.Subject,
		Language:      m.Language,
		Date:          m.Date,
		ChunkCount:    m.ChunkCount,
		DataTier:      string(m.DataTier),
		AuthorHint:    m.AuthorHint,
		Year:          m.Year,
	}
}

func (s *SQLiteMetadataStore) Set(ctx context.Context, id string, meta ragdoc.DocumentMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if meta.SchemaVersion == 0 {
		meta.SchemaVersion = ragdoc.CurrentSchemaVersion
	}
	now := time.Now().UTC()

	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `SELECT created_at FROM documents WHERE document_id = ?`, id).Scan(&createdAt)
	switch {
	case err == sql.ErrNoRows:
		createdAt = now
	case err != nil:
		return ragerr.New(ragerr.ErrCodeStoreTransient, "read existing created_at", err)
	}
	meta.CreatedAt = createdAt
	meta.UpdatedAt = now
	if meta.IngestionDate.IsZero() {
		meta.IngestionDate = now
	}

	blobJSON, err := json.Marshal(toBlob(meta))
	if err != nil {
		return ragerr.New(ragerr.ErrCodeStoreTransient, "marshal metadata blob", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (document_id, schema_version, source_path, source_hash, project, tags, ingestion_date, created_at, updated_at, blob)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			schema_version=excluded.schema_version, source_path=excluded.source_path, source_hash=excluded.source_hash,
			project=excluded.project, tags=excluded.tags, ingestion_date=excluded.ingestion_date,
			updated_at=excluded.updated_at, blob=excluded.blob`,
		id, meta.SchemaVersion, meta.SourcePath, meta.SourceHash, meta.Project, strings.Join(meta.Tags, ","),
		meta.IngestionDate.Format(time.RFC3339), meta.CreatedAt.Format(time.RFC3339), meta.UpdatedAt.Format(time.RFC3339), string(blobJSON))
	if err != nil {
		return ragerr.New(ragerr.ErrCodeStoreTransient, "upsert document metadata: "+id, err)
	}
	return nil
}

func (s *SQLiteMetadataStore) Get(ctx context.Context, id string) (*ragdoc.DocumentMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, id)
}

func (s *SQLiteMetadataStore) getLocked(ctx context.Context, id string) (*ragdoc.DocumentMetadata, error) {
	row := s.db.QueryRowContext(ctx, `SELECT document_id, source_path, source_hash, project, tags, ingestion_date, created_at, updated_at, blob FROM documents WHERE document_id = ?`, id)
	meta, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeStoreTransient, "read document metadata: "+id, err)
	}
	if meta.SchemaVersion < ragdoc.CurrentSchemaVersion {
		meta.SchemaVersion = ragdoc.CurrentSchemaVersion
		if setErr := s.setLocked(ctx, id, *meta); setErr != nil {
			return nil, setErr
		}
	}
	return meta, nil
}

func (s *SQLiteMetadataStore) setLocked(ctx context.Context, id string, meta ragdoc.DocumentMetadata) error {
	blobJSON, err := json.Marshal(toBlob(meta))
	if err != nil {
		return ragerr.New(ragerr.ErrCodeStoreTransient, "marshal migrated metadata blob", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE documents SET schema_version = ?, blob = ?, updated_at = ? WHERE document_id = ?`,
		meta.SchemaVersion, string(blobJSON), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return ragerr.New(ragerr.ErrCodeStoreTransient, "persist migrated metadata: "+id, err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDocument(row scannable) (*ragdoc.DocumentMetadata, error) {
	var (
		id, sourcePath, sourceHash, project, tagsCSV string
		ingestionDate, createdAt, updatedAt          string
		blobJSON                                     string
	)
	if err := row.Scan(&id, &sourcePath, &sourceHash, &project, &tagsCSV, &ingestionDate, &createdAt, &updatedAt, &blobJSON); err != nil {
		return nil, err
	}

	var blob metadataBlob
	if err := json.Unmarshal([]byte(blobJSON), &blob); err != nil {
		return nil, err
	}

	ing, _ := time.Parse(time.RFC3339, ingestionDate)
	cre, _ := time.Parse(time.RFC3339, createdAt)
	upd, _ := time.Parse(time.RFC3339, updatedAt)

	var tags []string
	if tagsCSV != "" {
		tags = strings.Split(tagsCSV, ",")
	}

	return &ragdoc.DocumentMetadata{
		DocumentID:    id,
		SchemaVersion: blob.SchemaVersion,
		Title:         blob.Title,
		Creators:      blob.Creators,
		Subject:       blob.Subject,
		Language:      blob.Language,
		Date:          blob.Date,
		SourcePath:    sourcePath,
		SourceHash:    sourceHash,
		IngestionDate: ing,
		CreatedAt:     cre,
		UpdatedAt:     upd,
		ChunkCount:    blob.ChunkCount,
		Tags:          tags,
		Project:       project,
		DataTier:      ragdoc.DataTier(blob.DataTier),
		AuthorHint:    blob.AuthorHint,
		Year:          blob.Year,
	}, nil
}

// Update applies a partial field set; unrecognized keys are logged and ignored.
// Recognized keys: title, project, tags ([]string), chunk_count (int),
// data_tier, language, subject ([]string), creators ([]string), date,
// author_hint, year (int).
func (s *SQLiteMetadataStore) Update(ctx context.Context, id string, fields map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.getLocked(ctx, id)
	if err != nil {
		return false, err
	}
	if meta == nil {
		return false, nil
	}

	for k, v := range fields {
		switch k {
		case "title":
			meta.Title, _ = v.(string)
		case "project":
			meta.Project, _ = v.(string)
		case "tags":
			if tags, ok := v.([]string); ok {
				meta.Tags = tags
			}
		case "chunk_count":
			if n, ok := v.(int); ok {
				meta.ChunkCount = n
			}
		case "data_tier":
			if dt, ok := v.(string); ok {
				meta.DataTier = ragdoc.DataTier(dt)
			}
		case "language":
			meta.Language, _ = v.(string)
		case "subject":
			if s, ok := v.([]string); ok {
				meta.Subject = s
			}
		case "creators":
			if c, ok := v.([]string); ok {
				meta.Creators = c
			}
		case "date":
			meta.Date, _ = v.(string)
		case "author_hint":
			meta.AuthorHint, _ = v.(string)
		case "year":
			if y, ok := v.(int); ok {
				meta.Year = y
			}
		default:
			slog.Warn("metadata update: ignoring unrecognized field", slog.String("document_id", id), slog.String("field", k))
		}
	}

	if err := s.setLocked(ctx, id, *meta); err != nil {
		return false, err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE documents SET source_path=?, source_hash=?, project=?, tags=? WHERE document_id=?`,
		meta.SourcePath, meta.SourceHash, meta.Project, strings.Join(meta.Tags, ","), id)
	if err != nil {
		return false, ragerr.New(ragerr.ErrCodeStoreTransient, "persist updated indexed columns: "+id, err)
	}
	return true, nil
}

func (s *SQLiteMetadataStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE document_id = ?`, id)
	if err != nil {
		return false, ragerr.New(ragerr.ErrCodeStoreTransient, "delete document metadata: "+id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteMetadataStore) Query(ctx context.Context, q DocQuery) ([]*ragdoc.DocumentMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var clauses []string
	var args []any

	if q.Project != "" {
		clauses = append(clauses, "project = ?")
		args = append(args, q.Project)
	}
	if q.PathContains != "" {
		clauses = append(clauses, "source_path LIKE ?")
		args = append(args, "%"+q.PathContains+"%")
	}
	if q.Since != nil {
		clauses = append(clauses, "ingestion_date >= ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339))
	}
	if q.Until != nil {
		clauses = append(clauses, "ingestion_date <= ?")
		args = append(args, q.Until.UTC().Format(time.RFC3339))
	}
	for _, tag := range q.Tags {
		clauses = append(clauses, "(',' || tags || ',') LIKE ?")
		args = append(args, "%,"+tag+",%")
	}

	query := `SELECT document_id, source_path, source_hash, project, tags, ingestion_date, created_at, updated_at, blob FROM documents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY ingestion_date DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeStoreTransient, "query document metadata", err)
	}
	defer rows.Close()

	var out []*ragdoc.DocumentMetadata
	for rows.Next() {
		meta, err := scanDocument(rows)
		if err != nil {
			return nil, ragerr.New(ragerr.ErrCodeStoreCorrupt, "scan document metadata row", err)
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

func (s *SQLiteMetadataStore) ExistsByHash(ctx context.Context, contentHash string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT document_id FROM documents WHERE source_hash = ? LIMIT 1`, contentHash).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, ragerr.New(ragerr.ErrCodeStoreTransient, "lookup document by content hash", err)
	}
	return id, true, nil
}

func (s *SQLiteMetadataStore) MigrateAll(ctx context.Context, batchSize int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batchSize <= 0 {
		batchSize = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT document_id FROM documents WHERE schema_version < ? LIMIT ?`, ragdoc.CurrentSchemaVersion, batchSize)
	if err != nil {
		return 0, ragerr.New(ragerr.ErrCodeStoreTransient, "scan for schema migration", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, ragerr.New(ragerr.ErrCodeStoreCorrupt, "scan migration candidate", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	migrated := 0
	for _, id := range ids {
		if _, err := s.getLocked(ctx, id); err != nil {
			return migrated, err
		}
		migrated++
	}
	return migrated, nil
}

func (s *SQLiteMetadataStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&n)
	return n
}

func (s *SQLiteMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		return ragerr.New(ragerr.ErrCodeStoreTransient, "close metadata database", err)
	}
	return nil
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)
