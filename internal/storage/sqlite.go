package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/retriever/internal/models"
)

const (
	statePending   = "pending"
	stateCommitted = "committed"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private in-memory
// database on a single connection.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	inMemory := dbPath == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		key_hash TEXT NOT NULL,
		rate_limit REAL NOT NULL DEFAULT 0,
		burst INTEGER NOT NULL DEFAULT 0,
		capacity_limit INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS documents (
		project_id TEXT NOT NULL,
		id TEXT NOT NULL,
		title TEXT,
		content TEXT NOT NULL,
		metadata TEXT,
		state TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (project_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_state ON documents(state);

	CREATE TABLE IF NOT EXISTS chunks (
		project_id TEXT NOT NULL,
		vector_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		PRIMARY KEY (project_id, vector_id),
		FOREIGN KEY (project_id, document_id) REFERENCES documents(project_id, id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(project_id, document_id, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

// PutProject inserts a project or replaces its key hash and limits.
func (s *SQLiteStorage) PutProject(ctx context.Context, p *models.Project) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, key_hash, rate_limit, burst, capacity_limit)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   key_hash = excluded.key_hash,
		   rate_limit = excluded.rate_limit,
		   burst = excluded.burst,
		   capacity_limit = excluded.capacity_limit`,
		p.ID, p.KeyHash, p.RateLimit, p.Burst, p.CapacityLimit,
	)
	if err != nil {
		return fmt.Errorf("failed to put project %s: %w", p.ID, err)
	}
	return nil
}

// GetProject returns a project by id.
func (s *SQLiteStorage) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, key_hash, rate_limit, burst, capacity_limit FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.KeyHash, &p.RateLimit, &p.Burst, &p.CapacityLimit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrProjectNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// ListProjects returns all projects ordered by id.
func (s *SQLiteStorage) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key_hash, rate_limit, burst, capacity_limit FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.KeyHash, &p.RateLimit, &p.Burst, &p.CapacityLimit); err != nil {
			return nil, err
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// UpdateProjectLimits changes the rate and capacity limits of an existing project.
func (s *SQLiteStorage) UpdateProjectLimits(ctx context.Context, id string, rateLimit float64, burst, capacity int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE projects SET rate_limit = ?, burst = ?, capacity_limit = ? WHERE id = ?`,
		rateLimit, burst, capacity, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update project limits: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", models.ErrProjectNotFound, id)
	}
	return nil
}

// PutPendingDocument writes the document and its chunks in one transaction with state pending.
// CreatedAt is assigned when unset and ChunkIDs is filled from chunks.
func (s *SQLiteStorage) PutPendingDocument(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (project_id, id, title, content, metadata, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ProjectID, doc.ID, doc.Title, doc.Content, string(metadataJSON), statePending, doc.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (project_id, vector_id, document_id, chunk_index, text, embedding)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	doc.ChunkIDs = make([]string, 0, len(chunks))
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, doc.ProjectID, c.VectorID, doc.ID, c.Index, c.Text, EncodeEmbedding(c.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.VectorID, err)
		}
		doc.ChunkIDs = append(doc.ChunkIDs, c.VectorID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}
	return nil
}

// CommitDocument flips a pending document to committed.
func (s *SQLiteStorage) CommitDocument(ctx context.Context, projectID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET state = ? WHERE project_id = ? AND id = ? AND state = ?`,
		stateCommitted, projectID, id, statePending,
	)
	if err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: pending %s", models.ErrDocumentNotFound, id)
	}
	return nil
}

// DiscardDocument removes a document regardless of state. Used to roll back a failed ingest.
func (s *SQLiteStorage) DiscardDocument(ctx context.Context, projectID, id string) error {
	_, err := s.deleteDocument(ctx, projectID, id, "")
	return err
}

// DeleteDocument removes a committed document and its chunks.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, projectID, id string) error {
	n, err := s.deleteDocument(ctx, projectID, id, stateCommitted)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	return nil
}

func (s *SQLiteStorage) deleteDocument(ctx context.Context, projectID, id, state string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `DELETE FROM documents WHERE project_id = ? AND id = ?`
	args := []any{projectID, id}
	if state != "" {
		query += ` AND state = ?`
		args = append(args, state)
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chunks WHERE project_id = ? AND document_id = ?`, projectID, id); err != nil {
			return 0, fmt.Errorf("failed to delete chunks: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return n, nil
}

// GetDocument returns a committed document with its ordered chunk ids.
func (s *SQLiteStorage) GetDocument(ctx context.Context, projectID, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT project_id, id, title, content, metadata, created_at
		 FROM documents WHERE project_id = ? AND id = ? AND state = ?`,
		projectID, id, stateCommitted,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT vector_id FROM chunks WHERE project_id = ? AND document_id = ? ORDER BY chunk_index`,
		projectID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var vid string
		if err := rows.Scan(&vid); err != nil {
			return nil, err
		}
		doc.ChunkIDs = append(doc.ChunkIDs, vid)
	}
	return doc, rows.Err()
}

// GetDocuments returns the committed documents among ids, keyed by id. Missing ids are absent
// from the map. Chunk ids are not loaded.
func (s *SQLiteStorage) GetDocuments(ctx context.Context, projectID string, ids []string) (map[string]*models.Document, error) {
	docs := make(map[string]*models.Document, len(ids))
	if len(ids) == 0 {
		return docs, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+2)
	args = append(args, projectID, stateCommitted)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, id, title, content, metadata, created_at
		 FROM documents WHERE project_id = ? AND state = ? AND id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs[doc.ID] = doc
	}
	return docs, rows.Err()
}

// PurgePending deletes every pending document and its chunks across all projects.
// Pending rows only survive a crash between the store write and the commit marker.
func (s *SQLiteStorage) PurgePending(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE EXISTS (
			SELECT 1 FROM documents d
			WHERE d.project_id = chunks.project_id AND d.id = chunks.document_id AND d.state = ?)`,
		statePending,
	); err != nil {
		return 0, fmt.Errorf("failed to purge pending chunks: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE state = ?`, statePending)
	if err != nil {
		return 0, fmt.Errorf("failed to purge pending documents: %w", err)
	}
	n, _ := result.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}
	return n, nil
}

// ForEachChunk calls fn for every chunk of the project's committed documents in insertion order.
func (s *SQLiteStorage) ForEachChunk(ctx context.Context, projectID string, fn func(*models.Chunk) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.vector_id, c.document_id, c.chunk_index, c.text, c.embedding
		 FROM chunks c JOIN documents d ON d.project_id = c.project_id AND d.id = c.document_id
		 WHERE c.project_id = ? AND d.state = ?
		 ORDER BY c.rowid`,
		projectID, stateCommitted,
	)
	if err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}

	var chunks []*models.Chunk
	for rows.Next() {
		var c models.Chunk
		var blob []byte
		if err := rows.Scan(&c.VectorID, &c.DocumentID, &c.Index, &c.Text, &blob); err != nil {
			rows.Close()
			return err
		}
		c.Embedding = DecodeEmbedding(blob)
		chunks = append(chunks, &c)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return err
	}

	for _, c := range chunks {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// ForEachDocument calls fn for every committed document of the project in insertion order.
func (s *SQLiteStorage) ForEachDocument(ctx context.Context, projectID string, fn func(*models.Document) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, id, title, content, metadata, created_at
		 FROM documents WHERE project_id = ? AND state = ? ORDER BY rowid`,
		projectID, stateCommitted,
	)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			rows.Close()
			return err
		}
		docs = append(docs, doc)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return err
	}

	for _, doc := range docs {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// CountDocuments returns the number of committed documents in a project.
func (s *SQLiteStorage) CountDocuments(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE project_id = ? AND state = ?`, projectID, stateCommitted,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var title, metadataJSON sql.NullString
	if err := row.Scan(&doc.ProjectID, &doc.ID, &title, &doc.Content, &metadataJSON, &doc.CreatedAt); err != nil {
		return nil, err
	}
	doc.Title = title.String
	doc.Metadata = models.Metadata{}
	if metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	return &doc, nil
}
