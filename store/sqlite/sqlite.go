// Package sqlite implements lode.Store using pure-Go SQLite with
// in-process brute-force vector search and an FTS5 keyword index.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	lode "github.com/lodekb/lode"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing, row counts, and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// nopLogger is a logger that discards all output. Used when no logger is
// configured.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Store implements lode.Store backed by a local SQLite file.
// Embeddings are stored as JSON text and vector search is done
// in-process using brute-force cosine similarity. The FTS5 keyword
// index is written in the same transaction as the chunk rows, so the
// dense and sparse indices never drift.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ lode.Store = (*Store)(nil)

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables and indexes.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	tables := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			format TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			page_count INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			parent_id TEXT,
			seq INTEGER NOT NULL,
			content TEXT NOT NULL,
			page_start INTEGER NOT NULL DEFAULT 0,
			page_end INTEGER NOT NULL DEFAULT 0,
			is_table INTEGER NOT NULL DEFAULT 0,
			start_off INTEGER NOT NULL DEFAULT 0,
			end_off INTEGER NOT NULL DEFAULT 0,
			embedding TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS images (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			page INTEGER NOT NULL DEFAULT 0,
			content_hash TEXT NOT NULL,
			caption TEXT NOT NULL,
			chunk_id TEXT NOT NULL,
			path TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_images_document ON images(document_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_images_chunk ON images(chunk_id)`)

	// FTS5 full-text index over the embedded chunks (children and
	// captions). Kept in lock step with the chunks table.
	if _, err := s.db.ExecContext(ctx, `CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(chunk_id UNINDEXED, content)`); err != nil {
		return fmt.Errorf("create fts table: %w", err)
	}

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// ReplaceDocument atomically swaps in a document with all its chunks and
// image records, purging any previous version stored under the same path.
func (s *Store) ReplaceDocument(ctx context.Context, doc lode.Document, chunks []lode.Chunk, images []lode.ImageRecord) error {
	start := time.Now()
	s.logger.Debug("sqlite: replace document", "id", doc.ID, "path", doc.Path, "chunks", len(chunks), "images", len(images))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var oldID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE path = ?`, doc.Path).Scan(&oldID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("lookup previous document: %w", err)
	}
	if oldID != "" {
		if err := deleteDocumentTx(ctx, tx, oldID); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, path, format, content_hash, page_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Path, string(doc.Format), doc.ContentHash, doc.PageCount, doc.CreatedAt,
	)
	if err != nil {
		s.logger.Error("sqlite: insert document failed", "id", doc.ID, "error", err)
		return fmt.Errorf("insert document: %w", err)
	}

	for _, chunk := range chunks {
		var embJSON *string
		if len(chunk.Embedding) > 0 {
			v := serializeEmbedding(chunk.Embedding)
			embJSON = &v
		}
		var parentID *string
		if chunk.ParentID != "" {
			parentID = &chunk.ParentID
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chunks (id, document_id, parent_id, seq, content, page_start, page_end, is_table, start_off, end_off, embedding)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			chunk.ID, chunk.DocumentID, parentID, chunk.Seq, chunk.Content,
			chunk.PageStart, chunk.PageEnd, boolToInt(chunk.Table), chunk.Start, chunk.End, embJSON,
		)
		if err != nil {
			s.logger.Error("sqlite: insert chunk failed", "chunk_id", chunk.ID, "doc_id", doc.ID, "error", err)
			return fmt.Errorf("insert chunk: %w", err)
		}

		// Keyword index covers exactly the embedded chunks.
		if embJSON != nil {
			if _, err := tx.ExecContext(ctx, `INSERT INTO chunks_fts(chunk_id, content) VALUES (?, ?)`, chunk.ID, chunk.Content); err != nil {
				return fmt.Errorf("insert chunk fts: %w", err)
			}
		}
	}

	for _, img := range images {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO images (id, document_id, page, content_hash, caption, chunk_id, path)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			img.ID, img.DocumentID, img.Page, img.ContentHash, img.Caption, img.ChunkID, img.Path,
		)
		if err != nil {
			s.logger.Error("sqlite: insert image failed", "image_id", img.ID, "doc_id", doc.ID, "error", err)
			return fmt.Errorf("insert image: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: replace document commit failed", "id", doc.ID, "error", err)
		return fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Debug("sqlite: replace document ok", "id", doc.ID, "chunks", len(chunks), "duration", time.Since(start))
	return nil
}

// DeleteDocument removes a document, its chunks, images, and FTS entries.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	start := time.Now()
	s.logger.Debug("sqlite: delete document", "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteDocumentTx(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: delete document commit failed", "id", id, "error", err)
		return err
	}
	s.logger.Debug("sqlite: delete document ok", "id", id, "duration", time.Since(start))
	return nil
}

func deleteDocumentTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks_fts WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)`, id); err != nil {
		return fmt.Errorf("delete document fts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM images WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("delete document images: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("delete document chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// GetDocumentByPath returns the document stored under a source path.
func (s *Store) GetDocumentByPath(ctx context.Context, path string) (lode.Document, bool, error) {
	var d lode.Document
	var format string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, path, format, content_hash, page_count, created_at FROM documents WHERE path = ?`,
		path,
	).Scan(&d.ID, &d.Path, &format, &d.ContentHash, &d.PageCount, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return lode.Document{}, false, nil
	}
	if err != nil {
		return lode.Document{}, false, fmt.Errorf("get document by path: %w", err)
	}
	d.Format = lode.Format(format)
	return d, true, nil
}

// GetDocumentsByIDs returns the documents matching the given IDs.
func (s *Store) GetDocumentsByIDs(ctx context.Context, ids []string) ([]lode.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(
		`SELECT id, path, format, content_hash, page_count, created_at FROM documents WHERE id IN (%s)`,
		strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get documents by ids: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ListDocuments returns all documents ordered by path.
func (s *Store) ListDocuments(ctx context.Context) ([]lode.Document, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, format, content_hash, page_count, created_at FROM documents ORDER BY path`)
	if err != nil {
		s.logger.Error("sqlite: list documents failed", "error", err)
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sqlite: list documents ok", "count", len(docs), "duration", time.Since(start))
	return docs, nil
}

func scanDocuments(rows *sql.Rows) ([]lode.Document, error) {
	var docs []lode.Document
	for rows.Next() {
		var d lode.Document
		var format string
		if err := rows.Scan(&d.ID, &d.Path, &format, &d.ContentHash, &d.PageCount, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Format = lode.Format(format)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetChunksByIDs returns chunks matching the given IDs, without
// embeddings.
func (s *Store) GetChunksByIDs(ctx context.Context, ids []string) ([]lode.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	start := time.Now()
	s.logger.Debug("sqlite: get chunks by ids", "count", len(ids))

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(
		`SELECT id, document_id, parent_id, seq, content, page_start, page_end, is_table, start_off, end_off
		 FROM chunks WHERE id IN (%s)`,
		strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks by ids: %w", err)
	}
	defer rows.Close()

	var chunks []lode.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	s.logger.Debug("sqlite: get chunks by ids ok", "requested", len(ids), "returned", len(chunks), "duration", time.Since(start))
	return chunks, rows.Err()
}

func scanChunk(rows *sql.Rows) (lode.Chunk, error) {
	var c lode.Chunk
	var parentID sql.NullString
	var isTable int
	if err := rows.Scan(&c.ID, &c.DocumentID, &parentID, &c.Seq, &c.Content,
		&c.PageStart, &c.PageEnd, &isTable, &c.Start, &c.End); err != nil {
		return lode.Chunk{}, fmt.Errorf("scan chunk: %w", err)
	}
	if parentID.Valid {
		c.ParentID = parentID.String
	}
	c.Table = isTable != 0
	return c, nil
}

// SearchChunks performs brute-force cosine similarity search over the
// embedded chunks.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, topK int) ([]lode.ScoredChunk, error) {
	start := time.Now()
	s.logger.Debug("sqlite: search chunks", "top_k", topK, "embedding_dim", len(embedding))

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, parent_id, seq, content, page_start, page_end, is_table, start_off, end_off, embedding
		 FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var results []lode.ScoredChunk
	scanned := 0
	for rows.Next() {
		var c lode.Chunk
		var parentID sql.NullString
		var isTable int
		var embJSON string
		if err := rows.Scan(&c.ID, &c.DocumentID, &parentID, &c.Seq, &c.Content,
			&c.PageStart, &c.PageEnd, &isTable, &c.Start, &c.End, &embJSON); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		scanned++
		if parentID.Valid {
			c.ParentID = parentID.String
		}
		c.Table = isTable != 0
		stored, err := deserializeEmbedding(embJSON)
		if err != nil {
			continue
		}
		results = append(results, lode.ScoredChunk{Chunk: c, Score: cosineSimilarity(embedding, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	s.logger.Debug("sqlite: search chunks ok", "scanned", scanned, "returned", len(results), "duration", time.Since(start))
	return results, nil
}

// SearchChunksKeyword performs full-text keyword search over the
// embedded chunks using SQLite FTS5. Results are sorted by relevance
// (BM25 rank).
func (s *Store) SearchChunksKeyword(ctx context.Context, query string, topK int) ([]lode.ScoredChunk, error) {
	start := time.Now()
	s.logger.Debug("sqlite: search chunks keyword", "query", query, "top_k", topK)

	match := ftsMatchQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.document_id, c.parent_id, c.seq, c.content, c.page_start, c.page_end, c.is_table, c.start_off, c.end_off, f.rank
		 FROM chunks_fts f
		 JOIN chunks c ON c.id = f.chunk_id
		 WHERE chunks_fts MATCH ?
		 ORDER BY f.rank LIMIT ?`,
		match, topK)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []lode.ScoredChunk
	for rows.Next() {
		var c lode.Chunk
		var parentID sql.NullString
		var isTable int
		var rank float64
		if err := rows.Scan(&c.ID, &c.DocumentID, &parentID, &c.Seq, &c.Content,
			&c.PageStart, &c.PageEnd, &isTable, &c.Start, &c.End, &rank); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if parentID.Valid {
			c.ParentID = parentID.String
		}
		c.Table = isTable != 0
		// FTS5 rank is negative (closer to 0 = better). Use -rank as score.
		score := float32(-rank)
		if score < 0 {
			score = 0
		}
		results = append(results, lode.ScoredChunk{Chunk: c, Score: score})
	}
	s.logger.Debug("sqlite: search chunks keyword ok", "returned", len(results), "duration", time.Since(start))
	return results, rows.Err()
}

// GetImagesByChunkIDs returns the image records linked to the given
// caption chunks.
func (s *Store) GetImagesByChunkIDs(ctx context.Context, chunkIDs []string) ([]lode.ImageRecord, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(
		`SELECT id, document_id, page, content_hash, caption, chunk_id, path FROM images WHERE chunk_id IN (%s)`,
		strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get images by chunk ids: %w", err)
	}
	defer rows.Close()

	var images []lode.ImageRecord
	for rows.Next() {
		var img lode.ImageRecord
		if err := rows.Scan(&img.ID, &img.DocumentID, &img.Page, &img.ContentHash, &img.Caption, &img.ChunkID, &img.Path); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// Stats returns index-wide counts.
func (s *Store) Stats(ctx context.Context) (lode.Stats, error) {
	var st lode.Stats
	row := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM documents),
		(SELECT COUNT(*) FROM chunks WHERE embedding IS NULL),
		(SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL),
		(SELECT COUNT(*) FROM images)`)
	if err := row.Scan(&st.Documents, &st.Parents, &st.Children, &st.Images); err != nil {
		return lode.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// CheckConsistency verifies that the keyword index covers exactly the
// embedded chunks. A drifted index skews fused rankings silently, so
// callers should rebuild when this reports lode.ErrIndexConsistency.
func (s *Store) CheckConsistency(ctx context.Context) error {
	var missing, orphaned int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL
		   AND id NOT IN (SELECT chunk_id FROM chunks_fts)`).Scan(&missing)
	if err != nil {
		return fmt.Errorf("check consistency: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks_fts WHERE chunk_id NOT IN
		   (SELECT id FROM chunks WHERE embedding IS NOT NULL)`).Scan(&orphaned)
	if err != nil {
		return fmt.Errorf("check consistency: %w", err)
	}
	if missing > 0 || orphaned > 0 {
		return fmt.Errorf("%w: %d chunks missing from keyword index, %d orphaned entries",
			lode.ErrIndexConsistency, missing, orphaned)
	}
	return nil
}

// RebuildKeywordIndex drops and repopulates the FTS index from the
// embedded chunks.
func (s *Store) RebuildKeywordIndex(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: rebuild keyword index")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts`); err != nil {
		return fmt.Errorf("clear fts: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chunks_fts(chunk_id, content)
		 SELECT id, content FROM chunks WHERE embedding IS NOT NULL`); err != nil {
		return fmt.Errorf("repopulate fts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Info("sqlite: rebuild keyword index ok", "duration", time.Since(start))
	return nil
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	err := s.db.Close()
	if err != nil {
		s.logger.Error("sqlite: close failed", "error", err)
	}
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Vector math ---

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

// serializeEmbedding converts []float32 to a JSON array string.
func serializeEmbedding(embedding []float32) string {
	data, _ := json.Marshal(embedding)
	return string(data)
}

// deserializeEmbedding parses a JSON array string back to []float32.
func deserializeEmbedding(s string) ([]float32, error) {
	var v []float32
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
