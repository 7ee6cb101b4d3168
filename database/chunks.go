package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/ragger/helper"
	"github.com/siherrmann/ragger/model"
	loadSql "github.com/siherrmann/ragger/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	InsertChunk(chunk *model.Chunk) error
	InsertChunks(chunks []*model.Chunk) error
	SelectChunk(rid uuid.UUID) (*model.Chunk, error)
	SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error)
	SelectChunksBySimilarity(ctx context.Context, embedding []float32, limit int, threshold float64, filter model.ChunkFilter) ([]*model.Chunk, error)
	CountChunks(ctx context.Context, filter model.ChunkFilter) (int64, error)
	DeleteChunks(ctx context.Context, filter model.ChunkFilter) (int64, error)
	ScrollChunks(ctx context.Context, afterID int64, limit int) ([]*model.Chunk, int64, error)
	UpdateChunkEmbedding(rid uuid.UUID, embedding []float32) error
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db *helper.Database
}

// NewChunksDBHandler creates a new chunks database handler.
// It initializes the database connection and loads chunk-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing chunks table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// InsertChunk inserts a new chunk and fills in the generated fields.
func (h *ChunksDBHandler) InsertChunk(chunk *model.Chunk) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		chunk.DocumentID,
		chunk.Content,
		chunk.Source,
		chunk.FilePath,
		chunk.PDFHash,
		chunk.ContentHashGlobal,
		chunk.ContentHash,
		chunk.ChunkType,
		chunk.QualityScore,
		chunk.WordCount,
		chunk.CharCount,
		chunk.PageNumber,
		chunk.ChunkIndex,
		pq.Array(chunk.Embedding),
		chunk.Metadata,
	)

	err := scanChunk(row, chunk)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// InsertChunks inserts all chunks in a single transaction. Either every
// chunk is inserted or none.
func (h *ChunksDBHandler) InsertChunks(chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := h.db.Instance.Begin()
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, chunk := range chunks {
		row := tx.QueryRow(
			`SELECT * FROM insert_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			chunk.DocumentID,
			chunk.Content,
			chunk.Source,
			chunk.FilePath,
			chunk.PDFHash,
			chunk.ContentHashGlobal,
			chunk.ContentHash,
			chunk.ChunkType,
			chunk.QualityScore,
			chunk.WordCount,
			chunk.CharCount,
			chunk.PageNumber,
			chunk.ChunkIndex,
			pq.Array(chunk.Embedding),
			chunk.Metadata,
		)

		if err := scanChunk(row, chunk); err != nil {
			return helper.NewError("scan", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit transaction", err)
	}

	return nil
}

// SelectChunk retrieves a chunk by RID
func (h *ChunksDBHandler) SelectChunk(rid uuid.UUID) (*model.Chunk, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_chunk($1)`,
		rid,
	)

	chunk := &model.Chunk{}
	err := scanChunk(row, chunk)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return chunk, nil
}

// SelectChunksByDocument retrieves all chunks for a document ordered by
// chunk index.
func (h *ChunksDBHandler) SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		if err := scanChunk(rows, chunk); err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectChunksBySimilarity performs vector similarity search.
// The filter narrows the search, a zero filter searches everything.
func (h *ChunksDBHandler) SelectChunksBySimilarity(ctx context.Context, embedding []float32, limit int, threshold float64, filter model.ChunkFilter) ([]*model.Chunk, error) {
	embeddingVector := pgvector.NewVector(embedding)

	args := append([]interface{}{embeddingVector, limit, threshold}, filterArgs(filter)...)
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		args...,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		err := rows.Scan(
			&chunk.ID,
			&chunk.RID,
			&chunk.DocumentID,
			&chunk.Content,
			&chunk.Source,
			&chunk.FilePath,
			&chunk.PDFHash,
			&chunk.ContentHashGlobal,
			&chunk.ContentHash,
			&chunk.ChunkType,
			&chunk.QualityScore,
			&chunk.WordCount,
			&chunk.CharCount,
			&chunk.PageNumber,
			&chunk.ChunkIndex,
			pq.Array(&chunk.Embedding),
			&chunk.Metadata,
			&chunk.CreatedAt,
			&chunk.Similarity,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		chunk.RetrievalMethod = model.RetrievalMethodVector
		results = append(results, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// CountChunks counts the chunks matching the filter.
func (h *ChunksDBHandler) CountChunks(ctx context.Context, filter model.ChunkFilter) (int64, error) {
	var count int64
	err := h.db.Instance.QueryRowContext(ctx,
		`SELECT * FROM count_chunks($1, $2, $3, $4, $5, $6)`,
		filterArgs(filter)...,
	).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}

	return count, nil
}

// DeleteChunks deletes the chunks matching the filter and returns the
// number removed. A zero filter deletes every chunk.
func (h *ChunksDBHandler) DeleteChunks(ctx context.Context, filter model.ChunkFilter) (int64, error) {
	var deleted int64
	err := h.db.Instance.QueryRowContext(ctx,
		`SELECT * FROM delete_chunks($1, $2, $3, $4, $5, $6)`,
		filterArgs(filter)...,
	).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}

	return deleted, nil
}

// ScrollChunks pages through all chunks ordered by id. It returns the page
// and the id to pass as afterID for the next page. A next id of zero means
// the scan is done.
func (h *ChunksDBHandler) ScrollChunks(ctx context.Context, afterID int64, limit int) ([]*model.Chunk, int64, error) {
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT * FROM scroll_chunks($1, $2)`,
		afterID,
		limit,
	)
	if err != nil {
		return nil, 0, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		if err := scanChunk(rows, chunk); err != nil {
			return nil, 0, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, 0, helper.NewError("rows error", err)
	}

	var nextID int64
	if len(chunks) == limit {
		nextID = chunks[len(chunks)-1].ID
	}

	return chunks, nextID, nil
}

// UpdateChunkEmbedding replaces the stored embedding of a chunk.
func (h *ChunksDBHandler) UpdateChunkEmbedding(rid uuid.UUID, embedding []float32) error {
	var updated bool
	err := h.db.Instance.QueryRow(
		`SELECT * FROM update_chunk_embedding($1, $2)`,
		rid,
		pq.Array(embedding),
	).Scan(&updated)
	if err != nil {
		return helper.NewError("scan", err)
	}
	if !updated {
		return helper.NewError("update chunk embedding", fmt.Errorf("chunk %s not found", rid))
	}

	return nil
}

// rowScanner is satisfied by both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanChunk scans the full chunk column set into the given chunk.
func scanChunk(row rowScanner, chunk *model.Chunk) error {
	return row.Scan(
		&chunk.ID,
		&chunk.RID,
		&chunk.DocumentID,
		&chunk.Content,
		&chunk.Source,
		&chunk.FilePath,
		&chunk.PDFHash,
		&chunk.ContentHashGlobal,
		&chunk.ContentHash,
		&chunk.ChunkType,
		&chunk.QualityScore,
		&chunk.WordCount,
		&chunk.CharCount,
		&chunk.PageNumber,
		&chunk.ChunkIndex,
		pq.Array(&chunk.Embedding),
		&chunk.Metadata,
		&chunk.CreatedAt,
	)
}

// filterArgs renders the filter as the six nullable SQL function arguments.
func filterArgs(filter model.ChunkFilter) []interface{} {
	nullable := func(s string) interface{} {
		if s == "" {
			return nil
		}
		return s
	}

	return []interface{}{
		nullable(filter.Source),
		nullable(filter.FilePath),
		nullable(filter.PDFHash),
		nullable(filter.ContentHashGlobal),
		nullable(filter.ContentHash),
		nullable(string(filter.ChunkType)),
	}
}
