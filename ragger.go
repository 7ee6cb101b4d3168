// Package ragger implements retrieval augmented generation on PostgreSQL
// with pgvector: documents are extracted, chunked, scored, embedded and
// indexed, then retrieved by semantic similarity with reranking or maximum
// marginal relevance. Everything runs locally, the default embedding
// pipeline uses an in-process ONNX sentence transformer.
package ragger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/siherrmann/ragger/cache"
	"github.com/siherrmann/ragger/core/embedding"
	"github.com/siherrmann/ragger/core/pipeline"
	"github.com/siherrmann/ragger/core/retrieval"
	"github.com/siherrmann/ragger/database"
	"github.com/siherrmann/ragger/helper"
	"github.com/siherrmann/ragger/model"
	loadSql "github.com/siherrmann/ragger/sql"
)

// defaultCacheEntries bounds the memory cache created by NewRagger.
const defaultCacheEntries = 4096

const errNoPipeline = "pipeline not set, call UseDefaultPipeline, UsePipeline or UseMockPipeline first"

// Ragger provides a unified interface to ingestion and retrieval
type Ragger struct {
	DB        *helper.Database
	Chunks    *database.ChunksDBHandler
	Documents *database.DocumentsDBHandler
	Cache     *cache.Cache
	Embedder  *embedding.Client   // Embedding client, set by Use*Pipeline
	Pipeline  *pipeline.Pipeline  // Ingestion pipeline, set by Use*Pipeline
	Engine    *retrieval.Engine   // Retrieval engine, set by Use*Pipeline
	// Logging
	log          *slog.Logger
	embeddingDim int
}

// NewRagger creates a new Ragger instance with the database handlers
// initialized. The embedding dimension fixes the width of the vector column
// and must match the embedding provider wired in later. Retrieval results
// and embeddings are cached in memory by default, use SetCache before
// wiring a pipeline to change that.
func NewRagger(config *helper.DatabaseConfiguration, embeddingDim int) (*Ragger, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("ragger", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create the handlers in the correct order (documents first, chunks
	// reference them). force=false to not reload if functions already exist.
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	chunks, err := database.NewChunksDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	return &Ragger{
		DB:           db,
		Chunks:       chunks,
		Documents:    documents,
		Cache:        cache.New(cache.NewMemoryStore(defaultCacheEntries), logger),
		log:          logger,
		embeddingDim: embeddingDim,
	}, nil
}

// Close releases the embedding provider, the cache store and the database
// connection.
func (r *Ragger) Close() error {
	var firstErr error
	if r.Embedder != nil {
		if err := r.Embedder.Close(); err != nil {
			firstErr = err
		}
	}
	if r.Cache != nil {
		if err := r.Cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetCache replaces the cache used for embeddings and retrieval results.
// Call it before wiring a pipeline, the cache is captured at wiring time.
func (r *Ragger) SetCache(c *cache.Cache) {
	r.Cache = c
}

// UseDefaultPipeline wires the default local pipeline: an in-process ONNX
// sentence transformer (all-MiniLM-L6-v2, 384 dimensions), the default
// chunker and the default retrieval configuration. The model is downloaded
// on first use.
func (r *Ragger) UseDefaultPipeline() error {
	if r.embeddingDim != embedding.DefaultHugotDimension {
		return helper.NewError("use default pipeline", fmt.Errorf(
			"default model produces %v dimensional embeddings, ragger was created with %v",
			embedding.DefaultHugotDimension, r.embeddingDim))
	}

	provider, err := embedding.NewHugotProvider(embedding.DefaultHugotModel, embedding.DefaultHugotOnnxPath)
	if err != nil {
		return helper.NewError("create default embedding provider", err)
	}

	return r.UsePipeline(provider,
		model.DefaultEmbeddingConfig(embedding.DefaultHugotDimension),
		model.DefaultChunkerConfig(),
		model.DefaultRetrievalConfig())
}

// UsePipeline wires ingestion and retrieval around the given embedding
// provider. The embedding dimension must match the one the Ragger was
// created with, the vector column width is fixed.
func (r *Ragger) UsePipeline(provider embedding.Provider, embeddingConfig model.EmbeddingConfig, chunkerConfig model.ChunkerConfig, retrievalConfig model.RetrievalConfig) error {
	if embeddingConfig.Dimension == 0 {
		embeddingConfig.Dimension = r.embeddingDim
	}
	if embeddingConfig.Dimension != r.embeddingDim {
		return helper.NewError("use pipeline", fmt.Errorf(
			"embedding dimension %v does not match the index dimension %v",
			embeddingConfig.Dimension, r.embeddingDim))
	}

	embedder, err := embedding.NewClient(provider, r.Cache, embeddingConfig, r.log)
	if err != nil {
		return helper.NewError("create embedding client", err)
	}

	r.Embedder = embedder
	r.Pipeline = pipeline.NewPipeline(pipeline.NewChunker(chunkerConfig), embedder, r.Chunks, r.Documents, r.log)
	r.Engine = retrieval.NewEngine(r.Chunks, embedder, r.Cache, &retrievalConfig, r.log)

	return nil
}

// UseMockPipeline wires an offline pipeline without an embedding provider.
// All embeddings are zero vectors, so retrieval always degrades to an empty
// result. Useful for tests and for exercising ingestion without a model.
func (r *Ragger) UseMockPipeline(chunkerConfig model.ChunkerConfig, retrievalConfig model.RetrievalConfig) error {
	embeddingConfig := model.DefaultEmbeddingConfig(r.embeddingDim)
	embeddingConfig.Mock = true

	embedder, err := embedding.NewClient(nil, nil, embeddingConfig, r.log)
	if err != nil {
		return helper.NewError("create mock embedding client", err)
	}

	r.Embedder = embedder
	r.Pipeline = pipeline.NewPipeline(pipeline.NewChunker(chunkerConfig), embedder, r.Chunks, r.Documents, r.log)
	r.Engine = retrieval.NewEngine(r.Chunks, embedder, r.Cache, &retrievalConfig, r.log)

	return nil
}

// SetExtractor replaces the text extractor of the wired pipeline, for
// example with a PDF reader.
func (r *Ragger) SetExtractor(extractor pipeline.ExtractFunc) error {
	if r.Pipeline == nil {
		return helper.NewError("set extractor", fmt.Errorf(errNoPipeline))
	}
	r.Pipeline.SetExtractor(extractor)
	return nil
}

// IngestDocument ingests a single file. Already indexed documents are
// skipped unless forceUpdate is set. Errors are reported in the result, not
// as a Go error, so bulk callers can inspect per document outcomes.
func (r *Ragger) IngestDocument(ctx context.Context, path string, forceUpdate bool) *model.IngestResult {
	if r.Pipeline == nil {
		return &model.IngestResult{
			Filename: filepath.Base(path),
			Status:   model.IngestStatusError,
			Error:    errNoPipeline,
		}
	}

	result := r.Pipeline.Ingest(ctx, path, forceUpdate)
	if result.Status == model.IngestStatusSuccess {
		r.invalidate(ctx)
	}
	return result
}

// IngestDocuments ingests every path concurrently, one goroutine per
// document. Results are returned in input order.
func (r *Ragger) IngestDocuments(ctx context.Context, paths []string, forceUpdate bool) []*model.IngestResult {
	if r.Pipeline == nil {
		results := make([]*model.IngestResult, len(paths))
		for i, path := range paths {
			results[i] = &model.IngestResult{
				Filename: filepath.Base(path),
				Status:   model.IngestStatusError,
				Error:    errNoPipeline,
			}
		}
		return results
	}

	results := r.Pipeline.IngestAll(ctx, paths, forceUpdate)
	for _, result := range results {
		if result != nil && result.Status == model.IngestStatusSuccess {
			r.invalidate(ctx)
			break
		}
	}
	return results
}

// IngestText ingests in memory content without touching the filesystem.
// The document needs at least a filename, form feed characters in the
// content separate pages.
func (r *Ragger) IngestText(ctx context.Context, doc *model.Document, forceUpdate bool) *model.IngestResult {
	if r.Pipeline == nil {
		return &model.IngestResult{
			Filename: doc.Filename,
			Status:   model.IngestStatusError,
			Error:    errNoPipeline,
		}
	}

	result := r.Pipeline.IngestText(ctx, doc, forceUpdate)
	if result.Status == model.IngestStatusSuccess {
		r.invalidate(ctx)
	}
	return result
}

// Retrieve returns the k most relevant chunks for the query, honoring the
// filter. A k below one uses the configured top k.
func (r *Ragger) Retrieve(ctx context.Context, query string, k int, filter model.ChunkFilter) ([]*model.RetrievalResult, error) {
	if r.Engine == nil {
		return nil, helper.NewError("retrieve", fmt.Errorf(errNoPipeline))
	}
	return r.Engine.Retrieve(ctx, query, k, filter)
}

// RetrieveWithTrace retrieves like Retrieve and additionally reports per
// stage timings and a compact summary of every returned chunk.
func (r *Ragger) RetrieveWithTrace(ctx context.Context, query string, k int, filter model.ChunkFilter, includeContext bool) (*model.RetrievalTrace, error) {
	if r.Engine == nil {
		return nil, helper.NewError("retrieve with trace", fmt.Errorf(errNoPipeline))
	}
	return r.Engine.RetrieveWithTrace(ctx, query, k, filter, includeContext)
}

// FormatContext renders retrieval results as a single context string,
// grouped by chunk type.
func (r *Ragger) FormatContext(results []*model.RetrievalResult) string {
	if r.Engine == nil {
		return retrieval.NoContextSentinel
	}
	return r.Engine.FormatContext(results)
}

// ShouldUseRAG reports whether the query is close enough to the indexed
// corpus for retrieval to add value. It fails closed on an empty index or
// an unavailable embedder.
func (r *Ragger) ShouldUseRAG(ctx context.Context, query string) bool {
	if r.Engine == nil {
		return false
	}
	return r.Engine.ShouldUseRAG(ctx, query)
}

// CountChunks counts the indexed chunks matching the filter. The zero
// filter counts everything.
func (r *Ragger) CountChunks(ctx context.Context, filter model.ChunkFilter) (int64, error) {
	return r.Chunks.CountChunks(ctx, filter)
}

// DeleteDocument removes all chunks matching the filter and, when the
// filter carries a document hash, the matching registry rows. It returns
// the number of chunks removed.
func (r *Ragger) DeleteDocument(ctx context.Context, filter model.ChunkFilter) (int64, error) {
	deleted, err := r.Chunks.DeleteChunks(ctx, filter)
	if err != nil {
		return 0, helper.NewError("delete chunks", err)
	}

	if filter.PDFHash != "" || filter.ContentHashGlobal != "" {
		documents, err := r.Documents.SelectDocumentsByHash(filter.PDFHash, filter.ContentHashGlobal)
		if err != nil {
			return deleted, helper.NewError("select documents for deletion", err)
		}
		for _, doc := range documents {
			if err := r.Documents.DeleteDocument(doc.RID); err != nil {
				return deleted, helper.NewError("delete document", err)
			}
		}
	}

	if deleted > 0 {
		r.invalidate(ctx)
	}

	return deleted, nil
}

// Clear removes every chunk and every document from the index.
func (r *Ragger) Clear(ctx context.Context) (int64, error) {
	deleted, err := r.Chunks.DeleteChunks(ctx, model.ChunkFilter{})
	if err != nil {
		return 0, helper.NewError("delete chunks", err)
	}

	for {
		documents, err := r.Documents.SelectAllDocuments(nil, 256)
		if err != nil {
			return deleted, helper.NewError("select documents for deletion", err)
		}
		if len(documents) == 0 {
			break
		}
		for _, doc := range documents {
			if err := r.Documents.DeleteDocument(doc.RID); err != nil {
				return deleted, helper.NewError("delete document", err)
			}
		}
	}

	r.invalidate(ctx)
	r.log.Info("Cleared index", slog.Int64("chunks_deleted", deleted))

	return deleted, nil
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat
func (r *Ragger) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return r.Chunks.ChangeIndexType(ctx, indexType, params)
}

// invalidate drops the cached centroid and all cached retrieval results
// after the index composition changed.
func (r *Ragger) invalidate(ctx context.Context) {
	if r.Engine != nil {
		r.Engine.InvalidateCentroid()
	}
	r.Cache.DeletePrefix(ctx, retrieval.RetrievalCachePrefix)
}
