package ragger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/siherrmann/ragger/core/hash"
	"github.com/siherrmann/ragger/helper"
	"github.com/siherrmann/ragger/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEmbeddingDim = 8

// vocabulary spans the test embedding space, one keyword per dimension.
var vocabulary = []string{"database", "vector", "index", "query", "recipe", "cooking", "oven", "garden"}

// keywordProvider embeds text as keyword occurrence counts. Texts about the
// same topic get high cosine similarity, texts about different topics stay
// orthogonal, which makes retrieval outcomes predictable.
type keywordProvider struct{}

func (p *keywordProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector := make([]float32, testEmbeddingDim)
		lower := strings.ToLower(text)
		for j, keyword := range vocabulary {
			vector[j] = float32(strings.Count(lower, keyword))
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func (p *keywordProvider) ModelID() string {
	return "keyword-test-model"
}

func (p *keywordProvider) Close() error {
	return nil
}

const databasesContent = `Vector databases store embeddings as high dimensional vectors. A vector database answers a query by comparing the query vector against every indexed vector in the collection, so the database needs an index that narrows the search down early.

The index accelerates vector search considerably. A well built index structure lets the database answer a nearest neighbor query without scanning every stored vector one by one, and the database keeps the index updated as vectors arrive.

Query planning inside a vector database balances recall against latency. Every query first consults the index, then the database refines the remaining candidate vectors exactly, because the index alone cannot rank a query result precisely.

Index maintenance matters as much as query speed. When a vector database grows, the index degrades unless the database rebuilds it, and a stale index makes every vector query slower and less accurate over time.

Sharding a vector database spreads the index across machines. Each shard holds a slice of the vectors and answers its part of the query, then the database merges each partial index result into one ranked vector list.

Compression trades vector precision for index size. A quantized vector takes less space in the index, the database answers a query faster, and the lost precision rarely changes which vectors the query returns.`

const cookingContent = `A good recipe starts with fresh ingredients and a hot oven. Cooking times in the recipe assume the oven was preheated well before the dish goes in.

Slow cooking develops deeper flavors than any shortcut. The recipe rewards patience, keep the oven temperature low and let the cooking finish undisturbed.`

// testRetrievalConfig keeps retrieval outcomes deterministic for the
// keyword provider: orthogonal topics fall below the similarity threshold
// and the gating threshold is strict enough to reject off corpus queries.
func testRetrievalConfig() model.RetrievalConfig {
	return model.RetrievalConfig{
		TopK:                4,
		SimilarityThreshold: 0.25,
		UseSemanticRerank:   true,
		GatingThreshold:     0.4,
		CacheTTL:            time.Hour,
	}
}

func initRagger(t *testing.T) *Ragger {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")

	r, err := NewRagger(dbConfig, testEmbeddingDim)
	require.NoError(t, err, "failed to create ragger")
	require.NotNil(t, r, "expected ragger to be non-nil")

	t.Cleanup(func() {
		r.Close()
	})

	return r
}

func initRaggerWithPipeline(t *testing.T) *Ragger {
	r := initRagger(t)
	err := r.UsePipeline(&keywordProvider{}, model.EmbeddingConfig{}, model.ChunkerConfig{}, testRetrievalConfig())
	require.NoError(t, err, "failed to wire pipeline")
	return r
}

func TestNewRagger(t *testing.T) {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err)

	t.Run("Valid call NewRagger", func(t *testing.T) {
		r, err := NewRagger(dbConfig, testEmbeddingDim)
		require.NoError(t, err, "Expected NewRagger to not return an error")
		require.NotNil(t, r, "Expected NewRagger to return a non-nil instance")
		assert.NotNil(t, r.DB, "Expected ragger to have a database instance")
		assert.NotNil(t, r.Chunks, "Expected ragger to have chunks handler")
		assert.NotNil(t, r.Documents, "Expected ragger to have documents handler")
		assert.NotNil(t, r.Cache, "Expected ragger to have a cache")
		assert.Nil(t, r.Pipeline, "Expected pipeline to be nil initially")
		assert.Nil(t, r.Engine, "Expected engine to be nil initially")

		// Cleanup
		err = r.Close()
		assert.NoError(t, err, "Expected Close to not return an error")
	})

	t.Run("Ragger with nil fields handles Close gracefully", func(t *testing.T) {
		r := &Ragger{}

		err := r.Close()
		assert.NoError(t, err, "Expected Close to handle nil fields gracefully")
	})
}

func TestUsePipeline(t *testing.T) {
	t.Run("Wires embedding, ingestion and retrieval", func(t *testing.T) {
		r := initRagger(t)

		err := r.UsePipeline(&keywordProvider{}, model.EmbeddingConfig{}, model.ChunkerConfig{}, model.DefaultRetrievalConfig())

		require.NoError(t, err, "Expected UsePipeline to not return an error")
		assert.NotNil(t, r.Embedder, "Expected embedder to be set")
		assert.NotNil(t, r.Pipeline, "Expected pipeline to be set")
		assert.NotNil(t, r.Engine, "Expected engine to be set")
		assert.Equal(t, testEmbeddingDim, r.Embedder.Dimension(), "Expected unset embedding dimension to adopt the index dimension")
	})

	t.Run("Rejects mismatched embedding dimension", func(t *testing.T) {
		r := initRagger(t)

		config := model.DefaultEmbeddingConfig(testEmbeddingDim * 2)
		err := r.UsePipeline(&keywordProvider{}, config, model.ChunkerConfig{}, model.DefaultRetrievalConfig())

		assert.Error(t, err, "Expected error for mismatched embedding dimension")
		assert.Contains(t, err.Error(), "does not match", "Expected specific error message")
		assert.Nil(t, r.Pipeline, "Expected pipeline to stay nil on error")
	})
}

func TestUseDefaultPipeline(t *testing.T) {
	t.Run("Rejects mismatched index dimension", func(t *testing.T) {
		r := initRagger(t)

		err := r.UseDefaultPipeline()

		assert.Error(t, err, "Expected error when index dimension does not fit the default model")
		assert.Contains(t, err.Error(), "384", "Expected error to name the model dimension")
		assert.Nil(t, r.Pipeline, "Expected pipeline to stay nil on error")
	})
}

func TestWithoutPipeline(t *testing.T) {
	r := initRagger(t)
	ctx := context.Background()

	t.Run("IngestDocument reports error status", func(t *testing.T) {
		result := r.IngestDocument(ctx, "some/file.txt", false)

		require.NotNil(t, result, "Expected a result even without a pipeline")
		assert.Equal(t, model.IngestStatusError, result.Status, "Expected error status")
		assert.Contains(t, result.Error, "pipeline not set", "Expected specific error message")
		assert.Equal(t, "file.txt", result.Filename, "Expected filename to be set")
	})

	t.Run("IngestDocuments reports error status per path", func(t *testing.T) {
		results := r.IngestDocuments(ctx, []string{"a.txt", "b.txt"}, false)

		require.Len(t, results, 2, "Expected one result per path")
		for _, result := range results {
			assert.Equal(t, model.IngestStatusError, result.Status, "Expected error status")
			assert.Contains(t, result.Error, "pipeline not set", "Expected specific error message")
		}
	})

	t.Run("IngestText reports error status", func(t *testing.T) {
		doc := &model.Document{Filename: "memo.txt", Content: "Some content"}

		result := r.IngestText(ctx, doc, false)

		assert.Equal(t, model.IngestStatusError, result.Status, "Expected error status")
		assert.Contains(t, result.Error, "pipeline not set", "Expected specific error message")
	})

	t.Run("Retrieve returns an error", func(t *testing.T) {
		results, err := r.Retrieve(ctx, "anything at all", 3, model.ChunkFilter{})

		assert.Error(t, err, "Expected error when engine is not wired")
		assert.Contains(t, err.Error(), "pipeline not set", "Expected specific error message")
		assert.Nil(t, results, "Expected no results")
	})

	t.Run("RetrieveWithTrace returns an error", func(t *testing.T) {
		trace, err := r.RetrieveWithTrace(ctx, "anything at all", 3, model.ChunkFilter{}, false)

		assert.Error(t, err, "Expected error when engine is not wired")
		assert.Nil(t, trace, "Expected no trace")
	})

	t.Run("FormatContext falls back to the sentinel", func(t *testing.T) {
		context := r.FormatContext(nil)

		assert.Contains(t, context, "No relevant information", "Expected the no context sentinel")
	})

	t.Run("ShouldUseRAG fails closed", func(t *testing.T) {
		assert.False(t, r.ShouldUseRAG(ctx, "vector database index"), "Expected gating to fail closed without an engine")
	})

	t.Run("SetExtractor returns an error", func(t *testing.T) {
		err := r.SetExtractor(nil)

		assert.Error(t, err, "Expected error when pipeline is not wired")
	})

	t.Run("CountChunks works without a pipeline", func(t *testing.T) {
		count, err := r.CountChunks(ctx, model.ChunkFilter{Source: "never_ingested.txt"})

		assert.NoError(t, err, "Expected CountChunks to not return an error")
		assert.Equal(t, int64(0), count, "Expected no chunks for an unknown source")
	})
}

func TestIngestDocumentsFromFiles(t *testing.T) {
	r := initRaggerWithPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()

	notesPath := filepath.Join(dir, "file_notes.txt")
	err := os.WriteFile(notesPath, []byte(databasesContent), 0o644)
	require.NoError(t, err, "failed to write test file")

	t.Run("Ingests a plain text file", func(t *testing.T) {
		result := r.IngestDocument(ctx, notesPath, false)

		require.NotNil(t, result, "Expected an ingest result")
		assert.Equal(t, model.IngestStatusSuccess, result.Status, "Expected ingestion to succeed, got error: %v", result.Error)
		assert.Equal(t, "file_notes.txt", result.Filename, "Expected filename to be the base name")
		assert.Greater(t, result.ChunksAdded, 0, "Expected at least one chunk to be added")

		count, err := r.CountChunks(ctx, model.ChunkFilter{Source: "file_notes.txt"})
		require.NoError(t, err, "Expected CountChunks to not return an error")
		assert.Equal(t, int64(result.ChunksAdded), count, "Expected the chunk count to match the ingest result")
	})

	t.Run("Re-ingest of an unchanged file is skipped", func(t *testing.T) {
		result := r.IngestDocument(ctx, notesPath, false)

		assert.Equal(t, model.IngestStatusSkipped, result.Status, "Expected unchanged document to be skipped")
		assert.Equal(t, 0, result.ChunksAdded, "Expected no chunks to be added on skip")
	})

	t.Run("Missing file reports error status", func(t *testing.T) {
		result := r.IngestDocument(ctx, filepath.Join(dir, "missing.txt"), false)

		assert.Equal(t, model.IngestStatusError, result.Status, "Expected error status for missing file")
		assert.Contains(t, result.Error, "not readable", "Expected specific error message")
	})

	t.Run("Bulk ingestion keeps input order", func(t *testing.T) {
		pathA := filepath.Join(dir, "bulk_a.txt")
		pathB := filepath.Join(dir, "bulk_b.txt")
		err := os.WriteFile(pathA, []byte(cookingContent), 0o644)
		require.NoError(t, err, "failed to write test file")
		err = os.WriteFile(pathB, []byte(strings.ReplaceAll(databasesContent, "Vector databases", "Modern vector databases")), 0o644)
		require.NoError(t, err, "failed to write test file")

		results := r.IngestDocuments(ctx, []string{pathA, filepath.Join(dir, "missing.txt"), pathB}, false)

		require.Len(t, results, 3, "Expected one result per path")
		assert.Equal(t, "bulk_a.txt", results[0].Filename, "Expected results in input order")
		assert.Equal(t, model.IngestStatusSuccess, results[0].Status, "Expected first document to succeed, got error: %v", results[0].Error)
		assert.Equal(t, model.IngestStatusError, results[1].Status, "Expected missing file to report an error")
		assert.Equal(t, "bulk_b.txt", results[2].Filename, "Expected results in input order")
		assert.Equal(t, model.IngestStatusSuccess, results[2].Status, "Expected last document to succeed, got error: %v", results[2].Error)
	})

	// Cleanup
	_, err = r.Clear(ctx)
	require.NoError(t, err, "Expected Clear to not return an error")
}

func TestIngestAndRetrieve(t *testing.T) {
	r := initRaggerWithPipeline(t)
	ctx := context.Background()

	databasesDoc := &model.Document{Filename: "databases.txt", Content: databasesContent}
	cookingDoc := &model.Document{Filename: "cooking.txt", Content: cookingContent}
	databasesHash := hash.HashNormalizedText(databasesContent)

	t.Run("Ingests text documents", func(t *testing.T) {
		result := r.IngestText(ctx, databasesDoc, false)
		require.Equal(t, model.IngestStatusSuccess, result.Status, "Expected ingestion to succeed, got error: %v", result.Error)
		assert.Greater(t, result.ChunksAdded, 0, "Expected at least one chunk to be added")
		assert.Equal(t, result.ChunksUnique, result.ChunksAdded, "Expected every unique chunk to be uploaded")

		result = r.IngestText(ctx, cookingDoc, false)
		require.Equal(t, model.IngestStatusSuccess, result.Status, "Expected ingestion to succeed, got error: %v", result.Error)
		assert.Greater(t, result.ChunksAdded, 0, "Expected at least one chunk to be added")

		count, err := r.CountChunks(ctx, model.ChunkFilter{Source: "databases.txt"})
		require.NoError(t, err, "Expected CountChunks to not return an error")
		assert.Greater(t, count, int64(0), "Expected indexed chunks for the document")
	})

	t.Run("Re-ingest of unchanged content is skipped", func(t *testing.T) {
		countBefore, err := r.CountChunks(ctx, model.ChunkFilter{Source: "databases.txt"})
		require.NoError(t, err)

		result := r.IngestText(ctx, databasesDoc, false)

		assert.Equal(t, model.IngestStatusSkipped, result.Status, "Expected unchanged document to be skipped")
		assert.Equal(t, 0, result.ChunksAdded, "Expected no chunks to be added on skip")

		countAfter, err := r.CountChunks(ctx, model.ChunkFilter{Source: "databases.txt"})
		require.NoError(t, err)
		assert.Equal(t, countBefore, countAfter, "Expected the chunk count to stay unchanged")
	})

	t.Run("Force update replaces previous chunks", func(t *testing.T) {
		countBefore, err := r.CountChunks(ctx, model.ChunkFilter{Source: "databases.txt"})
		require.NoError(t, err)

		result := r.IngestText(ctx, databasesDoc, true)

		require.Equal(t, model.IngestStatusSuccess, result.Status, "Expected force update to succeed, got error: %v", result.Error)

		countAfter, err := r.CountChunks(ctx, model.ChunkFilter{Source: "databases.txt"})
		require.NoError(t, err)
		assert.Equal(t, countBefore, countAfter, "Expected identical content to produce the same chunks")

		registered, err := r.Documents.SelectDocumentsByHash("", databasesHash)
		require.NoError(t, err, "Expected SelectDocumentsByHash to not return an error")
		assert.Len(t, registered, 1, "Expected exactly one registry row after force update")
	})

	t.Run("Retrieve ranks the on topic document", func(t *testing.T) {
		results, err := r.Retrieve(ctx, "How does a vector database use an index to answer a query?", 2, model.ChunkFilter{})

		require.NoError(t, err, "Expected Retrieve to not return an error")
		require.Len(t, results, 2, "Expected k results from a larger candidate set")
		for i, result := range results {
			assert.Equal(t, "databases.txt", result.Chunk.Source, "Expected only on topic chunks above the similarity threshold")
			assert.Equal(t, model.RetrievalMethodRerank, result.RetrievalMethod, "Expected reranked results")
			assert.Greater(t, result.SimilarityScore, 0.25, "Expected similarity above the threshold")
			if i > 0 {
				assert.GreaterOrEqual(t, results[i-1].Score, result.Score, "Expected scores in descending order")
			}
		}
	})

	t.Run("Repeated query is served from cache", func(t *testing.T) {
		first, err := r.Retrieve(ctx, "How does a vector database use an index to answer a query?", 2, model.ChunkFilter{})
		require.NoError(t, err)
		require.NotEmpty(t, first, "Expected retrieval results")

		for _, result := range first {
			assert.Equal(t, model.RetrievalMethodCache, result.RetrievalMethod, "Expected the repeated query to hit the cache")
		}
	})

	t.Run("Filter narrows retrieval to one source", func(t *testing.T) {
		offTopic, err := r.Retrieve(ctx, "How does a vector database use an index to answer a query?", 4, model.ChunkFilter{Source: "cooking.txt"})
		require.NoError(t, err, "Expected Retrieve to not return an error")
		assert.Empty(t, offTopic, "Expected no cooking chunks above the threshold for a database query")

		onTopic, err := r.Retrieve(ctx, "Which oven temperature does the recipe recommend for slow cooking?", 4, model.ChunkFilter{Source: "cooking.txt"})
		require.NoError(t, err, "Expected Retrieve to not return an error")
		require.NotEmpty(t, onTopic, "Expected cooking chunks for a cooking query")
		for _, result := range onTopic {
			assert.Equal(t, "cooking.txt", result.Chunk.Source, "Expected the filter to hold")
		}
	})

	t.Run("RetrieveWithTrace reports stages and context", func(t *testing.T) {
		trace, err := r.RetrieveWithTrace(ctx, "Which index does a vector database build for fast search?", 3, model.ChunkFilter{}, true)

		require.NoError(t, err, "Expected RetrieveWithTrace to not return an error")
		require.NotNil(t, trace, "Expected a trace")
		assert.False(t, trace.CacheHit, "Expected a fresh query to miss the cache")

		stages := make([]string, 0, len(trace.Stages))
		for _, entry := range trace.Stages {
			stages = append(stages, entry.Stage)
		}
		assert.Equal(t, []string{"embed", "search", "rank"}, stages, "Expected all retrieval stages in order")

		assert.Equal(t, len(trace.Retrieved), trace.Returned, "Expected one summary per returned chunk")
		for _, retrieved := range trace.Retrieved {
			assert.Equal(t, "databases.txt", retrieved.Source, "Expected on topic chunks")
			assert.NotEmpty(t, retrieved.Preview, "Expected a content preview")
		}
		assert.NotEmpty(t, trace.Context, "Expected the formatted context to be included")
		assert.Greater(t, trace.Total, time.Duration(0), "Expected a total duration")

		cached, err := r.RetrieveWithTrace(ctx, "Which index does a vector database build for fast search?", 3, model.ChunkFilter{}, false)
		require.NoError(t, err)
		assert.True(t, cached.CacheHit, "Expected the repeated query to hit the cache")
	})

	t.Run("FormatContext groups retrieved chunks", func(t *testing.T) {
		results, err := r.Retrieve(ctx, "How does a vector database use an index to answer a query?", 2, model.ChunkFilter{})
		require.NoError(t, err)
		require.NotEmpty(t, results, "Expected retrieval results")

		formatted := r.FormatContext(results)

		assert.NotContains(t, formatted, "No relevant information", "Expected real context for non-empty results")
		assert.Contains(t, formatted, "vector", "Expected chunk content in the context")

		assert.Contains(t, r.FormatContext(nil), "No relevant information", "Expected the sentinel for empty results")
	})

	t.Run("ShouldUseRAG gates on corpus similarity", func(t *testing.T) {
		assert.True(t, r.ShouldUseRAG(ctx, "vector database index query planning"), "Expected an on corpus query to pass the gate")
		assert.False(t, r.ShouldUseRAG(ctx, "philosophy of medieval art history"), "Expected an off corpus query to fail the gate")
	})

	t.Run("DeleteDocument removes chunks, registry row and cached results", func(t *testing.T) {
		deleted, err := r.DeleteDocument(ctx, model.ChunkFilter{ContentHashGlobal: databasesHash})

		require.NoError(t, err, "Expected DeleteDocument to not return an error")
		assert.Greater(t, deleted, int64(0), "Expected deleted chunks to be counted")

		count, err := r.CountChunks(ctx, model.ChunkFilter{Source: "databases.txt"})
		require.NoError(t, err)
		assert.Equal(t, int64(0), count, "Expected all document chunks to be gone")

		registered, err := r.Documents.SelectDocumentsByHash("", databasesHash)
		require.NoError(t, err)
		assert.Empty(t, registered, "Expected the registry row to be gone")

		// The previously cached query must not serve stale chunks.
		results, err := r.Retrieve(ctx, "How does a vector database use an index to answer a query?", 2, model.ChunkFilter{})
		require.NoError(t, err)
		assert.Empty(t, results, "Expected no results after the document was deleted")
	})

	t.Run("Clear empties the index", func(t *testing.T) {
		deleted, err := r.Clear(ctx)

		require.NoError(t, err, "Expected Clear to not return an error")
		assert.Greater(t, deleted, int64(0), "Expected remaining chunks to be deleted")

		count, err := r.CountChunks(ctx, model.ChunkFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(0), count, "Expected an empty chunk index")

		documents, err := r.Documents.SelectAllDocuments(nil, 10)
		require.NoError(t, err)
		assert.Empty(t, documents, "Expected an empty document registry")
	})
}

func TestUseMockPipeline(t *testing.T) {
	r := initRagger(t)
	ctx := context.Background()

	err := r.UseMockPipeline(model.ChunkerConfig{}, testRetrievalConfig())
	require.NoError(t, err, "Expected UseMockPipeline to not return an error")
	assert.NotNil(t, r.Pipeline, "Expected pipeline to be set")
	assert.NotNil(t, r.Engine, "Expected engine to be set")

	t.Run("Ingestion works without a provider", func(t *testing.T) {
		doc := &model.Document{
			Filename: "mock_notes.txt",
			Content:  fmt.Sprintf("Mock pipeline notes written at %v. This paragraph only exists to verify that ingestion works without a real embedding provider.", time.Now().UnixNano()),
		}

		result := r.IngestText(ctx, doc, false)

		require.Equal(t, model.IngestStatusSuccess, result.Status, "Expected ingestion to succeed, got error: %v", result.Error)
		assert.Greater(t, result.ChunksAdded, 0, "Expected at least one chunk to be added")
	})

	t.Run("Retrieval degrades to empty results", func(t *testing.T) {
		results, err := r.Retrieve(ctx, "does the mock pipeline return anything", 3, model.ChunkFilter{})

		assert.NoError(t, err, "Expected degraded retrieval to not return an error")
		assert.Empty(t, results, "Expected zero vector queries to yield no results")
	})

	t.Run("Gating fails closed", func(t *testing.T) {
		assert.False(t, r.ShouldUseRAG(ctx, "does the mock pipeline return anything"), "Expected gating to fail closed on zero vectors")
	})

	// Cleanup
	_, err = r.Clear(ctx)
	require.NoError(t, err, "Expected Clear to not return an error")
}
