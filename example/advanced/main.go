package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/siherrmann/ragger"
	"github.com/siherrmann/ragger/cache"
	"github.com/siherrmann/ragger/core/embedding"
	"github.com/siherrmann/ragger/core/hash"
	"github.com/siherrmann/ragger/helper"
	"github.com/siherrmann/ragger/model"
)

const databasesContent = `This is a comprehensive document about vector databases and their applications.

Vector databases are designed to store embeddings and answer nearest neighbor queries.
They index high dimensional vectors so that semantically similar content can be found
without scanning the whole collection.

PostgreSQL with the pgvector extension turns a relational database into a vector store.
HNSW and IVFFlat indexes trade build time against query latency, and cosine similarity
is the distance measure of choice for normalized text embeddings.

Combining exact metadata filters with approximate vector search gives retrieval systems
both precision and recall on real document collections.`

const retrievalContent = `Machine learning is transforming how we process and retrieve information.

Vector embeddings capture the semantic meaning of text, enabling similarity based search.
Sentence transformers map whole passages into a shared vector space where distance
reflects relatedness.

Modern retrieval systems rerank their candidates: cosine similarity is combined with
chunk quality, length and structure signals. Maximum marginal relevance keeps the
result list diverse instead of returning five copies of the same paragraph.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	r, err := ragger.NewRagger(dbConfig, 384)
	if err != nil {
		log.Fatalf("Failed to create ragger: %v", err)
	}
	defer r.Close()

	// Optionally share the cache between processes via redis. Without
	// REDIS_ADDR the default in process memory cache is used.
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		logger := slog.New(helper.NewPrettyHandler(os.Stdout, helper.PrettyHandlerOptions{}))
		r.SetCache(cache.New(cache.NewRedisStore(addr, "", 0), logger))
		fmt.Printf("Using redis cache at %s\n", addr)
	}

	// Wire the pipeline by hand instead of UseDefaultPipeline: the same
	// local model, but custom chunking and MMR based retrieval.
	provider, err := embedding.NewHugotProvider(embedding.DefaultHugotModel, embedding.DefaultHugotOnnxPath)
	if err != nil {
		log.Fatalf("Failed to create embedding provider: %v", err)
	}

	embeddingConfig := model.DefaultEmbeddingConfig(embedding.DefaultHugotDimension)
	embeddingConfig.BatchSize = 16

	chunkerConfig := model.ChunkerConfig{
		ChunkSize:      400,
		Overlap:        80,
		MinChunkLength: 40,
		QualityFloor:   0.3,
	}

	retrievalConfig := model.DefaultRetrievalConfig()
	retrievalConfig.UseSemanticRerank = false // MMR instead of weighted reranking
	retrievalConfig.MMRLambda = 0.6
	retrievalConfig.SimilarityThreshold = 0.2
	retrievalConfig.GatingThreshold = 0.35

	if err := r.UsePipeline(provider, embeddingConfig, chunkerConfig, retrievalConfig); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	ctx := context.Background()

	// Ingest two documents about different topics
	fmt.Println("=== Ingesting Documents ===")
	databasesDoc := &model.Document{
		Filename: "vector_databases.txt",
		Content:  databasesContent,
		Metadata: model.Metadata{"topic": "vector databases"},
	}
	retrievalDoc := &model.Document{
		Filename: "ml_retrieval.txt",
		Content:  retrievalContent,
		Metadata: model.Metadata{"topic": "machine learning"},
	}

	for _, doc := range []*model.Document{databasesDoc, retrievalDoc} {
		result := r.IngestText(ctx, doc, false)
		if result.Status == model.IngestStatusError {
			log.Fatalf("Failed to ingest %s: %v", doc.Filename, result.Error)
		}
		fmt.Printf("%s: %s (%d chunks)\n", result.Filename, result.Status, result.ChunksAdded)
	}

	// Re-ingesting unchanged content is a no-op, force update replaces it
	fmt.Println("\n=== Deduplication and Force Update ===")
	result := r.IngestText(ctx, databasesDoc, false)
	fmt.Printf("Re-ingest without force: %s\n", result.Status)
	result = r.IngestText(ctx, databasesDoc, true)
	fmt.Printf("Re-ingest with force:    %s (%d chunks)\n", result.Status, result.ChunksAdded)

	// 1. Retrieval gating
	fmt.Println("\n=== 1. Retrieval Gating ===")
	for _, query := range []string{
		"How do vector databases index embeddings?",
		"What is the best pizza dough recipe?",
	} {
		fmt.Printf("ShouldUseRAG(%q) = %v\n", query, r.ShouldUseRAG(ctx, query))
	}

	// 2. MMR retrieval
	queryText := "How do retrieval systems use vector embeddings?"
	fmt.Println("\n=== 2. MMR Retrieval ===")
	results, err := r.Retrieve(ctx, queryText, 4, model.ChunkFilter{})
	if err != nil {
		log.Fatalf("Retrieve failed: %v", err)
	}
	printResults(queryText, results)

	// 3. Filtered retrieval, scoped to one source
	fmt.Println("\n=== 3. Filtered Retrieval ===")
	filtered, err := r.Retrieve(ctx, queryText, 4, model.ChunkFilter{Source: "vector_databases.txt"})
	if err != nil {
		log.Fatalf("Filtered retrieve failed: %v", err)
	}
	printResults(queryText+" (source=vector_databases.txt)", filtered)

	// 4. Traced retrieval with per stage timings
	fmt.Println("\n=== 4. Traced Retrieval ===")
	trace, err := r.RetrieveWithTrace(ctx, "Why does maximum marginal relevance help?", 3, model.ChunkFilter{}, true)
	if err != nil {
		log.Fatalf("Traced retrieve failed: %v", err)
	}
	fmt.Printf("Cache hit: %v, candidates: %d, returned: %d, total: %v\n",
		trace.CacheHit, trace.Candidates, trace.Returned, trace.Total.Round(time.Microsecond))
	for _, stage := range trace.Stages {
		fmt.Printf("  stage %-8s %-10v %s\n", stage.Stage, stage.Duration.Round(time.Microsecond), stage.Detail)
	}
	fmt.Println("Context:")
	fmt.Println(trace.Context)

	// 5. Index type switching
	fmt.Println("\n=== 5. Changing Index Type ===")
	err = r.ChangeIndexType(ctx, "ivfflat", map[string]interface{}{"lists": 100})
	if err != nil {
		log.Printf("Warning: index change failed (this is okay for small datasets): %v", err)
	} else {
		fmt.Println("Switched to IVFFlat index")
	}
	err = r.ChangeIndexType(ctx, "hnsw", map[string]interface{}{"m": 16, "ef_construction": 64})
	if err != nil {
		log.Printf("Warning: index change failed: %v", err)
	} else {
		fmt.Println("Switched back to HNSW index")
	}

	// 6. Deleting a document by content hash
	fmt.Println("\n=== 6. Deleting a Document ===")
	deleted, err := r.DeleteDocument(ctx, model.ChunkFilter{
		ContentHashGlobal: hash.HashNormalizedText(databasesContent),
	})
	if err != nil {
		log.Fatalf("Delete failed: %v", err)
	}
	remaining, err := r.CountChunks(ctx, model.ChunkFilter{})
	if err != nil {
		log.Fatalf("Count failed: %v", err)
	}
	fmt.Printf("Deleted %d chunks, %d remaining in the index\n", deleted, remaining)

	fmt.Println("\n=== Advanced Example Completed Successfully! ===")
	fmt.Println("\nKey features demonstrated:")
	fmt.Println("- Custom pipeline wiring (chunker, embedding batch size, MMR)")
	fmt.Println("- Optional shared redis cache")
	fmt.Println("- Content hash deduplication and force update")
	fmt.Println("- Retrieval gating against the corpus centroid")
	fmt.Println("- Filtered and traced retrieval")
	fmt.Println("- Index type switching (HNSW / IVFFlat)")
	fmt.Println("- Document deletion by content hash")
}

func printResults(query string, results []*model.RetrievalResult) {
	fmt.Printf("Query: %s\nFound %d results:\n", query, len(results))
	for i, result := range results {
		if i >= 3 {
			break // Show only first 3
		}
		content := result.Chunk.Content
		if len(content) > 80 {
			content = content[:80] + "..."
		}
		fmt.Printf("\n  Result %d:\n", i+1)
		fmt.Printf("    Score: %.4f (similarity: %.4f)\n", result.Score, result.SimilarityScore)
		fmt.Printf("    Method: %s\n", result.RetrievalMethod)
		fmt.Printf("    Source: %s\n", result.Chunk.Source)
		fmt.Printf("    Content: %s\n", content)
	}
}
