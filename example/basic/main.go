package main

import (
	"context"
	"fmt"
	"log"

	"github.com/siherrmann/ragger"
	"github.com/siherrmann/ragger/helper"
	"github.com/siherrmann/ragger/model"
)

const sampleContent = `This is a sample document about retrieval augmented generation.

Retrieval augmented generation grounds a language model in your own documents.
Instead of asking the model to remember everything, relevant passages are retrieved
at question time and handed to the model as context.

PostgreSQL with the pgvector extension stores the chunk embeddings and answers
nearest neighbor queries. Every document is split into overlapping chunks, each
chunk is embedded once and indexed for cosine similarity search.

The retrieval engine reranks the candidates by similarity, chunk quality and
structure before they are formatted into a single context string.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
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

	// Set up the default pipeline (structure aware chunking + local embeddings)
	if err := r.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	ctx := context.Background()

	// Ingest in memory content - no file needed
	doc := &model.Document{
		Filename: "rag_introduction.txt",
		Content:  sampleContent,
		Metadata: model.Metadata{
			"author": "Example Author",
			"topic":  "retrieval augmented generation",
		},
	}

	fmt.Println("Ingesting document...")
	result := r.IngestText(ctx, doc, false)
	if result.Status == model.IngestStatusError {
		log.Fatalf("Failed to ingest document: %v", result.Error)
	}
	fmt.Printf("Ingested %s: %d chunks added (%d unique of %d original)\n",
		result.Filename, result.ChunksAdded, result.ChunksUnique, result.ChunksOriginal)

	// Retrieve the most relevant chunks for a question
	queryText := "How does retrieval augmented generation work?"

	fmt.Printf("\nQuerying: %s\n", queryText)

	results, err := r.Retrieve(ctx, queryText, 5, model.ChunkFilter{})
	if err != nil {
		log.Fatalf("Failed to retrieve: %v", err)
	}

	// Display results
	fmt.Printf("\nFound %d results:\n", len(results))
	for i, result := range results {
		fmt.Printf("\n--- Result %d ---\n", i+1)
		fmt.Printf("Score: %.4f (similarity: %.4f)\n", result.Score, result.SimilarityScore)
		fmt.Printf("Content: %s\n", result.Chunk.Content)
		fmt.Printf("Source: %s\n", result.Chunk.Source)
		fmt.Printf("Method: %s\n", result.RetrievalMethod)
	}

	// Format the results into a single context string for a language model
	fmt.Println("\nContext for the language model:")
	fmt.Println(r.FormatContext(results))

	fmt.Println("\nBasic example completed successfully!")
}
