package model

import "time"

// ChunkerConfig represents configuration for splitting documents into chunks.
type ChunkerConfig struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int `json:"chunk_size"`
	// Overlap is the number of characters carried over between
	// consecutive chunks of the same block.
	Overlap int `json:"overlap"`
	// MinChunkLength discards fragments shorter than this many characters.
	MinChunkLength int `json:"min_chunk_length"`
	// QualityFloor discards chunks scoring below this threshold.
	QualityFloor float64 `json:"quality_floor"`
}

// DefaultChunkerConfig returns a sensible default configuration.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize:      500,
		Overlap:        50,
		MinChunkLength: 50,
		QualityFloor:   0.3,
	}
}

// EmbeddingConfig represents configuration for the embedding client.
type EmbeddingConfig struct {
	// Dimension is the expected embedding vector size.
	Dimension int `json:"dimension"`
	// BatchSize is the maximum number of texts per provider call.
	BatchSize int `json:"batch_size"`
	// MaxAttempts bounds the number of tries per provider call.
	MaxAttempts int `json:"max_attempts"`
	// BackoffBase is the initial retry delay.
	BackoffBase time.Duration `json:"backoff_base"`
	// BackoffCap is the maximum retry delay.
	BackoffCap time.Duration `json:"backoff_cap"`
	// CacheTTL is how long computed embeddings stay cached.
	CacheTTL time.Duration `json:"cache_ttl"`
	// PlaceholderText replaces texts shorter than three characters
	// before embedding.
	PlaceholderText string `json:"placeholder_text"`
	// Mock makes the client return deterministic pseudo-embeddings
	// without calling a provider.
	Mock bool `json:"mock"`
}

// DefaultEmbeddingConfig returns a sensible default configuration.
func DefaultEmbeddingConfig(dimension int) EmbeddingConfig {
	return EmbeddingConfig{
		Dimension:       dimension,
		BatchSize:       32,
		MaxAttempts:     3,
		BackoffBase:     1 * time.Second,
		BackoffCap:      8 * time.Second,
		CacheTTL:        24 * time.Hour,
		PlaceholderText: "empty",
	}
}

// RetrievalConfig represents configuration for a retrieval query.
type RetrievalConfig struct {
	// TopK is the number of results returned to the caller.
	TopK int `json:"top_k"`
	// CandidateMultiplier controls how many candidates are fetched for
	// reranking, TopK*CandidateMultiplier capped at CandidateCap.
	CandidateMultiplier int `json:"candidate_multiplier"`
	// CandidateCap bounds the candidate fetch size.
	CandidateCap int `json:"candidate_cap"`
	// SearchTimeout bounds the vector search, an exceeded timeout
	// yields an empty result instead of an error.
	SearchTimeout time.Duration `json:"search_timeout"`
	// SimilarityThreshold drops candidates below this cosine similarity.
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
	// UseSemanticRerank selects weighted reranking over MMR.
	UseSemanticRerank bool `json:"use_semantic_rerank"`
	// MMRLambda balances relevance against diversity for MMR.
	MMRLambda float64 `json:"mmr_lambda"`
	// MinQueryLength short-circuits queries shorter than this.
	MinQueryLength int `json:"min_query_length"`
	// GatingThreshold is the minimum query-centroid similarity for
	// ShouldUseRAG to answer true.
	GatingThreshold float64 `json:"gating_threshold"`
	// CacheTTL is how long retrieval results stay cached.
	CacheTTL time.Duration `json:"cache_ttl"`
}

// DefaultRetrievalConfig returns a sensible default configuration.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:                5,
		CandidateMultiplier: 3,
		CandidateCap:        25,
		SearchTimeout:       5 * time.Second,
		SimilarityThreshold: 0.0,
		UseSemanticRerank:   true,
		MMRLambda:           0.5,
		MinQueryLength:      5,
		GatingThreshold:     0.20,
		CacheTTL:            1 * time.Hour,
	}
}
