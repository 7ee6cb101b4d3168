package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultChunkerConfig(t *testing.T) {
	t.Run("Returns correct default values", func(t *testing.T) {
		config := DefaultChunkerConfig()

		assert.Equal(t, 500, config.ChunkSize, "Default ChunkSize should be 500")
		assert.Equal(t, 50, config.Overlap, "Default Overlap should be 50")
		assert.Equal(t, 50, config.MinChunkLength, "Default MinChunkLength should be 50")
		assert.Equal(t, 0.3, config.QualityFloor, "Default QualityFloor should be 0.3")
	})

	t.Run("Can be modified after creation", func(t *testing.T) {
		config := DefaultChunkerConfig()

		config.ChunkSize = 1000
		config.Overlap = 100

		assert.Equal(t, 1000, config.ChunkSize)
		assert.Equal(t, 100, config.Overlap)
	})
}

func TestDefaultEmbeddingConfig(t *testing.T) {
	t.Run("Returns correct default values", func(t *testing.T) {
		config := DefaultEmbeddingConfig(384)

		assert.Equal(t, 384, config.Dimension, "Dimension should match the given value")
		assert.Equal(t, 32, config.BatchSize, "Default BatchSize should be 32")
		assert.Equal(t, 3, config.MaxAttempts, "Default MaxAttempts should be 3")
		assert.Equal(t, 1*time.Second, config.BackoffBase, "Default BackoffBase should be 1s")
		assert.Equal(t, 8*time.Second, config.BackoffCap, "Default BackoffCap should be 8s")
		assert.Equal(t, 24*time.Hour, config.CacheTTL, "Default CacheTTL should be 24h")
		assert.Equal(t, "empty", config.PlaceholderText, "Default PlaceholderText should be set")
		assert.False(t, config.Mock, "Default Mock should be false")
	})
}

func TestDefaultRetrievalConfig(t *testing.T) {
	t.Run("Returns correct default values", func(t *testing.T) {
		config := DefaultRetrievalConfig()

		assert.Equal(t, 5, config.TopK, "Default TopK should be 5")
		assert.Equal(t, 3, config.CandidateMultiplier, "Default CandidateMultiplier should be 3")
		assert.Equal(t, 25, config.CandidateCap, "Default CandidateCap should be 25")
		assert.Equal(t, 5*time.Second, config.SearchTimeout, "Default SearchTimeout should be 5s")
		assert.Equal(t, 0.0, config.SimilarityThreshold, "Default SimilarityThreshold should be 0.0")
		assert.True(t, config.UseSemanticRerank, "Default UseSemanticRerank should be true")
		assert.Equal(t, 0.5, config.MMRLambda, "Default MMRLambda should be 0.5")
		assert.Equal(t, 5, config.MinQueryLength, "Default MinQueryLength should be 5")
		assert.Equal(t, 0.20, config.GatingThreshold, "Default GatingThreshold should be 0.20")
		assert.Equal(t, 1*time.Hour, config.CacheTTL, "Default CacheTTL should be 1h")
	})

	t.Run("Can be modified after creation", func(t *testing.T) {
		config := DefaultRetrievalConfig()

		config.TopK = 10
		config.UseSemanticRerank = false
		config.MMRLambda = 0.0

		assert.Equal(t, 10, config.TopK)
		assert.False(t, config.UseSemanticRerank)
		assert.Equal(t, 0.0, config.MMRLambda)
	})
}
