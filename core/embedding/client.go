package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/siherrmann/ragger/cache"
	"github.com/siherrmann/ragger/core/hash"
	"github.com/siherrmann/ragger/helper"
	"github.com/siherrmann/ragger/model"
)

// minEmbeddableLength is the smallest input length in runes that is sent to
// the provider as is. Shorter inputs embed the placeholder text instead.
const minEmbeddableLength = 3

// Client embeds texts through a Provider. It consults the cache per input,
// batches the misses, retries transient provider failures with exponential
// backoff and degrades to zero vectors instead of failing a whole batch.
type Client struct {
	provider Provider
	cache    *cache.Cache
	config   model.EmbeddingConfig
	log      *slog.Logger
}

// NewClient validates the configuration and wires a client around the given
// provider. In mock mode the provider may be nil, all embeddings are zero
// vectors then and neither provider nor cache is touched.
func NewClient(provider Provider, embeddingCache *cache.Cache, config model.EmbeddingConfig, logger *slog.Logger) (*Client, error) {
	if config.Dimension <= 0 {
		return nil, helper.NewError("embedding client configuration", fmt.Errorf("dimension must be positive, got %v", config.Dimension))
	}
	if provider == nil && !config.Mock {
		return nil, helper.NewError("embedding client configuration", fmt.Errorf("provider must not be nil outside mock mode"))
	}
	defaults := model.DefaultEmbeddingConfig(config.Dimension)
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = defaults.BackoffBase
	}
	if config.BackoffCap <= 0 {
		config.BackoffCap = defaults.BackoffCap
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.PlaceholderText == "" {
		config.PlaceholderText = defaults.PlaceholderText
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		provider: provider,
		cache:    embeddingCache,
		config:   config,
		log:      logger,
	}, nil
}

// Dimension returns the vector dimension every returned embedding has.
func (c *Client) Dimension() int {
	return c.config.Dimension
}

// ModelID returns the provider model identifier, or "mock" in mock mode.
func (c *Client) ModelID() string {
	if c.config.Mock || c.provider == nil {
		return "mock"
	}
	return c.provider.ModelID()
}

// Close releases the underlying provider.
func (c *Client) Close() error {
	if c.provider == nil {
		return nil
	}
	return c.provider.Close()
}

// EmbedOne embeds a single text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns exactly one vector of the configured dimension per
// input text, in input order. Cached vectors are reused, misses are sent to
// the provider in batches. When all retries for a batch are exhausted the
// affected inputs get zero vectors instead of failing the call, permanent
// provider errors are returned immediately.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	if len(texts) == 0 {
		return vectors, nil
	}

	if c.config.Mock {
		for i := range vectors {
			vectors[i] = make([]float32, c.config.Dimension)
		}
		return vectors, nil
	}

	prepared := make([]string, len(texts))
	for i, text := range texts {
		prepared[i] = c.prepare(text)
	}

	missing := make([]int, 0, len(texts))
	for i, text := range prepared {
		if cached, ok := c.cached(ctx, text); ok {
			vectors[i] = cached
			continue
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += c.config.BatchSize {
		end := start + c.config.BatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		batchTexts := make([]string, len(batch))
		for j, i := range batch {
			batchTexts[j] = prepared[i]
		}

		embedded, err := c.embedWithRetry(ctx, batchTexts)
		if err != nil {
			if !IsTransient(err) {
				return nil, helper.NewError("embedding batch", err)
			}
			c.log.Warn("Embedding retries exhausted, falling back to zero vectors", "texts", len(batch), "error", err)
			for _, i := range batch {
				vectors[i] = make([]float32, c.config.Dimension)
			}
			continue
		}

		for j, i := range batch {
			vector := embedded[j]
			if len(vector) != c.config.Dimension {
				c.log.Warn("Embedding has wrong dimension, falling back to zero vector", "expected", c.config.Dimension, "got", len(vector))
				vectors[i] = make([]float32, c.config.Dimension)
				continue
			}
			vectors[i] = vector
			if c.cache != nil {
				c.cache.SetJSON(ctx, c.cacheKey(prepared[i]), vector, c.config.CacheTTL)
			}
		}
	}

	return vectors, nil
}

// prepare trims the input and substitutes the placeholder text for inputs
// that are too short to embed meaningfully.
func (c *Client) prepare(text string) string {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < minEmbeddableLength {
		return c.config.PlaceholderText
	}
	return trimmed
}

func (c *Client) cacheKey(text string) string {
	return fmt.Sprintf("emb:%v:%v", c.provider.ModelID(), hash.HashNormalizedText(text))
}

func (c *Client) cached(ctx context.Context, text string) ([]float32, bool) {
	if c.cache == nil {
		return nil, false
	}
	var vector []float32
	if !c.cache.GetJSON(ctx, c.cacheKey(text), &vector) {
		return nil, false
	}
	if len(vector) != c.config.Dimension {
		return nil, false
	}
	return vector, true
}

// embedWithRetry calls the provider with exponential backoff. Only
// transient errors are retried, permanent ones stop the retry loop.
func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.BackoffBase
	policy.MaxInterval = c.config.BackoffCap
	policy.MaxElapsedTime = 0

	var embedded [][]float32
	operation := func() error {
		result, err := c.provider.Embed(ctx, texts)
		if err != nil {
			if IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(result) != len(texts) {
			return backoff.Permanent(&ProviderError{
				Operation: "embed",
				Err:       fmt.Errorf("expected %v embeddings, got %v", len(texts), len(result)),
			})
		}
		embedded = result
		return nil
	}

	retries := uint64(c.config.MaxAttempts - 1)
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx))
	if err != nil {
		return nil, err
	}
	return embedded, nil
}
