// Package retrieval ranks indexed chunks against natural language queries.
// A query runs through a fixed sequence: trivial filter, cache check, query
// embedding, vector search, rerank or MMR, cache store. Degradations along
// the way (provider outage, search timeout) yield an empty result instead of
// an error so the consuming chat flow keeps answering without grounding.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/siherrmann/ragger/cache"
	"github.com/siherrmann/ragger/core/embedding"
	"github.com/siherrmann/ragger/core/hash"
	"github.com/siherrmann/ragger/database"
	"github.com/siherrmann/ragger/model"
)

// RetrievalCachePrefix is the key prefix of cached retrieval results.
// Deleting this prefix invalidates every cached retrieval, which the facade
// does whenever the index composition changes.
const RetrievalCachePrefix = "ret:"

// NoContextSentinel is returned by FormatContext when nothing was retrieved,
// so prompt assembly never interpolates an empty string.
const NoContextSentinel = "No relevant information found in the indexed documents."

// centroidScrollLimit is the page size used when scanning the index for the
// centroid computation.
const centroidScrollLimit = 256

// previewLength bounds the content preview in trace results, in runes.
const previewLength = 160

// trivialQueries short-circuit retrieval before any index access. The list
// covers common English and Spanish greetings and farewells in their
// normalized form.
var trivialQueries = map[string]struct{}{
	"hi":             {},
	"hello":          {},
	"hey":            {},
	"good morning":   {},
	"good afternoon": {},
	"good evening":   {},
	"good night":     {},
	"bye":            {},
	"goodbye":        {},
	"see you":        {},
	"thanks":         {},
	"thank you":      {},
	"ok":             {},
	"okay":           {},
	"hola":           {},
	"buenos dias":    {},
	"buenos días":    {},
	"buenas tardes":  {},
	"buenas noches":  {},
	"adios":          {},
	"adiós":          {},
	"hasta luego":    {},
	"gracias":        {},
	"vale":           {},
}

// Engine retrieves and ranks chunks for queries. It caches results and the
// index centroid, both invalidated from the outside when the index changes.
type Engine struct {
	chunks   database.ChunksDBHandlerFunctions
	embedder *embedding.Client
	cache    *cache.Cache
	config   model.RetrievalConfig
	log      *slog.Logger

	centroidMu    sync.Mutex
	centroid      []float32
	centroidValid bool
}

// NewEngine creates a new retrieval engine. A nil config uses the defaults,
// a partial config keeps its threshold fields as given while unset count and
// duration fields fall back to their defaults.
func NewEngine(chunks database.ChunksDBHandlerFunctions, embedder *embedding.Client, resultCache *cache.Cache, config *model.RetrievalConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		chunks:   chunks,
		embedder: embedder,
		cache:    resultCache,
		config:   normalizeConfig(config),
		log:      logger,
	}
}

// normalizeConfig fills unset count and duration fields with their defaults.
// SimilarityThreshold, GatingThreshold and UseSemanticRerank are taken as
// given, a zero MMRLambda stays zero so pure diversity selection remains
// expressible. Only an out of range lambda falls back to the default.
func normalizeConfig(config *model.RetrievalConfig) model.RetrievalConfig {
	defaults := model.DefaultRetrievalConfig()
	if config == nil {
		return defaults
	}

	normalized := *config
	if normalized.TopK <= 0 {
		normalized.TopK = defaults.TopK
	}
	if normalized.CandidateMultiplier <= 0 {
		normalized.CandidateMultiplier = defaults.CandidateMultiplier
	}
	if normalized.CandidateCap <= 0 {
		normalized.CandidateCap = defaults.CandidateCap
	}
	if normalized.SearchTimeout <= 0 {
		normalized.SearchTimeout = defaults.SearchTimeout
	}
	if normalized.MMRLambda < 0 || normalized.MMRLambda > 1 {
		normalized.MMRLambda = defaults.MMRLambda
	}
	if normalized.MinQueryLength <= 0 {
		normalized.MinQueryLength = defaults.MinQueryLength
	}
	if normalized.CacheTTL <= 0 {
		normalized.CacheTTL = defaults.CacheTTL
	}
	return normalized
}

// Retrieve returns the k most relevant chunks for the query, honoring the
// filter. A k below one uses the configured TopK. Failures of the embedding
// provider or the index degrade to an empty result.
func (e *Engine) Retrieve(ctx context.Context, query string, k int, filter model.ChunkFilter) ([]*model.RetrievalResult, error) {
	return e.retrieve(ctx, query, k, filter, nil)
}

// RetrieveWithTrace retrieves like Retrieve and additionally reports per
// stage timings and a compact summary of every returned chunk. With
// includeContext the formatted context string is included as well.
func (e *Engine) RetrieveWithTrace(ctx context.Context, query string, k int, filter model.ChunkFilter, includeContext bool) (*model.RetrievalTrace, error) {
	start := time.Now()
	trace := &model.RetrievalTrace{Query: query}

	results, err := e.retrieve(ctx, query, k, filter, trace)
	if err != nil {
		return nil, err
	}

	trace.Returned = len(results)
	trace.Retrieved = make([]model.TraceResult, 0, len(results))
	for _, result := range results {
		if result.Chunk == nil {
			continue
		}
		trace.Retrieved = append(trace.Retrieved, model.TraceResult{
			Score:       result.Score,
			Source:      result.Chunk.Source,
			FilePath:    result.Chunk.FilePath,
			ContentHash: result.Chunk.ContentHash,
			ChunkType:   result.Chunk.ChunkType,
			WordCount:   result.Chunk.WordCount,
			Preview:     preview(result.Chunk.Content, previewLength),
		})
	}
	if includeContext {
		trace.Context = e.FormatContext(results)
	}
	trace.Total = time.Since(start)

	return trace, nil
}

// retrieve runs the full state machine. The trace may be nil.
func (e *Engine) retrieve(ctx context.Context, query string, k int, filter model.ChunkFilter, trace *model.RetrievalTrace) ([]*model.RetrievalResult, error) {
	if k <= 0 {
		k = e.config.TopK
	}

	if e.isTrivial(query) {
		trace.Add("trivial", "greeting or below minimum query length", 0)
		return []*model.RetrievalResult{}, nil
	}

	key := e.cacheKey(query, k, filter)
	var cached []*model.RetrievalResult
	if e.cache.GetJSON(ctx, key, &cached) {
		if trace != nil {
			trace.CacheHit = true
			trace.Candidates = len(cached)
		}
		for _, result := range cached {
			result.RetrievalMethod = model.RetrievalMethodCache
		}
		return cached, nil
	}

	embedStart := time.Now()
	queryEmbedding, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		trace.Add("embed", "degraded to empty result", time.Since(embedStart))
		e.log.Warn("Query embedding failed, returning empty result", "error", err)
		return []*model.RetrievalResult{}, nil
	}
	if isZeroVector(queryEmbedding) {
		trace.Add("embed", "degraded to empty result", time.Since(embedStart))
		e.log.Warn("Query embedding degraded to zero vector, returning empty result")
		return []*model.RetrievalResult{}, nil
	}
	trace.Add("embed", e.embedder.ModelID(), time.Since(embedStart))

	searchStart := time.Now()
	candidates, err := e.search(ctx, queryEmbedding, k, filter)
	if err != nil {
		trace.Add("search", "degraded to empty result", time.Since(searchStart))
		e.log.Warn("Vector search failed, returning empty result", "error", err)
		return []*model.RetrievalResult{}, nil
	}
	trace.Add("search", fmt.Sprintf("%v candidates", len(candidates)), time.Since(searchStart))
	if trace != nil {
		trace.Candidates = len(candidates)
	}
	if len(candidates) == 0 {
		return []*model.RetrievalResult{}, nil
	}

	rankStart := time.Now()
	var strategy Strategy
	method := model.RetrievalMethodMMR
	if e.config.UseSemanticRerank && len(candidates) > k {
		strategy = NewRerankStrategy(e)
		method = model.RetrievalMethodRerank
	} else {
		strategy = NewMMRStrategy(e)
	}

	results, err := strategy.Rank(ctx, queryEmbedding, candidates, k)
	if err != nil {
		trace.Add("rank", "degraded to empty result", time.Since(rankStart))
		e.log.Warn("Ranking failed, returning empty result", "method", method, "error", err)
		return []*model.RetrievalResult{}, nil
	}
	trace.Add("rank", string(method), time.Since(rankStart))

	if len(results) > 0 {
		e.cache.SetJSON(ctx, key, results, e.config.CacheTTL)
	}

	return results, nil
}

// search fetches min(k*CandidateMultiplier, CandidateCap) candidates, at
// least k, under the configured search timeout.
func (e *Engine) search(ctx context.Context, queryEmbedding []float32, k int, filter model.ChunkFilter) ([]*model.Chunk, error) {
	limit := k * e.config.CandidateMultiplier
	if limit > e.config.CandidateCap {
		limit = e.config.CandidateCap
	}
	if limit < k {
		limit = k
	}

	searchCtx, cancel := context.WithTimeout(ctx, e.config.SearchTimeout)
	defer cancel()

	return e.chunks.SelectChunksBySimilarity(searchCtx, queryEmbedding, limit, e.config.SimilarityThreshold, filter)
}

// isTrivial reports whether the query is a greeting, a farewell or shorter
// than the minimum query length.
func (e *Engine) isTrivial(query string) bool {
	normalized := hash.NormalizeText(query)
	if _, ok := trivialQueries[normalized]; ok {
		return true
	}
	return utf8.RuneCountInString(normalized) < e.config.MinQueryLength
}

// cacheKey derives the cache key from the query, k and the filter
// fingerprint. The query goes in normalized so trivially reworded queries
// share an entry.
func (e *Engine) cacheKey(query string, k int, filter model.ChunkFilter) string {
	payload := fmt.Sprintf("%v|%v|%v", query, k, filter.Fingerprint())
	return RetrievalCachePrefix + hash.HashNormalizedText(payload)
}

// FormatContext renders ranked results as one context string, grouped by
// chunk type: headers first, then paragraphs, then numbered lists, bullet
// lists and plain text. Unclassified types count as plain text. An empty
// result yields the NoContextSentinel.
func (e *Engine) FormatContext(results []*model.RetrievalResult) string {
	if len(results) == 0 {
		return NoContextSentinel
	}

	order := []model.ChunkType{
		model.ChunkTypeHeader,
		model.ChunkTypeParagraph,
		model.ChunkTypeNumberedList,
		model.ChunkTypeBulletList,
		model.ChunkTypeText,
	}

	grouped := map[model.ChunkType][]string{}
	for _, result := range results {
		if result.Chunk == nil {
			continue
		}
		chunkType := result.Chunk.ChunkType
		switch chunkType {
		case model.ChunkTypeHeader, model.ChunkTypeParagraph, model.ChunkTypeNumberedList, model.ChunkTypeBulletList:
		default:
			chunkType = model.ChunkTypeText
		}
		grouped[chunkType] = append(grouped[chunkType], result.Chunk.Content)
	}

	parts := []string{}
	for _, chunkType := range order {
		parts = append(parts, grouped[chunkType]...)
	}
	if len(parts) == 0 {
		return NoContextSentinel
	}

	return strings.Join(parts, "\n\n")
}

// ShouldUseRAG reports whether the query is close enough to the indexed
// corpus for retrieval to add value. It fails closed: an empty index, an
// embedding failure or a query-centroid similarity at or below the gating
// threshold all answer false.
func (e *Engine) ShouldUseRAG(ctx context.Context, query string) bool {
	centroid, err := e.getCentroid(ctx)
	if err != nil {
		e.log.Warn("Centroid computation failed, gating closed", "error", err)
		return false
	}
	if len(centroid) == 0 {
		return false
	}

	queryEmbedding, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		e.log.Warn("Query embedding failed, gating closed", "error", err)
		return false
	}
	if isZeroVector(queryEmbedding) {
		return false
	}

	return cosineSimilarity(queryEmbedding, centroid) > e.config.GatingThreshold
}

// InvalidateCentroid drops the cached centroid so the next gating decision
// recomputes it from the index.
func (e *Engine) InvalidateCentroid() {
	e.centroidMu.Lock()
	defer e.centroidMu.Unlock()
	e.centroid = nil
	e.centroidValid = false
}

// getCentroid returns the mean vector over all indexed embeddings. The mutex
// is held for the whole scan so the centroid is computed at most once
// concurrently and a torn value can never be observed. An empty index is a
// valid cached outcome.
func (e *Engine) getCentroid(ctx context.Context) ([]float32, error) {
	e.centroidMu.Lock()
	defer e.centroidMu.Unlock()

	if e.centroidValid {
		return e.centroid, nil
	}

	sum := make([]float64, e.embedder.Dimension())
	count := 0
	afterID := int64(0)
	for {
		page, nextID, err := e.chunks.ScrollChunks(ctx, afterID, centroidScrollLimit)
		if err != nil {
			return nil, err
		}

		for _, chunk := range page {
			if len(chunk.Embedding) != len(sum) {
				continue
			}
			for i, v := range chunk.Embedding {
				sum[i] += float64(v)
			}
			count++
		}

		if nextID == 0 {
			break
		}
		afterID = nextID
	}

	if count == 0 {
		e.centroid = nil
		e.centroidValid = true
		return nil, nil
	}

	centroid := make([]float32, len(sum))
	for i, v := range sum {
		centroid[i] = float32(v / float64(count))
	}
	e.centroid = centroid
	e.centroidValid = true

	return centroid, nil
}

// preview returns the first limit runes of the content for trace output.
func preview(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
