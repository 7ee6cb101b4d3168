package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/siherrmann/ragger/model"
)

// Strategy ranks search candidates against a query embedding and returns at
// most k results in descending score order.
type Strategy interface {
	Rank(ctx context.Context, queryEmbedding []float32, candidates []*model.Chunk, k int) ([]*model.RetrievalResult, error)
}

// Rerank scoring weights. Cosine similarity dominates, chunk quality and
// length refine the order and the chunk type breaks near ties.
const (
	rerankSimilarityWeight = 0.5
	rerankQualityWeight    = 0.35
	rerankLengthWeight     = 0.10
	rerankTypeWeight       = 0.05
	rerankPDFBoost         = 1.5
	// lengthScoreFullAt is the word count at which the length score
	// saturates at 1.
	lengthScoreFullAt = 100
)

// RerankStrategy orders candidates by a weighted combination of similarity,
// quality score, length and chunk type, with a boost for pdf sources.
type RerankStrategy struct {
	engine *Engine
}

// NewRerankStrategy creates a new rerank strategy.
func NewRerankStrategy(engine *Engine) *RerankStrategy {
	return &RerankStrategy{engine: engine}
}

// Rank computes the weighted score per candidate and returns the top k.
// Candidates without a stored embedding get theirs computed in one batched
// call and written back to the index best-effort.
func (s *RerankStrategy) Rank(ctx context.Context, queryEmbedding []float32, candidates []*model.Chunk, k int) ([]*model.RetrievalResult, error) {
	if err := s.engine.fillMissingEmbeddings(ctx, candidates); err != nil {
		return nil, err
	}

	results := make([]*model.RetrievalResult, 0, len(candidates))
	for _, chunk := range candidates {
		similarity := chunk.Similarity
		if len(chunk.Embedding) == len(queryEmbedding) {
			similarity = cosineSimilarity(queryEmbedding, chunk.Embedding)
		}

		score := rerankSimilarityWeight*similarity +
			rerankQualityWeight*chunk.QualityScore +
			rerankLengthWeight*lengthScore(chunk.WordCount) +
			rerankTypeWeight*typeScore(chunk.ChunkType)
		if chunk.IsPDF() {
			score *= rerankPDFBoost
		}

		results = append(results, &model.RetrievalResult{
			Chunk:           chunk,
			Score:           score,
			SimilarityScore: similarity,
			RetrievalMethod: model.RetrievalMethodRerank,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > k {
		results = results[:k]
	}

	return results, nil
}

// MMRStrategy selects results by maximum marginal relevance, balancing query
// relevance against diversity among the already selected chunks.
type MMRStrategy struct {
	engine *Engine
}

// NewMMRStrategy creates a new MMR strategy.
func NewMMRStrategy(engine *Engine) *MMRStrategy {
	return &MMRStrategy{engine: engine}
}

// Rank iteratively picks the candidate maximizing
// lambda*relevance + (1-lambda)*(1-maxSimilarityToSelected) until k results
// are chosen or the candidates run out. The reported score is the marginal
// score at selection time, the similarity score is the pure query relevance.
func (s *MMRStrategy) Rank(ctx context.Context, queryEmbedding []float32, candidates []*model.Chunk, k int) ([]*model.RetrievalResult, error) {
	if len(candidates) == 0 {
		return []*model.RetrievalResult{}, nil
	}

	lambda := s.engine.config.MMRLambda

	relevance := make([]float64, len(candidates))
	for i, chunk := range candidates {
		relevance[i] = chunk.Similarity
		if len(chunk.Embedding) == len(queryEmbedding) {
			relevance[i] = cosineSimilarity(queryEmbedding, chunk.Embedding)
		}
	}

	type pick struct {
		index int
		score float64
	}

	picked := make([]bool, len(candidates))
	picks := make([]pick, 0, k)

	for len(picks) < k && len(picks) < len(candidates) {
		bestIndex := -1
		bestScore := math.Inf(-1)

		for i, chunk := range candidates {
			if picked[i] {
				continue
			}

			// Diversity is 1 minus the highest similarity to any
			// already selected chunk, 1 when nothing is selected yet.
			diversity := 1.0
			for _, p := range picks {
				dissimilarity := 1 - pairwiseSimilarity(chunk, candidates[p.index])
				if dissimilarity < diversity {
					diversity = dissimilarity
				}
			}

			score := lambda*relevance[i] + (1-lambda)*diversity
			if score > bestScore {
				bestScore = score
				bestIndex = i
			}
		}

		if bestIndex < 0 {
			break
		}
		picked[bestIndex] = true
		picks = append(picks, pick{index: bestIndex, score: bestScore})
	}

	results := make([]*model.RetrievalResult, 0, len(picks))
	for _, p := range picks {
		results = append(results, &model.RetrievalResult{
			Chunk:           candidates[p.index],
			Score:           p.score,
			SimilarityScore: relevance[p.index],
			RetrievalMethod: model.RetrievalMethodMMR,
		})
	}

	return results, nil
}

// fillMissingEmbeddings batch-computes vectors for candidates that came back
// without one and writes them back to the index. Zero vectors are degraded
// provider output and are neither treated as failures nor persisted.
func (e *Engine) fillMissingEmbeddings(ctx context.Context, candidates []*model.Chunk) error {
	missing := []*model.Chunk{}
	texts := []string{}
	for _, chunk := range candidates {
		if len(chunk.Embedding) == 0 {
			missing = append(missing, chunk)
			texts = append(texts, chunk.Content)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	embeddings, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	for i, chunk := range missing {
		chunk.Embedding = embeddings[i]
		if isZeroVector(embeddings[i]) {
			continue
		}
		if err := e.chunks.UpdateChunkEmbedding(chunk.RID, embeddings[i]); err != nil {
			e.log.Warn("Embedding write back failed", "rid", chunk.RID, "error", err)
		}
	}

	return nil
}

// lengthScore saturates at lengthScoreFullAt words so very long chunks gain
// nothing over a solid paragraph.
func lengthScore(wordCount int) float64 {
	if wordCount <= 0 {
		return 0
	}
	score := float64(wordCount) / lengthScoreFullAt
	if score > 1 {
		return 1
	}
	return score
}

// typeScore prefers prose and lists over headers and unclassified text.
func typeScore(chunkType model.ChunkType) float64 {
	switch chunkType {
	case model.ChunkTypeParagraph:
		return 1.0
	case model.ChunkTypeNumberedList, model.ChunkTypeBulletList:
		return 0.9
	case model.ChunkTypeHeader:
		return 0.7
	default:
		return 0.5
	}
}

// pairwiseSimilarity compares two chunks by their stored embeddings. Chunks
// without comparable embeddings count as fully dissimilar.
func pairwiseSimilarity(a, b *model.Chunk) float64 {
	if len(a.Embedding) == 0 || len(a.Embedding) != len(b.Embedding) {
		return 0
	}
	return cosineSimilarity(a.Embedding, b.Embedding)
}

// cosineSimilarity computes the cosine of the angle between two vectors of
// equal dimension. Mismatched or zero vectors yield 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	dot, normA, normB := 0.0, 0.0, 0.0
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// isZeroVector reports whether every component is zero.
func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
