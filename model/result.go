package model

import "time"

// IngestStatus describes the outcome of a single document ingestion.
type IngestStatus string

const (
	IngestStatusSuccess IngestStatus = "success"
	IngestStatusSkipped IngestStatus = "skipped"
	IngestStatusError   IngestStatus = "error"
)

// IngestResult summarizes the ingestion of one document.
type IngestResult struct {
	Filename       string       `json:"filename"`
	Status         IngestStatus `json:"status"`
	ChunksOriginal int          `json:"chunks_original"`
	ChunksUnique   int          `json:"chunks_unique"`
	ChunksAdded    int          `json:"chunks_added"`
	Error          string       `json:"error,omitempty"`
}

// RetrievalResult represents a chunk retrieved by a query.
type RetrievalResult struct {
	Chunk           *Chunk          `json:"chunk"`
	Score           float64         `json:"score"`            // Combined score from ranking
	SimilarityScore float64         `json:"similarity_score"` // Cosine similarity score
	RetrievalMethod RetrievalMethod `json:"retrieval_method"` // How it was ranked (vector, rerank, mmr, cache)
}

// TraceEntry records one stage of a traced retrieval.
type TraceEntry struct {
	Stage    string        `json:"stage"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

// TraceResult summarizes one retrieved chunk for inspection without
// carrying the full content or embedding.
type TraceResult struct {
	Score       float64   `json:"score"`
	Source      string    `json:"source"`
	FilePath    string    `json:"file_path"`
	ContentHash string    `json:"content_hash"`
	ChunkType   ChunkType `json:"chunk_type"`
	WordCount   int       `json:"word_count"`
	Preview     string    `json:"preview"`
}

// RetrievalTrace carries per stage timing and outcome information for a
// single retrieval.
type RetrievalTrace struct {
	Query      string        `json:"query"`
	CacheHit   bool          `json:"cache_hit"`
	Candidates int           `json:"candidates"`
	Returned   int           `json:"returned"`
	Retrieved  []TraceResult `json:"retrieved"`
	Context    string        `json:"context,omitempty"`
	Stages     []TraceEntry  `json:"stages"`
	Total      time.Duration `json:"total"`
}

// Add appends a stage entry to the trace. Calls on a nil trace are ignored
// so instrumentation can stay in place for untraced retrievals.
func (t *RetrievalTrace) Add(stage, detail string, duration time.Duration) {
	if t == nil {
		return
	}
	t.Stages = append(t.Stages, TraceEntry{Stage: stage, Detail: detail, Duration: duration})
}
