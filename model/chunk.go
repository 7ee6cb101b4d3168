package model

import (
	"time"

	"github.com/google/uuid"
)

type RetrievalMethod string

const (
	RetrievalMethodVector RetrievalMethod = "vector"
	RetrievalMethodRerank RetrievalMethod = "rerank"
	RetrievalMethodMMR    RetrievalMethod = "mmr"
	RetrievalMethodCache  RetrievalMethod = "cache"
)

type ChunkType string

const (
	ChunkTypeHeader       ChunkType = "header"
	ChunkTypeParagraph    ChunkType = "paragraph"
	ChunkTypeNumberedList ChunkType = "numbered_list"
	ChunkTypeBulletList   ChunkType = "bullet_list"
	ChunkTypeText         ChunkType = "text"
)

// Chunk represents a single embedded piece of a document.
// Every chunk carries the full metadata schema regardless of how it was
// produced, missing values stay at their zero value.
type Chunk struct {
	ID                int64     `json:"id"`
	RID               uuid.UUID `json:"rid"`
	DocumentID        int64     `json:"document_id"`
	Content           string    `json:"content"`
	Source            string    `json:"source"`
	FilePath          string    `json:"file_path"`
	PDFHash           string    `json:"pdf_hash"`
	ContentHashGlobal string    `json:"content_hash_global"`
	ContentHash       string    `json:"content_hash"`
	ChunkType         ChunkType `json:"chunk_type"`
	QualityScore      float64   `json:"quality_score"`
	WordCount         int       `json:"word_count"`
	CharCount         int       `json:"char_count"`
	PageNumber        *int      `json:"page_number,omitempty"`
	ChunkIndex        *int      `json:"chunk_index,omitempty"`
	Embedding         []float32 `json:"embedding,omitempty"`
	Metadata          Metadata  `json:"metadata,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	// Results
	Similarity      float64         `json:"similarity,omitempty"`
	Score           float64         `json:"score,omitempty"`
	RetrievalMethod RetrievalMethod `json:"retrieval_method,omitempty"`
}

// IsPDF reports whether the chunk originates from a pdf file.
func (c *Chunk) IsPDF() bool {
	return c.PDFHash != ""
}
