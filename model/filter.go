package model

import (
	"fmt"
	"strings"
)

// ChunkFilter narrows queries and deletions to chunks matching all set fields.
// The zero value matches every chunk.
type ChunkFilter struct {
	Source            string    `json:"source,omitempty"`
	FilePath          string    `json:"file_path,omitempty"`
	PDFHash           string    `json:"pdf_hash,omitempty"`
	ContentHashGlobal string    `json:"content_hash_global,omitempty"`
	ContentHash       string    `json:"content_hash,omitempty"`
	ChunkType         ChunkType `json:"chunk_type,omitempty"`
}

// IsZero reports whether no filter field is set.
func (f ChunkFilter) IsZero() bool {
	return f == ChunkFilter{}
}

// Fingerprint returns a deterministic canonical representation of the filter
// for use in cache keys. The zero filter yields an empty string.
func (f ChunkFilter) Fingerprint() string {
	if f.IsZero() {
		return ""
	}

	parts := []string{}
	if f.Source != "" {
		parts = append(parts, fmt.Sprintf("source=%s", f.Source))
	}
	if f.FilePath != "" {
		parts = append(parts, fmt.Sprintf("file_path=%s", f.FilePath))
	}
	if f.PDFHash != "" {
		parts = append(parts, fmt.Sprintf("pdf_hash=%s", f.PDFHash))
	}
	if f.ContentHashGlobal != "" {
		parts = append(parts, fmt.Sprintf("content_hash_global=%s", f.ContentHashGlobal))
	}
	if f.ContentHash != "" {
		parts = append(parts, fmt.Sprintf("content_hash=%s", f.ContentHash))
	}
	if f.ChunkType != "" {
		parts = append(parts, fmt.Sprintf("chunk_type=%s", f.ChunkType))
	}

	return strings.Join(parts, "&")
}
