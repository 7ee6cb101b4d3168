package model

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Document represents a source document registered in the index.
type Document struct {
	ID                int64     `json:"id"`
	RID               uuid.UUID `json:"rid"`
	Filename          string    `json:"filename"`
	FilePath          string    `json:"file_path,omitempty"`
	ByteSize          int64     `json:"byte_size"`
	PDFHash           string    `json:"pdf_hash,omitempty"`
	ContentHashGlobal string    `json:"content_hash_global,omitempty"`
	Content           string    `json:"content,omitempty" db:"-"` // Temporary field for processing, not stored in DB
	Metadata          Metadata  `json:"metadata,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewDocumentFromFile reads a file and creates a Document with the file content.
// The filename defaults to the base name of the path.
func NewDocumentFromFile(filePath string, metadata Metadata) (*Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return &Document{
		Filename: filepath.Base(filePath),
		FilePath: filePath,
		ByteSize: int64(len(content)),
		Content:  string(content),
		Metadata: metadata,
	}, nil
}

// IsPDF reports whether the document path points to a pdf file.
func (d *Document) IsPDF() bool {
	return filepath.Ext(d.FilePath) == ".pdf"
}
