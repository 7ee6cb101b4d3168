package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/siherrmann/ragger/helper"
)

// Page is one page of extracted document text.
type Page struct {
	Number int
	Text   string
}

// ExtractFunc extracts per page text from a document file. PDF extraction
// plugs in here, the default TextExtractor handles plain text files.
type ExtractFunc func(path string) ([]Page, error)

// TextExtractor reads plain text and markdown files. Form feed characters
// separate pages, a file without form feeds is a single page.
func TextExtractor(path string) ([]Page, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return nil, helper.NewError("extracting text", fmt.Errorf("pdf files need a custom extractor, see SetExtractor"))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, helper.NewError("reading document", err)
	}

	parts := strings.Split(string(data), "\f")
	pages := make([]Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, Page{Number: i + 1, Text: part})
	}

	return pages, nil
}

// pagesFromContent splits in memory content into pages on form feeds.
func pagesFromContent(content string) []Page {
	parts := strings.Split(content, "\f")
	pages := make([]Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, Page{Number: i + 1, Text: part})
	}
	return pages
}
