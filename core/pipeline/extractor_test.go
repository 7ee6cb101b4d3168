package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644), "Test file should be written")
	return path
}

func TestTextExtractor(t *testing.T) {
	t.Run("single page text file", func(t *testing.T) {
		path := writeTestFile(t, "notes.txt", "Some plain text content.")

		pages, err := TextExtractor(path)
		require.NoError(t, err, "Extraction should not error")
		require.Len(t, pages, 1, "A file without form feeds should be a single page")
		assert.Equal(t, 1, pages[0].Number, "Page numbers should start at one")
		assert.Equal(t, "Some plain text content.", pages[0].Text, "Page text should match the file content")
	})

	t.Run("form feeds separate pages", func(t *testing.T) {
		path := writeTestFile(t, "paged.txt", "First page.\fSecond page.\fThird page.")

		pages, err := TextExtractor(path)
		require.NoError(t, err, "Extraction should not error")
		require.Len(t, pages, 3, "Form feeds should split the file into pages")
		assert.Equal(t, "Second page.", pages[1].Text, "Middle page text should match")
		assert.Equal(t, 3, pages[2].Number, "Page numbers should be sequential")
	})

	t.Run("markdown file", func(t *testing.T) {
		path := writeTestFile(t, "readme.md", "# Title\n\nBody text.")

		pages, err := TextExtractor(path)
		require.NoError(t, err, "Markdown files should extract like plain text")
		require.Len(t, pages, 1, "There should be one page")
	})

	t.Run("pdf files are rejected", func(t *testing.T) {
		path := writeTestFile(t, "report.pdf", "%PDF-1.4 fake")

		_, err := TextExtractor(path)
		require.Error(t, err, "PDF files need a custom extractor")
		assert.Contains(t, err.Error(), "custom extractor", "Error should point at SetExtractor")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := TextExtractor(filepath.Join(t.TempDir(), "does-not-exist.txt"))
		assert.Error(t, err, "Missing files should error")
	})
}

func TestPagesFromContent(t *testing.T) {
	pages := pagesFromContent("alpha\fbeta")
	require.Len(t, pages, 2, "Form feeds should split content into pages")
	assert.Equal(t, "alpha", pages[0].Text, "First page should hold the leading content")
	assert.Equal(t, 2, pages[1].Number, "Page numbers should be sequential")
}
