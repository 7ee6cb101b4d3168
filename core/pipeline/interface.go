// Package pipeline ingests documents into the vector index: extract,
// clean, chunk, deduplicate, embed and upload.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/siherrmann/ragger/core/embedding"
	"github.com/siherrmann/ragger/core/hash"
	"github.com/siherrmann/ragger/database"
	"github.com/siherrmann/ragger/model"
)

// defaultUploadBatchSize is the number of chunks inserted per transaction.
const defaultUploadBatchSize = 64

// Pipeline orchestrates document ingestion. Ingestion never returns a Go
// error, every document yields an IngestResult with status success, skipped
// or error so bulk ingestion can report per document outcomes.
type Pipeline struct {
	chunker   *Chunker
	embedder  *embedding.Client
	chunks    database.ChunksDBHandlerFunctions
	documents database.DocumentsDBHandlerFunctions
	extractor ExtractFunc
	batchSize int
	log       *slog.Logger
}

// NewPipeline wires a pipeline with the default text extractor. PDF
// ingestion needs a custom extractor set via SetExtractor.
func NewPipeline(chunker *Chunker, embedder *embedding.Client, chunks database.ChunksDBHandlerFunctions, documents database.DocumentsDBHandlerFunctions, logger *slog.Logger) *Pipeline {
	if chunker == nil {
		chunker = NewChunker(model.DefaultChunkerConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chunker:   chunker,
		embedder:  embedder,
		chunks:    chunks,
		documents: documents,
		extractor: TextExtractor,
		batchSize: defaultUploadBatchSize,
		log:       logger,
	}
}

// SetExtractor replaces the text extractor, for example with a PDF reader.
func (p *Pipeline) SetExtractor(extractor ExtractFunc) {
	if extractor != nil {
		p.extractor = extractor
	}
}

// SetUploadBatchSize changes how many chunks are inserted per transaction.
func (p *Pipeline) SetUploadBatchSize(size int) {
	if size > 0 {
		p.batchSize = size
	}
}

// Ingest processes a single document file. Already indexed documents are
// skipped unless forceUpdate is set, in which case their previous chunks
// are removed first.
func (p *Pipeline) Ingest(ctx context.Context, path string, forceUpdate bool) *model.IngestResult {
	filename := filepath.Base(path)
	result := &model.IngestResult{Filename: filename, Status: model.IngestStatusError}

	info, err := os.Stat(path)
	if err != nil {
		result.Error = fmt.Sprintf("document not readable: %v", err)
		return result
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	pages, err := p.extractor(path)
	if err != nil {
		result.Error = fmt.Sprintf("extracting content: %v", err)
		return result
	}

	fullText := joinPages(pages)
	if strings.TrimSpace(fullText) == "" {
		result.Error = "no extractable content"
		return result
	}

	pdfHash := ""
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		file, err := os.Open(path)
		if err != nil {
			result.Error = fmt.Sprintf("reading document: %v", err)
			return result
		}
		pdfHash, err = hash.HashBytes(file)
		closeErr := file.Close()
		if err != nil {
			result.Error = fmt.Sprintf("hashing document: %v", err)
			return result
		}
		if closeErr != nil {
			p.log.Warn("Closing document failed", "path", path, "error", closeErr)
		}
	}

	doc := &model.Document{
		Filename:          filename,
		FilePath:          absPath,
		ByteSize:          info.Size(),
		PDFHash:           pdfHash,
		ContentHashGlobal: hash.HashNormalizedText(fullText),
	}

	return p.ingest(ctx, doc, pages, forceUpdate, result)
}

// IngestText processes in memory content without touching the filesystem.
// Form feed characters in the content separate pages.
func (p *Pipeline) IngestText(ctx context.Context, doc *model.Document, forceUpdate bool) *model.IngestResult {
	result := &model.IngestResult{Filename: doc.Filename, Status: model.IngestStatusError}

	if doc.Filename == "" {
		result.Error = "document needs a filename"
		return result
	}
	if strings.TrimSpace(doc.Content) == "" {
		result.Error = "no extractable content"
		return result
	}

	registered := &model.Document{
		Filename:          doc.Filename,
		FilePath:          doc.FilePath,
		ByteSize:          int64(len(doc.Content)),
		ContentHashGlobal: hash.HashNormalizedText(doc.Content),
		Metadata:          doc.Metadata,
	}

	return p.ingest(ctx, registered, pagesFromContent(doc.Content), forceUpdate, result)
}

// IngestAll ingests every path concurrently, one goroutine per document.
// Results are returned in input order.
func (p *Pipeline) IngestAll(ctx context.Context, paths []string, forceUpdate bool) []*model.IngestResult {
	results := make([]*model.IngestResult, len(paths))
	var wg sync.WaitGroup

	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			results[i] = p.Ingest(ctx, path, forceUpdate)
		}(i, path)
	}
	wg.Wait()

	return results
}

// ingest runs deduplication, chunking, embedding and upload for an already
// hashed document.
func (p *Pipeline) ingest(ctx context.Context, doc *model.Document, pages []Page, forceUpdate bool, result *model.IngestResult) *model.IngestResult {
	if forceUpdate {
		if err := p.removePrevious(ctx, doc); err != nil {
			result.Error = fmt.Sprintf("removing previous version: %v", err)
			return result
		}
	} else {
		indexed, err := p.alreadyIndexed(ctx, doc)
		if err != nil {
			result.Error = fmt.Sprintf("checking for duplicates: %v", err)
			return result
		}
		if indexed {
			result.Status = model.IngestStatusSkipped
			p.log.Info("Document already indexed, skipping", "filename", doc.Filename)
			return result
		}
	}

	chunks := p.chunker.Chunk(pages, doc.Filename, doc.FilePath)
	result.ChunksOriginal = len(chunks)
	if len(chunks) == 0 {
		result.Error = "no usable content after chunking"
		return result
	}

	unique := dedupeChunks(chunks)
	result.ChunksUnique = len(unique)

	texts := make([]string, len(unique))
	for i, chunk := range unique {
		texts[i] = chunk.Content
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		result.Error = fmt.Sprintf("embedding chunks: %v", err)
		return result
	}

	if err := p.documents.InsertDocument(doc); err != nil {
		result.Error = fmt.Sprintf("registering document: %v", err)
		return result
	}

	for i, chunk := range unique {
		chunk.DocumentID = doc.ID
		chunk.PDFHash = doc.PDFHash
		chunk.ContentHashGlobal = doc.ContentHashGlobal
		chunk.Metadata = doc.Metadata
		chunk.Embedding = vectors[i]
	}

	// Batches go out sequentially, a failure keeps what was committed.
	for start := 0; start < len(unique); start += p.batchSize {
		end := start + p.batchSize
		if end > len(unique) {
			end = len(unique)
		}
		if err := p.chunks.InsertChunks(unique[start:end]); err != nil {
			result.ChunksAdded = start
			result.Error = fmt.Sprintf("uploading chunks: %v", err)
			return result
		}
		result.ChunksAdded = end
	}

	result.Status = model.IngestStatusSuccess
	result.Error = ""
	p.log.Info("Ingested document",
		"filename", doc.Filename,
		"chunks_original", result.ChunksOriginal,
		"chunks_unique", result.ChunksUnique,
		"chunks_added", result.ChunksAdded)

	return result
}

// alreadyIndexed checks content equivalence first, then byte equality.
func (p *Pipeline) alreadyIndexed(ctx context.Context, doc *model.Document) (bool, error) {
	count, err := p.chunks.CountChunks(ctx, model.ChunkFilter{ContentHashGlobal: doc.ContentHashGlobal})
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	if doc.PDFHash != "" {
		count, err = p.chunks.CountChunks(ctx, model.ChunkFilter{PDFHash: doc.PDFHash})
		if err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}

	return false, nil
}

// removePrevious drops all chunks and registry rows of earlier versions of
// the document, matched by either hash.
func (p *Pipeline) removePrevious(ctx context.Context, doc *model.Document) error {
	previous, err := p.documents.SelectDocumentsByHash(doc.PDFHash, doc.ContentHashGlobal)
	if err != nil {
		return err
	}
	for _, old := range previous {
		if err := p.documents.DeleteDocument(old.RID); err != nil {
			return err
		}
	}

	// Chunks cascade with their document, this covers chunks whose
	// registry row is already gone.
	if _, err := p.chunks.DeleteChunks(ctx, model.ChunkFilter{ContentHashGlobal: doc.ContentHashGlobal}); err != nil {
		return err
	}
	if doc.PDFHash != "" {
		if _, err := p.chunks.DeleteChunks(ctx, model.ChunkFilter{PDFHash: doc.PDFHash}); err != nil {
			return err
		}
	}

	return nil
}

// dedupeChunks drops chunks whose content hash already appeared, keeping
// the first occurrence.
func dedupeChunks(chunks []*model.Chunk) []*model.Chunk {
	seen := make(map[string]bool, len(chunks))
	unique := make([]*model.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if seen[chunk.ContentHash] {
			continue
		}
		seen[chunk.ContentHash] = true
		unique = append(unique, chunk)
	}
	return unique
}

// joinPages concatenates page texts for whole document hashing.
func joinPages(pages []Page) string {
	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		if strings.TrimSpace(page.Text) != "" {
			texts = append(texts, page.Text)
		}
	}
	return strings.Join(texts, "\n")
}
