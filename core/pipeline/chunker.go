package pipeline

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/siherrmann/ragger/core/hash"
	"github.com/siherrmann/ragger/model"
)

var (
	horizontalSpacePattern = regexp.MustCompile(`[ \t]+`)
	numberedItemPattern    = regexp.MustCompile(`^\d{1,3}[.)]\s+`)
	bulletItemPattern      = regexp.MustCompile(`^[-*•]\s+`)
	markdownHeaderPattern  = regexp.MustCompile(`^#{1,6}\s+`)
)

// block is one structural unit of cleaned text: a header line, a run of
// list items or a paragraph of prose.
type block struct {
	text string
	typ  model.ChunkType
	page int
}

// window is an assembled chunk candidate before filtering.
type window struct {
	text string
	typ  model.ChunkType
	page int
}

// Chunker splits cleaned document text into overlapping, structure aware
// chunks. Chunking is deterministic, the same input always yields the same
// chunks.
type Chunker struct {
	config model.ChunkerConfig
}

// NewChunker creates a chunker, zero config fields fall back to defaults.
func NewChunker(config model.ChunkerConfig) *Chunker {
	defaults := model.DefaultChunkerConfig()
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaults.ChunkSize
	}
	if config.Overlap <= 0 {
		config.Overlap = defaults.Overlap
	}
	if config.Overlap >= config.ChunkSize {
		config.Overlap = config.ChunkSize / 4
	}
	if config.MinChunkLength <= 0 {
		config.MinChunkLength = defaults.MinChunkLength
	}
	if config.QualityFloor <= 0 {
		config.QualityFloor = defaults.QualityFloor
	}
	return &Chunker{config: config}
}

// Chunk turns extracted pages into chunks with full metadata. Page breaks
// are hard boundaries, a chunk never spans two pages. Chunks shorter than
// the minimum length or scoring below the quality floor are dropped.
func (c *Chunker) Chunk(pages []Page, source string, filePath string) []*model.Chunk {
	chunks := []*model.Chunk{}
	index := 0

	for _, page := range pages {
		cleaned := CleanText(page.Text)
		if cleaned == "" {
			continue
		}

		for _, w := range c.pack(splitBlocks(cleaned, page.Number)) {
			text := strings.TrimSpace(w.text)
			if utf8.RuneCountInString(text) < c.config.MinChunkLength {
				continue
			}
			score := qualityScore(text, w.typ)
			if score < c.config.QualityFloor {
				continue
			}

			pageNumber := w.page
			chunkIndex := index
			chunks = append(chunks, &model.Chunk{
				Content:      text,
				Source:       source,
				FilePath:     filePath,
				ContentHash:  hash.HashNormalizedText(text),
				ChunkType:    w.typ,
				QualityScore: score,
				WordCount:    len(strings.Fields(text)),
				CharCount:    utf8.RuneCountInString(text),
				PageNumber:   &pageNumber,
				ChunkIndex:   &chunkIndex,
			})
			index++
		}
	}

	return chunks
}

// CleanText normalizes raw extracted text. Control characters are dropped,
// typographic quotes and dashes become their ascii forms, runs of spaces
// and tabs collapse to one space and runs of blank lines to a single blank
// line.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range text {
		switch r {
		case '‘', '’':
			builder.WriteRune('\'')
		case '“', '”':
			builder.WriteRune('"')
		case '–', '—':
			builder.WriteRune('-')
		case ' ':
			builder.WriteRune(' ')
		case '\r':
			builder.WriteRune('\n')
		default:
			if r == '\n' || r == '\t' || !unicode.IsControl(r) {
				builder.WriteRune(r)
			}
		}
	}

	lines := strings.Split(builder.String(), "\n")
	cleaned := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		line = strings.TrimSpace(horizontalSpacePattern.ReplaceAllString(line, " "))
		if line == "" {
			blanks++
			if blanks == 1 {
				cleaned = append(cleaned, "")
			}
			continue
		}
		blanks = 0
		cleaned = append(cleaned, line)
	}

	start := 0
	end := len(cleaned)
	for start < end && cleaned[start] == "" {
		start++
	}
	for end > start && cleaned[end-1] == "" {
		end--
	}

	return strings.Join(cleaned[start:end], "\n")
}

// classifyLine determines the structural role of a single cleaned line.
func classifyLine(line string) model.ChunkType {
	if numberedItemPattern.MatchString(line) {
		return model.ChunkTypeNumberedList
	}
	if bulletItemPattern.MatchString(line) {
		return model.ChunkTypeBulletList
	}
	if isHeaderLine(line) {
		return model.ChunkTypeHeader
	}
	return model.ChunkTypeParagraph
}

// isHeaderLine reports whether a line looks like a section heading: short,
// no terminal punctuation and markdown prefixed, all caps or title cased.
func isHeaderLine(line string) bool {
	if markdownHeaderPattern.MatchString(line) {
		return true
	}
	if utf8.RuneCountInString(line) > 80 {
		return false
	}
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 12 {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(line)
	if strings.ContainsRune(`.!?,;`, last) {
		return false
	}

	if line == strings.ToUpper(line) && strings.IndexFunc(line, unicode.IsLetter) >= 0 {
		return true
	}

	// Title case, short filler words may stay lowercase.
	first, _ := utf8.DecodeRuneInString(words[0])
	if !unicode.IsUpper(first) {
		return false
	}
	for _, word := range words[1:] {
		r, _ := utf8.DecodeRuneInString(word)
		if unicode.IsUpper(r) || utf8.RuneCountInString(word) <= 3 {
			continue
		}
		return false
	}
	return true
}

// splitBlocks groups classified lines into structural blocks. Consecutive
// list items of the same kind form one block, prose lines accumulate until
// a blank line, headers always stand alone. Paragraph lines are joined with
// spaces so hard wrapped prose reads continuously, list items keep their
// line breaks.
func splitBlocks(text string, page int) []block {
	lines := strings.Split(text, "\n")
	blocks := []block{}
	var current []string
	var currentType model.ChunkType

	flush := func() {
		if len(current) == 0 {
			return
		}
		separator := "\n"
		if currentType == model.ChunkTypeParagraph {
			separator = " "
		}
		blocks = append(blocks, block{text: strings.Join(current, separator), typ: currentType, page: page})
		current = nil
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		lineType := classifyLine(line)
		switch lineType {
		case model.ChunkTypeHeader:
			flush()
			blocks = append(blocks, block{text: line, typ: model.ChunkTypeHeader, page: page})
		default:
			if len(current) > 0 && currentType != lineType {
				flush()
			}
			currentType = lineType
			current = append(current, line)
		}
	}
	flush()

	return blocks
}

// pack assembles blocks into windows no longer than the chunk size. Blocks
// that fit together share a window, oversized blocks are split at natural
// boundaries with overlap between the pieces.
func (c *Chunker) pack(blocks []block) []window {
	windows := []window{}
	var parts []block
	var size int

	flush := func() {
		if len(parts) == 0 {
			return
		}
		texts := make([]string, len(parts))
		for i, part := range parts {
			texts[i] = part.text
		}
		windows = append(windows, window{
			text: strings.Join(texts, "\n\n"),
			typ:  dominantType(parts),
			page: parts[0].page,
		})
		parts = nil
		size = 0
	}

	for _, b := range blocks {
		blockLength := utf8.RuneCountInString(b.text)

		if blockLength > c.config.ChunkSize {
			flush()
			for _, piece := range c.split(b.text) {
				windows = append(windows, window{text: piece, typ: b.typ, page: b.page})
			}
			continue
		}

		// The joining blank line costs two characters.
		if size > 0 && size+2+blockLength > c.config.ChunkSize {
			flush()
		}
		if len(parts) > 0 {
			size += 2
		}
		parts = append(parts, b)
		size += blockLength
	}
	flush()

	return windows
}

// dominantType is the type of the block contributing the most characters,
// ties go to the earlier block.
func dominantType(parts []block) model.ChunkType {
	dominant := parts[0].typ
	longest := utf8.RuneCountInString(parts[0].text)
	for _, part := range parts[1:] {
		length := utf8.RuneCountInString(part.text)
		if length > longest {
			dominant = part.typ
			longest = length
		}
	}
	return dominant
}

// split cuts an oversized block into pieces of at most the chunk size. Each
// cut lands on the best boundary available, consecutive pieces overlap by
// the configured amount snapped to a word start.
func (c *Chunker) split(text string) []string {
	runes := []rune(text)
	pieces := []string{}
	start := 0

	for start < len(runes) {
		if len(runes)-start <= c.config.ChunkSize {
			piece := strings.TrimSpace(string(runes[start:]))
			if piece != "" {
				pieces = append(pieces, piece)
			}
			break
		}

		cut := bestBoundary(runes[start:start+c.config.ChunkSize], c.config.ChunkSize/2)
		piece := strings.TrimSpace(string(runes[start : start+cut]))
		if piece != "" {
			pieces = append(pieces, piece)
		}

		next := start + cut - c.config.Overlap
		if next <= start {
			next = start + cut
		}
		next = snapToWordStart(runes, next, start+cut)
		if next <= start {
			next = start + cut
		}
		start = next
	}

	return pieces
}

// bestBoundary finds the cut position in the window, preferring paragraph
// breaks over line breaks over sentence ends over clause ends over word
// boundaries. Cuts before minCut are ignored so pieces keep a useful size,
// with no boundary at all the cut is a hard one at the window end.
func bestBoundary(window []rune, minCut int) int {
	for i := len(window) - 1; i > minCut; i-- {
		if window[i] == '\n' && window[i-1] == '\n' {
			return i - 1
		}
	}
	for i := len(window) - 1; i > minCut; i-- {
		if window[i] == '\n' {
			return i
		}
	}
	for i := len(window) - 2; i > minCut; i-- {
		if (window[i] == '.' || window[i] == '!' || window[i] == '?') && window[i+1] == ' ' {
			return i + 1
		}
	}
	for i := len(window) - 2; i > minCut; i-- {
		if (window[i] == ',' || window[i] == ';' || window[i] == ':') && window[i+1] == ' ' {
			return i + 1
		}
	}
	for i := len(window) - 1; i > minCut; i-- {
		if window[i] == ' ' {
			return i
		}
	}
	return len(window)
}

// snapToWordStart moves the position forward until it sits on the first
// rune of a word, never past the limit.
func snapToWordStart(runes []rune, pos int, limit int) int {
	for pos > 0 && pos < limit && !unicode.IsSpace(runes[pos-1]) {
		pos++
	}
	for pos < limit && unicode.IsSpace(runes[pos]) {
		pos++
	}
	return pos
}
