package pipeline

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/siherrmann/ragger/model"
)

// Patterns for terms that make a chunk worth retrieving: proper names,
// acronyms, quoted terms, definition phrasing and numbers with units.
var (
	capitalizedPhrasePattern = regexp.MustCompile(`\b(?:[A-Z][a-z]+\s+){1,3}[A-Z][a-z]+\b`)
	acronymPattern           = regexp.MustCompile(`\b[A-Z]{2,6}\b`)
	quotedTermPattern        = regexp.MustCompile(`"[^"]{2,60}"`)
	definitionPattern        = regexp.MustCompile(`(?i)\b(is defined as|is called|refers to|means|stands for|is known as)\b`)
	numberWithUnitPattern    = regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s?(%|€|\$|km|cm|mm|kg|mg|ms|GB|MB|KB|kB|GHz|MHz|°C|°F|years?|days?|hours?|minutes?|seconds?|euros?|dollars?)\b`)
	examplePattern           = regexp.MustCompile(`(?i)\b(for example|for instance|such as|e\.g\.|i\.e\.)\b`)
)

// importantTerms returns the distinct term categories found in the text.
// The count feeds the quality score, the categories themselves are useful
// for debugging why a chunk scored the way it did.
func importantTerms(text string) []string {
	found := []string{}
	if capitalizedPhrasePattern.MatchString(text) {
		found = append(found, "capitalized_phrase")
	}
	if acronymPattern.MatchString(text) {
		found = append(found, "acronym")
	}
	if quotedTermPattern.MatchString(text) {
		found = append(found, "quoted_term")
	}
	if definitionPattern.MatchString(text) {
		found = append(found, "definition")
	}
	if numberWithUnitPattern.MatchString(text) {
		found = append(found, "number_with_unit")
	}
	return found
}

// qualityScore rates chunk text in [0,1]. Well formed prose with useful
// terms scores high, fragments and symbol noise score low. The score is
// deterministic, the same text always rates the same.
func qualityScore(text string, chunkType model.ChunkType) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0.0
	}

	score := 0.5
	length := utf8.RuneCountInString(trimmed)

	// Length band, very short fragments carry little retrievable content.
	switch {
	case length < 80:
		score -= 0.15
	case length >= 200 && length < 1000:
		score += 0.10
	case length >= 1000:
		score += 0.05
	}

	// Symbol noise, tables of special characters and markup leftovers.
	density := specialCharDensity(trimmed)
	switch {
	case density > 0.30:
		score -= 0.25
	case density > 0.15:
		score -= 0.10
	}

	// Sentence shape.
	firstRune, _ := utf8.DecodeRuneInString(trimmed)
	if unicode.IsUpper(firstRune) {
		score += 0.05
	}
	lastRune, _ := utf8.DecodeLastRuneInString(trimmed)
	if strings.ContainsRune(`.!?:"`, lastRune) {
		score += 0.05
	}

	// Retrievable terms.
	terms := importantTerms(trimmed)
	bonus := 0.04 * float64(len(terms))
	if bonus > 0.12 {
		bonus = 0.12
	}
	score += bonus

	// Structure markers.
	if chunkType == model.ChunkTypeNumberedList || chunkType == model.ChunkTypeBulletList {
		score += 0.10
	}
	if examplePattern.MatchString(trimmed) {
		score += 0.05
	}

	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}

// specialCharDensity is the share of runes that are neither letters, digits,
// whitespace nor common punctuation.
func specialCharDensity(text string) float64 {
	total := 0
	special := 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			continue
		}
		if strings.ContainsRune(`.,;:!?'"()-`, r) {
			continue
		}
		special++
	}
	if total == 0 {
		return 0.0
	}
	return float64(special) / float64(total)
}
