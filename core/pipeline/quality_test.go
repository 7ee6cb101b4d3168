package pipeline

import (
	"strings"
	"testing"

	"github.com/siherrmann/ragger/model"
	"github.com/stretchr/testify/assert"
)

func TestQualityScore(t *testing.T) {
	t.Run("score stays within bounds", func(t *testing.T) {
		texts := []string{
			"",
			"x",
			"A perfectly normal sentence about the European Union budget of 2024.",
			strings.Repeat("@#$%^&* ", 50),
			strings.Repeat("This is a long and well formed sentence with useful content. ", 30),
		}
		for _, text := range texts {
			score := qualityScore(text, model.ChunkTypeParagraph)
			assert.GreaterOrEqual(t, score, 0.0, "Score should never drop below zero for %q", text)
			assert.LessOrEqual(t, score, 1.0, "Score should never exceed one for %q", text)
		}
	})

	t.Run("well formed prose beats symbol noise", func(t *testing.T) {
		prose := "The European Central Bank raised interest rates by 0.5 % in March. " +
			"This decision, known as quantitative tightening, affects all member states."
		noise := "|| ++ == <<>> {{}} @@ ## $$ %% ^^ && ** (( )) [[ ]] ~~ `` ||" +
			" ++ == <<>> {{}} @@ ## $$ %%"

		assert.Greater(t, qualityScore(prose, model.ChunkTypeParagraph), qualityScore(noise, model.ChunkTypeText),
			"Prose with terms should score higher than symbol noise")
	})

	t.Run("empty text scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, qualityScore("   ", model.ChunkTypeParagraph), "Whitespace only text should score zero")
	})

	t.Run("lists get a structure bonus", func(t *testing.T) {
		list := "1. first item of the enumeration\n2. second item of the enumeration\n3. third item of the enumeration"
		asList := qualityScore(list, model.ChunkTypeNumberedList)
		asText := qualityScore(list, model.ChunkTypeText)
		assert.Greater(t, asList, asText, "List chunks should score higher than the same text as plain text")
	})

	t.Run("deterministic", func(t *testing.T) {
		text := "The United Nations General Assembly adopted resolution 76/300 in July 2022."
		first := qualityScore(text, model.ChunkTypeParagraph)
		second := qualityScore(text, model.ChunkTypeParagraph)
		assert.Equal(t, first, second, "The same text should always score the same")
	})
}

func TestImportantTerms(t *testing.T) {
	t.Run("detects term categories", func(t *testing.T) {
		tests := []struct {
			text     string
			expected string
		}{
			{"The Treaty of Lisbon changed the voting rules.", "capitalized_phrase"},
			{"The GDPR applies to all processing of personal data.", "acronym"},
			{`The term "data controller" is central here.`, "quoted_term"},
			{"A chunk is defined as a contiguous span of text.", "definition"},
			{"The file weighs 42 MB on disk.", "number_with_unit"},
		}
		for _, test := range tests {
			terms := importantTerms(test.text)
			assert.Contains(t, terms, test.expected, "Text %q should contain the %v category", test.text, test.expected)
		}
	})

	t.Run("plain text has no terms", func(t *testing.T) {
		terms := importantTerms("just some lowercase words without anything special going on")
		assert.Empty(t, terms, "Plain lowercase text should have no important terms")
	})
}

func TestSpecialCharDensity(t *testing.T) {
	assert.Equal(t, 0.0, specialCharDensity("plain words only"), "Letters and spaces should have zero density")
	assert.Greater(t, specialCharDensity("@@@@ ####"), 0.5, "Symbol runs should have high density")
	assert.Equal(t, 0.0, specialCharDensity("Sentence, with common. punctuation!"), "Common punctuation should not count as special")
}
