// Package hash provides the content hashing used for deduplication. Raw
// bytes are hashed streaming, text is normalized first so that formatting
// differences do not defeat duplicate detection.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"github.com/siherrmann/ragger/helper"
)

// HashBytes returns the hex encoded sha256 digest of the reader contents.
// The reader is consumed in constant memory.
func HashBytes(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", helper.NewError("hashing bytes", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NormalizeText lowercases the text, collapses all whitespace runs to single
// spaces and trims the result.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// HashNormalizedText returns the hex encoded sha256 digest of the normalized
// text. Two texts that differ only in case or whitespace hash identically.
func HashNormalizedText(s string) string {
	sum := sha256.Sum256([]byte(NormalizeText(s)))
	return hex.EncodeToString(sum[:])
}
