package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Question is the immutable input of one query. Hash is derived from the
// case-folded, whitespace-collapsed text and is used for cache keys and
// log correlation.
type Question struct {
	Text string `json:"text"`
	Hash string `json:"hash"`
}

// NewQuestion builds a Question with its normalized hash.
func NewQuestion(text string) Question {
	return Question{
		Text: text,
		Hash: NormalizedHash(text),
	}
}

// NormalizedHash returns the sha256 hex digest of the normalized question text.
func NormalizedHash(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
