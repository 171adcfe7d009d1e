// Package verify re-checks the reasoning output claim by claim against
// the evidence set, independently of the agent that produced it.
package verify

import (
	"fmt"
	"strings"

	"github.com/avolkov/quaero/internal/model"
	"github.com/avolkov/quaero/internal/reason"
)

// DecomposeClaims splits an accepted (non-abstention) answer into
// sentence-level claims, each carrying the citations found in that
// sentence. Abstentions produce no claims.
func DecomposeClaims(answer string) []model.Claim {
	if strings.HasPrefix(strings.TrimSpace(answer), reason.AbstentionMarker) {
		return nil
	}

	var claims []model.Claim
	for i, sentence := range splitSentences(answer) {
		text := strings.TrimSpace(sentence)
		if text == "" {
			continue
		}
		// A bare citation reference is not an assertion by itself.
		if strings.TrimSpace(stripCitations(text)) == "" {
			continue
		}
		claims = append(claims, model.Claim{
			ID:        fmt.Sprintf("c%d", len(claims)+1),
			Text:      text,
			Citations: reason.ExtractCitations(text),
			Sentence:  i,
		})
	}
	return claims
}

// splitSentences breaks text on sentence-ending punctuation, keeping
// trailing citation brackets attached to their sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		current.WriteRune(ch)

		if ch != '.' && ch != '!' && ch != '?' && ch != '\n' {
			continue
		}
		// Not a boundary inside a number like "3.14".
		if ch == '.' && i+1 < len(runes) && runes[i+1] >= '0' && runes[i+1] <= '9' {
			continue
		}
		// Pull a citation that directly follows the terminator into this
		// sentence: "…42. [Source s1]" stays one claim.
		j := i + 1
		for j < len(runes) && runes[j] == ' ' {
			j++
		}
		if j < len(runes) && runes[j] == '[' {
			for j < len(runes) && runes[j] != ']' {
				current.WriteRune(runes[j])
				j++
			}
			if j < len(runes) {
				current.WriteRune(']')
				j++
			}
			i = j - 1
		}

		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func stripCitations(text string) string {
	out := text
	for {
		start := strings.Index(out, "[Source")
		if start < 0 {
			return out
		}
		end := strings.Index(out[start:], "]")
		if end < 0 {
			return out[:start]
		}
		out = out[:start] + out[start+end+1:]
	}
}
