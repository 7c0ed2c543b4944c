package service

import (
	"regexp"
	"strings"
)

const minSentenceLen = 15

// Fragments end at sentence punctuation followed by whitespace, or at a
// blank line.
var sentenceBoundary = regexp.MustCompile(`(?:[.!?])\s+|\n{2,}`)

// SplitSentences breaks extracted document text into sentence-like
// fragments and drops fragments shorter than minLen characters. The
// terminating punctuation is consumed by the split; the surviving text
// is what gets embedded.
func SplitSentences(text string, minLen int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if minLen <= 0 {
		minLen = minSentenceLen
	}
	raw := splitKeepPunct(text)
	sentences := make([]string, 0, len(raw))
	for _, fragment := range raw {
		fragment = strings.TrimSpace(fragment)
		if len(fragment) >= minLen {
			sentences = append(sentences, fragment)
		}
	}
	return sentences
}

// splitKeepPunct splits on boundaries while keeping the sentence-ending
// punctuation attached to the preceding fragment.
func splitKeepPunct(text string) []string {
	locs := sentenceBoundary.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	parts := make([]string, 0, len(locs)+1)
	start := 0
	for _, loc := range locs {
		end := loc[0]
		// keep a trailing '.', '!' or '?' with its sentence
		if end < len(text) && isSentencePunct(text[end]) {
			end++
		}
		parts = append(parts, text[start:end])
		start = loc[1]
	}
	parts = append(parts, text[start:])
	return parts
}

func isSentencePunct(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}
