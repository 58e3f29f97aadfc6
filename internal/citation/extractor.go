// Package citation extracts citation markers from generated text and
// validates each against the chunk it claims to cite (spec §4.9).
package citation

import (
	"regexp"
	"strconv"
	"strings"
)

// markerPattern matches bracketed citation markers like [1] or [1;2;3].
var markerPattern = regexp.MustCompile(`\[\d+(;\d+)*\]`)

// sentenceBoundary approximates a sentence break for claim-text extraction.
var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// ExtractedCitation is one marker found in generated text, with the
// surrounding claim and its expanded indices (spec §4.9).
type ExtractedCitation struct {
	MarkerText      string
	CitationIndices []int
	ClaimText       string
	CharStart       int
	CharEnd         int
}

// Extract scans text for citation markers and returns one ExtractedCitation
// per match, with claim_text stripped of all markers.
func Extract(text string) []ExtractedCitation {
	matches := markerPattern.FindAllStringIndex(text, -1)
	out := make([]ExtractedCitation, 0, len(matches))

	for _, m := range matches {
		start, end := m[0], m[1]
		marker := text[start:end]
		indices := parseIndices(marker)
		claim := stripMarkers(sentenceAround(text, start, end))

		out = append(out, ExtractedCitation{
			MarkerText:      marker,
			CitationIndices: indices,
			ClaimText:       claim,
			CharStart:       start,
			CharEnd:         end,
		})
	}
	return out
}

func parseIndices(marker string) []int {
	inner := strings.Trim(marker, "[]")
	parts := strings.Split(inner, ";")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// sentenceAround returns the sentence containing [start,end), using
// sentenceBoundary as an approximate delimiter.
func sentenceAround(text string, start, end int) string {
	lo := 0
	for _, idx := range sentenceBoundary.FindAllStringIndex(text[:start], -1) {
		lo = idx[1]
	}
	hi := len(text)
	if loc := sentenceBoundary.FindStringIndex(text[end:]); loc != nil {
		hi = end + loc[0] + 1
	}
	if hi < lo {
		hi = len(text)
	}
	return text[lo:hi]
}

func stripMarkers(s string) string {
	return strings.TrimSpace(markerPattern.ReplaceAllString(s, ""))
}
