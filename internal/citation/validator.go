package citation

import (
	"context"
	"math"
	"regexp"
	"strings"
)

// Status is the outcome of validating one citation against its source.
type Status string

const (
	StatusValid       Status = "VALID"
	StatusWeak        Status = "WEAK"
	StatusInvalid     Status = "INVALID"
	StatusOutOfRange  Status = "OUT_OF_RANGE"
)

// Mode controls how a caller should react to a validation report
// (spec §4.9): WARN reports only, FILTER lets the caller drop invalid
// markers, STRICT flags the whole response.
type Mode string

const (
	ModeWarn   Mode = "WARN"
	ModeFilter Mode = "FILTER"
	ModeStrict Mode = "STRICT"
)

// SemanticEmbedder is the minimal capability the validator needs for its
// optional semantic-similarity step (spec §4.9 step 3).
type SemanticEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Source is one entry in the citation list presented to the generator,
// 1-indexed by the caller's convention.
type Source struct {
	Preview string
}

// Validation is the per-marker outcome.
type Validation struct {
	Index      int
	Status     Status
	Confidence float64
	ClaimText  string
}

// ValidationReport aggregates all per-marker validations for one response.
type ValidationReport struct {
	Validations       []Validation
	UnusedCitations   []int
	OverallConfidence float64
	HasHallucinations bool
}

var wordPattern = regexp.MustCompile(`[a-z]+`)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "can": true, "her": true, "was": true, "one": true,
	"our": true, "out": true, "day": true, "get": true, "has": true, "him": true,
	"his": true, "how": true, "man": true, "new": true, "now": true, "old": true,
	"see": true, "two": true, "way": true, "who": true, "boy": true, "did": true,
	"its": true, "let": true, "put": true, "say": true, "she": true, "too": true,
	"use": true, "that": true, "this": true, "with": true, "from": true, "they": true,
	"have": true, "were": true, "been": true, "their": true, "which": true,
}

const (
	keywordValidThreshold = 0.30
	keywordWeakThreshold  = 0.15
	semanticValidThreshold = 0.70
	semanticWeakThreshold  = 0.50
)

// Validate checks each extracted citation's claim against the cited
// source's preview text, per spec §4.9's five-step algorithm. semantic may
// be nil to skip step 3 entirely.
func Validate(ctx context.Context, citations []ExtractedCitation, sources []Source, semantic SemanticEmbedder) ValidationReport {
	var report ValidationReport
	used := make(map[int]bool)

	for _, c := range citations {
		for _, idx := range c.CitationIndices {
			used[idx] = true
			v := validateOne(ctx, idx, c.ClaimText, sources, semantic)
			report.Validations = append(report.Validations, v)
			if v.Status == StatusInvalid || v.Status == StatusOutOfRange {
				report.HasHallucinations = true
			}
		}
	}

	for i := 1; i <= len(sources); i++ {
		if !used[i] {
			report.UnusedCitations = append(report.UnusedCitations, i)
		}
	}

	if len(report.Validations) == 0 {
		report.OverallConfidence = 1.0
		return report
	}
	var sum float64
	for _, v := range report.Validations {
		sum += v.Confidence
	}
	report.OverallConfidence = sum / float64(len(report.Validations))
	return report
}

func validateOne(ctx context.Context, index int, claim string, sources []Source, semantic SemanticEmbedder) Validation {
	if index < 1 || index > len(sources) {
		return Validation{Index: index, Status: StatusOutOfRange, Confidence: 0, ClaimText: claim}
	}
	preview := sources[index-1].Preview

	overlap := keywordOverlap(claim, preview)
	if overlap >= keywordValidThreshold {
		return Validation{Index: index, Status: StatusValid, Confidence: math.Min(1.0, overlap+0.3), ClaimText: claim}
	}

	var semScore float64
	haveSemantic := false
	if semantic != nil {
		if sim, ok := semanticSimilarity(ctx, semantic, claim, preview); ok {
			semScore = sim
			haveSemantic = true
		}
	}

	if haveSemantic {
		if semScore >= semanticValidThreshold {
			return Validation{Index: index, Status: StatusValid, Confidence: semScore, ClaimText: claim}
		}
		if semScore >= semanticWeakThreshold {
			return Validation{Index: index, Status: StatusWeak, Confidence: 0.8 * semScore, ClaimText: claim}
		}
	}

	if overlap >= keywordWeakThreshold {
		return Validation{Index: index, Status: StatusWeak, Confidence: overlap + 0.2, ClaimText: claim}
	}

	best := overlap
	if haveSemantic && semScore > best {
		best = semScore
	}
	return Validation{Index: index, Status: StatusInvalid, Confidence: 0.3 * best, ClaimText: claim}
}

func keywordOverlap(claim, preview string) float64 {
	claimTokens := tokenize(claim)
	if len(claimTokens) == 0 {
		return 0
	}
	previewSet := make(map[string]bool)
	for _, t := range tokenize(preview) {
		previewSet[t] = true
	}
	matched := 0
	for _, t := range claimTokens {
		if previewSet[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(claimTokens))
}

func tokenize(s string) []string {
	words := wordPattern.FindAllString(strings.ToLower(s), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) >= 3 && !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

func semanticSimilarity(ctx context.Context, embedder SemanticEmbedder, a, b string) (float64, bool) {
	vecs, err := embedder.EmbedBatch(ctx, []string{a, b})
	if err != nil || len(vecs) != 2 {
		return 0, false
	}
	return cosineSimilarity(vecs[0], vecs[1]), true
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
