// Package contextbuilder assembles retrieved chunks into prompt-ready
// context under a token budget, grouped by document with a standing
// citation instruction (spec §4.8).
package contextbuilder

import (
	"fmt"
	"strings"

	"github.com/ragd-project/ragd/internal/searcher"
)

// CharsPerToken is the character-per-token approximation used throughout
// budgeting (spec §4.8: tokens ≈ chars/4).
const CharsPerToken = 4

// DefaultMinRelevance is the relevance floor below which a result never
// enters the context window (spec glossary: "Relevance threshold").
const DefaultMinRelevance = 0.3

// NoContextMessage is returned verbatim when no results survive filtering
// (spec §8 scenario 1).
const NoContextMessage = "[No relevant context found]"

const citationInstruction = "When referencing retrieved context, cite sources using bracketed numbers " +
	"matching the list below, e.g. [1] for a single source or [1;2] for multiple.\n\n"

// Options configures one context-assembly call.
type Options struct {
	MaxTokens      int
	ReservedTokens int
	MaxResults     int // 0 = unbounded; admission still stops at the char budget
	MinRelevance   float64
}

// Citation is one deduplicated, ordered reference into the context.
type Citation struct {
	Index      int
	DocumentID string
	Name       string
}

// Build implements spec §4.8's algorithm: filter by relevance, greedily
// admit under the character budget (and MaxResults, if set), group by
// document, and emit a formatted block with a citation instruction header.
func Build(results []searcher.HybridSearchResult, opts Options) (string, []Citation) {
	if opts.MinRelevance <= 0 {
		opts.MinRelevance = DefaultMinRelevance
	}

	filtered := make([]searcher.HybridSearchResult, 0, len(results))
	for _, r := range results {
		if r.CombinedScore >= opts.MinRelevance {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return NoContextMessage, nil
	}

	budgetChars := (opts.MaxTokens - opts.ReservedTokens) * CharsPerToken
	if budgetChars < 0 {
		budgetChars = 0
	}

	admitted := make([]searcher.HybridSearchResult, 0, len(filtered))
	used := 0
	for _, r := range filtered {
		if opts.MaxResults > 0 && len(admitted) >= opts.MaxResults {
			break
		}
		cost := len(r.Content)
		if used > 0 {
			cost += len(chunkSeparator)
		}
		if used+cost > budgetChars && len(admitted) > 0 {
			break
		}
		admitted = append(admitted, r)
		used += cost
	}
	if len(admitted) == 0 {
		return NoContextMessage, nil
	}

	groups, order := groupByDocument(admitted)

	var b strings.Builder
	b.WriteString(citationInstruction)

	citations := make([]Citation, 0, len(order))
	for i, docKey := range order {
		idx := i + 1
		g := groups[docKey]
		citations = append(citations, Citation{Index: idx, DocumentID: g.documentID, Name: g.name})

		b.WriteString(fmt.Sprintf("[%d] %s%s\n", idx, g.name, locationSuffix(g)))
		contents := make([]string, len(g.chunks))
		for j, c := range g.chunks {
			contents[j] = c.Content
		}
		b.WriteString(strings.Join(contents, chunkSeparator))
		b.WriteString("\n\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n", citations
}

const chunkSeparator = "\n\n[...]\n\n"

type docGroup struct {
	documentID string
	name       string
	chunks     []searcher.HybridSearchResult
	pages      []string
	avgScore   float64
}

func groupByDocument(results []searcher.HybridSearchResult) (map[string]*docGroup, []string) {
	groups := make(map[string]*docGroup)
	var order []string

	for _, r := range results {
		key := r.DocumentID
		if key == "" {
			key = r.DocumentName
		}
		g, ok := groups[key]
		if !ok {
			g = &docGroup{documentID: r.DocumentID, name: r.DocumentName}
			groups[key] = g
			order = append(order, key)
		}
		g.chunks = append(g.chunks, r)
		if r.Location != "" {
			g.pages = append(g.pages, r.Location)
		}
	}

	for _, g := range groups {
		var sum float64
		for _, c := range g.chunks {
			sum += c.CombinedScore
		}
		g.avgScore = sum / float64(len(g.chunks))
	}

	return groups, order
}

func locationSuffix(g *docGroup) string {
	var parts []string
	if len(g.pages) > 0 {
		parts = append(parts, strings.Join(dedupe(g.pages), "-"))
	}
	parts = append(parts, fmt.Sprintf("avg_score=%.2f", g.avgScore))
	return ", " + strings.Join(parts, ", ")
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// TokenBudget allocates tokens between conversation history and retrieved
// context (spec §4.8), preferring context when the naive split would
// starve either floor.
type TokenBudget struct {
	HistoryRatio float64
	MinHistory   int
	MinContext   int
}

// Allocate splits total tokens into (historyTokens, contextTokens).
func (b TokenBudget) Allocate(total int) (history, context int) {
	history = int(float64(total) * b.HistoryRatio)
	context = total - history

	if history < b.MinHistory {
		history = b.MinHistory
	}
	if context < b.MinContext {
		deficit := b.MinContext - context
		context = b.MinContext
		history -= deficit
		if history < 0 {
			history = 0
		}
	}
	return history, context
}
