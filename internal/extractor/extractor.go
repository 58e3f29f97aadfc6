// Package extractor defines the extraction contract (spec §4.1) and two
// concrete adapters (plain text, HTML) that the ingestion pipeline can use
// directly. PDF, OCR, and layout-aware extraction are external collaborators
// per spec §1; HostExtractor lets the caller plug one in without the core
// reaching inside its internals.
package extractor

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ragd-project/ragd/internal/ragerr"
)

// Hints are optional extraction directives a caller may supply.
type Hints struct {
	LayoutAware bool
	OCRFallback bool
	MinImageDim int
}

// Page is one page's worth of extracted text.
type Page struct {
	Number int
	Text   string
}

// Result is the contract's output: normalized text, per-page slices, and
// document metadata (spec §4.1).
type Result struct {
	Text             string
	Pages            []Page
	Metadata         map[string]string
	ExtractionMethod string
	Success          bool
	Err              error
}

// Extractor transforms a source file into a Result.
type Extractor interface {
	// SupportedExtensions lists the lowercase extensions this extractor
	// handles, including the leading dot (e.g. ".txt").
	SupportedExtensions() []string
	Extract(ctx context.Context, path string, hints Hints) (*Result, error)
}

// Registry dispatches by file extension, falling back across extractors in
// registration order so the pipeline can retry with a fallback (spec §4.1).
type Registry struct {
	extractors []Extractor
}

// NewRegistry builds a registry with the plaintext and HTML adapters plus
// any host-supplied extractors (PDF, OCR, layout-aware), tried in order.
func NewRegistry(extra ...Extractor) *Registry {
	r := &Registry{extractors: []Extractor{&PlainTextExtractor{}, &HTMLExtractor{}}}
	r.extractors = append(r.extractors, extra...)
	return r
}

// Extract finds the first registered extractor claiming path's extension
// and runs it; on failure it tries the remaining claimants as fallbacks.
func (r *Registry) Extract(ctx context.Context, path string, hints Hints) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, ragerr.New(ragerr.ErrCodeFileNotFound, "source file not found: "+path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var candidates []Extractor
	for _, e := range r.extractors {
		for _, supported := range e.SupportedExtensions() {
			if supported == ext {
				candidates = append(candidates, e)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return nil, ragerr.New(ragerr.ErrCodeExtractFailed, "no extractor registered for "+ext, nil).
			WithSuggestion("register a host extractor for this file type")
	}

	var lastErr error
	for _, e := range candidates {
		res, err := e.Extract(ctx, path, hints)
		if err == nil && res.Success {
			return res, nil
		}
		lastErr = err
	}
	return nil, ragerr.New(ragerr.ErrCodeExtractFailed, "all extractors failed for "+path, lastErr)
}
