package extractor

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/ragd-project/ragd/internal/ragerr"
)

// HTMLExtractor strips markup with stdlib regexp rather than a DOM parser;
// see DESIGN.md for why no third-party HTML library is wired.
type HTMLExtractor struct{}

var (
	scriptStylePattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagPattern         = regexp.MustCompile(`(?s)<[^>]+>`)
	titlePattern       = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	multiSpacePattern  = regexp.MustCompile(`[ \t]+`)
	multiBlankPattern  = regexp.MustCompile(`\n{3,}`)

	htmlEntities = strings.NewReplacer(
		"&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
	)
)

func (e *HTMLExtractor) SupportedExtensions() []string {
	return []string{".html", ".htm"}
}

func (e *HTMLExtractor) Extract(ctx context.Context, path string, hints Hints) (*Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return &Result{Success: false, Err: err}, ragerr.New(ragerr.ErrCodeFileNotFound, "cannot read "+path, err)
	}

	html := string(raw)
	var title string
	if m := titlePattern.FindStringSubmatch(html); m != nil {
		title = strings.TrimSpace(htmlEntities.Replace(m[1]))
	}

	stripped := scriptStylePattern.ReplaceAllString(html, "")
	stripped = tagPattern.ReplaceAllString(stripped, "\n")
	stripped = htmlEntities.Replace(stripped)
	stripped = multiSpacePattern.ReplaceAllString(stripped, " ")
	stripped = multiBlankPattern.ReplaceAllString(stripped, "\n\n")
	text := normalizeText(strings.TrimSpace(stripped))

	meta := map[string]string{
		"file_type":   "html",
		"source_path": path,
		"page_count":  "1",
	}
	if title != "" {
		meta["title"] = title
	}

	return &Result{
		Text:             text,
		Pages:            []Page{{Number: 1, Text: text}},
		Metadata:         meta,
		ExtractionMethod: "html",
		Success:          true,
	}, nil
}
