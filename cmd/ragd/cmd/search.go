package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragd-project/ragd/internal/config"
	"github.com/ragd-project/ragd/internal/contextbuilder"
	"github.com/ragd-project/ragd/internal/searcher"
	"github.com/ragd-project/ragd/internal/store"
)

func newSearchCmd() *cobra.Command {
	var (
		limit      int
		mode       string
		project    string
		tags       []string
		format     string
		buildContext bool
		maxTokens  int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed corpus",
		Long: `Run the hybrid searcher (keyword + semantic, fused by a weighted
score sum, with reciprocal rank fusion breaking ties) against the indexed
corpus and print the ranked results.

Pass --context to assemble a citation-annotated, token-budgeted context
block instead of a bare result list, the same shape the retrieval core
hands to a downstream LLM.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, searchFlags{
				limit: limit, mode: mode, project: project, tags: tags,
				format: format, buildContext: buildContext, maxTokens: maxTokens,
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&mode, "mode", "m", "hybrid", "Search mode: hybrid, semantic, keyword")
	cmd.Flags().StringVar(&project, "project", "", "Filter by project label")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Filter by tags (document must carry every tag)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&buildContext, "context", false, "Assemble a citation-annotated context block instead of a result list")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 8000, "Token budget for --context")

	return cmd
}

type searchFlags struct {
	limit        int
	mode         string
	project      string
	tags         []string
	format       string
	buildContext bool
	maxTokens    int
}

func runSearch(cmd *cobra.Command, query string, flags searchFlags) error {
	cfg, err := openConfig()
	if err != nil {
		return err
	}

	dir, err := dataDir()
	if err != nil {
		return err
	}
	metadataPath := filepath.Join(dir, metadataFileName)
	if !fileExists(metadataPath) {
		return fmt.Errorf("no index found in %s, run 'ragd index' first", dir)
	}

	embedder := openEmbedder(cfg)
	defer func() { _ = embedder.Close() }()

	vectors, err := openVectorStore(dir, embedder.Dimension())
	if err != nil {
		return err
	}
	defer func() { _ = vectors.Close() }()

	keywords, err := openKeywordStore(dir)
	if err != nil {
		return err
	}
	defer func() { _ = keywords.Close() }()

	metadata, err := openMetadataStore(dir)
	if err != nil {
		return err
	}
	defer func() { _ = metadata.Close() }()

	engine := searcher.New(vectors, keywords, metadata, embedder)

	opts := searcher.Options{
		Mode:    parseMode(flags.mode),
		Limit:   flags.limit,
		Weights: searcher.Weights{Semantic: cfg.Search.SemanticWeight, Keyword: cfg.Search.KeywordWeight},
		RRFK:    cfg.Search.RRFK,
		Filter:  store.MetadataFilter{Project: flags.project, Tags: flags.tags},
	}

	results, err := engine.Search(cmd.Context(), query, opts)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if flags.buildContext {
		return printContext(cmd, results, flags, cfg)
	}
	return printResults(cmd, results, flags.format)
}

func parseMode(s string) searcher.Mode {
	switch strings.ToLower(s) {
	case "semantic":
		return searcher.ModeSemantic
	case "keyword":
		return searcher.ModeKeyword
	default:
		return searcher.ModeHybrid
	}
}

func printResults(cmd *cobra.Command, results []searcher.HybridSearchResult, format string) error {
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "%d. %s (score: %.3f)\n", i+1, r.DocumentName, r.CombinedScore)
		fmt.Fprintln(out, "   "+firstLine(r.Content))
	}
	return nil
}

func printContext(cmd *cobra.Command, results []searcher.HybridSearchResult, flags searchFlags, cfg *config.Config) error {
	block, citations := contextbuilder.Build(results, contextbuilder.Options{
		MaxTokens:      flags.maxTokens,
		ReservedTokens: cfg.Retrieval.ReservedTokens,
		MaxResults:     cfg.Retrieval.MaxResults,
		MinRelevance:   cfg.Retrieval.MinRelevance,
	})
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, block)
	for _, c := range citations {
		fmt.Fprintf(out, "[%d] %s (%s)\n", c.Index, c.Name, c.DocumentID)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

