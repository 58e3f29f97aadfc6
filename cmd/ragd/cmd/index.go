package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragd-project/ragd/internal/chunker"
	"github.com/ragd-project/ragd/internal/extractor"
	"github.com/ragd-project/ragd/internal/ingest"
)

func newIndexCmd() *cobra.Command {
	var (
		recursive  bool
		force      bool
		project    string
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "index <path>...",
		Short: "Index one or more documents or directories",
		Long: `Extract, chunk, embed, and persist the given documents.

Content already seen (by SHA-256 hash) is skipped unless --force is set.
An interrupted run can be continued by running index again: a checkpoint
is saved after every document and cleared once the run completes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args, recursive, force, project, workers)
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Recurse into directory arguments")
	cmd.Flags().BoolVar(&force, "force", false, "Reindex even if content hash already exists")
	cmd.Flags().StringVar(&project, "project", "", "Project label attached to indexed documents")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent extraction workers (default: 4)")

	return cmd
}

func runIndex(cmd *cobra.Command, args []string, recursive, force bool, project string, workers int) error {
	cfg, err := openConfig()
	if err != nil {
		return err
	}

	dir, err := dataDir()
	if err != nil {
		return err
	}
	if err := ensureDataDir(dir); err != nil {
		return err
	}

	paths, err := resolvePaths(args, recursive)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no indexable files found")
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

	ch := chunker.New(cfg.Chunking.Strategy, chunker.Options{
		ChunkSize:    cfg.Chunking.ChunkSize,
		Overlap:      cfg.Chunking.Overlap,
		MinChunkSize: cfg.Chunking.MinChunkSize,
	}.WithDefaults())

	pipeline := ingest.New(vectors, keywords, metadata, extractor.NewRegistry(), ch, embedder, filepath.Join(dir, lockFileName)).
		WithCheckpoint(filepath.Join(dir, checkpointName))

	out := cmd.OutOrStdout()
	opts := ingest.Options{
		Recursive:      recursive,
		SkipDuplicates: !force,
		ExtractWorkers: workers,
		Project:        project,
		Progress: func(done, total int) {
			fmt.Fprintf(out, "\r%d/%d documents indexed", done, total)
			if done == total {
				fmt.Fprintln(out)
			}
		},
	}

	results, err := pipeline.Index(cmd.Context(), paths, opts)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}

	var succeeded, skipped, failed int
	for _, r := range results {
		switch {
		case r.Error != nil:
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s: %v\n", r.Path, r.Error)
		case r.Skipped:
			skipped++
		default:
			succeeded++
		}
	}

	fmt.Fprintf(out, "indexed %d, skipped %d, failed %d (of %d total)\n", succeeded, skipped, failed, len(results))
	if failed > 0 {
		return fmt.Errorf("%d document(s) failed to index", failed)
	}
	return nil
}

// resolvePaths expands directory arguments into concrete file paths,
// leaving file arguments untouched.
func resolvePaths(args []string, recursive bool) ([]string, error) {
	var out []string
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolve path %q: %w", arg, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("access path %q: %w", arg, err)
		}
		if info.IsDir() {
			files, err := ingest.ListFiles(abs, recursive)
			if err != nil {
				return nil, err
			}
			out = append(out, files...)
			continue
		}
		out = append(out, abs)
	}
	return out, nil
}
