package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// StatusInfo reports the health of the on-disk index for one data directory.
type StatusInfo struct {
	DataDir       string `json:"data_dir"`
	DocumentCount int    `json:"document_count"`
	ChunkCount    int    `json:"chunk_count"`
	MetadataBytes int64  `json:"metadata_bytes"`
	VectorBytes   int64  `json:"vector_bytes"`
	KeywordBytes  int64  `json:"keyword_bytes"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health: document/chunk counts and storage sizes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	dir, err := dataDir()
	if err != nil {
		return err
	}
	metadataPath := filepath.Join(dir, metadataFileName)
	if !fileExists(metadataPath) {
		return fmt.Errorf("no index found in %s, run 'ragd index' first", dir)
	}

	metadata, err := openMetadataStore(dir)
	if err != nil {
		return err
	}
	defer func() { _ = metadata.Close() }()

	keywords, err := openKeywordStore(dir)
	if err != nil {
		return err
	}
	defer func() { _ = keywords.Close() }()

	info := StatusInfo{
		DataDir:       dir,
		DocumentCount: metadata.Count(),
		ChunkCount:    keywords.Count(),
		MetadataBytes: fileSize(metadataPath),
		VectorBytes:   fileSize(filepath.Join(dir, vectorFileName)),
		KeywordBytes:  dirSize(filepath.Join(dir, keywordDirName)),
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "data dir:   %s\n", info.DataDir)
	fmt.Fprintf(out, "documents:  %d\n", info.DocumentCount)
	fmt.Fprintf(out, "chunks:     %d\n", info.ChunkCount)
	fmt.Fprintf(out, "metadata:   %d bytes\n", info.MetadataBytes)
	fmt.Fprintf(out, "vectors:    %d bytes\n", info.VectorBytes)
	fmt.Fprintf(out, "keyword:    %d bytes\n", info.KeywordBytes)
	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func dirSize(path string) int64 {
	var total int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
