package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragd-project/ragd/internal/deletion"
)

func newDeleteCmd() *cobra.Command {
	var (
		level     string
		yes       bool
		password  string
	)

	cmd := &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Remove a document from every store and record an audit entry",
		Long: `Remove a document's chunks from the vector and keyword stores and its
row from the metadata store, then append an entry to the deletion audit
log (never rolled back, even if the deletion itself fails partway).

Levels:
  standard       remove rows from all three stores (default)
  secure         standard, plus an immediate vector-store persist
  cryptographic  secure; requires --yes and --password. This command
                 configures no key registry, so no encryption key is
                 rotated`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, args[0], level, yes, password)
		},
	}

	cmd.Flags().StringVar(&level, "level", "standard", "Assurance level: standard, secure, cryptographic")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm a cryptographic deletion")
	cmd.Flags().StringVar(&password, "password", "", "Password required for cryptographic deletion")

	return cmd
}

func runDelete(cmd *cobra.Command, documentID, level string, yes bool, password string) error {
	dir, err := dataDir()
	if err != nil {
		return err
	}
	metadataPath := filepath.Join(dir, metadataFileName)
	if !fileExists(metadataPath) {
		return fmt.Errorf("no index found in %s", dir)
	}

	cfg, err := openConfig()
	if err != nil {
		return err
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

	var auditPath string
	if cfg.Deletion.EnableAudit {
		auditPath = filepath.Join(dir, auditFileName)
	}

	engine := deletion.New(vectors, keywords, metadata, nil, auditPath)

	result, err := engine.Delete(cmd.Context(), deletion.Request{
		DocumentID: documentID,
		Level:      parseLevel(level),
		Confirmed:  yes,
		Password:   password,
	})
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	if err := vectors.Persist(cmd.Context()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to persist vector store: %v\n", err)
	}
	if err := keywords.Persist(cmd.Context()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to persist keyword store: %v\n", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "removed %d chunk(s) for document %s (level: %s, key rotated: %v)\n",
		result.ChunksRemoved, result.DocumentID, result.Level, result.KeyRotated)
	return nil
}

func parseLevel(s string) deletion.Level {
	switch s {
	case "secure":
		return deletion.LevelSecure
	case "cryptographic":
		return deletion.LevelCryptographic
	default:
		return deletion.LevelStandard
	}
}
