package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/silviahq/silvia/internal/app"
	"github.com/silviahq/silvia/internal/config"
	"github.com/silviahq/silvia/internal/log"
)

var (
	ingestOrgID      string
	ingestCollection string
	ingestTitle      string
	ingestSource     string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a text document into a knowledge collection",
	Long: `Reads a UTF-8 text file, splits it into overlapping chunks, embeds
each chunk and stores the vectors in the collection. The title defaults to
the file name.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args[0])
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestOrgID, "org", "", "organization ID (required)")
	ingestCmd.Flags().StringVar(&ingestCollection, "collection", "", "collection ID (required)")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (defaults to file name)")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "document source reference")
	_ = ingestCmd.MarkFlagRequired("org")
	_ = ingestCmd.MarkFlagRequired("collection")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return fmt.Errorf("document %s is empty", path)
	}

	title := ingestTitle
	if title == "" {
		title = filepath.Base(path)
	}

	logger := log.New(log.Config{})
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	result, err := a.Knowledge.Ingest(ctx, ingestCollection, ingestOrgID,
		title, string(content), ingestSource, nil)
	if err != nil {
		return fmt.Errorf("ingesting document: %w", err)
	}

	fmt.Printf("document %s ingested: %d chunks\n", result.DocumentID, result.ChunkCount)
	return nil
}
