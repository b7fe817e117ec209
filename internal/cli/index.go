package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klubi/scout/internal/codebase"
)

func newIndexCmd() *cobra.Command {
	var (
		workspace  string
		reset      bool
		chunkLines int
		batchSize  int
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed the code base into the vector index",
		Long: `Split every code file in the workspace into line windows, embed them and
store them in the vector index searched by GetRelevantCode. Re-running
replaces chunks in place and drops chunks of deleted or shortened files;
--reset clears the collection first.`,
		Example: `  scout index
  scout index --workspace ~/src/shop --reset`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("workspace") {
				cfg.Workspace.Root = workspace
			}
			if cmd.Flags().Changed("chunk-lines") {
				cfg.Workspace.ChunkLines = chunkLines
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.Workspace.BatchSize = batchSize
			}

			ws, err := openWorkspace(cfg)
			if err != nil {
				return err
			}
			embedder, err := newEmbedder(cfg, logger)
			if err != nil {
				return err
			}
			index, err := openIndex(cfg, logger)
			if err != nil {
				return err
			}
			defer index.Close()

			indexer := codebase.NewIndexer(ws, embedder, index, codebase.IndexOptions{
				ChunkLines: cfg.Workspace.ChunkLines,
				BatchSize:  cfg.Workspace.BatchSize,
				Reset:      reset,
			}, logger)

			stats, err := indexer.Run(cmd.Context())
			if err != nil {
				return err
			}
			total, err := index.Count(cmd.Context())
			if err != nil {
				return err
			}

			color.New(color.FgGreen, color.Bold).Fprintln(stdout, "Index updated")
			fmt.Fprintf(stdout, "   Workspace:  %s\n", ws.Root())
			fmt.Fprintf(stdout, "   Embedder:   %s\n", embedder.Name())
			fmt.Fprintf(stdout, "   Collection: %s\n", index.Collection())
			fmt.Fprintf(stdout, "   Files:      %d (%d skipped)\n", stats.Files, stats.Skipped)
			fmt.Fprintf(stdout, "   Chunks:     %d written, %d removed, %d total\n", stats.Chunks, stats.Removed, total)
			fmt.Fprintf(stdout, "   Took:       %s\n", stats.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", "", "Code base root (default from config)")
	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the collection before indexing")
	cmd.Flags().IntVar(&chunkLines, "chunk-lines", codebase.DefaultChunkLines, "Lines per chunk")
	cmd.Flags().IntVar(&batchSize, "batch-size", codebase.DefaultBatchSize, "Chunks per embedding request")

	return cmd
}
