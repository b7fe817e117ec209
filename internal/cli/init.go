package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klubi/scout/internal/config"
)

func newInitCmd() *cobra.Command {
	var (
		workspace string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `Create a config file with every setting at its default, ready to edit.

The file is written to --config, $SCOUT_CONFIG or ~/.scout/config.yaml.`,
		Example: `  scout init
  scout init --workspace ~/src/shop
  scout init --config ./scout.yaml --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = os.Getenv(config.EnvConfig)
			}
			if path == "" {
				path = config.DefaultPath()
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config %s already exists; use --force to overwrite", path)
			}

			if workspace != "" {
				abs, err := filepath.Abs(workspace)
				if err != nil {
					return fmt.Errorf("resolving workspace: %w", err)
				}
				cfg.Workspace.Root = abs
			}

			if err := cfg.Save(path); err != nil {
				return err
			}

			bold := color.New(color.FgCyan, color.Bold)
			bold.Fprintln(stdout, "Scout initialized!")
			fmt.Fprintln(stdout)
			fmt.Fprintf(stdout, "  Config:    %s\n", path)
			fmt.Fprintf(stdout, "  Workspace: %s\n", cfg.Workspace.Root)
			fmt.Fprintln(stdout)

			color.New(color.Bold).Fprintln(stdout, "Next steps:")
			fmt.Fprintf(stdout, "  1. Export your model API key:\n     export %s=...\n\n", config.EnvGroqAPIKey)
			fmt.Fprintln(stdout, "  2. Start the embedding service and index the code base:")
			fmt.Fprintln(stdout, "     scout index")
			fmt.Fprintln(stdout)
			fmt.Fprintln(stdout, "  3. Start the tool server:")
			fmt.Fprintln(stdout, "     scout serve")
			fmt.Fprintln(stdout)
			fmt.Fprintln(stdout, "  4. Ask a question:")
			fmt.Fprintln(stdout, "     scout ask \"Which component renders the shopping cart?\"")
			return nil
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", "", "Code base root to record in the config")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")

	return cmd
}
