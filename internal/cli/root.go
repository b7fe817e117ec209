package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klubi/scout/internal/config"
	"github.com/klubi/scout/pkg/rpc"
)

var (
	configPath string
	serverURL  string
	logLevel   string

	cfg        *config.Config
	logger     *zap.Logger
	toolClient *rpc.Client

	// stdout receives command output; logs go to stderr.
	stdout io.Writer = os.Stdout
)

// NewRootCmd creates the top-level scout CLI command with all subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scout",
		Short: "Ask questions about a code base with a tool-using agent",
		Long: `Scout answers questions about a code base. A language model reasons in a
Thought/Action/Observation loop and calls code tools (semantic search, file
listing, file contents) served over JSON-RPC by 'scout serve'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			stdout = cmd.OutOrStdout()

			// init writes the config file, so it must not require one.
			if cmd.Name() == "init" {
				cfg = config.DefaultConfig()
				return nil
			}

			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			if cmd.Flags().Changed("server") {
				cfg.Server.URL = serverURL
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
			}

			logger, err = cfg.Log.NewLogger()
			if err != nil {
				return err
			}
			toolClient = rpc.New(cfg.Server.URL, cfg.Server.CallTimeout)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", fmt.Sprintf("Config file (default: $%s or %s)", config.EnvConfig, config.DefaultPath()))
	cmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:5000", "Tool server URL")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table|json|yaml")

	cmd.AddCommand(
		newServeCmd(),
		newAskCmd(),
		newCallCmd(),
		newToolsCmd(),
		newCallsCmd(),
		newIndexCmd(),
		newHistoryCmd(),
		newStatusCmd(),
		newInitCmd(),
	)

	return cmd
}
