package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klubi/scout/internal/codebase"
	"github.com/klubi/scout/internal/rpcserver"
	"github.com/klubi/scout/pkg/rpc"
)

func newServeCmd() *cobra.Command {
	var (
		port      int
		host      string
		dataDir   string
		workspace string
		storeType string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the code tool server",
		Long:  "Serve GetRelevantCode, GetCodeFileContents and GetListOfCodeFiles over JSON-RPC at /mcp.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// 1. Apply CLI overrides.
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.Store.DataDir = dataDir
			}
			if cmd.Flags().Changed("workspace") {
				cfg.Workspace.Root = workspace
			}
			if cmd.Flags().Changed("store") {
				cfg.Store.Type = storeType
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			// 2. Open the workspace and the vector index.
			ws, err := openWorkspace(cfg)
			if err != nil {
				return err
			}
			index, err := openIndex(cfg, logger)
			if err != nil {
				return err
			}
			defer index.Close()

			embedder, err := newEmbedder(cfg, logger)
			if err != nil {
				return err
			}

			// 3. Build the tool registry.
			searcher := codebase.NewSearcher(embedder, index, cfg.Workspace.SearchLimit, logger)
			registry, err := codebase.NewRegistry(ws, searcher)
			if err != nil {
				return fmt.Errorf("building tool registry: %w", err)
			}

			// 4. Open the call log.
			calls, err := openStore(cfg, cfg.CallsDBPath())
			if err != nil {
				return err
			}
			defer calls.Close()

			chunks, err := index.Count(context.Background())
			if err != nil {
				logger.Warn("could not count indexed chunks", zap.Error(err))
			} else if chunks == 0 {
				logger.Warn("vector index is empty; run 'scout index' so GetRelevantCode has something to search",
					zap.String("collection", index.Collection()))
			}

			// 5. Create and start the server.
			addr := cfg.ServerAddress()
			srv := rpcserver.NewServer(addr, registry, calls, logger)

			banner := color.New(color.FgCyan, color.Bold)
			banner.Fprintln(stdout, "Scout Tool Server")
			fmt.Fprintf(stdout, "   Endpoint:   http://%s%s\n", addr, rpc.Path)
			fmt.Fprintf(stdout, "   Workspace:  %s\n", ws.Root())
			fmt.Fprintf(stdout, "   Index:      %s (%d chunks)\n", cfg.IndexPath(), chunks)
			fmt.Fprintf(stdout, "   Tools:      %d\n", registry.Len())
			fmt.Fprintln(stdout)

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// 6. Wait for interrupt signal for graceful shutdown.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case sig := <-sigCh:
				logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			case err := <-errCh:
				logger.Error("tool server error", zap.Error(err))
				return err
			}

			logger.Info("shutting down gracefully...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("tool server shutdown error", zap.Error(err))
			}
			logger.Info("scout tool server stopped")
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 5000, "Listen port")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Listen host")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.scout/data)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "Code base root (default: ../ecommerce-website)")
	cmd.Flags().StringVar(&storeType, "store", "bolt", "Call log store: bolt|memory")

	return cmd
}
