package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klubi/scout/internal/agent"
	"github.com/klubi/scout/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server, index and history status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return statusPrint(cmd.Context())
		},
	}
}

func statusPrint(ctx context.Context) error {
	bold := color.New(color.FgCyan, color.Bold)
	bold.Fprintln(stdout, "Scout Status")
	fmt.Fprintln(stdout, "============")
	fmt.Fprintln(stdout)

	// Tool server.
	reachable := true
	if err := toolClient.Healthz(ctx); err != nil {
		reachable = false
		fmt.Fprintf(stdout, "Tool server: %s %s\n", toolClient.BaseURL(), color.RedString("UNREACHABLE"))
		logger.Debug("health check failed", zap.Error(err))
	} else {
		fmt.Fprintf(stdout, "Tool server: %s %s\n", toolClient.BaseURL(), color.GreenString("OK"))
		if tools, err := toolClient.Tools(ctx); err == nil {
			fmt.Fprintf(stdout, "  Tools: %d\n", len(tools))
		}
		if calls, err := toolClient.Calls(ctx, 0); err == nil {
			failed := 0
			for _, c := range calls {
				if !c.OK {
					failed++
				}
			}
			fmt.Fprintf(stdout, "  Calls: %d", len(calls))
			if failed > 0 {
				fmt.Fprintf(stdout, " (%s)", color.RedString("%d failed", failed))
			}
			fmt.Fprintln(stdout)
		}
	}

	// Vector index.
	index, err := openIndex(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdout, "Index:       %s\n", color.RedString("unavailable: %v", err))
	} else {
		n, err := index.Count(ctx)
		index.Close()
		if err != nil {
			fmt.Fprintf(stdout, "Index:       %s\n", color.RedString("unreadable: %v", err))
		} else {
			fmt.Fprintf(stdout, "Index:       %s (%s, %d chunks)\n", cfg.IndexPath(), cfg.Embedding.Collection, n)
		}
	}

	// Run history.
	err = withRuns(func(s store.Store) error {
		runs, err := agent.ListRuns(s)
		if err != nil {
			return err
		}
		byOutcome := map[agent.Outcome]int{}
		for _, r := range runs {
			byOutcome[r.Outcome]++
		}
		fmt.Fprintf(stdout, "Runs:        %d", len(runs))
		if len(runs) > 0 {
			fmt.Fprintf(stdout, " (%s answered, %d incomplete, %d failed; last %s ago)",
				color.GreenString("%d", byOutcome[agent.OutcomeAnswered]),
				byOutcome[agent.OutcomeExhausted]+byOutcome[agent.OutcomeStalled],
				byOutcome[agent.OutcomeFailed],
				formatAge(runs[0].StartedAt))
		}
		fmt.Fprintln(stdout)
		return nil
	})
	if err != nil {
		fmt.Fprintf(stdout, "Runs:        %s\n", color.RedString("unavailable: %v", err))
	}

	fmt.Fprintf(stdout, "\nChecked at %s\n", time.Now().Format(time.RFC3339))
	if !reachable {
		return fmt.Errorf("cannot reach tool server at %s", toolClient.BaseURL())
	}
	return nil
}
