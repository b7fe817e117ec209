package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klubi/scout/internal/agent"
	"github.com/klubi/scout/internal/store"
	"github.com/klubi/scout/internal/tui"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded agent runs",
		Long:  "List, show, delete or interactively browse the runs recorded by 'scout ask'.",
	}
	cmd.AddCommand(
		newHistoryListCmd(),
		newHistoryShowCmd(),
		newHistoryDeleteCmd(),
		newHistoryBrowseCmd(),
	)
	return cmd
}

// withRuns opens the run store for the duration of fn.
func withRuns(fn func(s store.Store) error) error {
	runs, err := openStore(cfg, cfg.RunsDBPath())
	if err != nil {
		return err
	}
	defer runs.Close()
	return fn(runs)
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recorded runs, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuns(func(s store.Store) error {
				runs, err := agent.ListRuns(s)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(runs))
				for _, r := range runs {
					rows = append(rows, []string{
						shortID(r.ID),
						oneLine(r.Prompt, 50),
						string(r.Outcome),
						fmt.Sprintf("%d", r.Steps),
						r.Model,
						formatAge(r.StartedAt),
					})
				}
				return printOutput(runs, []string{"ID", "PROMPT", "OUTCOME", "STEPS", "MODEL", "AGE"}, rows)
			})
		},
	}
}

func newHistoryShowCmd() *cobra.Command {
	var transcript bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run (an id prefix is enough)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuns(func(s store.Store) error {
				r, err := agent.GetRun(s, args[0])
				if err != nil {
					return err
				}
				if outputFormat == "json" || outputFormat == "yaml" {
					return printOutput(r, nil, nil)
				}
				printRun(r, transcript)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&transcript, "transcript", "t", false, "Include the conversation (system prompt omitted)")

	return cmd
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <run-id>",
		Aliases: []string{"rm"},
		Short:   "Delete one run",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuns(func(s store.Store) error {
				r, err := agent.GetRun(s, args[0])
				if err != nil {
					return err
				}
				if err := s.Delete(store.RecordKey(store.KindRun, r.ID)); err != nil {
					return fmt.Errorf("deleting run %s: %w", r.ID, err)
				}
				fmt.Fprintf(stdout, "run %s deleted\n", shortID(r.ID))
				return nil
			})
		},
	}
}

func newHistoryBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "browse",
		Aliases: []string{"ui"},
		Short:   "Browse runs and server calls in a terminal UI",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuns(func(s store.Store) error {
				app := tui.NewApp(tui.NewRecordSource(s, toolClient))
				if err := app.Run(); err != nil {
					return fmt.Errorf("UI error: %w", err)
				}
				return nil
			})
		},
	}
}

func printRun(r *agent.RunRecord, transcript bool) {
	bold := color.New(color.Bold)
	field := func(name, value string) {
		bold.Fprintf(stdout, "%-10s", name+":")
		fmt.Fprintf(stdout, " %s\n", value)
	}

	field("ID", r.ID)
	field("Model", r.Model)
	field("Outcome", outcomeString(r.Outcome))
	field("Steps", fmt.Sprintf("%d", r.Steps))
	field("Started", r.StartedAt.Format(time.RFC3339))
	if !r.FinishedAt.IsZero() {
		field("Duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String())
	}
	field("Prompt", r.Prompt)
	if r.Answer != "" {
		fmt.Fprintln(stdout)
		bold.Fprintln(stdout, "Answer:")
		fmt.Fprintln(stdout, r.Answer)
	}
	if r.Error != "" {
		fmt.Fprintln(stdout)
		color.New(color.FgRed, color.Bold).Fprintln(stdout, "Error:")
		fmt.Fprintln(stdout, r.Error)
	}

	if !transcript {
		return
	}
	fmt.Fprintln(stdout)
	bold.Fprintln(stdout, "Transcript:")
	for _, m := range r.Transcript {
		if m.Role == agent.RoleSystem {
			continue
		}
		color.New(color.FgCyan).Fprintf(stdout, "--- %s\n", m.Role)
		fmt.Fprintln(stdout, m.Content)
	}
}

func outcomeString(o agent.Outcome) string {
	switch o {
	case agent.OutcomeAnswered:
		return color.GreenString(string(o))
	case agent.OutcomeExhausted, agent.OutcomeStalled:
		return color.YellowString(string(o))
	case agent.OutcomeFailed:
		return color.RedString(string(o))
	default:
		return string(o)
	}
}

// oneLine collapses whitespace and shortens s to max runes.
func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
