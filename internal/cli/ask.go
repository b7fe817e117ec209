package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klubi/scout/internal/agent"
	"github.com/klubi/scout/internal/llm"
)

func newAskCmd() *cobra.Command {
	var (
		maxIterations int
		maxStalls     int
		model         string
		backend       string
		dryRun        bool
		replies       []string
		quiet         bool
		noRecord      bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the agent a question about the code base",
		Long: `Run the agent loop on a question. The model's replies and the tool
observations are echoed as the run progresses; the final answer is printed
last. Incomplete runs (iteration limit or stall) exit non-zero.`,
		Example: `  scout ask "Which component renders the shopping cart?"
  scout ask --max-iterations 5 "List the CSS files"
  scout ask --dry-run --reply $'Action: GetListOfCodeFiles\nPAUSE' --reply "Answer: done" "test"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			if cmd.Flags().Changed("max-iterations") {
				cfg.Agent.MaxIterations = maxIterations
			}
			if cmd.Flags().Changed("max-stalls") {
				cfg.Agent.MaxStalls = maxStalls
			}
			if cmd.Flags().Changed("model") {
				cfg.LLM.Model = model
			}
			if cmd.Flags().Changed("backend") {
				cfg.LLM.Backend = backend
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			// 1. Pick the model.
			var m namedModel
			if dryRun {
				m = llm.NewScripted(replies...)
			} else {
				var err error
				if m, err = newModel(cfg, logger); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// 2. Describe the server's tools to the model.
			tools, err := toolClient.Tools(ctx)
			if err != nil {
				logger.Warn("could not list tools; the model will not know them",
					zap.String("server", toolClient.BaseURL()),
					zap.Error(err),
				)
			}
			template, err := systemPromptTemplate(cfg)
			if err != nil {
				return err
			}

			// 3. Run the loop.
			var echo io.Writer = stdout
			if quiet {
				echo = nil
			}
			loop := agent.NewLoop(m,
				agent.NewRPCCaller(toolClient, logger, echo),
				agent.Config{
					SystemPrompt:  agent.RenderSystemPrompt(template, tools),
					MaxIterations: cfg.Agent.MaxIterations,
					MaxStalls:     cfg.Agent.MaxStalls,
				},
				logger, echo)

			startedAt := time.Now()
			res, runErr := loop.Run(ctx, question)

			// 4. Record the run.
			if !noRecord {
				if err := recordRun(question, m.Name(), res, runErr, startedAt); err != nil {
					logger.Warn("failed to record run", zap.Error(err))
				}
			}

			// 5. Report.
			if runErr != nil {
				return runErr
			}
			if !quiet {
				fmt.Fprintln(stdout)
			}
			if err := res.Err(); err != nil {
				color.New(color.FgYellow, color.Bold).Fprintf(stdout, "No answer after %d steps (%s)\n", res.Steps, res.Outcome)
				return err
			}
			color.New(color.FgGreen, color.Bold).Fprintln(stdout, "Answer:")
			fmt.Fprintln(stdout, res.Answer)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxIterations, "max-iterations", agent.DefaultMaxIterations, "Maximum model calls per run")
	cmd.Flags().IntVar(&maxStalls, "max-stalls", agent.DefaultMaxStalls, "Stop after this many replies without action or answer (0 disables)")
	cmd.Flags().StringVar(&model, "model", "", "Model id (default from config)")
	cmd.Flags().StringVar(&backend, "backend", "", "Model backend: chat|claude-cli")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Replay --reply values instead of calling a model")
	cmd.Flags().StringArrayVar(&replies, "reply", nil, "Scripted model reply for --dry-run (repeatable)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the final answer")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "Do not save the run to history")

	return cmd
}

func recordRun(question, model string, res *agent.Result, runErr error, startedAt time.Time) error {
	if res == nil {
		return errors.New("no result to record")
	}
	runs, err := openStore(cfg, cfg.RunsDBPath())
	if err != nil {
		return err
	}
	defer runs.Close()

	rec := agent.NewRunRecord(question, model, res, runErr, startedAt)
	if err := agent.SaveRun(runs, rec); err != nil {
		return err
	}
	logger.Debug("run recorded", zap.String("id", rec.ID), zap.String("outcome", string(rec.Outcome)))
	return nil
}
