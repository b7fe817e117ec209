package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klubi/scout/pkg/rpc"
)

func newCallCmd() *cobra.Command {
	var (
		inputJSON string
		scalar    bool
	)

	cmd := &cobra.Command{
		Use:   "call <method> [args...]",
		Short: "Invoke one tool on the server",
		Long: `Send a single JSON-RPC request to the tool server. Positional arguments
are sent as a list input; with no arguments no input is sent.`,
		Example: `  scout call GetListOfCodeFiles
  scout call GetCodeFileContents Cart.tsx
  scout call GetRelevantCode --scalar "shopping cart total"
  scout call GetCodeFileContents --input '{"filename":"Cart.tsx"}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, rest := args[0], args[1:]

			input, err := callInput(rest, inputJSON, scalar)
			if err != nil {
				return err
			}

			resp, err := toolClient.Call(cmd.Context(), method, input)
			if err != nil {
				return err
			}

			if outputFormat == "json" || outputFormat == "yaml" {
				return printOutput(resp, nil, nil)
			}
			if resp.Error != nil {
				color.New(color.FgRed).Fprintf(stdout, "Error %d: %s\n", resp.Error.Code, resp.Error.Message)
				return fmt.Errorf("%s failed", method)
			}
			if resp.Result == nil {
				return fmt.Errorf("invalid response from %s", toolClient.BaseURL())
			}
			fmt.Fprintln(stdout, resp.Result.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&inputJSON, "input", "", "Raw JSON value for params.input")
	cmd.Flags().BoolVar(&scalar, "scalar", false, "Join the arguments into one scalar input")

	return cmd
}

// callInput builds params.input from the command line.
func callInput(args []string, raw string, scalar bool) (rpc.Input, error) {
	switch {
	case raw != "":
		if len(args) > 0 || scalar {
			return rpc.Input{}, fmt.Errorf("--input cannot be combined with arguments or --scalar")
		}
		var in rpc.Input
		if err := json.Unmarshal([]byte(raw), &in); err != nil {
			return rpc.Input{}, fmt.Errorf("parsing --input: %w", err)
		}
		return in, nil
	case scalar:
		return rpc.ScalarInput(strings.Join(args, " ")), nil
	case len(args) == 0:
		return rpc.Input{}, nil
	default:
		return rpc.ListInput(args...), nil
	}
}
