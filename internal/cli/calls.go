package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klubi/scout/pkg/rpc"
)

func newCallsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "calls",
		Short: "Show the server's recent tool calls",
		Example: `  scout calls
  scout calls --limit 5 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			calls, err := toolClient.Calls(cmd.Context(), limit)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(calls))
			for _, c := range calls {
				rows = append(rows, []string{
					shortID(c.ID),
					c.Method,
					c.Input,
					callStatus(c),
					fmt.Sprintf("%dms", c.DurationMs),
					formatAge(c.At),
				})
			}
			return printOutput(calls, []string{"ID", "METHOD", "INPUT", "STATUS", "DURATION", "AGE"}, rows)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of calls to show (0 = all)")

	return cmd
}

func callStatus(c rpc.CallRecord) string {
	if c.OK {
		return "OK"
	}
	return fmt.Sprintf("Error %d", c.ErrorCode)
}
