package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the server exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := toolClient.Tools(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(tools))
			for _, t := range tools {
				params := strings.Join(t.Params, ", ")
				if params == "" {
					params = "-"
				}
				rows = append(rows, []string{t.Name, params, t.Description})
			}
			return printOutput(tools, []string{"NAME", "PARAMS", "DESCRIPTION"}, rows)
		},
	}
}
