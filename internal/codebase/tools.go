package codebase

import (
	"context"
	"strings"

	"github.com/klubi/scout/internal/tool"
	"github.com/klubi/scout/pkg/rpc"
)

// Tool names exposed to the agent.
const (
	ToolGetRelevantCode     = "GetRelevantCode"
	ToolGetCodeFileContents = "GetCodeFileContents"
	ToolGetListOfCodeFiles  = "GetListOfCodeFiles"
)

// Tools returns the code tools backed by ws and searcher.
func Tools(ws *Workspace, searcher *Searcher) []tool.Tool {
	return []tool.Tool{
		{
			Name:        ToolGetRelevantCode,
			Description: "Finds the code chunks most relevant to a natural-language query. Returns one \"name (path)\" line per match.",
			Params:      []string{"query"},
			Fn: func(ctx context.Context, args []string) (rpc.Result, error) {
				lines, err := searcher.Search(ctx, args[0])
				if err != nil {
					return rpc.Result{}, err
				}
				return rpc.TextResult(strings.Join(lines, "\n")), nil
			},
		},
		{
			Name:        ToolGetCodeFileContents,
			Description: "Returns the contents of the code file with the given file name.",
			Params:      []string{"filename"},
			Fn: func(ctx context.Context, args []string) (rpc.Result, error) {
				content, err := ws.ReadFile(ctx, args[0])
				if err != nil {
					return rpc.Result{}, err
				}
				return rpc.TextResult(content), nil
			},
		},
		{
			Name:        ToolGetListOfCodeFiles,
			Description: "Lists the file names of every code file in the workspace.",
			Fn: func(ctx context.Context, _ []string) (rpc.Result, error) {
				names, err := ws.ListFiles(ctx)
				if err != nil {
					return rpc.Result{}, err
				}
				return rpc.ListResult(names), nil
			},
		},
	}
}

// NewRegistry builds the tool registry served by `scout serve`.
func NewRegistry(ws *Workspace, searcher *Searcher) (*tool.Registry, error) {
	return tool.NewRegistry(Tools(ws, searcher)...)
}
