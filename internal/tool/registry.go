// Package tool holds the server-side tool registry and the invoker that
// binds a request's loosely typed input onto a tool's declared parameters.
package tool

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/klubi/scout/pkg/rpc"
)

// Func is a tool body. args are bound in the order of the tool's Params.
type Func func(ctx context.Context, args []string) (rpc.Result, error)

// Tool is a named callable whose Params declaration is its parameter
// contract.
type Tool struct {
	Name        string
	Description string
	Params      []string
	Fn          Func
}

// Info returns the tool's wire description.
func (t Tool) Info() rpc.ToolInfo {
	params := append([]string{}, t.Params...)
	return rpc.ToolInfo{Name: t.Name, Description: t.Description, Params: params}
}

// ErrUnknownTool is returned by Lookup for unregistered names.
var ErrUnknownTool = errors.New("unknown tool")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Registry is an immutable name -> Tool mapping.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a registry. Names must be unique identifiers
// ([A-Za-z0-9_]+) so the agent's action grammar can address them, and
// declared parameter names must be unique within a tool.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if !namePattern.MatchString(t.Name) {
			return nil, fmt.Errorf("invalid tool name %q", t.Name)
		}
		if t.Fn == nil {
			return nil, fmt.Errorf("tool %s has no implementation", t.Name)
		}
		if _, dup := r.tools[t.Name]; dup {
			return nil, fmt.Errorf("tool %s registered twice", t.Name)
		}
		seen := make(map[string]bool, len(t.Params))
		for _, p := range t.Params {
			if p == "" || seen[p] {
				return nil, fmt.Errorf("tool %s: bad or duplicate parameter %q", t.Name, p)
			}
			seen[p] = true
		}
		t.Params = append([]string{}, t.Params...)
		r.tools[t.Name] = t
	}
	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t, nil
}

// List returns every tool's description, sorted by name.
func (r *Registry) List() []rpc.ToolInfo {
	out := make([]rpc.ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}
