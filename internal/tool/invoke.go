package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/klubi/scout/pkg/rpc"
)

// UnmappableInputError reports input that fits none of the binding rules
// for a tool.
type UnmappableInputError struct {
	Input  rpc.Input
	Tool   string
	Reason string
}

func (e *UnmappableInputError) Error() string {
	msg := fmt.Sprintf("Cannot map input %s to function %s", e.Input, e.Tool)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Bind resolves input against the tool's declared parameters. Rules are
// tried in order and the first match wins:
//
//  1. no input and no parameters: no arguments
//  2. a list as long as the parameter list: positional
//  3. a scalar and exactly one parameter: that value
//  4. a mapping: by name, which must cover exactly the declared names
//
// Anything else is an *UnmappableInputError.
func Bind(t Tool, input rpc.Input) ([]string, error) {
	n := len(t.Params)

	switch {
	case input.Kind == rpc.InputNone && n == 0:
		return []string{}, nil

	case input.Kind == rpc.InputList && len(input.List) == n:
		return append([]string{}, input.List...), nil

	case input.Kind == rpc.InputScalar && n == 1:
		return []string{input.Scalar}, nil

	case input.Kind == rpc.InputMapping:
		return bindMapping(t, input)
	}

	return nil, &UnmappableInputError{Input: input, Tool: t.Name, Reason: arityReason(t, input)}
}

func bindMapping(t Tool, input rpc.Input) ([]string, error) {
	args := make([]string, len(t.Params))
	var missing []string
	for i, p := range t.Params {
		v, ok := input.Mapping[p]
		if !ok {
			missing = append(missing, p)
			continue
		}
		args[i] = v
	}

	var extra []string
	if len(input.Mapping) > len(t.Params)-len(missing) {
		declared := make(map[string]bool, len(t.Params))
		for _, p := range t.Params {
			declared[p] = true
		}
		for k := range input.Mapping {
			if !declared[k] {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
	}

	if len(missing) > 0 || len(extra) > 0 {
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, "missing "+strings.Join(missing, ", "))
		}
		if len(extra) > 0 {
			parts = append(parts, "unexpected "+strings.Join(extra, ", "))
		}
		return nil, &UnmappableInputError{Input: input, Tool: t.Name, Reason: strings.Join(parts, "; ")}
	}
	return args, nil
}

func arityReason(t Tool, input rpc.Input) string {
	switch input.Kind {
	case rpc.InputList:
		return fmt.Sprintf("got %d arguments, want %d", len(input.List), len(t.Params))
	case rpc.InputScalar:
		return fmt.Sprintf("single value given, want %d arguments", len(t.Params))
	case rpc.InputNone:
		return fmt.Sprintf("no input given, want %d arguments", len(t.Params))
	}
	return ""
}

// Invoke binds input and runs the tool. Failures raised by the tool itself
// are returned unchanged; recovering from them is the caller's job.
func Invoke(ctx context.Context, t Tool, input rpc.Input) (rpc.Result, error) {
	args, err := Bind(t, input)
	if err != nil {
		return rpc.Result{}, err
	}
	return t.Fn(ctx, args)
}

// Dispatch looks up method and invokes it. An unknown method is reported
// as ErrUnknownTool and nothing is invoked.
func (r *Registry) Dispatch(ctx context.Context, method string, input rpc.Input) (rpc.Result, error) {
	t, err := r.Lookup(method)
	if err != nil {
		return rpc.Result{}, err
	}
	return Invoke(ctx, t, input)
}
