package agent

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/klubi/scout/pkg/rpc"
)

// Caller executes an Action and returns the observation text. It never
// fails: every error becomes text the model can read.
type Caller interface {
	Call(ctx context.Context, a Action) string
}

// RPCCaller executes actions on a scout tool server.
type RPCCaller struct {
	client *rpc.Client
	logger *zap.Logger
	out    io.Writer
}

// NewRPCCaller creates a Caller backed by client. Observations are echoed
// to out (when non-nil) for the operator.
func NewRPCCaller(client *rpc.Client, logger *zap.Logger, out io.Writer) *RPCCaller {
	return &RPCCaller{
		client: client,
		logger: logger,
		out:    out,
	}
}

// Call sends the action's arguments as a list input and maps the outcome
// to an observation. The observation is always logged, and also echoed
// when the caller has a writer.
func (c *RPCCaller) Call(ctx context.Context, a Action) string {
	c.logger.Debug("calling tool",
		zap.String("tool", a.Tool),
		zap.Strings("args", a.Args),
	)

	var observation string
	resp, err := c.client.Call(ctx, a.Tool, rpc.ListInput(a.Args...))
	if err != nil {
		observation = fmt.Sprintf("Error calling %s: %v", c.client.BaseURL(), err)
		c.logger.Warn("tool call transport failure",
			zap.String("tool", a.Tool),
			zap.Error(err),
		)
	} else {
		observation = Observe(resp)
	}

	c.logger.Info("observation",
		zap.String("tool", a.Tool),
		zap.Int("len", len(observation)),
		zap.String("observation", observation),
	)
	if c.out != nil {
		fmt.Fprintf(c.out, "%s\n", ObservationPrompt(observation))
	}
	return observation
}

// Observe maps a response envelope to observation text.
func Observe(resp *rpc.Response) string {
	switch {
	case resp.Result != nil:
		return resp.Result.String()
	case resp.Error != nil:
		msg := resp.Error.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return "Error: " + msg
	default:
		return "Error: Invalid MCP server response"
	}
}

// ObservationPrompt is the user turn that hands an observation back to
// the model.
func ObservationPrompt(observation string) string {
	return "Observation:\n" + observation
}
