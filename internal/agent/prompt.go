package agent

import (
	"fmt"
	"strings"

	"github.com/klubi/scout/pkg/rpc"
)

// ToolsPlaceholder is replaced by the tool list when a system prompt is
// rendered.
const ToolsPlaceholder = "{{tools}}"

// DefaultSystemPrompt documents the Action/Answer protocol to the model.
const DefaultSystemPrompt = `You are a software engineering assistant that answers questions about a code base.
You run in a loop of Thought, Action, PAUSE, Observation.
At the end of the loop you output an Answer.

Use Thought to describe your reasoning about the question.
Use Action to run one of the tools available to you, then return PAUSE.
Observation will be the result of running that action.

Write an action on its own line, exactly like this:
Action: <ToolName>: <argument>, <argument>
Tools that take no arguments are written as:
Action: <ToolName>

Your available tools are:

{{tools}}

Example session:

Question: Which component renders the shopping cart?
Thought: I should search the code base for the cart component.
Action: GetRelevantCode: shopping cart component
PAUSE

You will be called again with this:

Observation:
Cart (src/components/Cart.tsx)

Thought: I should read Cart.tsx to confirm.
Action: GetCodeFileContents: Cart.tsx
PAUSE

You will be called again with the file contents, and then you output:

Answer: The shopping cart is rendered by the Cart component in src/components/Cart.tsx.

Only output an Answer once you are confident. Begin the final line with "Answer: ".`

// RenderSystemPrompt substitutes the tool list into template. An empty
// template means DefaultSystemPrompt.
func RenderSystemPrompt(template string, tools []rpc.ToolInfo) string {
	if template == "" {
		template = DefaultSystemPrompt
	}
	return strings.ReplaceAll(template, ToolsPlaceholder, DescribeTools(tools))
}

// DescribeTools renders one line per tool in the action syntax.
func DescribeTools(tools []rpc.ToolInfo) string {
	if len(tools) == 0 {
		return "(no tools are available)"
	}
	var b strings.Builder
	for i, t := range tools {
		if i > 0 {
			b.WriteString("\n")
		}
		usage := t.Name
		if len(t.Params) > 0 {
			usage += ": " + strings.Join(t.Params, ", ")
		}
		fmt.Fprintf(&b, "%s", usage)
		if t.Description != "" {
			fmt.Fprintf(&b, "\n  %s", t.Description)
		}
	}
	return b.String()
}
