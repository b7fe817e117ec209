package agent

import (
	"regexp"
	"strings"
)

// Action is a tool invocation requested by the model.
type Action struct {
	Tool string
	Args []string
}

// actionPattern matches "Action: <Tool>" with an optional ": <args>" tail.
// Both parts must sit on the marker's line.
var actionPattern = regexp.MustCompile(`Action:[ \t]*([a-zA-Z0-9_]+)(?::[ \t]*(.+))?`)

// ParseAction extracts the first action in text. It reports false when the
// text holds no action.
func ParseAction(text string) (Action, bool) {
	m := actionPattern.FindStringSubmatch(text)
	if m == nil {
		return Action{}, false
	}

	a := Action{Tool: m[1], Args: []string{}}
	if raw := strings.TrimSpace(m[2]); raw != "" {
		for _, piece := range strings.Split(raw, ",") {
			a.Args = append(a.Args, unquote(strings.TrimSpace(piece)))
		}
	}
	return a, true
}

// unquote removes one matching pair of enclosing single or double quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '\'' || first == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
