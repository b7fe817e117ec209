package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/klubi/scout/internal/agent"
	"github.com/klubi/scout/internal/config"
	"github.com/klubi/scout/internal/rpcserver"
	"github.com/klubi/scout/internal/store"
	"github.com/klubi/scout/internal/tool"
	"github.com/klubi/scout/pkg/rpc"
)

type testEnv struct {
	serverURL  string
	configPath string
	dataDir    string
}

// newTestEnv starts a tool server with an Echo tool and writes a config
// whose data directory lives in a temp dir.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	color.NoColor = true

	reg, err := tool.NewRegistry(
		tool.Tool{Name: "Echo", Params: []string{"text"}, Description: "Echo the text back", Fn: func(_ context.Context, args []string) (rpc.Result, error) {
			return rpc.TextResult("echo: " + args[0]), nil
		}},
		tool.Tool{Name: "Files", Fn: func(context.Context, []string) (rpc.Result, error) {
			return rpc.ListResult([]string{"Cart.tsx", "main.css"}), nil
		}},
	)
	require.NoError(t, err)

	records := store.NewMemoryStore()
	t.Cleanup(func() { records.Close() })
	ts := httptest.NewServer(rpcserver.NewServer("127.0.0.1:0", reg, records, zaptest.NewLogger(t)).Handler())
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	c := config.DefaultConfig()
	c.Store.DataDir = filepath.Join(dir, "data")
	c.Workspace.Root = dir
	c.Log.Level = "error"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, c.Save(path))

	t.Setenv(config.EnvServerURL, "")
	t.Setenv(config.EnvWorkspace, "")
	return &testEnv{serverURL: ts.URL, configPath: path, dataDir: c.Store.DataDir}
}

// run executes the root command and returns its output.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath, "--server", e.serverURL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestToolsCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Echo")
	assert.Contains(t, out, "Echo the text back")

	out, err = env.run(t, "tools", "-o", "json")
	require.NoError(t, err)
	var tools []rpc.ToolInfo
	require.NoError(t, json.Unmarshal([]byte(out), &tools))
	require.Len(t, tools, 2)
	assert.Equal(t, "Echo", tools[0].Name)
}

func TestCallCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "call", "Echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello\n", out)

	out, err = env.run(t, "call", "Files")
	require.NoError(t, err)
	assert.Equal(t, "Cart.tsx\nmain.css\n", out)

	out, err = env.run(t, "call", "Nope")
	require.Error(t, err)
	assert.Contains(t, out, fmt.Sprintf("Error %d: Unknown method: Nope", rpc.CodeMethodNotFound))
}

func TestCallsCommandListsServerLog(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "call", "Echo", "x")
	require.NoError(t, err)

	out, err := env.run(t, "calls")
	require.NoError(t, err)
	assert.Contains(t, out, "Echo")
	assert.Contains(t, out, "OK")
}

func TestAskDryRunAnswers(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "ask", "--dry-run",
		"--reply", "Thought: ask the tool\nAction: Echo: hi\nPAUSE",
		"--reply", "Answer: the tool said hi",
		"what does echo say?")
	require.NoError(t, err)
	assert.Contains(t, out, "Observation:\necho: hi")
	assert.True(t, strings.HasSuffix(out, "Answer:\nthe tool said hi\n"), out)

	out, err = env.run(t, "history", "list", "-o", "json")
	require.NoError(t, err)
	var runs []agent.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, agent.OutcomeAnswered, runs[0].Outcome)
	assert.Equal(t, "what does echo say?", runs[0].Prompt)
	assert.Equal(t, 2, runs[0].Steps)

	out, err = env.run(t, "history", "show", runs[0].ID[:8], "-t")
	require.NoError(t, err)
	assert.Contains(t, out, "the tool said hi")
	assert.Contains(t, out, "Transcript:")

	_, err = env.run(t, "history", "rm", runs[0].ID)
	require.NoError(t, err)
	_, err = env.run(t, "history", "show", runs[0].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAskDryRunIncomplete(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "ask", "--dry-run", "-q", "--no-record",
		"--max-iterations", "2", "--max-stalls", "0",
		"--reply", "Thought: hmm", "--reply", "Thought: still thinking",
		"question")
	assert.ErrorIs(t, err, agent.ErrIncomplete)
	assert.Contains(t, out, "No answer after 2 steps")

	_, err = os.Stat(filepath.Join(env.dataDir, "runs.db"))
	assert.True(t, os.IsNotExist(err))
}

func TestAskExampleRepliesCallTools(t *testing.T) {
	ansiQuoted := regexp.MustCompile(`\$'([^']*)'`)

	matches := ansiQuoted.FindAllStringSubmatch(newAskCmd().Example, -1)
	require.NotEmpty(t, matches)
	for _, m := range matches {
		reply := strings.ReplaceAll(m[1], `\n`, "\n")
		d := agent.Decide(reply)
		assert.Equal(t, agent.DecisionAction, d.Kind, "example reply %q", reply)
		assert.Equal(t, "GetListOfCodeFiles", d.Action.Tool)
	}
}

func TestStatusCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "Tools: 2")
	assert.Contains(t, out, "0 chunks")
	assert.Contains(t, out, "Runs:        0")
}

func TestStatusUnreachableServer(t *testing.T) {
	env := newTestEnv(t)
	env.serverURL = "http://127.0.0.1:1"

	out, err := env.run(t, "status")
	require.Error(t, err)
	assert.Contains(t, out, "UNREACHABLE")
}

func TestInitCommand(t *testing.T) {
	color.NoColor = true
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	run := func(args ...string) error {
		cmd := NewRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"--config", path, "init"}, args...))
		return cmd.Execute()
	}

	require.NoError(t, run("--workspace", "/srv/shop"))
	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/shop", loaded.Workspace.Root)

	err = run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, run("--force"))
}

func TestCallInput(t *testing.T) {
	in, err := callInput(nil, "", false)
	require.NoError(t, err)
	assert.Equal(t, rpc.InputNone, in.Kind)

	in, err = callInput([]string{"a", "b"}, "", false)
	require.NoError(t, err)
	assert.Equal(t, rpc.InputList, in.Kind)
	assert.Equal(t, []string{"a", "b"}, in.List)

	in, err = callInput([]string{"shopping", "cart"}, "", true)
	require.NoError(t, err)
	assert.Equal(t, rpc.InputScalar, in.Kind)
	assert.Equal(t, "shopping cart", in.Scalar)

	in, err = callInput(nil, `{"filename":"Cart.tsx"}`, false)
	require.NoError(t, err)
	assert.Equal(t, rpc.InputMapping, in.Kind)
	assert.Equal(t, "Cart.tsx", in.Mapping["filename"])

	_, err = callInput([]string{"x"}, `["y"]`, false)
	assert.Error(t, err)

	_, err = callInput(nil, `{bad`, false)
	assert.Error(t, err)
}
