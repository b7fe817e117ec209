package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/klubi/scout/internal/store"
	"github.com/klubi/scout/internal/tool"
	"github.com/klubi/scout/pkg/rpc"
)

// testServer wires a Server with an identity tool, a failing tool and a
// panicking tool.
func testServer(t *testing.T) (*Server, *store.MemoryStore, *int) {
	t.Helper()

	failCalls := 0
	reg, err := tool.NewRegistry(
		tool.Tool{Name: "Echo", Params: []string{"text"}, Fn: func(_ context.Context, args []string) (rpc.Result, error) {
			return rpc.TextResult(args[0]), nil
		}},
		tool.Tool{Name: "Fail", Fn: func(context.Context, []string) (rpc.Result, error) {
			failCalls++
			return rpc.Result{}, errors.New("disk on fire")
		}},
		tool.Tool{Name: "Panic", Fn: func(context.Context, []string) (rpc.Result, error) {
			panic("unreachable state")
		}},
	)
	require.NoError(t, err)

	records := store.NewMemoryStore()
	t.Cleanup(func() { records.Close() })
	return NewServer("127.0.0.1:0", reg, records, zaptest.NewLogger(t)), records, &failCalls
}

// post sends body to the RPC route and returns the raw decoded envelope.
func post(t *testing.T, srv *Server, body string) map[string]interface{} {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, rpc.Path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "2.0", out["jsonrpc"])
	return out
}

func errorField(t *testing.T, out map[string]interface{}) (float64, string) {
	t.Helper()
	e, ok := out["error"].(map[string]interface{})
	require.True(t, ok, "expected an error object, got %v", out)
	_, hasResult := out["result"]
	assert.False(t, hasResult)
	return e["code"].(float64), e["message"].(string)
}

func TestRPCEchoResult(t *testing.T) {
	srv, _, _ := testServer(t)

	out := post(t, srv, `{"jsonrpc":"2.0","method":"Echo","params":{"input":["hi"]},"id":"1"}`)
	assert.Equal(t, "hi", out["result"])
	assert.Equal(t, "1", out["id"])
	_, hasError := out["error"]
	assert.False(t, hasError)
}

func TestRPCUnknownMethod(t *testing.T) {
	srv, _, failCalls := testServer(t)

	out := post(t, srv, `{"jsonrpc":"2.0","method":"Nope","params":{},"id":"2"}`)
	code, msg := errorField(t, out)
	assert.EqualValues(t, rpc.CodeMethodNotFound, code)
	assert.Equal(t, "Unknown method: Nope", msg)
	assert.Equal(t, "2", out["id"])
	assert.Zero(t, *failCalls)
}

func TestRPCUnknownMethodIgnoresParamsShape(t *testing.T) {
	srv, _, failCalls := testServer(t)

	tests := []struct {
		name string
		body string
		id   string
	}{
		{"params not an object", `{"jsonrpc":"2.0","method":"Nope","params":["x"],"id":"1"}`, "1"},
		{"nested input", `{"jsonrpc":"2.0","method":"Nope","params":{"input":[["x"]]},"id":"2"}`, "2"},
		{"scalar params", `{"jsonrpc":"2.0","method":"Nope","params":7,"id":"3"}`, "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := post(t, srv, tt.body)
			code, msg := errorField(t, out)
			assert.EqualValues(t, rpc.CodeMethodNotFound, code)
			assert.Equal(t, "Unknown method: Nope", msg)
			assert.Equal(t, tt.id, out["id"])
		})
	}
	assert.Zero(t, *failCalls)
}

func TestRPCUndecodableInputIsInternalError(t *testing.T) {
	srv, records, _ := testServer(t)

	out := post(t, srv, `{"jsonrpc":"2.0","method":"Echo","params":{"input":[["x"]]},"id":"n"}`)
	code, msg := errorField(t, out)
	assert.EqualValues(t, rpc.CodeInternalError, code)
	assert.Contains(t, msg, "Invalid params")
	assert.Equal(t, "n", out["id"])

	items, err := records.List(store.KindPrefix(store.KindCall), func() interface{} { return &rpc.CallRecord{} })
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, `{"input":[["x"]]}`, items[0].(*rpc.CallRecord).Input)
}

func TestRPCToolFailureKeepsID(t *testing.T) {
	srv, _, failCalls := testServer(t)

	out := post(t, srv, `{"jsonrpc":"2.0","method":"Fail","params":{},"id":42}`)
	code, msg := errorField(t, out)
	assert.EqualValues(t, rpc.CodeInternalError, code)
	assert.Equal(t, "disk on fire", msg)
	assert.EqualValues(t, 42, out["id"])
	assert.Equal(t, 1, *failCalls)
}

func TestRPCToolPanicIsContained(t *testing.T) {
	srv, _, _ := testServer(t)

	out := post(t, srv, `{"jsonrpc":"2.0","method":"Panic","id":"p"}`)
	code, msg := errorField(t, out)
	assert.EqualValues(t, rpc.CodeInternalError, code)
	assert.Contains(t, msg, "unreachable state")

	// The server keeps answering after a panic.
	out = post(t, srv, `{"jsonrpc":"2.0","method":"Echo","params":{"input":"again"},"id":"q"}`)
	assert.Equal(t, "again", out["result"])
}

func TestRPCUnmappableInput(t *testing.T) {
	srv, _, _ := testServer(t)

	out := post(t, srv, `{"jsonrpc":"2.0","method":"Echo","params":{"input":["a","b"]},"id":"3"}`)
	code, msg := errorField(t, out)
	assert.EqualValues(t, rpc.CodeInternalError, code)
	assert.Contains(t, msg, "Cannot map input")
	assert.Contains(t, msg, "Echo")
	assert.Equal(t, "3", out["id"])
}

func TestRPCParseError(t *testing.T) {
	srv, _, _ := testServer(t)

	out := post(t, srv, `{"method":`)
	code, msg := errorField(t, out)
	assert.EqualValues(t, rpc.CodeParseError, code)
	assert.True(t, strings.HasPrefix(msg, "Parse error"))

	id, hasID := out["id"]
	assert.True(t, hasID)
	assert.Nil(t, id)
}

func TestRPCMissingMethod(t *testing.T) {
	srv, _, _ := testServer(t)

	out := post(t, srv, `{"jsonrpc":"2.0","params":{},"id":"m"}`)
	code, _ := errorField(t, out)
	assert.EqualValues(t, rpc.CodeInvalidRequest, code)
	assert.Equal(t, "m", out["id"])
}

func TestRPCRecordsCalls(t *testing.T) {
	srv, records, _ := testServer(t)

	post(t, srv, `{"jsonrpc":"2.0","method":"Echo","params":{"input":["hi"]},"id":"1"}`)
	post(t, srv, `{"jsonrpc":"2.0","method":"Nope","id":"2"}`)

	items, err := records.List(store.KindPrefix(store.KindCall), func() interface{} { return &rpc.CallRecord{} })
	require.NoError(t, err)
	require.Len(t, items, 2)

	byMethod := map[string]*rpc.CallRecord{}
	for _, item := range items {
		rec := item.(*rpc.CallRecord)
		byMethod[rec.Method] = rec
	}
	assert.True(t, byMethod["Echo"].OK)
	assert.Equal(t, `["hi"]`, byMethod["Echo"].Input)
	assert.False(t, byMethod["Nope"].OK)
	assert.EqualValues(t, rpc.CodeMethodNotFound, byMethod["Nope"].ErrorCode)

	req := httptest.NewRequest(http.MethodGet, "/calls?limit=1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var calls []rpc.CallRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &calls))
	assert.Len(t, calls, 1)
}

func TestListTools(t *testing.T) {
	srv, _, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/tools", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var tools []rpc.ToolInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tools))
	require.Len(t, tools, 3)
	assert.Equal(t, "Echo", tools[0].Name)
	assert.Equal(t, []string{"text"}, tools[0].Params)
}

func TestHealthz(t *testing.T) {
	srv, _, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRPCOverRealClient(t *testing.T) {
	srv, _, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := rpc.New(ts.URL, 0).Call(context.Background(), "Echo", rpc.ListInput("ping"))
	require.NoError(t, err)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "ping", resp.Result.String())
}
