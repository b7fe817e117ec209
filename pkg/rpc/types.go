// Package rpc defines the JSON-RPC envelope spoken between the scout agent
// and its tool server, together with an HTTP client for it.
//
// A request looks like
//
//	{"jsonrpc":"2.0","method":"GetCodeFileContents","params":{"input":["App.tsx"]},"id":"1"}
//
// and a response carries exactly one of "result" or "error".
package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/jsonrpc2"
)

const (
	// Version is the protocol tag carried by every envelope.
	Version = "2.0"

	// Path is the single route the tool server answers RPC calls on.
	Path = "/mcp"
)

// Error codes used on the wire.
const (
	CodeParseError     = jsonrpc2.CodeParseError
	CodeInvalidRequest = jsonrpc2.CodeInvalidRequest
	CodeMethodNotFound = jsonrpc2.CodeMethodNotFound
	CodeInternalError  = jsonrpc2.CodeInternalError
)

// -------------------------------------------------------
// Request
// -------------------------------------------------------

// Request is a single tool invocation.
type Request struct {
	JSONRPC string       `json:"jsonrpc"`
	Method  string       `json:"method"`
	Params  Params       `json:"params"`
	ID      *jsonrpc2.ID `json:"id"`

	// rawParams holds the undecoded params of a request read by
	// DecodeRequest until DecodeInput binds them.
	rawParams json.RawMessage
}

// Params wraps the loosely typed tool input.
type Params struct {
	Input Input `json:"input"`
}

// NewRequest builds a request carrying a string id.
func NewRequest(id, method string, input Input) *Request {
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  Params{Input: input},
		ID:      &jsonrpc2.ID{Str: id, IsString: true},
	}
}

// DecodeRequest parses a request envelope: jsonrpc, method and id. Params
// are kept raw for DecodeInput, so an unknown method is reported before its
// input is looked at. When the body cannot be accepted it returns the wire
// error to send back; the returned request then holds as much as could be
// read (in particular the id, when it was readable).
func DecodeRequest(body []byte) (*Request, *jsonrpc2.Error) {
	var raw struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
		ID      json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return &Request{}, &jsonrpc2.Error{Code: CodeParseError, Message: "Parse error: " + err.Error()}
	}

	req := &Request{JSONRPC: raw.JSONRPC, Method: raw.Method}
	if len(raw.Params) > 0 && !isNull(raw.Params) {
		req.rawParams = raw.Params
	}

	if len(raw.ID) > 0 && !isNull(raw.ID) {
		var id jsonrpc2.ID
		if err := json.Unmarshal(raw.ID, &id); err != nil {
			return req, &jsonrpc2.Error{Code: CodeInvalidRequest, Message: "Invalid request: bad id: " + err.Error()}
		}
		req.ID = &id
	}

	if req.Method == "" {
		return req, &jsonrpc2.Error{Code: CodeInvalidRequest, Message: "Invalid request: missing method"}
	}

	return req, nil
}

// DecodeInput binds the raw params of a decoded request into Params.Input.
// Absent params leave the input empty.
func (r *Request) DecodeInput() error {
	if r.rawParams == nil {
		return nil
	}
	var p Params
	if err := json.Unmarshal(r.rawParams, &p); err != nil {
		return fmt.Errorf("Invalid params: %w", err)
	}
	r.Params = p
	r.rawParams = nil
	return nil
}

// InputString renders the request's input for logs and records. Params
// that were never bound are shown as received.
func (r *Request) InputString() string {
	if r.rawParams != nil {
		var buf bytes.Buffer
		if err := json.Compact(&buf, r.rawParams); err != nil {
			return string(r.rawParams)
		}
		return buf.String()
	}
	return r.Params.Input.String()
}

// IDString renders a request id for logs and records. A nil id renders empty.
func IDString(id *jsonrpc2.ID) string {
	if id == nil {
		return ""
	}
	if id.IsString {
		return id.Str
	}
	return strconv.FormatUint(id.Num, 10)
}

// -------------------------------------------------------
// Input
// -------------------------------------------------------

// InputKind tags the shape of a request's params.input.
type InputKind int

const (
	InputNone InputKind = iota
	InputList
	InputScalar
	InputMapping
)

func (k InputKind) String() string {
	switch k {
	case InputNone:
		return "none"
	case InputList:
		return "list"
	case InputScalar:
		return "scalar"
	case InputMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Input is the tagged union carried in params.input. Only the field that
// matches Kind is meaningful. JSON numbers and booleans are accepted
// wherever a string is expected and are kept as their JSON text.
type Input struct {
	Kind    InputKind
	List    []string
	Scalar  string
	Mapping map[string]string
}

// ListInput returns a list input. A nil slice is sent as an empty list.
func ListInput(args ...string) Input {
	if args == nil {
		args = []string{}
	}
	return Input{Kind: InputList, List: args}
}

// ScalarInput returns a single-value input.
func ScalarInput(v string) Input {
	return Input{Kind: InputScalar, Scalar: v}
}

// MappingInput returns a named-arguments input.
func MappingInput(m map[string]string) Input {
	return Input{Kind: InputMapping, Mapping: m}
}

// String renders the input the way it appears in error messages.
func (in Input) String() string {
	switch in.Kind {
	case InputList:
		return "[" + strings.Join(quoteAll(in.List), ", ") + "]"
	case InputScalar:
		return strconv.Quote(in.Scalar)
	case InputMapping:
		b, _ := json.Marshal(in.Mapping)
		return string(b)
	default:
		return "null"
	}
}

func (in Input) MarshalJSON() ([]byte, error) {
	switch in.Kind {
	case InputList:
		list := in.List
		if list == nil {
			list = []string{}
		}
		return json.Marshal(list)
	case InputScalar:
		return json.Marshal(in.Scalar)
	case InputMapping:
		return json.Marshal(in.Mapping)
	default:
		return []byte("null"), nil
	}
}

func (in *Input) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || isNull(data) {
		*in = Input{}
		return nil
	}

	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		list := make([]string, 0, len(items))
		for i, item := range items {
			s, err := scalarText(item)
			if err != nil {
				return fmt.Errorf("input[%d]: %w", i, err)
			}
			list = append(list, s)
		}
		*in = Input{Kind: InputList, List: list}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return err
		}
		m := make(map[string]string, len(fields))
		for k, v := range fields {
			s, err := scalarText(v)
			if err != nil {
				return fmt.Errorf("input.%s: %w", k, err)
			}
			m[k] = s
		}
		*in = Input{Kind: InputMapping, Mapping: m}
	default:
		s, err := scalarText(data)
		if err != nil {
			return err
		}
		*in = Input{Kind: InputScalar, Scalar: s}
	}
	return nil
}

// scalarText converts a JSON scalar into the string handed to a tool.
func scalarText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", fmt.Errorf("empty value")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '[', '{':
		return "", fmt.Errorf("nested value %s is not a scalar", raw)
	default:
		if isNull(raw) {
			return "", nil
		}
		return string(raw), nil
	}
}

// -------------------------------------------------------
// Result
// -------------------------------------------------------

// ResultKind tags the shape of a successful call's payload.
type ResultKind int

const (
	ResultText ResultKind = iota
	ResultList
	ResultValue
)

// Result is the tagged union carried in a response's "result" field.
type Result struct {
	Kind  ResultKind
	Text  string
	List  []string
	Value json.RawMessage
}

// TextResult wraps a string payload.
func TextResult(s string) Result {
	return Result{Kind: ResultText, Text: s}
}

// ListResult wraps a list-of-strings payload.
func ListResult(items []string) Result {
	if items == nil {
		items = []string{}
	}
	return Result{Kind: ResultList, List: items}
}

// ValueResult encodes any other JSON-serialisable payload.
func ValueResult(v interface{}) (Result, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Result{}, fmt.Errorf("encoding result: %w", err)
	}
	return Result{Kind: ResultValue, Value: b}, nil
}

// String renders the payload as observation text: text as is, lists one
// item per line, anything else as compact JSON.
func (r Result) String() string {
	switch r.Kind {
	case ResultText:
		return r.Text
	case ResultList:
		return strings.Join(r.List, "\n")
	default:
		if len(r.Value) == 0 {
			return "null"
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, r.Value); err != nil {
			return string(r.Value)
		}
		return buf.String()
	}
}

func (r Result) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case ResultText:
		return json.Marshal(r.Text)
	case ResultList:
		list := r.List
		if list == nil {
			list = []string{}
		}
		return json.Marshal(list)
	default:
		if len(r.Value) == 0 {
			return []byte("null"), nil
		}
		return r.Value, nil
	}
}

func (r *Result) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 {
		switch data[0] {
		case '"':
			var s string
			if err := json.Unmarshal(data, &s); err != nil {
				return err
			}
			*r = TextResult(s)
			return nil
		case '[':
			var list []string
			if err := json.Unmarshal(data, &list); err == nil {
				*r = ListResult(list)
				return nil
			}
		}
	}
	*r = Result{Kind: ResultValue, Value: append(json.RawMessage(nil), data...)}
	return nil
}

// -------------------------------------------------------
// Response
// -------------------------------------------------------

// Response is the reply envelope. A well-formed response sets exactly one
// of Result and Error; a response decoded from a misbehaving server may
// have neither.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *jsonrpc2.ID    `json:"id"`
	Result  *Result         `json:"result,omitempty"`
	Error   *jsonrpc2.Error `json:"error,omitempty"`
}

// ResultResponse builds a success envelope.
func ResultResponse(id *jsonrpc2.ID, result Result) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: &result}
}

// ErrorResponse builds a failure envelope.
func ErrorResponse(id *jsonrpc2.ID, code int64, message string) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: &jsonrpc2.Error{Code: code, Message: message}}
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var raw struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *jsonrpc2.Error `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Response{JSONRPC: raw.JSONRPC, Error: raw.Error}

	if len(raw.ID) > 0 && !isNull(raw.ID) {
		var id jsonrpc2.ID
		if err := json.Unmarshal(raw.ID, &id); err == nil {
			r.ID = &id
		}
	}

	// A present "result" key, even a null one, counts as a result.
	if len(raw.Result) > 0 {
		var res Result
		if err := res.UnmarshalJSON(raw.Result); err != nil {
			return err
		}
		r.Result = &res
	}
	return nil
}

// -------------------------------------------------------
// Server metadata
// -------------------------------------------------------

// ToolInfo describes one registered tool.
type ToolInfo struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Params      []string `json:"params" yaml:"params"`
}

// CallRecord is the server's audit entry for one dispatched request.
type CallRecord struct {
	ID           string    `json:"id" yaml:"id"`
	RequestID    string    `json:"requestId,omitempty" yaml:"requestId,omitempty"`
	Method       string    `json:"method" yaml:"method"`
	Input        string    `json:"input" yaml:"input"`
	OK           bool      `json:"ok" yaml:"ok"`
	ErrorCode    int64     `json:"errorCode,omitempty" yaml:"errorCode,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
	DurationMs   int64     `json:"durationMs" yaml:"durationMs"`
	At           time.Time `json:"at" yaml:"at"`
}

// -------------------------------------------------------
// helpers
// -------------------------------------------------------

func isNull(b []byte) bool {
	return string(bytes.TrimSpace(b)) == "null"
}

func quoteAll(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = strconv.Quote(s)
	}
	return out
}
