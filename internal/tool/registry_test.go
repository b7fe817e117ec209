package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klubi/scout/pkg/rpc"
)

func noop(context.Context, []string) (rpc.Result, error) {
	return rpc.TextResult(""), nil
}

func TestNewRegistryRejectsBadTools(t *testing.T) {
	tests := []struct {
		name  string
		tools []Tool
	}{
		{"empty name", []Tool{{Name: "", Fn: noop}}},
		{"name with space", []Tool{{Name: "Get Code", Fn: noop}}},
		{"name with colon", []Tool{{Name: "Get:Code", Fn: noop}}},
		{"no func", []Tool{{Name: "Nil"}}},
		{"duplicate", []Tool{{Name: "A", Fn: noop}, {Name: "A", Fn: noop}}},
		{"duplicate param", []Tool{{Name: "A", Params: []string{"x", "x"}, Fn: noop}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.tools...)
			assert.Error(t, err)
		})
	}
}

func TestRegistryListSorted(t *testing.T) {
	reg, err := NewRegistry(
		Tool{Name: "GetListOfCodeFiles", Fn: noop},
		Tool{Name: "GetCodeFileContents", Params: []string{"filename"}, Description: "read a file", Fn: noop},
	)
	require.NoError(t, err)

	infos := reg.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "GetCodeFileContents", infos[0].Name)
	assert.Equal(t, []string{"filename"}, infos[0].Params)
	assert.Equal(t, "read a file", infos[0].Description)
	assert.Equal(t, "GetListOfCodeFiles", infos[1].Name)
	assert.Empty(t, infos[1].Params)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryIsImmutable(t *testing.T) {
	params := []string{"a"}
	reg, err := NewRegistry(Tool{Name: "T", Params: params, Fn: noop})
	require.NoError(t, err)

	params[0] = "changed"
	tl, err := reg.Lookup("T")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tl.Params)
}
