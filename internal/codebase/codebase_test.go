package codebase

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/klubi/scout/internal/vectordb"
	"github.com/klubi/scout/pkg/rpc"
)

// keywordEmbedder scores texts on a few fixed keywords so similarity is
// predictable.
type keywordEmbedder struct {
	calls int
}

var keywords = []string{"cart", "nav", "price"}

func (e *keywordEmbedder) Name() string { return "keywords" }

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		v := make([]float32, len(keywords))
		for k, word := range keywords {
			v[k] = float32(strings.Count(lower, word)) + 0.01
		}
		out[i] = v
	}
	return out, nil
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// testWorkspace lays out a small web project.
func testWorkspace(t *testing.T) *Workspace {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "index.html", "<html><body></body></html>\n")
	writeFile(t, root, "other/Cart.tsx", "\n// second\n\n")
	writeFile(t, root, "src/components/Cart.tsx", "export const Cart = () => { /* cart cart */ }\n")
	writeFile(t, root, "src/components/Nav.tsx", "export const Nav = () => 'nav'\n")
	writeFile(t, root, "src/styles/main.css", "body { price: 0 }\n")
	writeFile(t, root, "README.md", "# shop\n")
	writeFile(t, root, "node_modules/lib/index.ts", "export {}\n")

	ws, err := NewWorkspace(root, nil)
	require.NoError(t, err)
	return ws
}

func TestListFiles(t *testing.T) {
	ws := testWorkspace(t)

	names, err := ws.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Cart.tsx", "Cart.tsx", "Nav.tsx", "index.html", "main.css"}, names)
}

func TestListFilesCustomExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	writeFile(t, root, "b.TS", "x")

	ws, err := NewWorkspace(root, []string{"go", " .ts "})
	require.NoError(t, err)

	names, err := ws.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.TS"}, names)
}

func TestReadFile(t *testing.T) {
	ws := testWorkspace(t)
	ctx := context.Background()

	got, err := ws.ReadFile(ctx, "Nav.tsx")
	require.NoError(t, err)
	assert.Equal(t, "export const Nav = () => 'nav'", got)

	// The first match in walk order wins.
	got, err = ws.ReadFile(ctx, "Cart.tsx")
	require.NoError(t, err)
	assert.Equal(t, "// second", got)

	// Any file type can be read by name.
	got, err = ws.ReadFile(ctx, "README.md")
	require.NoError(t, err)
	assert.Equal(t, "# shop", got)

	_, err = ws.ReadFile(ctx, "Missing.tsx")
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = ws.ReadFile(ctx, "../secret.ts")
	assert.Error(t, err)
}

func TestSkippedDirsApplyToEveryLookup(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "node_modules/pkg/Hidden.tsx", "hidden\n")
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	writeFile(t, root, "src/Shown.tsx", "shown\n")

	ws, err := NewWorkspace(root, nil)
	require.NoError(t, err)

	names, err := ws.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Shown.tsx"}, names)

	_, err = ws.ReadFile(ctx, "Hidden.tsx")
	assert.ErrorIs(t, err, ErrFileNotFound)
	_, err = ws.ReadFile(ctx, "HEAD")
	assert.ErrorIs(t, err, ErrFileNotFound)

	got, err := ws.ReadFile(ctx, "Shown.tsx")
	require.NoError(t, err)
	assert.Equal(t, "shown", got)
}

func TestNewWorkspaceErrors(t *testing.T) {
	_, err := NewWorkspace(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.ts")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = NewWorkspace(file, nil)
	assert.Error(t, err)
}

func TestSplitLines(t *testing.T) {
	f := CodeFile{Name: "a.ts", RelPath: "src/a.ts"}
	chunks := SplitLines(f, "one\ntwo\n\n\nfive", 2)

	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 2, chunks[0].EndLine)
	assert.Equal(t, "one\ntwo", chunks[0].Content)
	assert.Equal(t, 5, chunks[1].StartLine)
	assert.Equal(t, 5, chunks[1].EndLine)
	assert.Equal(t, "src/a.ts", chunks[1].FilePath)

	again := SplitLines(f, "one\ntwo\n\n\nfive", 2)
	assert.Equal(t, chunks[0].ID, again[0].ID)
	assert.NotEqual(t, chunks[0].ID, chunks[1].ID)
}

func indexWorkspace(t *testing.T, ws *Workspace, emb *keywordEmbedder) *vectordb.Index {
	t.Helper()
	index, err := vectordb.Open(filepath.Join(t.TempDir(), "index.db"), "", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	stats, err := NewIndexer(ws, emb, index, IndexOptions{BatchSize: 2}, zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Files)
	assert.Equal(t, 5, stats.Chunks)
	return index
}

func TestIndexerAndSearch(t *testing.T) {
	ws := testWorkspace(t)
	emb := &keywordEmbedder{}
	index := indexWorkspace(t, ws, emb)
	ctx := context.Background()

	// Five chunks in batches of two.
	assert.Equal(t, 3, emb.calls)

	n, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// Re-indexing replaces chunks instead of duplicating them.
	_, err = NewIndexer(ws, emb, index, IndexOptions{}, zaptest.NewLogger(t)).Run(ctx)
	require.NoError(t, err)
	n, err = index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	lines, err := NewSearcher(emb, index, 0, zaptest.NewLogger(t)).Search(ctx, "cart")
	require.NoError(t, err)
	require.Len(t, lines, DefaultSearchLimit)
	assert.Equal(t, "Cart.tsx (src/components/Cart.tsx)", lines[0])

	lines, err = NewSearcher(emb, index, 1, zaptest.NewLogger(t)).Search(ctx, "price list")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.css (src/styles/main.css)"}, lines)
}

func TestReindexDropsStaleChunks(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "Gone.tsx", "cart cart cart\n")
	writeFile(t, root, "Keep.tsx", "nav\nprice\nnav price\n")

	ws, err := NewWorkspace(root, nil)
	require.NoError(t, err)
	emb := &keywordEmbedder{}
	index, err := vectordb.Open(filepath.Join(t.TempDir(), "index.db"), "", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	opts := IndexOptions{ChunkLines: 1}
	stats, err := NewIndexer(ws, emb, index, opts, zaptest.NewLogger(t)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Chunks)
	assert.Zero(t, stats.Removed)

	// Delete one file and shorten the other.
	require.NoError(t, os.Remove(filepath.Join(root, "Gone.tsx")))
	writeFile(t, root, "Keep.tsx", "nav\n")

	stats, err = NewIndexer(ws, emb, index, opts, zaptest.NewLogger(t)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, 3, stats.Removed)

	n, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	lines, err := NewSearcher(emb, index, 0, zaptest.NewLogger(t)).Search(ctx, "cart")
	require.NoError(t, err)
	assert.Equal(t, []string{"Keep.tsx (Keep.tsx)"}, lines)
}

func TestRegistryTools(t *testing.T) {
	ws := testWorkspace(t)
	emb := &keywordEmbedder{}
	index := indexWorkspace(t, ws, emb)
	ctx := context.Background()

	reg, err := NewRegistry(ws, NewSearcher(emb, index, 2, zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, 3, reg.Len())

	res, err := reg.Dispatch(ctx, ToolGetListOfCodeFiles, rpc.Input{})
	require.NoError(t, err)
	assert.Equal(t, rpc.ResultList, res.Kind)
	assert.Len(t, res.List, 5)

	res, err = reg.Dispatch(ctx, ToolGetCodeFileContents, rpc.ScalarInput("Nav.tsx"))
	require.NoError(t, err)
	assert.Equal(t, "export const Nav = () => 'nav'", res.String())

	res, err = reg.Dispatch(ctx, ToolGetRelevantCode, rpc.ListInput("nav bar"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.String(), "Nav.tsx (src/components/Nav.tsx)\n"))

	_, err = reg.Dispatch(ctx, ToolGetCodeFileContents, rpc.ListInput())
	assert.Error(t, err)
}
