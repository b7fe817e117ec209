// Package codebase implements scout's code tools: listing and reading the
// files of a workspace, semantic search over its indexed chunks, and the
// indexer that fills the vector index.
package codebase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensions are the file types treated as code.
var DefaultExtensions = []string{".tsx", ".ts", ".html", ".css"}

// ErrFileNotFound is returned when no workspace file has the requested name.
var ErrFileNotFound = errors.New("file not found in workspace")

// skippedDirs are never descended into.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// Workspace is a directory tree of source files.
type Workspace struct {
	root       string
	extensions map[string]bool
}

// NewWorkspace returns a Workspace rooted at root. Empty extensions means
// DefaultExtensions.
func NewWorkspace(root string, extensions []string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("opening workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s is not a directory", abs)
	}

	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	return &Workspace{root: abs, extensions: exts}, nil
}

// Root returns the absolute workspace path.
func (w *Workspace) Root() string { return w.root }

// IsCode reports whether name has one of the workspace's code extensions.
func (w *Workspace) IsCode(name string) bool {
	return w.extensions[strings.ToLower(filepath.Ext(name))]
}

// CodeFile is a code file found in the workspace.
type CodeFile struct {
	Name    string // base name
	RelPath string // slash-separated, relative to the root
	Path    string // absolute
}

// Walk calls fn for every code file in lexical order. It stops early when
// ctx is cancelled or fn returns an error.
func (w *Workspace) Walk(ctx context.Context, fn func(CodeFile) error) error {
	return w.walkAll(ctx, func(f CodeFile) error {
		if !w.IsCode(f.Name) {
			return nil
		}
		return fn(f)
	})
}

// walkAll calls fn for every regular file of any type in lexical order,
// skipping skippedDirs.
func (w *Workspace) walkAll(ctx context.Context, fn func(CodeFile) error) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.root && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		return fn(CodeFile{Name: d.Name(), RelPath: filepath.ToSlash(rel), Path: path})
	})
}

// ListFiles returns the base names of all code files, sorted. Files with
// the same name in different directories appear once per file.
func (w *Workspace) ListFiles(ctx context.Context) ([]string, error) {
	names := []string{}
	err := w.Walk(ctx, func(f CodeFile) error {
		names = append(names, f.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", w.root, err)
	}
	sort.Strings(names)
	return names, nil
}

// errFound stops a walk once the wanted file is located.
var errFound = errors.New("found")

// ReadFile returns the trimmed contents of the first file, in walk order,
// whose base name is filename.
func (w *Workspace) ReadFile(ctx context.Context, filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("%q: filename must be a bare file name", filename)
	}

	var match string
	err := w.walkAll(ctx, func(f CodeFile) error {
		if f.Name == filename {
			match = f.Path
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", fmt.Errorf("searching for %s: %w", filename, err)
	}
	if match == "" {
		return "", fmt.Errorf("%s: %w", filename, ErrFileNotFound)
	}

	data, err := os.ReadFile(match)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", filename, err)
	}
	return strings.TrimSpace(string(data)), nil
}
