package codebase

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/klubi/scout/internal/embedding"
	"github.com/klubi/scout/internal/vectordb"
)

const (
	DefaultChunkLines = 60
	DefaultBatchSize  = 16
)

// IndexOptions tunes an Indexer.
type IndexOptions struct {
	ChunkLines int
	BatchSize  int
	// Reset clears the collection before indexing.
	Reset bool
}

// IndexStats summarises an indexing pass.
type IndexStats struct {
	Files    int
	Chunks   int
	Removed  int
	Skipped  int
	Duration time.Duration
}

// Indexer splits workspace files into line windows, embeds them and
// stores them in the vector index.
type Indexer struct {
	ws       *Workspace
	embedder embedding.Embedder
	index    *vectordb.Index
	opts     IndexOptions
	logger   *zap.Logger
}

// NewIndexer creates an Indexer. Non-positive options take their defaults.
func NewIndexer(ws *Workspace, embedder embedding.Embedder, index *vectordb.Index, opts IndexOptions, logger *zap.Logger) *Indexer {
	if opts.ChunkLines <= 0 {
		opts.ChunkLines = DefaultChunkLines
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Indexer{ws: ws, embedder: embedder, index: index, opts: opts, logger: logger}
}

// Run indexes every code file in the workspace. Chunk ids derive from the
// file path and window, so re-running replaces chunks in place. After a
// complete pass, chunks not written by it (deleted files, windows past the
// end of a shortened file) are removed.
func (ix *Indexer) Run(ctx context.Context) (*IndexStats, error) {
	start := time.Now()
	stats := &IndexStats{}

	if ix.opts.Reset {
		if err := ix.index.Reset(ctx); err != nil {
			return nil, err
		}
	}

	written := make(map[string]struct{})
	var batch []vectordb.Chunk
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vecs, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding batch: %w", err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(batch))
		}
		for i := range batch {
			batch[i].Vector = vecs[i]
		}
		if err := ix.index.Upsert(ctx, batch); err != nil {
			return err
		}
		for _, c := range batch {
			written[c.ID] = struct{}{}
		}
		stats.Chunks += len(batch)
		batch = batch[:0]
		return nil
	}

	err := ix.ws.Walk(ctx, func(f CodeFile) error {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			ix.logger.Warn("skipping unreadable file", zap.String("file", f.RelPath), zap.Error(err))
			stats.Skipped++
			return nil
		}

		chunks := SplitLines(f, string(data), ix.opts.ChunkLines)
		if len(chunks) == 0 {
			stats.Skipped++
			return nil
		}
		stats.Files++

		for _, c := range chunks {
			batch = append(batch, c)
			if len(batch) >= ix.opts.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", ix.ws.Root(), err)
	}
	if err := flush(); err != nil {
		return nil, fmt.Errorf("indexing %s: %w", ix.ws.Root(), err)
	}

	removed, err := ix.index.Retain(ctx, written)
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", ix.ws.Root(), err)
	}
	stats.Removed = removed

	stats.Duration = time.Since(start)
	ix.logger.Info("indexed workspace",
		zap.String("root", ix.ws.Root()),
		zap.String("collection", ix.index.Collection()),
		zap.Int("files", stats.Files),
		zap.Int("chunks", stats.Chunks),
		zap.Int("removed", stats.Removed),
		zap.Int("skipped", stats.Skipped),
		zap.Duration("elapsed", stats.Duration),
	)
	return stats, nil
}

// SplitLines cuts content into windows of at most size lines. Blank
// windows are dropped. Line numbers are 1-based and inclusive.
func SplitLines(f CodeFile, content string, size int) []vectordb.Chunk {
	if size <= 0 {
		size = DefaultChunkLines
	}
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	var chunks []vectordb.Chunk
	for start := 0; start < len(lines); start += size {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		text := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, vectordb.Chunk{
			ID:        chunkID(f.RelPath, start+1),
			Name:      f.Name,
			FilePath:  f.RelPath,
			StartLine: start + 1,
			EndLine:   end,
			Content:   text,
		})
	}
	return chunks
}

func chunkID(relPath string, startLine int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#L%d", relPath, startLine))).String()
}
