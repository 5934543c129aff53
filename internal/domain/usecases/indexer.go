package usecases

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
	"github.com/0xcro3dile/localrag-agent/internal/metrics"
	"github.com/0xcro3dile/localrag-agent/pkg/logx"
)

// CacheDirName is the per-directory folder holding derived data. It is
// never indexed or listed.
const CacheDirName = ".localrag"

const defaultIndexWorkers = 4

// DirectoryIndexer loads every supported file under a directory and ingests
// it into the index.
type DirectoryIndexer struct {
	loader  ports.DocumentLoader
	ingest  *IngestUseCase
	index   *SemanticIndex
	workers int
	exts    map[string]bool
}

// NewDirectoryIndexer creates an indexer that processes up to workers files
// at once.
func NewDirectoryIndexer(loader ports.DocumentLoader, ingest *IngestUseCase, index *SemanticIndex, workers int) *DirectoryIndexer {
	if workers <= 0 {
		workers = defaultIndexWorkers
	}
	exts := make(map[string]bool)
	for _, e := range loader.SupportedExtensions() {
		exts[strings.ToLower(e)] = true
	}
	return &DirectoryIndexer{loader: loader, ingest: ingest, index: index, workers: workers, exts: exts}
}

// Supports reports whether path has an extension the loader handles.
func (ix *DirectoryIndexer) Supports(path string) bool {
	return ix.exts[strings.ToLower(filepath.Ext(path))]
}

// IndexDirectory indexes root. Per-file failures are logged and skipped; the
// returned error is non-nil only when the walk itself fails or ctx ends.
func (ix *DirectoryIndexer) IndexDirectory(ctx context.Context, root string, p *Progress) error {
	files, err := ix.collect(root)
	if err != nil {
		return err
	}
	if p != nil {
		p.SetTotal(len(files))
	}
	logx.Info().Str("dir", root).Int("files", len(files)).Msg("indexing directory")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for _, path := range files {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err := ix.IndexFile(gctx, path); err != nil {
				logx.Warn().Err(err).Str("path", path).Msg("skipping file")
			}
			if p != nil {
				p.Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// IndexFile loads and ingests a single file, replacing earlier chunks.
func (ix *DirectoryIndexer) IndexFile(ctx context.Context, path string) error {
	doc, err := ix.loader.Load(ctx, path)
	if err != nil {
		metrics.IndexedDocumentsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("loading %s: %w", path, err)
	}
	n, err := ix.ingest.Ingest(ctx, doc)
	if err != nil {
		metrics.IndexedDocumentsTotal.WithLabelValues("error").Inc()
		return err
	}
	if n == 0 && ix.index != nil {
		// No text: index the name so the file can still be found.
		if err := ix.index.Insert(ctx, "File: "+doc.Name, entities.NewSource(doc.Name, doc.Path)); err != nil {
			metrics.IndexedDocumentsTotal.WithLabelValues("error").Inc()
			return err
		}
	}
	metrics.IndexedDocumentsTotal.WithLabelValues("ok").Inc()
	return nil
}

// RemoveFile drops the chunks of the file at path.
func (ix *DirectoryIndexer) RemoveFile(ctx context.Context, path string) error {
	return ix.ingest.Delete(ctx, entities.DocumentID(path))
}

func (ix *DirectoryIndexer) collect(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logx.Debug().Err(err).Str("path", path).Msg("walk error")
			return nil
		}
		if path != root && SkipEntry(d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && ix.Supports(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}

// SkipEntry reports whether a walk should ignore d: hidden entries, the
// cache directory and symlinks.
func SkipEntry(d fs.DirEntry) bool {
	name := d.Name()
	return strings.HasPrefix(name, ".") || name == CacheDirName || d.Type()&fs.ModeSymlink != 0
}

// SummaryPath is where the collection summary of dir is cached.
func SummaryPath(dir string) string {
	return filepath.Join(dir, CacheDirName, "summary.txt")
}

const summarySystem = "You summarize a collection of personal files. Using only the passages given, " +
	"describe in two or three sentences what kinds of documents the collection holds and its main topics."

// CollectionSummarizer produces a short description of an indexed
// directory from a retrieval over its main topics.
type CollectionSummarizer struct {
	gen   ports.Generator
	index ports.ChunkSearcher
}

// NewCollectionSummarizer creates a CollectionSummarizer.
func NewCollectionSummarizer(gen ports.Generator, index ports.ChunkSearcher) *CollectionSummarizer {
	return &CollectionSummarizer{gen: gen, index: index}
}

// Summary returns the cached summary of dir, generating and caching it when
// missing or when refresh is set.
func (s *CollectionSummarizer) Summary(ctx context.Context, dir string, refresh bool) (string, error) {
	path := SummaryPath(dir)
	if !refresh {
		if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
			return strings.TrimSpace(string(data)), nil
		}
	}

	results, err := s.index.Search(ctx, "main topics", 8)
	if err != nil {
		return "", fmt.Errorf("searching main topics: %w", err)
	}
	if len(results) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "[%s]\n%s\n\n", r.SourceName(), truncate(r.Chunk.Content, 400))
	}
	summary, err := s.gen.Generate(ctx, ports.GenerateRequest{
		System:   summarySystem,
		Messages: []entities.ConversationTurn{{Role: entities.RoleUser, Text: sb.String()}},
		Sampling: ports.Sampling{MaxTokens: 200, Temperature: 0.2},
		Purpose:  ports.PurposeSummary,
	})
	if err != nil {
		return "", fmt.Errorf("generating summary: %w", err)
	}
	summary = strings.TrimSpace(summary)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logx.Warn().Err(err).Str("dir", dir).Msg("cannot create cache dir")
		return summary, nil
	}
	if err := os.WriteFile(path, []byte(summary+"\n"), 0o644); err != nil {
		logx.Warn().Err(err).Str("path", path).Msg("cannot cache summary")
	}
	return summary, nil
}
