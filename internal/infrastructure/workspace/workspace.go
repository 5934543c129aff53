// Package workspace keeps the registry of indexed directories. Every
// transport goes through it: it builds the per-directory index, agent and
// watcher, runs indexing in the background and answers queries once a
// directory is ready.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/0xcro3dile/localrag-agent/internal/adapters/toolbox"
	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
	"github.com/0xcro3dile/localrag-agent/internal/domain/usecases"
	"github.com/0xcro3dile/localrag-agent/pkg/logx"
)

// MaxQueryLength is the longest accepted query, in characters.
const MaxQueryLength = 10000

var (
	ErrNotADirectory      = errors.New("not a directory")
	ErrSensitiveDirectory = errors.New("cannot index sensitive system directory")
	ErrNoDirectories      = errors.New("no ready directories")
	ErrNotReady           = errors.New("directory not ready")
	ErrEmptyQuery         = errors.New("empty query")
	ErrQueryTooLong       = fmt.Errorf("query too long (max %d chars)", MaxQueryLength)
)

// Deps are the collaborators shared by every directory.
type Deps struct {
	Generator     ports.Generator
	Embedder      ports.EmbeddingService
	Loader        ports.DocumentLoader
	Extractor     ports.TextExtractor
	Conversations ports.ConversationStore

	// OpenStore opens the vector store kept in cacheDir.
	OpenStore func(cacheDir string) (ports.VectorStore, error)
	// NewWatcher creates a watcher for files with the given extensions.
	// Nil disables incremental re-indexing.
	NewWatcher func(extensions []string) (ports.FileWatcher, error)

	Agent        entities.SessionConfig
	ChunkSize    int
	ChunkOverlap int
	Workers      int
}

// Workspace is the registry of indexed directories.
type Workspace struct {
	deps     Deps
	events   *Events
	rewriter *usecases.QueryRewriter

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	dirs  map[string]*Directory
	order []string
}

// New creates a Workspace. Background tasks live until ctx is done or Close
// is called.
func New(ctx context.Context, deps Deps) *Workspace {
	deps.Agent = deps.Agent.WithDefaults()
	ctx, cancel := context.WithCancel(ctx)
	return &Workspace{
		deps:     deps,
		events:   NewEvents(),
		rewriter: usecases.NewQueryRewriter(deps.Generator, deps.Agent.HistoryTurns),
		ctx:      ctx,
		cancel:   cancel,
		dirs:     make(map[string]*Directory),
	}
}

// Events returns the event fan-out of the workspace.
func (w *Workspace) Events() *Events {
	return w.events
}

// Add registers the directory at path and starts indexing it. Adding a
// directory that is already registered returns the existing entry.
func (w *Workspace) Add(path string) (*Directory, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, path)
	}
	if IsSensitive(abs) {
		return nil, fmt.Errorf("%w: %s", ErrSensitiveDirectory, abs)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, d := range w.dirs {
		if d.Path == abs {
			return d, nil
		}
	}

	id := DirectoryID(abs)
	if _, taken := w.dirs[id]; taken {
		id = id + "-" + entities.DocumentID(abs)[:6]
	}
	d, err := w.build(id, abs)
	if err != nil {
		return nil, err
	}
	w.dirs[id] = d
	w.order = append(w.order, id)
	logx.Info().Str("directory", id).Str("path", abs).Msg("directory added")

	w.startIndexing(d, false)
	return d, nil
}

func (w *Workspace) build(id, path string) (*Directory, error) {
	store, err := w.deps.OpenStore(filepath.Join(path, usecases.CacheDirName))
	if err != nil {
		return nil, fmt.Errorf("opening index of %s: %w", id, err)
	}
	index := usecases.NewSemanticIndex(w.deps.Embedder, store)
	ingest := usecases.NewIngestUseCase(w.deps.Embedder, store, w.deps.ChunkSize, w.deps.ChunkOverlap)
	files := toolbox.New(path, usecases.CacheDirName)
	searcher := usecases.NewSearcher(w.deps.Generator, index, files, w.deps.Extractor, w.deps.Agent)
	registry := usecases.NewToolRegistry(searcher, files)

	return &Directory{
		ID:             id,
		Path:           path,
		ConversationID: uuid.NewString(),
		store:          store,
		indexer:        usecases.NewDirectoryIndexer(w.deps.Loader, ingest, index, w.deps.Workers),
		summarizer:     usecases.NewCollectionSummarizer(w.deps.Generator, index),
		agent:          usecases.NewAgent(w.deps.Generator, registry, w.rewriter, w.deps.Agent),
		state:          StateIndexing,
	}, nil
}

func (w *Workspace) startIndexing(d *Directory, refresh bool) {
	d.setState(StateIndexing, nil)
	w.events.Emit(EventStatus, StatusEvent{State: string(StateIndexing)})
	w.events.Emit(EventDirectoryUpdate, d.event())

	onProgress := func(done, total int) {
		w.events.Emit(EventIndexingProgress, ProgressEvent{DirectoryID: d.ID, Done: done, Total: total})
	}
	// Hold the lock so the task cannot change state before it is recorded.
	d.mu.Lock()
	d.indexing = usecases.StartTask(w.ctx, "index:"+d.ID, func(ctx context.Context, p *usecases.Progress) error {
		return w.index(ctx, d, p, refresh)
	}, onProgress)
	d.mu.Unlock()
}

func (w *Workspace) index(ctx context.Context, d *Directory, p *usecases.Progress, refresh bool) error {
	if err := d.indexer.IndexDirectory(ctx, d.Path, p); err != nil {
		d.setState(StateError, err)
		w.events.Emit(EventDirectoryUpdate, d.event())
		return err
	}

	d.setState(StateSummarizing, nil)
	w.events.Emit(EventStatus, StatusEvent{State: string(StateSummarizing)})
	w.events.Emit(EventDirectoryUpdate, d.event())

	stats, err := CollectStats(d.Path)
	if err != nil {
		logx.Warn().Err(err).Str("directory", d.ID).Msg("collecting stats failed")
	}
	summary, err := d.summarizer.Summary(ctx, d.Path, refresh)
	if err != nil {
		if ctx.Err() != nil {
			d.setState(StateError, ctx.Err())
			return ctx.Err()
		}
		logx.Warn().Err(err).Str("directory", d.ID).Msg("summary failed")
	}

	d.setReady(summary, stats)
	w.events.Emit(EventDirectoryUpdate, d.event())
	w.events.Emit(EventStatus, StatusEvent{State: string(StateReady)})
	logx.Info().Str("directory", d.ID).Msg("directory ready")

	w.startWatcher(ctx, d)
	return nil
}

func (w *Workspace) startWatcher(indexCtx context.Context, d *Directory) {
	if w.deps.NewWatcher == nil || indexCtx.Err() != nil {
		return
	}
	watcher, err := w.deps.NewWatcher(w.deps.Loader.SupportedExtensions())
	if err != nil {
		logx.Warn().Err(err).Str("directory", d.ID).Msg("file watcher unavailable")
		return
	}

	task := usecases.StartTask(w.ctx, "watch:"+d.ID, func(ctx context.Context, _ *usecases.Progress) error {
		events, err := watcher.Watch(ctx, d.Path)
		if err != nil {
			return err
		}
		defer watcher.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				w.apply(ctx, d, ev)
			}
		}
	}, nil)

	d.mu.Lock()
	d.watching = task
	d.mu.Unlock()
}

func (w *Workspace) apply(ctx context.Context, d *Directory, ev ports.FileEvent) {
	var err error
	if ev.Operation == ports.FileDeleted {
		err = d.indexer.RemoveFile(ctx, ev.Path)
	} else {
		err = d.indexer.IndexFile(ctx, ev.Path)
	}
	if err != nil {
		logx.Warn().Err(err).Str("directory", d.ID).Str("path", ev.Path).Msg("re-indexing failed")
		return
	}
	logx.Debug().Str("directory", d.ID).Str("path", ev.Path).Msg("re-indexed")
}

// Get returns the directory with id.
func (w *Workspace) Get(id string) (*Directory, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	d, ok := w.dirs[id]
	if !ok {
		return nil, fmt.Errorf("unknown directory %s: %w", id, entities.ErrNotFound)
	}
	return d, nil
}

// List returns every directory in registration order.
func (w *Workspace) List() []Info {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Info, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.dirs[id].Info())
	}
	return out
}

// Remove stops serving the directory with id and deletes its cache.
func (w *Workspace) Remove(ctx context.Context, id string) error {
	w.mu.Lock()
	d, ok := w.dirs[id]
	if ok {
		delete(w.dirs, id)
		w.order = slices.DeleteFunc(w.order, func(s string) bool { return s == id })
	}
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown directory %s: %w", id, entities.ErrNotFound)
	}

	d.queryMu.Lock()
	defer d.queryMu.Unlock()
	if err := d.close(); err != nil {
		logx.Warn().Err(err).Str("directory", id).Msg("closing index failed")
	}
	if err := w.deps.Conversations.Clear(ctx, d.ConversationID); err != nil {
		logx.Warn().Err(err).Str("directory", id).Msg("clearing conversation failed")
	}
	if err := os.RemoveAll(filepath.Join(d.Path, usecases.CacheDirName)); err != nil {
		return fmt.Errorf("removing cache of %s: %w", id, err)
	}

	d.setState(StateRemoved, nil)
	w.events.Emit(EventDirectoryUpdate, d.event())
	logx.Info().Str("directory", id).Msg("directory removed")
	return nil
}

// Reindex drops the index, summary and conversation of the directory and
// indexes it again.
func (w *Workspace) Reindex(ctx context.Context, id string) (*Directory, error) {
	d, err := w.Get(id)
	if err != nil {
		return nil, err
	}

	d.queryMu.Lock()
	defer d.queryMu.Unlock()
	d.stop()
	if err := d.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clearing index of %s: %w", id, err)
	}
	if err := os.Remove(usecases.SummaryPath(d.Path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		logx.Warn().Err(err).Str("directory", id).Msg("removing summary failed")
	}
	if err := w.deps.Conversations.Clear(ctx, d.ConversationID); err != nil {
		logx.Warn().Err(err).Str("directory", id).Msg("clearing conversation failed")
	}

	w.startIndexing(d, true)
	return d, nil
}

// QueryOptions select the target directory and observe the run.
type QueryOptions struct {
	DirectoryID string
	OnToken     func(text string)
	OnStep      func(step entities.AgentStep)
}

// QueryResult is the answer of one directory.
type QueryResult struct {
	DirectoryID   string               `json:"directoryId"`
	Text          string               `json:"text"`
	Sources       []string             `json:"sources"`
	Steps         []entities.AgentStep `json:"steps,omitempty"`
	Exhausted     bool                 `json:"exhausted,omitempty"`
	LowConfidence bool                 `json:"lowConfidence,omitempty"`
}

// Query answers text against one directory: the one named in opts or, if
// none, the first registered. It waits for the directory's indexing task.
func (w *Workspace) Query(ctx context.Context, text string, opts QueryOptions) (*QueryResult, error) {
	if err := ValidateQuery(text); err != nil {
		return nil, err
	}
	d, err := w.target(opts.DirectoryID)
	if err != nil {
		return nil, err
	}
	return w.ask(ctx, d, text, opts)
}

// QueryAll answers text against every directory that indexed successfully.
// Only model unavailability and ctx cancellation abort the batch.
func (w *Workspace) QueryAll(ctx context.Context, text string, opts QueryOptions) ([]QueryResult, error) {
	if err := ValidateQuery(text); err != nil {
		return nil, err
	}
	w.mu.RLock()
	dirs := make([]*Directory, 0, len(w.order))
	for _, id := range w.order {
		dirs = append(dirs, w.dirs[id])
	}
	w.mu.RUnlock()

	results := make([]QueryResult, 0, len(dirs))
	for _, d := range dirs {
		res, err := w.ask(ctx, d, text, opts)
		switch {
		case err == nil:
			results = append(results, *res)
		case errors.Is(err, entities.ErrModelUnavailable) || ctx.Err() != nil:
			return nil, err
		default:
			logx.Warn().Err(err).Str("directory", d.ID).Msg("skipping directory")
		}
	}
	if len(results) == 0 {
		return nil, ErrNoDirectories
	}
	return results, nil
}

// ValidateQuery rejects empty and overlong queries.
func ValidateQuery(text string) error {
	switch {
	case strings.TrimSpace(text) == "":
		return ErrEmptyQuery
	case utf8.RuneCountInString(text) > MaxQueryLength:
		return ErrQueryTooLong
	}
	return nil
}

func (w *Workspace) target(id string) (*Directory, error) {
	if id != "" {
		return w.Get(id)
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.order) == 0 {
		return nil, ErrNoDirectories
	}
	return w.dirs[w.order[0]], nil
}

func (w *Workspace) ask(ctx context.Context, d *Directory, text string, opts QueryOptions) (*QueryResult, error) {
	if err := d.Wait(ctx); err != nil {
		return nil, err
	}

	d.queryMu.Lock()
	defer d.queryMu.Unlock()
	if d.State() != StateReady {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, d.ID)
	}

	history, err := w.deps.Conversations.Load(ctx, d.ConversationID)
	if err != nil {
		logx.Warn().Err(err).Str("directory", d.ID).Msg("loading conversation failed")
		history = nil
	}

	answer, err := d.agent.Run(ctx, text, history, usecases.RunOptions{OnStep: opts.OnStep, OnToken: opts.OnToken})
	if err != nil {
		return nil, err
	}

	err = w.deps.Conversations.Append(ctx, d.ConversationID,
		entities.ConversationTurn{Role: entities.RoleUser, Text: text},
		entities.ConversationTurn{Role: entities.RoleAssistant, Text: answer.Text},
	)
	if err != nil {
		logx.Warn().Err(err).Str("directory", d.ID).Msg("saving conversation failed")
	}

	return &QueryResult{
		DirectoryID:   d.ID,
		Text:          answer.Text,
		Sources:       resolveSources(d.Path, answer.Sources),
		Steps:         answer.Steps,
		Exhausted:     answer.Exhausted,
		LowConfidence: answer.LowConfidence,
	}, nil
}

// Close stops every background task and closes the indexes.
func (w *Workspace) Close() error {
	w.cancel()
	w.mu.Lock()
	dirs := make([]*Directory, 0, len(w.dirs))
	for _, d := range w.dirs {
		dirs = append(dirs, d)
	}
	w.mu.Unlock()

	var errs []error
	for _, d := range dirs {
		if err := d.close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", d.ID, err))
		}
	}
	return errors.Join(errs...)
}
