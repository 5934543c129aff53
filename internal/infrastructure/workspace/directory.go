package workspace

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
	"github.com/0xcro3dile/localrag-agent/internal/domain/usecases"
)

// State is the lifecycle state of an indexed directory.
type State string

const (
	StateIndexing    State = "indexing"
	StateSummarizing State = "summarizing"
	StateReady       State = "ready"
	StateError       State = "error"
	StateRemoved     State = "removed"
)

// Directory is one indexed directory and everything that serves it.
type Directory struct {
	ID             string
	Path           string
	ConversationID string

	store      ports.VectorStore
	indexer    *usecases.DirectoryIndexer
	summarizer *usecases.CollectionSummarizer
	agent      *usecases.Agent

	// queryMu keeps turns of one conversation in order and keeps queries
	// off a store that is being cleared.
	queryMu sync.Mutex

	mu       sync.RWMutex
	state    State
	summary  string
	stats    *Stats
	err      error
	indexing *usecases.Task
	watching *usecases.Task
}

// Info is a snapshot of a directory for clients.
type Info struct {
	ID      string `json:"directoryId"`
	Path    string `json:"path"`
	State   State  `json:"state"`
	Summary string `json:"summary,omitempty"`
	Stats   *Stats `json:"stats,omitempty"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Error   string `json:"error,omitempty"`
}

func (d *Directory) Info() Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info := Info{ID: d.ID, Path: d.Path, State: d.state, Summary: d.summary, Stats: d.stats}
	if d.err != nil {
		info.Error = d.err.Error()
	}
	if d.indexing != nil {
		info.Done, info.Total = d.indexing.Progress()
	}
	return info
}

func (d *Directory) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Directory) event() DirectoryEvent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ev := DirectoryEvent{DirectoryID: d.ID, State: d.state, Summary: d.summary, Stats: d.stats}
	if d.err != nil {
		ev.Error = d.err.Error()
	}
	return ev
}

func (d *Directory) setState(s State, err error) {
	d.mu.Lock()
	d.state = s
	d.err = err
	d.mu.Unlock()
}

func (d *Directory) setReady(summary string, stats *Stats) {
	d.mu.Lock()
	d.state = StateReady
	d.summary = summary
	d.stats = stats
	d.err = nil
	d.mu.Unlock()
}

// Wait blocks until the indexing task has ended, then reports
// whether the directory can serve queries.
func (d *Directory) Wait(ctx context.Context) error {
	d.mu.RLock()
	task := d.indexing
	d.mu.RUnlock()
	if task != nil {
		select {
		case <-task.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	switch d.state {
	case StateReady:
		return nil
	case StateError:
		return fmt.Errorf("%w: %s: %v", ErrNotReady, d.ID, d.err)
	default:
		return fmt.Errorf("%w: %s", ErrNotReady, d.ID)
	}
}

// stop cancels the background tasks of d and waits for them to end.
func (d *Directory) stop() {
	d.mu.RLock()
	indexing := d.indexing
	d.mu.RUnlock()
	if indexing != nil {
		indexing.Cancel()
		<-indexing.Done()
	}

	// The indexing task starts the watcher, so read it only after that task ended.
	d.mu.Lock()
	watching := d.watching
	d.watching = nil
	d.mu.Unlock()
	if watching != nil {
		watching.Cancel()
		<-watching.Done()
	}
}

func (d *Directory) close() error {
	d.stop()
	if c, ok := d.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
