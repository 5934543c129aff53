// Package filewatcher turns fsnotify events for an indexed directory into
// debounced ports.FileEvent values.
package filewatcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
	"github.com/0xcro3dile/localrag-agent/pkg/logx"
)

// DefaultDebounce is how long a path must stay quiet before its event is
// emitted.
const DefaultDebounce = 500 * time.Millisecond

// FSNotifyWatcher implements ports.FileWatcher using fsnotify. Directories are
// watched recursively; hidden directories and the names in skipDirs are not.
type FSNotifyWatcher struct {
	watcher    *fsnotify.Watcher
	extensions map[string]bool
	skipDirs   map[string]bool
	debounce   time.Duration
}

// Option configures a watcher.
type Option func(*FSNotifyWatcher)

// WithDebounce sets the quiet period per path.
func WithDebounce(d time.Duration) Option {
	return func(w *FSNotifyWatcher) { w.debounce = d }
}

// WithSkipDirs excludes directories with these base names.
func WithSkipDirs(names ...string) Option {
	return func(w *FSNotifyWatcher) {
		for _, n := range names {
			w.skipDirs[n] = true
		}
	}
}

// NewFSNotifyWatcher creates a watcher reporting files with the given
// extensions.
func NewFSNotifyWatcher(extensions []string, opts ...Option) (*FSNotifyWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if len(extensions) == 0 {
		extensions = []string{".pdf", ".txt", ".md"}
	}
	w := &FSNotifyWatcher{
		watcher:    fw,
		extensions: make(map[string]bool, len(extensions)),
		skipDirs:   make(map[string]bool),
		debounce:   DefaultDebounce,
	}
	for _, e := range extensions {
		w.extensions[strings.ToLower(e)] = true
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch starts monitoring dir and its subdirectories. The channel closes
// when ctx ends or the watcher stops.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if err := w.addTree(dir); err != nil {
		return nil, err
	}

	events := make(chan ports.FileEvent, 100)
	go w.run(ctx, events)
	return events, nil
}

// Stop stops the watcher.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *FSNotifyWatcher) run(ctx context.Context, events chan<- ports.FileEvent) {
	defer close(events)

	pending := make(map[string]pendingEvent)
	tick := time.NewTicker(max(w.debounce/4, 10*time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event, pending)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logx.Warn().Err(err).Msg("file watcher error")
		case now := <-tick.C:
			for path, p := range pending {
				if now.Sub(p.at) < w.debounce {
					continue
				}
				delete(pending, path)
				select {
				case events <- ports.FileEvent{Path: path, Operation: p.op}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

type pendingEvent struct {
	op ports.FileOperation
	at time.Time
}

func (w *FSNotifyWatcher) handle(event fsnotify.Event, pending map[string]pendingEvent) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				logx.Warn().Err(err).Str("dir", event.Name).Msg("watching new directory")
			}
			return
		}
	}
	if !w.isWatchedExtension(event.Name) {
		return
	}

	var op ports.FileOperation
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = ports.FileDeleted
	case event.Has(fsnotify.Create):
		op = ports.FileCreated
	case event.Has(fsnotify.Write):
		op = ports.FileModified
	default:
		return
	}
	if prev, ok := pending[event.Name]; ok && prev.op == ports.FileCreated && op == ports.FileModified {
		op = ports.FileCreated
	}
	pending[event.Name] = pendingEvent{op: op, at: time.Now()}
}

// addTree watches root and every directory below it.
func (w *FSNotifyWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *FSNotifyWatcher) skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || w.skipDirs[name]
}

// isWatchedExtension checks if the file has a watched extension.
func (w *FSNotifyWatcher) isWatchedExtension(path string) bool {
	return w.extensions[strings.ToLower(filepath.Ext(path))]
}
