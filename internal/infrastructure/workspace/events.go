package workspace

import "sync"

// Event types pushed to every subscribed transport.
const (
	EventStatus           = "status"
	EventIndexingProgress = "indexing_progress"
	EventDirectoryUpdate  = "directory_update"
)

// StatusEvent reports the overall server state.
type StatusEvent struct {
	State string `json:"state"`
}

// ProgressEvent reports indexing progress of one directory.
type ProgressEvent struct {
	DirectoryID string `json:"directoryId"`
	Done        int    `json:"done"`
	Total       int    `json:"total"`
}

// DirectoryEvent reports a state change of one directory.
type DirectoryEvent struct {
	DirectoryID string `json:"directoryId"`
	State       State  `json:"state"`
	Summary     string `json:"summary,omitempty"`
	Stats       *Stats `json:"stats,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Listener receives workspace events. It must not block.
type Listener func(eventType string, data any)

// Events fans events out to listeners.
type Events struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]Listener
}

func NewEvents() *Events {
	return &Events{listeners: make(map[int]Listener)}
}

// Subscribe registers l and returns a function that removes it.
func (e *Events) Subscribe(l Listener) (unsubscribe func()) {
	e.mu.Lock()
	id := e.next
	e.next++
	e.listeners[id] = l
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Emit calls every listener with the event.
func (e *Events) Emit(eventType string, data any) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, l := range e.listeners {
		l(eventType, data)
	}
}
