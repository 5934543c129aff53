package usecases

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/0xcro3dile/localrag-agent/pkg/logx"
)

// TaskFunc is the body of a background task. It reports progress through p.
type TaskFunc func(ctx context.Context, p *Progress) error

// Progress counts completed units of a task.
type Progress struct {
	done     atomic.Int64
	total    atomic.Int64
	onChange func(done, total int)
}

// SetTotal sets the number of units the task expects to process.
func (p *Progress) SetTotal(n int) {
	p.total.Store(int64(n))
	p.notify()
}

// Inc marks one unit done.
func (p *Progress) Inc() {
	p.done.Add(1)
	p.notify()
}

// Snapshot returns the completed and expected unit counts.
func (p *Progress) Snapshot() (done, total int) {
	return int(p.done.Load()), int(p.total.Load())
}

func (p *Progress) notify() {
	if p.onChange != nil {
		d, t := p.Snapshot()
		p.onChange(d, t)
	}
}

// Task is a handle on background work. Done is closed when the work ends.
type Task struct {
	ID   string
	Name string

	progress Progress
	cancel   context.CancelFunc
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// StartTask runs fn on its own goroutine. onProgress may be nil. The task
// stops when ctx is done or Cancel is called.
func StartTask(ctx context.Context, name string, fn TaskFunc, onProgress func(done, total int)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		ID:     uuid.NewString(),
		Name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	t.progress.onChange = onProgress

	go func() {
		defer close(t.done)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				t.setErr(fmt.Errorf("task %s panicked: %v", name, rec))
				logx.Error().Str("task", name).Interface("panic", rec).Msg("task panicked")
			}
		}()
		if err := fn(ctx, &t.progress); err != nil {
			t.setErr(err)
			logx.Warn().Err(err).Str("task", name).Msg("task failed")
			return
		}
		logx.Debug().Str("task", name).Str("id", t.ID).Msg("task finished")
	}()
	return t
}

// Done returns a channel closed when the task ends.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task ends or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task's error once it has ended.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Progress returns completed and expected unit counts.
func (t *Task) Progress() (done, total int) {
	return t.progress.Snapshot()
}

// Running reports whether the task has not ended yet.
func (t *Task) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Cancel asks the task to stop. It does not wait.
func (t *Task) Cancel() {
	t.cancel()
}

func (t *Task) setErr(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}
