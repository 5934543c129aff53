package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
	"github.com/0xcro3dile/localrag-agent/internal/metrics"
	"github.com/0xcro3dile/localrag-agent/pkg/logx"
)

// ErrWorkerClosed is returned for requests submitted to a closed worker.
var ErrWorkerClosed = fmt.Errorf("model worker closed: %w", entities.ErrModelUnavailable)

const (
	DefaultQueueSize   = 64
	DefaultCallTimeout = 2 * time.Minute
)

// WorkerConfig bounds the request queue and each backend call.
type WorkerConfig struct {
	QueueSize int
	Timeout   time.Duration
}

// Future is the pending result of a queued generation request.
type Future struct {
	done chan struct{}
	text string
	err  error
}

// Done is closed once the request has been served or skipped.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is ready or ctx ends. A request already
// running keeps running when ctx ends; only the wait is abandoned.
func (f *Future) Wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.text, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type job struct {
	ctx    context.Context
	req    ports.GenerateRequest
	future *Future
}

func (j *job) finish(text string, err error) {
	j.future.text, j.future.err = text, err
	close(j.future.done)
}

// Worker owns a generation backend and serves requests one at a time in
// FIFO order. It implements ports.Generator.
type Worker struct {
	backend ports.Generator
	timeout time.Duration
	queue   chan *job

	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// mu is held shared by Submit for the whole enqueue and exclusively by
	// Close when it marks the worker closed.
	mu     sync.RWMutex
	closed bool
}

// NewWorker starts the worker goroutine. Close stops it.
func NewWorker(backend ports.Generator, cfg WorkerConfig) *Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCallTimeout
	}
	w := &Worker{
		backend: backend,
		timeout: cfg.Timeout,
		queue:   make(chan *job, cfg.QueueSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.loop()
	return w
}

// Submit enqueues req and returns its future. It blocks while the queue is
// full, until ctx ends or the worker closes.
func (w *Worker) Submit(ctx context.Context, req ports.GenerateRequest) (*Future, error) {
	j := &job{ctx: ctx, req: req, future: &Future{done: make(chan struct{})}}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil, ErrWorkerClosed
	}
	select {
	case w.queue <- j:
		metrics.GenerationQueueDepth.Inc()
		return j.future, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.stop:
		return nil, ErrWorkerClosed
	}
}

// Generate submits req and waits for its result.
func (w *Worker) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	f, err := w.Submit(ctx, req)
	if err != nil {
		return "", err
	}
	return f.Wait(ctx)
}

// Close stops the worker after the call in progress. Queued requests fail
// with ErrWorkerClosed.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		// Closing stop first releases Submits blocked on a full queue, so
		// the lock below cannot wait on them forever.
		close(w.stop)
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
	})
	<-w.stopped
	// Nothing is enqueued once closed is set; fail what slipped in after
	// the loop's own drain.
	w.drain()
}

func (w *Worker) loop() {
	defer close(w.stopped)
	for {
		select {
		case <-w.stop:
			w.drain()
			return
		case j := <-w.queue:
			metrics.GenerationQueueDepth.Dec()
			w.serve(j)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case j := <-w.queue:
			metrics.GenerationQueueDepth.Dec()
			j.finish("", ErrWorkerClosed)
		default:
			return
		}
	}
}

func (w *Worker) serve(j *job) {
	purpose := string(j.req.Purpose)
	if err := j.ctx.Err(); err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(purpose, "skipped").Inc()
		logx.Debug().Str("purpose", purpose).Msg("skipping abandoned generation request")
		j.finish("", err)
		return
	}

	// The call is detached from the caller's cancellation and bounded by the
	// worker timeout instead.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(j.ctx), w.timeout)
	defer cancel()

	start := time.Now()
	text, err := w.call(ctx, j.req)
	metrics.GenerationDuration.WithLabelValues(purpose).Observe(time.Since(start).Seconds())

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, entities.ErrModelUnavailable) {
		err = fmt.Errorf("generation exceeded %s: %w", w.timeout, entities.ErrModelUnavailable)
	}
	status := "ok"
	if err != nil {
		status = "error"
		logx.Warn().Err(err).Str("purpose", purpose).Msg("generation failed")
	}
	metrics.GenerationRequestsTotal.WithLabelValues(purpose, status).Inc()
	j.finish(text, err)
}

func (w *Worker) call(ctx context.Context, req ports.GenerateRequest) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation backend panic: %v", r)
		}
	}()
	return w.backend.Generate(ctx, req)
}
