package devsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// defaultUploadConcurrency bounds in-flight uploads when none is configured.
const defaultUploadConcurrency = 10

// queuedTask is one unit of upload work.
type queuedTask struct {
	name string
	ctx  context.Context
	fn   func(context.Context) error
}

// UploadQueue runs upload and delete operations with bounded concurrency.
// Tasks start in submission order as slots free up. Pausing drains the
// queue: tasks already submitted keep starting until all of them have
// finished, while tasks submitted after the pause wait for Resume. All
// methods are safe for concurrent use.
type UploadQueue struct {
	mu      sync.Mutex
	pending []queuedTask
	running int
	limit   int
	paused  bool
	// draining counts the head of pending that was submitted before Pause
	// and may still start while paused.
	draining int
	// changed is closed and replaced whenever running or pending shrink, so
	// waiters can re-check their condition.
	changed chan struct{}
	logger  *slog.Logger
}

// NewUploadQueue creates a running queue. limit < 1 uses the default.
func NewUploadQueue(limit int, logger *slog.Logger) *UploadQueue {
	if limit < 1 {
		limit = defaultUploadConcurrency
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &UploadQueue{
		limit:   limit,
		changed: make(chan struct{}),
		logger:  logger,
	}
}

// Enqueue submits fn. It starts immediately when a slot is free and the
// queue is not paused. Errors are logged at debug level and not retried;
// fn is responsible for any further bookkeeping.
func (q *UploadQueue) Enqueue(ctx context.Context, name string, fn func(context.Context) error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, queuedTask{name: name, ctx: ctx, fn: fn})
	q.dispatchLocked()
}

// Pause holds back tasks submitted from now on and blocks until every task
// submitted before the call has run to completion. Returns ctx.Err() if ctx
// ends first; the queue remains paused in that case and the earlier tasks
// keep draining.
func (q *UploadQueue) Pause(ctx context.Context) error {
	q.mu.Lock()
	if !q.paused {
		q.paused = true
		q.draining = len(q.pending)
	}

	backlog := q.draining
	q.mu.Unlock()

	q.logger.Debug("upload queue paused, draining submitted tasks", slog.Int("pending", backlog))

	return q.waitFor(ctx, func() bool { return q.running == 0 && q.draining == 0 })
}

// Resume lets pending and new tasks start.
func (q *UploadQueue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.paused {
		return
	}

	q.paused = false
	q.draining = 0
	q.logger.Debug("upload queue resumed", slog.Int("pending", len(q.pending)))
	q.dispatchLocked()
}

// IsPaused reports whether the queue is paused.
func (q *UploadQueue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.paused
}

// OnIdle blocks until nothing is running or pending. While paused with
// pending tasks it waits for a Resume.
func (q *UploadQueue) OnIdle(ctx context.Context) error {
	return q.waitFor(ctx, func() bool { return q.running == 0 && len(q.pending) == 0 })
}

// Len returns the number of pending plus running tasks.
func (q *UploadQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending) + q.running
}

func (q *UploadQueue) waitFor(ctx context.Context, cond func() bool) error {
	for {
		q.mu.Lock()
		if cond() {
			q.mu.Unlock()

			return nil
		}

		ch := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("devsync: waiting for upload queue: %w", ctx.Err())
		case <-ch:
		}
	}
}

// dispatchLocked starts pending tasks while slots are free. While paused
// only the draining backlog may start. Called with mu held.
func (q *UploadQueue) dispatchLocked() {
	for q.running < q.limit && len(q.pending) > 0 {
		if q.paused {
			if q.draining == 0 {
				return
			}

			q.draining--
		}

		t := q.pending[0]
		q.pending[0] = queuedTask{}
		q.pending = q.pending[1:]
		q.running++

		go q.run(t)
	}
}

// run executes one task with panic recovery so a single failing upload
// cannot take down the session.
func (q *UploadQueue) run(t queuedTask) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("upload queue: panic in task",
				slog.String("task", t.name),
				slog.Any("panic", r),
			)
		}

		q.mu.Lock()
		q.running--
		close(q.changed)
		q.changed = make(chan struct{})
		q.dispatchLocked()
		q.mu.Unlock()
	}()

	if err := t.fn(t.ctx); err != nil {
		q.logger.Debug("upload task failed",
			slog.String("task", t.name),
			slog.String("error", err.Error()),
		)
	}
}
