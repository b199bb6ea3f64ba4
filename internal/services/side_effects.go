package services

import (
	"context"
	"sync"
	"time"
)

const (
	defaultDispatcherQueueSize = 256
	defaultDispatcherWorkers   = 4
	defaultTaskTimeout         = 10 * time.Second
)

type sideEffectTask struct {
	name string
	fn   func(ctx context.Context)
}

// SideEffectDispatcherDeps enumerates collaborators required to construct the
// dispatcher.
type SideEffectDispatcherDeps struct {
	QueueSize   int
	Workers     int
	TaskTimeout time.Duration
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// SideEffectDispatcher runs post-commit work on a bounded worker pool so
// event emission and cache invalidation never stall the request path. Submit
// never blocks: when the queue is full the task is dropped and the drop is
// logged. Close stops intake and drains what was already queued.
type SideEffectDispatcher struct {
	tasks       chan sideEffectTask
	taskTimeout time.Duration
	logger      func(context.Context, string, map[string]any)

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewSideEffectDispatcher wires the dispatcher and starts its workers.
func NewSideEffectDispatcher(deps SideEffectDispatcherDeps) *SideEffectDispatcher {
	queueSize := deps.QueueSize
	if queueSize <= 0 {
		queueSize = defaultDispatcherQueueSize
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultDispatcherWorkers
	}
	taskTimeout := deps.TaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = defaultTaskTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	d := &SideEffectDispatcher{
		tasks:       make(chan sideEffectTask, queueSize),
		taskTimeout: taskTimeout,
		logger:      logger,
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// Submit queues fn for asynchronous execution. The request context is only
// consulted for logging; the task itself runs under a fresh context so a
// finished request cannot cancel committed side effects. Returns false when
// the dispatcher is closed or the queue is full.
func (d *SideEffectDispatcher) Submit(ctx context.Context, name string, fn func(ctx context.Context)) bool {
	if d == nil || fn == nil {
		return false
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger(ctx, "side_effects.rejected", map[string]any{"task": name, "reason": "closed"})
		return false
	}

	select {
	case d.tasks <- sideEffectTask{name: name, fn: fn}:
		d.mu.Unlock()
		return true
	default:
		d.mu.Unlock()
		d.logger(ctx, "side_effects.dropped", map[string]any{"task": name, "reason": "queue_full"})
		return false
	}
}

// Close stops accepting tasks and blocks until queued tasks finish.
func (d *SideEffectDispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *SideEffectDispatcher) worker() {
	defer d.wg.Done()
	for task := range d.tasks {
		d.run(task)
	}
}

func (d *SideEffectDispatcher) run(task sideEffectTask) {
	ctx, cancel := context.WithTimeout(context.Background(), d.taskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.logger(ctx, "side_effects.panic", map[string]any{"task": task.name, "panic": r})
		}
	}()
	task.fn(ctx)
}
