package hub

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/odin-collab/canvas-ws-hub/internal/metrics"
)

// task is a unit of fanout work: delivering one serialized envelope to one
// session. Grounded on the teacher's root worker_pool.go, narrowed from a
// general Task type to this one call site.
type task func()

// workerPool bounds the number of goroutines used to fan a single broadcast
// out to a canvas's subscribers, so a canvas with thousands of live sessions
// doesn't spawn thousands of short-lived goroutines per message. When the
// queue is full, tasks are dropped rather than blocking the caller or
// growing unbounded: a dropped broadcast send is recoverable (the next
// cursor/shape update supersedes it), an unbounded goroutine pile-up is not.
type workerPool struct {
	workerCount  int
	taskQueue    chan task
	ctx          context.Context
	wg           sync.WaitGroup
	droppedTasks int64
	logger       zerolog.Logger
}

func newWorkerPool(workerCount, queueSize int, logger zerolog.Logger) *workerPool {
	return &workerPool{
		workerCount: workerCount,
		taskQueue:   make(chan task, queueSize),
		logger:      logger,
	}
}

func (wp *workerPool) start(ctx context.Context) {
	wp.ctx = ctx
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

func (wp *workerPool) worker() {
	defer wp.wg.Done()
	for {
		select {
		case t, ok := <-wp.taskQueue:
			if !ok {
				return
			}
			if t != nil {
				wp.run(t)
			}
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *workerPool) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error().
				Interface("panic_value", r).
				Str("stack_trace", string(debug.Stack())).
				Msg("broadcast worker panic recovered")
			metrics.RecordError(metrics.ErrorTypeBroadcast, metrics.ErrorSeverityCritical)
		}
	}()
	t()
}

// submit enqueues t for async execution, dropping it if the queue is full.
func (wp *workerPool) submit(t task) {
	select {
	case wp.taskQueue <- t:
	default:
		atomic.AddInt64(&wp.droppedTasks, 1)
	}
}

func (wp *workerPool) stop() {
	close(wp.taskQueue)
	wp.wg.Wait()
}

func (wp *workerPool) droppedCount() int64 {
	return atomic.LoadInt64(&wp.droppedTasks)
}

func (wp *workerPool) queueDepth() int {
	return len(wp.taskQueue)
}

func (wp *workerPool) queueCapacity() int {
	return cap(wp.taskQueue)
}
