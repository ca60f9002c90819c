// Package scheduler dispatches categorized background tasks to registered
// handlers on a bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is one unit of background work.
type Task struct {
	ID       string
	Category string
	Payload  []byte
	QueuedAt time.Time
}

// Handler consumes tasks. A task is dispatched to the first registered
// handler whose Accept returns true.
type Handler interface {
	Accept(task Task) bool
	Handle(ctx context.Context, task Task) error
}

// ErrQueueFull is returned by Enqueue under the reject policy.
var ErrQueueFull = errors.New("task queue full")

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("scheduler stopped")

// OverflowPolicy decides what Enqueue does when the queue is at capacity.
type OverflowPolicy int

const (
	// Block waits for capacity (default).
	Block OverflowPolicy = iota
	// Reject fails fast with ErrQueueFull.
	Reject
)

// Config contains scheduler configuration.
type Config struct {
	WorkerCount    int
	QueueCapacity  int
	TaskTimeout    time.Duration
	OverflowPolicy OverflowPolicy
}

// Scheduler is a bounded FIFO served by a fixed worker pool.
type Scheduler struct {
	queue       chan Task
	done        chan struct{}
	handlers    []Handler
	workerCount int
	taskTimeout time.Duration
	overflow    OverflowPolicy
	log         zerolog.Logger

	mu        sync.Mutex
	stopped   bool
	producers sync.WaitGroup
	wg        sync.WaitGroup
}

// New creates a scheduler; call Start before enqueuing.
func New(cfg Config, log zerolog.Logger) *Scheduler {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 64
	}
	return &Scheduler{
		queue:       make(chan Task, cfg.QueueCapacity),
		done:        make(chan struct{}),
		workerCount: cfg.WorkerCount,
		taskTimeout: cfg.TaskTimeout,
		overflow:    cfg.OverflowPolicy,
		log:         log.With().Str("component", "scheduler").Logger(),
	}
}

// Register adds a handler. Must be called before Start.
func (s *Scheduler) Register(h Handler) {
	s.handlers = append(s.handlers, h)
}

// Start launches the worker pool.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info().Int("worker_count", s.workerCount).Int("capacity", cap(s.queue)).Msg("starting scheduler")
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.workerLoop(ctx, i+1)
	}
}

// Enqueue submits a task. Under the Block policy it waits for capacity,
// context cancellation, or shutdown; under Reject it fails fast when full.
func (s *Scheduler) Enqueue(ctx context.Context, task Task) error {
	// The producer registration and the stopped check share the lock so
	// Stop can wait out every in-flight Enqueue before closing the queue.
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.producers.Add(1)
	s.mu.Unlock()
	defer s.producers.Done()

	if task.QueuedAt.IsZero() {
		task.QueuedAt = time.Now()
	}

	if s.overflow == Reject {
		select {
		case s.queue <- task:
			return nil
		default:
			return ErrQueueFull
		}
	}

	select {
	case s.queue <- task:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth returns the number of queued tasks.
func (s *Scheduler) Depth() int {
	return len(s.queue)
}

// Stop refuses new enqueues, drains tasks already accepted, and joins the
// workers. Each accepted task runs at least once on a clean shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	// Release producers parked on the blocking send, then wait out every
	// in-flight Enqueue. Only after that is the queue safe to close.
	close(s.done)
	s.producers.Wait()
	close(s.queue)

	workersDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(workersDone)
	}()

	select {
	case <-workersDone:
		s.log.Info().Msg("all workers stopped gracefully")
	case <-time.After(30 * time.Second):
		s.log.Warn().Msg("scheduler shutdown timed out")
	}
}

func (s *Scheduler) workerLoop(ctx context.Context, id int) {
	defer s.wg.Done()
	log := s.log.With().Int("worker_id", id).Logger()
	log.Info().Msg("worker started")

	for task := range s.queue {
		s.dispatch(ctx, log, task)
	}

	log.Info().Msg("worker stopped")
}

func (s *Scheduler) dispatch(ctx context.Context, log zerolog.Logger, task Task) {
	// A panicking handler must not take the worker down with it; the task
	// is dropped and retry stays the handler's concern.
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("task_id", task.ID).
				Str("category", task.Category).
				Interface("panic", r).
				Msg("handler panicked, task dropped")
		}
	}()

	handler := s.selectHandler(task)
	if handler == nil {
		log.Warn().Str("task_id", task.ID).Str("category", task.Category).Msg("no handler accepts task")
		return
	}

	taskCtx := ctx
	if s.taskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, s.taskTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := handler.Handle(taskCtx, task); err != nil {
		log.Error().Err(err).
			Str("task_id", task.ID).
			Str("category", task.Category).
			Dur("elapsed", time.Since(start)).
			Msg("task failed")
		return
	}

	log.Debug().
		Str("task_id", task.ID).
		Str("category", task.Category).
		Dur("elapsed", time.Since(start)).
		Msg("task completed")
}

func (s *Scheduler) selectHandler(task Task) Handler {
	for _, h := range s.handlers {
		if h.Accept(task) {
			return h
		}
	}
	return nil
}
