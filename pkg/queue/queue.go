// Package queue provides a generic bounded task queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrTaskPanicked wraps the value recovered from a panicking task.
var ErrTaskPanicked = errors.New("task panicked")

var (
	queueActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cdr_queue_active",
		Help: "Tasks currently running by queue",
	}, []string{"queue"})

	queuePending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cdr_queue_pending",
		Help: "Tasks waiting for a free slot by queue",
	}, []string{"queue"})

	queueTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdr_queue_tasks_total",
		Help: "Completed tasks by queue and result",
	}, []string{"queue", "result"})
)

// Task is a unit of work run by a Queue.
type Task[T any] func() (T, error)

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Done is closed once the task has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task settles or ctx is done. A cancelled ctx only
// stops the wait; the task itself keeps running.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Queue runs at most Concurrency tasks at a time and starts waiting tasks
// in submission order.
type Queue[T any] struct {
	name        string
	concurrency int

	mu      sync.Mutex
	pending []*entry[T]
	active  int
	idle    *sync.Cond
}

type entry[T any] struct {
	task   Task[T]
	future *Future[T]
}

// New creates a queue. Concurrency below 1 is treated as 1.
func New[T any](name string, concurrency int) *Queue[T] {
	if concurrency < 1 {
		concurrency = 1
	}
	q := &Queue[T]{
		name:        name,
		concurrency: concurrency,
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Name returns the queue name used in metrics.
func (q *Queue[T]) Name() string {
	return q.name
}

// Concurrency returns the maximum number of simultaneously running tasks.
func (q *Queue[T]) Concurrency() int {
	return q.concurrency
}

// Submit enqueues task and returns its future. Submit never blocks.
func (q *Queue[T]) Submit(task Task[T]) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	q.mu.Lock()
	q.pending = append(q.pending, &entry[T]{task: task, future: f})
	q.dispatchLocked()
	q.mu.Unlock()

	return f
}

// Stats returns the number of running and waiting tasks.
func (q *Queue[T]) Stats() (active, pending int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active, len(q.pending)
}

// Wait blocks until no task is running or waiting.
func (q *Queue[T]) Wait() {
	q.mu.Lock()
	for q.active > 0 || len(q.pending) > 0 {
		q.idle.Wait()
	}
	q.mu.Unlock()
}

// dispatchLocked starts waiting tasks while slots are free. q.mu must be held.
func (q *Queue[T]) dispatchLocked() {
	for q.active < q.concurrency && len(q.pending) > 0 {
		e := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.active++
		go q.run(e)
	}
	queueActive.WithLabelValues(q.name).Set(float64(q.active))
	queuePending.WithLabelValues(q.name).Set(float64(len(q.pending)))
}

func (q *Queue[T]) run(e *entry[T]) {
	value, err := execute(e.task)
	e.future.value, e.future.err = value, err
	close(e.future.done)

	result := "success"
	if err != nil {
		result = "error"
	}
	queueTasksTotal.WithLabelValues(q.name, result).Inc()

	q.mu.Lock()
	q.active--
	q.dispatchLocked()
	if q.active == 0 && len(q.pending) == 0 {
		q.idle.Broadcast()
	}
	q.mu.Unlock()
}

// execute runs task, turning a panic into ErrTaskPanicked.
func execute[T any](task Task[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value = zero
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return task()
}
