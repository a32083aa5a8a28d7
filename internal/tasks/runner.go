// Package tasks runs one-shot background operations (artifact download,
// self-upgrade) on worker goroutines, streaming their progress lines to a
// single consumer. A task's channel is registered before the worker starts
// and closed, after a terminal marker line, when the worker returns; channel
// close is the completion sentinel. One task per id at a time.
package tasks

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// task buffers progress lines without bound so the producer never blocks
// and never drops, even when the consumer attaches long after the worker
// started. A forwarder goroutine feeds the consumer-facing channel and
// closes it once the worker has finished and the buffer is drained.
type task struct {
	mu    sync.Mutex
	cond  *sync.Cond
	lines []string
	done  bool
	ch    chan string
}

func newTask() *task {
	t := &task{ch: make(chan string)}
	t.cond = sync.NewCond(&t.mu)
	go t.forward()
	return t
}

func (t *task) push(line string) {
	t.mu.Lock()
	t.lines = append(t.lines, line)
	t.mu.Unlock()
	t.cond.Signal()
}

// finish marks the producer side done; the forwarder closes the consumer
// channel after draining what remains.
func (t *task) finish() {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
	t.cond.Signal()
}

// forward is the single delivery goroutine per task. It parks until the
// consumer reads.
func (t *task) forward() {
	for {
		t.mu.Lock()
		for len(t.lines) == 0 && !t.done {
			t.cond.Wait()
		}
		batch := t.lines
		t.lines = nil
		done := t.done
		t.mu.Unlock()
		for _, line := range batch {
			t.ch <- line
		}
		if done {
			close(t.ch)
			return
		}
	}
}

type Runner struct {
	mu    sync.Mutex
	tasks map[string]*task
	log   zerolog.Logger
}

func NewRunner(logger *zerolog.Logger) *Runner {
	r := &Runner{tasks: make(map[string]*task)}
	if logger != nil {
		r.log = *logger
	} else {
		r.log = zerolog.Nop()
	}
	return r
}

// Spawn registers id and executes work on a worker goroutine, handing it a
// line sink for progress text. Conflict while a task with the same id is
// still running; once its channel has been closed the id may be reused.
func (r *Runner) Spawn(id string, work func(logf func(string))) error {
	r.mu.Lock()
	if _, ok := r.tasks[id]; ok {
		r.mu.Unlock()
		return conflictError{id: id}
	}
	t := newTask()
	r.tasks[id] = t
	r.mu.Unlock()

	r.log.Info().Str("task", id).Msg("task started")
	go func() {
		defer func() {
			if p := recover(); p != nil {
				t.push(fmt.Sprintf("ERROR: %v", p))
				r.log.Error().Str("task", id).Any("panic", p).Msg("task panicked")
			}
			// Unregister before the channel can close so a consumer that
			// saw the sentinel can reuse the id immediately.
			r.mu.Lock()
			delete(r.tasks, id)
			r.mu.Unlock()
			t.finish()
			r.log.Info().Str("task", id).Msg("task finished")
		}()
		work(t.push)
	}()
	return nil
}

// Subscribe returns the progress channel for a running task. The consumer
// reads until the channel closes; the read is the suspension point, there is
// no polling.
func (r *Runner) Subscribe(id string) (<-chan string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, notFoundError{id: id}
	}
	return t.ch, nil
}

// Active reports whether a task with id is currently running.
func (r *Runner) Active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[id]
	return ok
}

// stamp prefixes a progress line with a wall-clock timestamp.
func stamp(msg string) string {
	return fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), msg)
}

// conflictError signals a duplicate task id for 409 mapping.
type conflictError struct{ id string }

func (e conflictError) Error() string { return "task already running: " + e.id }

// IsConflict reports whether err indicates a duplicate task.
func IsConflict(err error) bool {
	_, ok := err.(conflictError)
	return ok
}

// notFoundError signals a subscription to a task that is not running.
type notFoundError struct{ id string }

func (e notFoundError) Error() string { return "no such task: " + e.id }

// IsNotFound reports whether err indicates a missing task.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}
