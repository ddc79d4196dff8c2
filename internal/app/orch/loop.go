package orch

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrLoopStopped = errors.New("orchestrator loop stopped")

// Task runs to completion on the loop goroutine with exclusive access to the
// orchestrator and everything it owns.
type Task func(o *Orchestrator)

// Loop serialises every inbound event, so handlers need no locking.
// Tasks submitted by one goroutine run in submission order. A task that was
// accepted always runs, even when the loop is shutting down.
type Loop struct {
	orch     *Orchestrator
	tasks    chan Task
	stopping chan struct{}
	done     chan struct{}

	mu      sync.RWMutex
	stopped bool
}

func NewLoop(o *Orchestrator, queue int) *Loop {
	if queue < 0 {
		queue = 0
	}
	return &Loop{
		orch:     o,
		tasks:    make(chan Task, queue),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run processes tasks until ctx is cancelled, then runs whatever was
// already accepted and refuses the rest.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	log.Info().Str("module", "orch.loop").Msg("loop started")
	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return
		case task := <-l.tasks:
			l.run(task)
		}
	}
}

func (l *Loop) shutdown() {
	close(l.stopping)
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	drained := 0
	for {
		select {
		case task := <-l.tasks:
			l.run(task)
			drained++
		default:
			log.Info().Str("module", "orch.loop").Int("drained", drained).Msg("loop stopped")
			return
		}
	}
}

func (l *Loop) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "orch.loop").Interface("panic", r).Msg("task panicked")
		}
	}()
	task(l.orch)
}

// Submit queues task and reports false once the loop is stopping.
func (l *Loop) Submit(task Task) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stopped {
		return false
	}
	select {
	case l.tasks <- task:
		return true
	case <-l.stopping:
		return false
	}
}

// Query runs task on the loop and waits for it to finish.
func (l *Loop) Query(ctx context.Context, task Task) error {
	finished := make(chan struct{})
	wrapped := func(o *Orchestrator) {
		defer close(finished)
		task(o)
	}
	if err := l.enqueue(ctx, wrapped); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		// accepted tasks run before done closes
		<-finished
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) enqueue(ctx context.Context, task Task) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stopped {
		return ErrLoopStopped
	}
	select {
	case l.tasks <- task:
		return nil
	case <-l.stopping:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed after Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }
