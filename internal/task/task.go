// Package task runs detached background work whose outcome the HTTP caller
// does not wait for: session deletion on sign-out and invite SMS fan-out
// after signup.
//
// A task outlives the request that started it (its context is detached from
// the request's cancellation) but not the process: the server waits for the
// Group during graceful shutdown.
package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is reported by tasks submitted after the group started shutting down.
var ErrClosed = errors.New("task: group is closed")

// Handle observes one detached task.
type Handle struct {
	name string
	done chan struct{}
	err  error
}

// Done is closed when the task has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the task's result. It is nil until Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name returns the label the task was started with.
func (h *Handle) Name() string { return h.name }

// Group tracks running tasks so shutdown can wait for them.
type Group struct {
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewGroup returns an empty Group.
func NewGroup(logger *slog.Logger) *Group {
	return &Group{logger: logger}
}

// Go starts fn in its own goroutine. The context passed to fn keeps ctx's
// values but not its deadline or cancellation.
func (g *Group) Go(ctx context.Context, name string, fn func(context.Context) error) *Handle {
	h := &Handle{name: name, done: make(chan struct{})}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		h.err = ErrClosed
		close(h.done)
		g.logger.Warn("task rejected", slog.String("task", name))
		return h
	}
	g.wg.Add(1)
	g.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer g.wg.Done()
		defer close(h.done)

		start := time.Now()
		h.err = fn(detached)
		if h.err != nil {
			g.logger.Error("task failed",
				slog.String("task", name),
				slog.Duration("duration", time.Since(start)),
				slog.String("error", h.err.Error()),
			)
			return
		}
		g.logger.Debug("task finished",
			slog.String("task", name),
			slog.Duration("duration", time.Since(start)),
		)
	}()
	return h
}

// Shutdown stops accepting tasks and waits for the running ones, or until
// ctx is done.
func (g *Group) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
