// Package common holds small primitives shared across the client.
package common

import (
	"context"
	"sync"
)

// Completion is a write-once container delivering success or an error to
// its waiters. It is the completion handle handed to application code for
// mutation batches and pending-write barriers; the first Resolve wins and
// later calls are ignored.
type Completion struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewCompletion creates an unresolved completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Resolve completes with err (nil for success). Only the first call has
// any effect.
func (c *Completion) Resolve(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done returns a channel closed once the completion resolves.
func (c *Completion) Done() <-chan struct{} { return c.done }

// Resolved reports whether the completion has resolved.
func (c *Completion) Resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Err returns the resolution error. It must only be called after Done is
// closed; before that it returns nil regardless of the eventual outcome.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Await blocks until the completion resolves or ctx is done.
func (c *Completion) Await(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
