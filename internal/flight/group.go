// Package flight coalesces concurrent fetches for the same cache key into
// a single upstream call. A per-key registry of pending outcomes is kept
// under a narrow mutex; completion is broadcast to all waiters by closing
// the call's done channel, never by polling.
package flight

import (
	"context"
	"sync"

	"github.com/mortimer-cra/mcp-atlassian/confluence"
)

// call is the shared pending outcome for one in-flight key. It exists only
// between first-miss registration and fetch completion.
type call struct {
	done chan struct{}
	res  *confluence.Resource
	err  error
}

// Group ensures at most one fetch is in flight per key, regardless of how
// many callers ask for it concurrently.
type Group struct {
	mu    sync.Mutex
	calls map[string]*call
}

// NewGroup creates an empty Group.
func NewGroup() *Group {
	return &Group{calls: make(map[string]*call)}
}

// Do returns the outcome of fn for key, invoking fn at most once across all
// concurrent callers. The first caller for a key becomes the owner and runs
// fn; everyone else waits for the owner's outcome. The lock guards only the
// registry — fn always runs outside it.
//
// shared reports whether this caller joined an existing fetch. A waiter
// whose ctx is cancelled abandons its own result delivery and returns
// ctx.Err(); the owner's fetch continues to completion for the remaining
// waiters.
func (g *Group) Do(ctx context.Context, key string, fn func() (*confluence.Resource, error)) (res *confluence.Resource, shared bool, err error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.res, true, c.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}

	c := &call{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	c.res, c.err = fn()

	// Deregister before broadcasting: a caller arriving after resolution
	// must start a fresh cache lookup, not join a finished fetch.
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	close(c.done)

	return c.res, false, c.err
}

// Pending returns the number of keys with a fetch currently in flight.
func (g *Group) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
