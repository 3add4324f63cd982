// SPDX-License-Identifier: GPL-3.0-or-later

// Package memo implements a concurrency-safe memoizing cache of
// futures, so that concurrent requests for the same key share a
// single execution and observe the same result.
package memo

import (
	"context"
	"sync"
)

// Future is the pending-or-completed result of an execution.
type Future[V any] struct {
	done  chan struct{}
	value V
}

// newFuture creates a new pending [*Future].
func newFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

// resolve sets the value and wakes up the waiters.
func (f *Future[V]) resolve(value V) {
	f.value = value
	close(f.done)
}

// Done returns a channel closed once the value is available.
func (f *Future[V]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the value is available or the context is done. In
// the latter case, the execution continues and other waiters are
// not affected.
func (f *Future[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Memo maps keys to futures.
//
// The zero value is ready to use.
type Memo[K comparable, V any] struct {
	// futures contains the futures indexed by key.
	futures map[K]*Future[V]

	// mu provides mutual exclusion.
	mu sync.Mutex
}

// Do returns the future associated with key. When there is no such
// future, or bypass is true, Do starts fx in a background goroutine,
// associates a new future with key, and returns started set to true.
//
// The mutex is only held while accessing the map, so fx may call
// back into the same [*Memo] for different keys.
func (m *Memo[K, V]) Do(key K, bypass bool, fx func() V) (fut *Future[V], started bool) {
	m.mu.Lock()
	if fut, found := m.futures[key]; found && !bypass {
		m.mu.Unlock()
		return fut, false
	}
	if m.futures == nil {
		m.futures = make(map[K]*Future[V])
	}
	fut = newFuture[V]()
	m.futures[key] = fut
	m.mu.Unlock()

	go func() {
		fut.resolve(fx())
	}()
	return fut, true
}

// Len returns the number of keys inside the memo.
func (m *Memo[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.futures)
}
