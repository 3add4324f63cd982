// SPDX-License-Identifier: GPL-3.0-or-later

// Package closepool allows pooling [io.Closer] instances and
// releasing them in a single operation.
//
// A probe session registers everything it acquires (idle HTTP
// connections, hook registrations, scratch resolvers) and releases
// it all once its checks have settled.
package closepool

import (
	"errors"
	"io"
	"slices"
	"sync"
)

// Pool allows pooling a set of [io.Closer].
//
// The zero value is ready to use.
type Pool struct {
	// closed is set after Close has been invoked.
	closed bool

	// handles contains the [io.Closer] to close.
	handles []io.Closer

	// mu provides mutual exclusion.
	mu sync.Mutex
}

// Add adds a given [io.Closer] to the pool.
//
// Adding to a pool that has already been closed closes
// the [io.Closer] immediately.
func (p *Pool) Add(handle io.Closer) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		handle.Close()
		return
	}
	p.handles = append(p.handles, handle)
	p.mu.Unlock()
}

// AddFunc is like Add but registers a function.
func (p *Pool) AddFunc(fx func()) {
	p.Add(closerFunc(fx))
}

// Len returns the number of resources waiting to be closed.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Close closes all the [io.Closer] inside the pool iterating
// in backward order, so that resources acquired last are released
// first. The returned error is the join of all the errors that
// occurred when closing. Calling Close more than once is safe.
func (p *Pool) Close() error {
	p.mu.Lock()
	handles := p.handles
	p.handles = nil
	p.closed = true
	p.mu.Unlock()

	var errv []error
	for _, handle := range slices.Backward(handles) {
		if err := handle.Close(); err != nil {
			errv = append(errv, err)
		}
	}
	return errors.Join(errv...)
}

// closerFunc adapts a func to [io.Closer].
type closerFunc func()

// Close implements [io.Closer].
func (fx closerFunc) Close() error {
	fx()
	return nil
}
