// SPDX-License-Identifier: GPL-3.0-or-later

package platform

import (
	"slices"
	"sync"

	"github.com/rbmk-project/censordetect/model"
)

// hookEntry is a registered hook.
type hookEntry[T any] struct {
	hook model.Hook[T]
	urls []string
}

// matches returns whether the entry was registered for URL. An
// entry registered without URLs matches every URL.
func (e *hookEntry[T]) matches(URL string) bool {
	return len(e.urls) <= 0 || slices.Contains(e.urls, URL)
}

// hookRegistry contains hooks of the same type.
//
// The zero value is ready to use.
type hookRegistry[T any] struct {
	entries map[int64]*hookEntry[T]
	mu      sync.Mutex
	next    int64
}

// add registers the hook and returns the idempotent function
// unregistering it.
func (r *hookRegistry[T]) add(urls []string, hook model.Hook[T]) func() {
	r.mu.Lock()
	if r.entries == nil {
		r.entries = make(map[int64]*hookEntry[T])
	}
	r.next++
	id := r.next
	r.entries[id] = &hookEntry[T]{hook: hook, urls: slices.Clone(urls)}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.entries, id)
		r.mu.Unlock()
	}
}

// fire invokes the hooks registered for URL in registration order.
// The hooks run outside the lock so they may unregister themselves.
func (r *hookRegistry[T]) fire(URL string, ev *T) {
	r.mu.Lock()
	var ids []int64
	for id, entry := range r.entries {
		if entry.matches(URL) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	hooks := make([]model.Hook[T], 0, len(ids))
	for _, id := range ids {
		hooks = append(hooks, r.entries[id].hook)
	}
	r.mu.Unlock()

	for _, hook := range hooks {
		hook(ev)
	}
}

// len returns the number of registered hooks.
func (r *hookRegistry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
