// SPDX-License-Identifier: GPL-3.0-or-later

// Package probation implements the table of hosts that are being
// probed, used to avoid probing the same host over and over.
//
// Entries expire after a TTL and are never removed when probing
// completes, so a flaky host is probed at most once per TTL. When the
// table is full, the adaptive replacement policy evicts hosts that
// failed rarely before hosts that fail often.
package probation

import (
	"sync"
	"time"

	arc "github.com/hashicorp/golang-lru/arc/v2"
)

// DefaultTTL is the default lifetime of an entry.
const DefaultTTL = time.Hour

// DefaultCapacity is the default maximum number of entries.
const DefaultCapacity = 4096

// Table maps hosts to the time when they entered probation.
//
// Construct using [New].
type Table struct {
	// TimeNow is the optional function returning the current time.
	TimeNow func() time.Time

	cache    *arc.ARCCache[string, time.Time]
	capacity int
	mu       sync.Mutex
	ttl      time.Duration
}

// New creates a new [*Table]. Non-positive values select
// [DefaultCapacity] and [DefaultTTL].
func New(capacity int, ttl time.Duration) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cache, err := arc.NewARC[string, time.Time](capacity)
	if err != nil {
		// only fails for non-positive sizes
		panic(err)
	}
	return &Table{cache: cache, capacity: capacity, ttl: ttl}
}

// TryAcquire atomically checks whether host is in probation and, if
// not, puts it in probation. It returns true when the caller has
// put the host in probation and should probe it.
func (t *Table) TryAcquire(host string) bool {
	now := t.timeNow()
	t.mu.Lock()
	defer t.mu.Unlock()
	if since, found := t.cache.Get(host); found && now.Sub(since) < t.ttl {
		return false
	}
	if t.cache.Len() >= t.capacity {
		t.sweepLocked(now)
	}
	t.cache.Add(host, now)
	return true
}

// InProbation returns whether host is currently in probation.
func (t *Table) InProbation(host string) bool {
	now := t.timeNow()
	t.mu.Lock()
	defer t.mu.Unlock()
	since, found := t.cache.Peek(host)
	return found && now.Sub(since) < t.ttl
}

// Len returns the number of entries, including expired
// entries that have not been swept yet.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cache.Len()
}

// sweepLocked removes the expired entries.
func (t *Table) sweepLocked(now time.Time) {
	for _, host := range t.cache.Keys() {
		if since, found := t.cache.Peek(host); found && now.Sub(since) >= t.ttl {
			t.cache.Remove(host)
		}
	}
}

func (t *Table) timeNow() time.Time {
	if t.TimeNow != nil {
		return t.TimeNow()
	}
	return time.Now()
}
