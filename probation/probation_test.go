// SPDX-License-Identifier: GPL-3.0-or-later

package probation_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbmk-project/censordetect/probation"
	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTable(capacity int) (*probation.Table, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	table := probation.New(capacity, time.Hour)
	table.TimeNow = clock.Now
	return table, clock
}

func TestTable(t *testing.T) {
	t.Run("host in probation is not acquired again until expiry", func(t *testing.T) {
		table, clock := newTable(16)
		assert.True(t, table.TryAcquire("example.com"))
		assert.True(t, table.InProbation("example.com"))

		for i := 0; i < 10; i++ {
			clock.Advance(5 * time.Minute)
			assert.False(t, table.TryAcquire("example.com"))
		}

		clock.Advance(10 * time.Minute)
		assert.False(t, table.InProbation("example.com"))
		assert.True(t, table.TryAcquire("example.com"))
		assert.False(t, table.TryAcquire("example.com"))
	})

	t.Run("hosts are independent", func(t *testing.T) {
		table, _ := newTable(16)
		assert.True(t, table.TryAcquire("a.example"))
		assert.True(t, table.TryAcquire("b.example"))
		assert.False(t, table.TryAcquire("a.example"))
		assert.Equal(t, 2, table.Len())
	})

	t.Run("concurrent acquisition has a single winner", func(t *testing.T) {
		table, _ := newTable(16)
		var (
			wins atomic.Int64
			wg   sync.WaitGroup
		)
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if table.TryAcquire("example.com") {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int64(1), wins.Load())
	})

	t.Run("capacity is bounded", func(t *testing.T) {
		table, _ := newTable(8)
		for i := 0; i < 32; i++ {
			assert.True(t, table.TryAcquire(fmt.Sprintf("host%d.example", i)))
		}
		assert.LessOrEqual(t, table.Len(), 8)
	})

	t.Run("frequently failing hosts survive eviction", func(t *testing.T) {
		table, _ := newTable(4)
		assert.True(t, table.TryAcquire("flaky.example"))
		assert.False(t, table.TryAcquire("flaky.example"))
		for i := 0; i < 16; i++ {
			table.TryAcquire(fmt.Sprintf("once%d.example", i))
		}
		assert.True(t, table.InProbation("flaky.example"))
	})

	t.Run("expired entries are swept when full", func(t *testing.T) {
		table, clock := newTable(4)
		for i := 0; i < 4; i++ {
			table.TryAcquire(fmt.Sprintf("host%d.example", i))
		}
		clock.Advance(2 * time.Hour)
		assert.True(t, table.TryAcquire("fresh.example"))
		assert.Equal(t, 1, table.Len())
	})

	t.Run("defaults", func(t *testing.T) {
		table := probation.New(0, 0)
		assert.True(t, table.TryAcquire("example.com"))
		assert.True(t, table.InProbation("example.com"))
	})
}
