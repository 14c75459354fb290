/*******************************************************************************
 * Copyright (c) 2026 Genome Research Ltd.
 *
 * Permission is hereby granted, free of charge, to any person obtaining
 * a copy of this software and associated documentation files (the
 * "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish,
 * distribute, sublicense, and/or sell copies of the Software, and to
 * permit persons to whom the Software is furnished to do so, subject to
 * the following conditions:
 *
 * The above copyright notice and this permission notice shall be included
 * in all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
 * EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
 * MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
 * CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
 * TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 ******************************************************************************/

package usage

import (
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

// Cache holds one record per identity. It is safe to read from any number of
// goroutines while another updates it.
type Cache[R Record] struct {
	mu   sync.RWMutex
	data map[string]R
}

// NewCache creates a new, empty, Cache.
func NewCache[R Record]() *Cache[R] {
	return &Cache[R]{
		data: make(map[string]R),
	}
}

// Upsert stores the given record, replacing any existing record with the same
// key.
func (c *Cache[R]) Upsert(r R) {
	c.mu.Lock()
	c.data[r.Key()] = r
	c.mu.Unlock()
}

// Remove deletes the record with the given key, returning true if there was
// one.
func (c *Cache[R]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.data[key]
	delete(c.data, key)

	return ok
}

// Get returns the record with the given key.
func (c *Cache[R]) Get(key string) (R, bool) {
	c.mu.RLock()
	r, ok := c.data[key]
	c.mu.RUnlock()

	return r, ok
}

// Len returns the number of records held.
func (c *Cache[R]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.data)
}

// Snapshot returns a copy of every record, sorted by key.
func (c *Cache[R]) Snapshot() []R {
	c.mu.RLock()

	records := make([]R, 0, len(c.data))

	for _, r := range c.data {
		records = append(records, r)
	}

	c.mu.RUnlock()

	slices.SortFunc(records, func(a, b R) int {
		return strings.Compare(a.Key(), b.Key())
	})

	return records
}

// Prune removes every record that stale returns true for, returning how many
// were removed.
//
// stale is called on a snapshot without holding any lock, so it may be slow
// (eg. check the filesystem) without blocking readers.
func (c *Cache[R]) Prune(stale func(R) bool) int {
	var remove []string

	for _, r := range c.Snapshot() {
		if stale(r) {
			remove = append(remove, r.Key())
		}
	}

	if len(remove) == 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range remove {
		delete(c.data, key)
	}

	return len(remove)
}
