// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package cache

import (
	"sync"
	"time"
)

type lruNode struct {
	key        string
	expiresAt  time.Time
	prev, next *lruNode
}

// Deduper remembers up to capacity keys for ttl each. When full, the least
// recently seen key is evicted in O(1).
type Deduper struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*lruNode
	// head.next is the most recent entry, tail.prev the oldest.
	head, tail *lruNode
	now        func() time.Time

	hits, misses int64
}

func NewDeduper(capacity int, ttl time.Duration) *Deduper {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	d := &Deduper{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*lruNode, capacity),
		head:     &lruNode{},
		tail:     &lruNode{},
		now:      time.Now,
	}
	d.head.next = d.tail
	d.tail.prev = d.head
	return d
}

// IsDuplicate reports whether key was seen within ttl. A key that was not
// seen is recorded, so the first call returns false and later calls true.
func (d *Deduper) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if n, ok := d.items[key]; ok {
		if !now.After(n.expiresAt) {
			d.unlink(n)
			d.pushFront(n)
			d.hits++
			return true
		}
		d.remove(n)
	}

	n := &lruNode{key: key, expiresAt: now.Add(d.ttl)}
	d.pushFront(n)
	d.items[key] = n
	for len(d.items) > d.capacity {
		d.remove(d.tail.prev)
	}
	d.misses++
	return false
}

// Forget drops key so a retried delivery is processed again. Handlers call
// it when processing fails after the key was recorded.
func (d *Deduper) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.items[key]; ok {
		d.remove(n)
	}
}

func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

func (d *Deduper) Stats() (hits, misses int64, size int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hits, d.misses, len(d.items)
}

// must be called with d.mu held
func (d *Deduper) pushFront(n *lruNode) {
	n.prev = d.head
	n.next = d.head.next
	d.head.next.prev = n
	d.head.next = n
}

func (d *Deduper) unlink(n *lruNode) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (d *Deduper) remove(n *lruNode) {
	if n == d.head {
		return
	}
	d.unlink(n)
	delete(d.items, n.key)
}
