// Package cursor tracks the id of the last event delivered to clients.
package cursor

import "sync/atomic"

// Tracker holds a cursor that only moves forward. It is written by the poller
// alone; request paths never touch it.
type Tracker struct {
	id atomic.Int64
}

func New(initial int64) *Tracker {
	t := &Tracker{}
	t.id.Store(initial)
	return t
}

func (t *Tracker) Get() int64 {
	return t.id.Load()
}

// Advance moves the cursor to id if id is ahead of it and reports whether it
// moved.
func (t *Tracker) Advance(id int64) bool {
	for {
		cur := t.id.Load()
		if id <= cur {
			return false
		}
		if t.id.CompareAndSwap(cur, id) {
			return true
		}
	}
}
