// Package activity keeps a bounded in-memory feed of task lifecycle events.
package activity

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries retained by the feed.
const DefaultCapacity = 500

// Entry types.
const (
	TypeTaskCreated       = "task_created"
	TypeTaskStatusChanged = "task_status_changed"
	TypeTaskDeleted       = "task_deleted"
)

// Entry is one item of the activity feed.
type Entry struct {
	Seq     uint64    `json:"seq"`
	Type    string    `json:"type"`
	TaskID  uint      `json:"task_id"`
	ActorID uint      `json:"actor_id"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Feed is a fixed-size ring of entries. It is safe for concurrent use.
type Feed struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
	seq     uint64
}

// NewFeed creates a feed holding at most capacity entries.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{entries: make([]Entry, capacity)}
}

// Add appends e, evicting the oldest entry when the feed is full. It returns
// the sequence number assigned to e.
func (f *Feed) Add(e Entry) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	e.Seq = f.seq
	f.entries[f.next] = e
	f.next = (f.next + 1) % len(f.entries)
	if f.next == 0 {
		f.full = true
	}
	return e.Seq
}

// Len returns the number of retained entries.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.size()
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns every retained entry.
func (f *Feed) Recent(limit int) []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := f.size()
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (f.next - i + len(f.entries)) % len(f.entries)
		out = append(out, f.entries[idx])
	}
	return out
}

func (f *Feed) size() int {
	if f.full {
		return len(f.entries)
	}
	return f.next
}
