package sync

import (
	"sort"

	"github.com/bolasblack/multihack/internal/protocol"
)

// PendingQueue holds remote edits for files that are still being
// materialized, keyed by absolute path. A key exists exactly while a
// materialization for that path is in flight.
type PendingQueue struct {
	items map[string][]protocol.EditRecord
}

// NewPendingQueue creates an empty queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{items: make(map[string][]protocol.EditRecord)}
}

// Has reports whether path has a queue.
func (q *PendingQueue) Has(path string) bool {
	_, ok := q.items[path]
	return ok
}

// Start creates the queue for path holding rec. It returns false if one exists.
func (q *PendingQueue) Start(path string, rec protocol.EditRecord) bool {
	if q.Has(path) {
		return false
	}
	q.items[path] = []protocol.EditRecord{rec}
	return true
}

// Append adds rec to an existing queue. It returns false if path has none.
func (q *PendingQueue) Append(path string, rec protocol.EditRecord) bool {
	items, ok := q.items[path]
	if !ok {
		return false
	}
	q.items[path] = append(items, rec)
	return true
}

// Pop removes and returns the oldest edit for path, keeping the key.
func (q *PendingQueue) Pop(path string) (protocol.EditRecord, bool) {
	items := q.items[path]
	if len(items) == 0 {
		return protocol.EditRecord{}, false
	}
	rec := items[0]
	q.items[path] = items[1:]
	return rec, true
}

// Len returns the number of edits waiting for path.
func (q *PendingQueue) Len(path string) int {
	return len(q.items[path])
}

// Delete removes the queue for path.
func (q *PendingQueue) Delete(path string) {
	delete(q.items, path)
}

// Paths returns every path with a queue, sorted.
func (q *PendingQueue) Paths() []string {
	paths := make([]string, 0, len(q.items))
	for p := range q.items {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
