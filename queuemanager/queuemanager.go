// Package queuemanager implements component C7 (spec.md §4.4): a registry
// mapping task IDs to their MainQueue, with atomic create-or-attach
// semantics so two concurrent subscribers to a brand-new task never race
// each other into creating two separate queues.
//
// Grounded on the teacher's registry.MemoryCache (runtime/registry/cache.go):
// the same RWMutex-guarded map with a typed entry and a narrow
// create/get/delete surface, generalized from TTL cache entries to
// reference-counted MainQueue handles.
package queuemanager

import (
	"sync"

	"goa.design/a2a/queue"
)

// Manager owns the live MainQueue for every task currently being streamed.
// A task with no Manager entry is assumed to have no subscribers; the
// MainEventBusProcessor always looks a queue up through CreateOrTap so a
// queue is lazily created on first use.
type Manager struct {
	mu       sync.RWMutex
	queues   map[string]*queue.MainQueue
	capacity int
	state    queue.TaskStateProvider
}

// New constructs an empty Manager. childCapacity bounds every ChildQueue
// created through the manager's queues; state supplies the
// finalized-task lookup MainQueue needs for its reference-counting close
// decision (spec.md §4.4).
func New(childCapacity int, state queue.TaskStateProvider) *Manager {
	return &Manager{
		queues:   make(map[string]*queue.MainQueue),
		capacity: childCapacity,
		state:    state,
	}
}

// CreateOrTap returns the MainQueue for taskID, creating it if absent. The
// check-then-create is done under a single write lock so concurrent callers
// for the same new task ID never create two queues.
func (m *Manager) CreateOrTap(taskID string) *queue.MainQueue {
	m.mu.RLock()
	q, ok := m.queues[taskID]
	m.mu.RUnlock()
	if ok {
		return q
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[taskID]; ok {
		return q
	}
	q = queue.NewMainQueue(taskID, m.capacity, m.state)
	q.SetOnClose(func() { m.Remove(taskID) })
	m.queues[taskID] = q
	return q
}

// Get returns the MainQueue for taskID if one exists, without creating one.
func (m *Manager) Get(taskID string) (*queue.MainQueue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[taskID]
	return q, ok
}

// Close closes and removes the MainQueue for taskID, if any.
func (m *Manager) Close(taskID string) {
	m.mu.Lock()
	q, ok := m.queues[taskID]
	if ok {
		delete(m.queues, taskID)
	}
	m.mu.Unlock()
	if ok {
		q.Close()
	}
}

// Remove drops taskID from the manager without closing its queue, used by
// MainQueue itself once it has decided to close following reference-count
// reaching zero, so the manager does not hold a stale entry.
func (m *Manager) Remove(taskID string) {
	m.mu.Lock()
	delete(m.queues, taskID)
	m.mu.Unlock()
}

// Len reports the number of tasks currently tracked, for diagnostics and
// metrics.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queues)
}
