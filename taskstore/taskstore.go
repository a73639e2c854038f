// Package taskstore defines the pluggable persistence contract for canonical
// Task records (spec.md §4.1, component C1) and provides the default
// in-memory implementation. Production deployments plug in storeredis or
// storemongo instead.
package taskstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"goa.design/a2a/errs"
	"goa.design/a2a/types"
)

// ListFilter narrows a List call (spec.md §4.1).
type ListFilter struct {
	ContextID             string
	State                 types.TaskState
	TimestampAfter        time.Time
	PageSize              int
	PageToken             string
	HistoryLengthCap      int
	IncludeArtifacts      bool
}

// Page is a single page of List results.
type Page struct {
	Tasks     []*types.Task
	NextToken string
}

// Store abstracts task persistence. Implementations must make Save atomic
// per task ID; the pipeline guarantees a single writer per task (spec.md
// §5), so implementations need not serialize writes across different task
// IDs themselves, but internal concurrency across different task IDs is
// explicitly allowed.
type Store interface {
	// Save atomically persists (or replaces) the task. Implementations
	// should return an *errs.Error with KindTaskPersistenceError or
	// KindTaskSerializationError on failure.
	Save(ctx context.Context, task *types.Task) error
	// Get returns the task for id, or an *errs.Error with KindTaskNotFound
	// if it does not exist.
	Get(ctx context.Context, id string) (*types.Task, error)
	// Delete removes the task for id. Deleting a missing task is not an
	// error.
	Delete(ctx context.Context, id string) error
	// List returns a page of tasks matching filter.
	List(ctx context.Context, filter ListFilter) (Page, error)
}

// Memory is the default in-memory Store implementation, safe for
// concurrent use. Grounded on the teacher's inMemoryTaskStore
// (runtime/a2a/server.go) generalized from single-status TaskState records
// to full Task snapshots with list/filter support.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]*types.Task
}

// NewMemory constructs an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]*types.Task)}
}

var _ Store = (*Memory)(nil)

// Save implements Store.
func (m *Memory) Save(_ context.Context, task *types.Task) error {
	if task == nil || task.ID == "" {
		return errs.New(errs.KindTaskSerializationError, "task id is required")
	}
	cp := deepCopy(task)
	m.mu.Lock()
	m.tasks[task.ID] = cp
	m.mu.Unlock()
	return nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, id string) (*types.Task, error) {
	m.mu.RLock()
	task, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.KindTaskNotFound, "task %q not found", id).WithTaskID(id)
	}
	return deepCopy(task), nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.tasks, id)
	m.mu.Unlock()
	return nil
}

// List implements Store.
func (m *Memory) List(_ context.Context, filter ListFilter) (Page, error) {
	m.mu.RLock()
	all := make([]*types.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		all = append(all, t)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	matched := make([]*types.Task, 0, len(all))
	for _, t := range all {
		if filter.ContextID != "" && t.ContextID != filter.ContextID {
			continue
		}
		if filter.State != "" && t.Status.State != filter.State {
			continue
		}
		if !filter.TimestampAfter.IsZero() {
			ts, err := time.Parse(time.RFC3339, t.Status.Timestamp)
			if err == nil && !ts.After(filter.TimestampAfter) {
				continue
			}
		}
		matched = append(matched, t)
	}

	start := 0
	if filter.PageToken != "" {
		for i, t := range matched {
			if t.ID == filter.PageToken {
				start = i + 1
				break
			}
		}
	}
	if start > len(matched) {
		start = len(matched)
	}

	size := filter.PageSize
	if size <= 0 {
		size = len(matched) - start
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	page := make([]*types.Task, 0, end-start)
	for _, t := range matched[start:end] {
		cp := deepCopy(t)
		if !filter.IncludeArtifacts {
			cp.Artifacts = nil
		}
		if filter.HistoryLengthCap >= 0 && len(cp.History) > filter.HistoryLengthCap {
			cp.History = cp.History[len(cp.History)-filter.HistoryLengthCap:]
		}
		page = append(page, cp)
	}

	var next string
	if end < len(matched) {
		next = matched[end-1].ID
	}
	return Page{Tasks: page, NextToken: next}, nil
}

// deepCopy returns a structurally independent copy of t so stored state
// cannot be mutated through returned/retained references.
func deepCopy(t *types.Task) *types.Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Status.Message != nil {
		m := *t.Status.Message
		cp.Status.Message = &m
	}
	if t.Artifacts != nil {
		cp.Artifacts = make([]*types.Artifact, len(t.Artifacts))
		for i, a := range t.Artifacts {
			ac := *a
			cp.Artifacts[i] = &ac
		}
	}
	if t.History != nil {
		cp.History = make([]*types.Message, len(t.History))
		for i, h := range t.History {
			hc := *h
			cp.History[i] = &hc
		}
	}
	if t.Metadata != nil {
		cp.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
