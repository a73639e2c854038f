// Package pushconfig implements component C2 (spec.md §4.8): pluggable
// storage of per-task PushNotificationConfig webhook registrations.
//
// Grounded on the same inMemoryTaskStore concurrency pattern
// (runtime/a2a/server.go) as taskstore.Memory, scoped down to the narrower
// create/get/list/delete surface this component needs.
package pushconfig

import (
	"context"
	"sort"
	"sync"

	"goa.design/a2a/errs"
	"goa.design/a2a/types"
)

// Store abstracts push-notification config persistence.
type Store interface {
	// Create adds cfg under taskID, assigning cfg.ID if empty, and returns
	// the stored copy.
	Create(ctx context.Context, taskID string, cfg *types.PushNotificationConfig) (*types.PushNotificationConfig, error)
	// Get returns the config with configID for taskID, or an
	// errs.KindTaskNotFound error if either is absent.
	Get(ctx context.Context, taskID, configID string) (*types.PushNotificationConfig, error)
	// List returns every config registered for taskID.
	List(ctx context.Context, taskID string) ([]*types.PushNotificationConfig, error)
	// Delete removes configID from taskID. Deleting a missing config is not
	// an error.
	Delete(ctx context.Context, taskID, configID string) error
	// DeleteAll removes every config registered for taskID, used when a task
	// is garbage-collected.
	DeleteAll(ctx context.Context, taskID string) error
}

// IDGenerator produces unique config IDs. Production wiring uses
// github.com/google/uuid; tests can substitute a deterministic sequence.
type IDGenerator func() string

// Memory is the default in-memory Store, safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	configs map[string]map[string]*types.PushNotificationConfig
	newID   IDGenerator
}

// NewMemory constructs an empty in-memory Store using newID to assign config
// IDs when the caller does not supply one.
func NewMemory(newID IDGenerator) *Memory {
	return &Memory{
		configs: make(map[string]map[string]*types.PushNotificationConfig),
		newID:   newID,
	}
}

var _ Store = (*Memory)(nil)

// Create implements Store.
func (m *Memory) Create(_ context.Context, taskID string, cfg *types.PushNotificationConfig) (*types.PushNotificationConfig, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errs.New(errs.KindInvalidParams, "push notification config url is required").WithTaskID(taskID)
	}
	cp := *cfg
	if cp.ID == "" {
		cp.ID = m.newID()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.configs[taskID]
	if !ok {
		bucket = make(map[string]*types.PushNotificationConfig)
		m.configs[taskID] = bucket
	}
	stored := cp
	bucket[cp.ID] = &stored
	out := stored
	return &out, nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, taskID, configID string) (*types.PushNotificationConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.configs[taskID]
	if !ok {
		return nil, errs.New(errs.KindTaskNotFound, "no push notification configs for task %q", taskID).WithTaskID(taskID)
	}
	cfg, ok := bucket[configID]
	if !ok {
		return nil, errs.New(errs.KindTaskNotFound, "push notification config %q not found", configID).WithTaskID(taskID)
	}
	out := *cfg
	return &out, nil
}

// List implements Store.
func (m *Memory) List(_ context.Context, taskID string) ([]*types.PushNotificationConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket := m.configs[taskID]
	out := make([]*types.PushNotificationConfig, 0, len(bucket))
	for _, cfg := range bucket {
		cp := *cfg
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, taskID, configID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bucket, ok := m.configs[taskID]; ok {
		delete(bucket, configID)
	}
	return nil
}

// DeleteAll implements Store.
func (m *Memory) DeleteAll(_ context.Context, taskID string) error {
	m.mu.Lock()
	delete(m.configs, taskID)
	m.mu.Unlock()
	return nil
}
