// Package storeredis provides a Redis-backed taskstore.Store, letting
// multiple a2aserver processes share task state the way the teacher's
// registry shares toolset state across nodes (registry/registry.go,
// registry/result_stream.go): plain key-value operations against a shared
// *redis.Client, JSON-encoded values, and a Redis SET for the index needed
// by List.
//
// Grounded directly on registry/result_stream.go's redis key-naming and
// Get/Set/Del/Expire usage, generalized from a tool-use-id-to-stream-id
// mapping to a full Task record store. The teacher also layers Pulse
// (goa.design/pulse) replicated maps on top of Redis for cross-node
// coordination; Pulse is not part of this stack (it is a goa-ai-specific
// dependency not present in the pack's domain-stack table), so this package
// uses go-redis directly rather than fabricating a Pulse-shaped layer on
// top of it.
package storeredis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"goa.design/a2a/errs"
	"goa.design/a2a/taskstore"
	"goa.design/a2a/types"
)

const (
	keyPrefix   = "a2a:task:"
	indexKey    = "a2a:tasks:index"
	ctxIndexFmt = "a2a:tasks:context:%s"
)

func taskKey(id string) string { return keyPrefix + id }

// Store is a Redis-backed taskstore.Store. All operations are safe for
// concurrent use; the pipeline guarantees a single writer per task ID
// (spec.md §5), so Store does not itself serialize writes across distinct
// IDs.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets an expiry applied to every stored task record; zero (the
// default) means no expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// New constructs a Store backed by rdb.
func New(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{rdb: rdb}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ taskstore.Store = (*Store)(nil)

// Save implements taskstore.Store.
func (s *Store) Save(ctx context.Context, task *types.Task) error {
	if task == nil || task.ID == "" {
		return errs.New(errs.KindTaskSerializationError, "task id is required")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return errs.Wrap(errs.KindTaskSerializationError, err, "failed to encode task %s", task.ID).WithTaskID(task.ID)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, taskKey(task.ID), data, s.ttl)
	pipe.SAdd(ctx, indexKey, task.ID)
	if task.ContextID != "" {
		pipe.SAdd(ctx, fmt.Sprintf(ctxIndexFmt, task.ContextID), task.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Wrap(errs.KindTaskPersistenceError, err, "failed to persist task %s", task.ID).WithTaskID(task.ID)
	}
	return nil
}

// Get implements taskstore.Store.
func (s *Store) Get(ctx context.Context, id string) (*types.Task, error) {
	data, err := s.rdb.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.New(errs.KindTaskNotFound, "task %q not found", id).WithTaskID(id)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindTaskStoreError, err, "failed to fetch task %s", id).WithTaskID(id)
	}
	var task types.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, errs.Wrap(errs.KindTaskSerializationError, err, "failed to decode task %s", id).WithTaskID(id)
	}
	return &task, nil
}

// Delete implements taskstore.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	task, err := s.Get(ctx, id)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, taskKey(id))
	pipe.SRem(ctx, indexKey, id)
	if err == nil && task.ContextID != "" {
		pipe.SRem(ctx, fmt.Sprintf(ctxIndexFmt, task.ContextID), id)
	}
	if _, pErr := pipe.Exec(ctx); pErr != nil {
		return errs.Wrap(errs.KindTaskStoreError, pErr, "failed to delete task %s", id).WithTaskID(id)
	}
	return nil
}

// List implements taskstore.Store. Filtering by State and TimestampAfter is
// applied after loading candidate IDs, since Redis SETs give no secondary
// index on those fields; ContextID filtering uses the dedicated per-context
// index to avoid scanning every task.
func (s *Store) List(ctx context.Context, filter taskstore.ListFilter) (taskstore.Page, error) {
	var ids []string
	var err error
	if filter.ContextID != "" {
		ids, err = s.rdb.SMembers(ctx, fmt.Sprintf(ctxIndexFmt, filter.ContextID)).Result()
	} else {
		ids, err = s.rdb.SMembers(ctx, indexKey).Result()
	}
	if err != nil {
		return taskstore.Page{}, errs.Wrap(errs.KindTaskStoreError, err, "failed to list tasks")
	}
	sort.Strings(ids)

	matched := make([]*types.Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		if filter.State != "" && task.Status.State != filter.State {
			continue
		}
		if !filter.TimestampAfter.IsZero() {
			ts, err := time.Parse(time.RFC3339, task.Status.Timestamp)
			if err == nil && !ts.After(filter.TimestampAfter) {
				continue
			}
		}
		matched = append(matched, task)
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
		if !filter.IncludeArtifacts {
			t.Artifacts = nil
		}
		if filter.HistoryLengthCap >= 0 && len(t.History) > filter.HistoryLengthCap {
			t.History = t.History[len(t.History)-filter.HistoryLengthCap:]
		}
		page = append(page, t)
	}

	var next string
	if end < len(matched) {
		next = matched[end-1].ID
	}
	return taskstore.Page{Tasks: page, NextToken: next}, nil
}
