// Package storemongo provides a MongoDB-backed taskstore.Store for
// deployments that need durability across restarts.
//
// Grounded on the teacher's registry/store/mongo package: the same
// ReplaceOne-with-upsert write pattern, FindOne/mongo.ErrNoDocuments
// not-found mapping, and Find+cursor.All list pattern, generalized from a
// Toolset document to a Task document. This module pins
// go.mongodb.org/mongo-driver/v2, so import paths are .../v2/bson,
// .../v2/mongo, .../v2/mongo/options rather than the teacher's v1 paths.
package storemongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/a2a/errs"
	"goa.design/a2a/taskstore"
	"goa.design/a2a/types"
)

// Store is a MongoDB implementation of taskstore.Store.
type Store struct {
	collection *mongo.Collection
}

var _ taskstore.Store = (*Store)(nil)

// taskDocument is the BSON representation of a types.Task, keyed by its ID.
type taskDocument struct {
	ID        string         `bson:"_id"`
	ContextID string         `bson:"contextId,omitempty"`
	Status    bson.Raw       `bson:"status"`
	Artifacts bson.Raw       `bson:"artifacts,omitempty"`
	History   bson.Raw       `bson:"history,omitempty"`
	Metadata  bson.M         `bson:"metadata,omitempty"`
	State     types.TaskState `bson:"state"`
	Timestamp string         `bson:"timestamp,omitempty"`
}

// New creates a Store using the given collection. The caller owns the
// *mongo.Client's connection lifecycle.
func New(collection *mongo.Collection) *Store {
	return &Store{collection: collection}
}

// EnsureIndexes creates the indexes List relies on for efficient filtering:
// a single-field index on contextId and on the status's state.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "contextId", Value: 1}}},
		{Keys: bson.D{{Key: "state", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func toDocument(task *types.Task) (*taskDocument, error) {
	status, err := bson.Marshal(task.Status)
	if err != nil {
		return nil, err
	}
	var artifacts, history bson.Raw
	if task.Artifacts != nil {
		artifacts, err = bson.Marshal(task.Artifacts)
		if err != nil {
			return nil, err
		}
	}
	if task.History != nil {
		history, err = bson.Marshal(task.History)
		if err != nil {
			return nil, err
		}
	}
	meta := bson.M{}
	for k, v := range task.Metadata {
		meta[k] = v
	}
	return &taskDocument{
		ID:        task.ID,
		ContextID: task.ContextID,
		Status:    status,
		Artifacts: artifacts,
		History:   history,
		Metadata:  meta,
		State:     task.Status.State,
		Timestamp: task.Status.Timestamp,
	}, nil
}

func fromDocument(doc *taskDocument) (*types.Task, error) {
	task := &types.Task{ID: doc.ID, ContextID: doc.ContextID}
	if len(doc.Status) > 0 {
		if err := bson.Unmarshal(doc.Status, &task.Status); err != nil {
			return nil, err
		}
	}
	if len(doc.Artifacts) > 0 {
		if err := bson.Unmarshal(doc.Artifacts, &task.Artifacts); err != nil {
			return nil, err
		}
	}
	if len(doc.History) > 0 {
		if err := bson.Unmarshal(doc.History, &task.History); err != nil {
			return nil, err
		}
	}
	if len(doc.Metadata) > 0 {
		task.Metadata = make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			task.Metadata[k] = v
		}
	}
	return task, nil
}

// Save implements taskstore.Store, upserting the task document.
func (s *Store) Save(ctx context.Context, task *types.Task) error {
	if task == nil || task.ID == "" {
		return errs.New(errs.KindTaskSerializationError, "task id is required")
	}
	doc, err := toDocument(task)
	if err != nil {
		return errs.Wrap(errs.KindTaskSerializationError, err, "failed to encode task %s", task.ID).WithTaskID(task.ID)
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": task.ID}, doc, opts); err != nil {
		return errs.Wrap(errs.KindTaskPersistenceError, err, "failed to persist task %s", task.ID).WithTaskID(task.ID)
	}
	return nil
}

// Get implements taskstore.Store.
func (s *Store) Get(ctx context.Context, id string) (*types.Task, error) {
	var doc taskDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.New(errs.KindTaskNotFound, "task %q not found", id).WithTaskID(id)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindTaskStoreError, err, "failed to fetch task %s", id).WithTaskID(id)
	}
	task, err := fromDocument(&doc)
	if err != nil {
		return nil, errs.Wrap(errs.KindTaskSerializationError, err, "failed to decode task %s", id).WithTaskID(id)
	}
	return task, nil
}

// Delete implements taskstore.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return errs.Wrap(errs.KindTaskStoreError, err, "failed to delete task %s", id).WithTaskID(id)
	}
	return nil
}

// List implements taskstore.Store.
func (s *Store) List(ctx context.Context, filter taskstore.ListFilter) (taskstore.Page, error) {
	q := bson.M{}
	if filter.ContextID != "" {
		q["contextId"] = filter.ContextID
	}
	if filter.State != "" {
		q["state"] = filter.State
	}
	if !filter.TimestampAfter.IsZero() {
		q["timestamp"] = bson.M{"$gt": filter.TimestampAfter.Format(time.RFC3339)}
	}

	cursor, err := s.collection.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return taskstore.Page{}, errs.Wrap(errs.KindTaskStoreError, err, "failed to list tasks")
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []taskDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return taskstore.Page{}, errs.Wrap(errs.KindTaskStoreError, err, "failed to decode task list")
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	start := 0
	if filter.PageToken != "" {
		for i, d := range docs {
			if d.ID == filter.PageToken {
				start = i + 1
				break
			}
		}
	}
	if start > len(docs) {
		start = len(docs)
	}
	size := filter.PageSize
	if size <= 0 {
		size = len(docs) - start
	}
	end := start + size
	if end > len(docs) {
		end = len(docs)
	}

	tasks := make([]*types.Task, 0, end-start)
	for _, doc := range docs[start:end] {
		task, err := fromDocument(&doc)
		if err != nil {
			return taskstore.Page{}, errs.Wrap(errs.KindTaskSerializationError, err, "failed to decode task %s", doc.ID).WithTaskID(doc.ID)
		}
		if !filter.IncludeArtifacts {
			task.Artifacts = nil
		}
		if filter.HistoryLengthCap >= 0 && len(task.History) > filter.HistoryLengthCap {
			task.History = task.History[len(task.History)-filter.HistoryLengthCap:]
		}
		tasks = append(tasks, task)
	}

	var next string
	if end < len(docs) {
		next = docs[end-1].ID
	}
	return taskstore.Page{Tasks: tasks, NextToken: next}, nil
}
