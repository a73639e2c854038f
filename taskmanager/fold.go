// Package taskmanager implements the pure event-folding reducer described in
// spec.md §4.2 (component C4): (prior Task?, Event) -> Task?. It is the sole
// place task state transitions happen; it performs no I/O.
package taskmanager

import (
	"time"

	"goa.design/a2a/types"
)

// Clock returns the current time. Production code uses time.Now; tests
// inject a deterministic clock so Fold's output is reproducible.
type Clock func() time.Time

// Fold applies event to prior (which may be nil for a brand-new task) and
// returns the resulting Task. It never mutates prior; callers own the
// returned value. A Message event returns prior unchanged (it does not
// affect task state).
//
// Determinism: for the same (prior, event, now) the output is
// byte-for-byte identical (spec.md §4.2).
func Fold(prior *types.Task, event types.Event, now Clock) *types.Task {
	if now == nil {
		now = time.Now
	}
	switch event.Kind {
	case types.EventKindTaskSnapshot:
		return foldSnapshot(prior, event.Snapshot)
	case types.EventKindTaskStatus:
		return foldStatus(prior, event.Status, now)
	case types.EventKindTaskArtifact:
		return foldArtifact(prior, event.Artifact)
	case types.EventKindMessage:
		return cloneTask(prior)
	default:
		// InternalError and unrecognized kinds do not affect the task record.
		return cloneTask(prior)
	}
}

// foldSnapshot implements the TaskSnapshot rule of spec.md §4.2: adopt the
// snapshot, preserving prior.History when the snapshot has none, and
// merging metadata with the snapshot's keys overriding prior's.
func foldSnapshot(prior *types.Task, snap *types.Task) *types.Task {
	if snap == nil {
		return cloneTask(prior)
	}
	result := cloneTask(snap)
	if prior != nil {
		if len(result.History) == 0 && len(prior.History) > 0 {
			result.History = cloneMessages(prior.History)
		}
		result.Metadata = mergeMetadata(prior.Metadata, snap.Metadata)
	}
	return result
}

// foldStatus implements the TaskStatusUpdate rule of spec.md §4.2.
func foldStatus(prior *types.Task, upd *types.TaskStatusUpdate, now Clock) *types.Task {
	if upd == nil {
		return cloneTask(prior)
	}
	var result *types.Task
	if prior == nil {
		// "status-update-on-new-task": create a skeleton task in the
		// submitted state before applying the update.
		result = &types.Task{
			ID:        upd.TaskID,
			ContextID: upd.ContextID,
			Status: types.TaskStatus{
				State:     types.TaskStateSubmitted,
				Timestamp: now().UTC().Format(time.RFC3339),
			},
		}
	} else {
		result = cloneTask(prior)
	}

	// Demote the prior status message to history before replacing status.
	if result.Status.Message != nil {
		result.History = append(result.History, cloneMessage(result.Status.Message))
	}

	result.Status = upd.Status
	if result.Status.Timestamp == "" {
		result.Status.Timestamp = now().UTC().Format(time.RFC3339)
	}
	if upd.ContextID != "" {
		result.ContextID = upd.ContextID
	}
	result.Metadata = mergeMetadata(result.Metadata, upd.Metadata)
	return result
}

// foldArtifact implements the TaskArtifactUpdate rule of spec.md §4.2.
func foldArtifact(prior *types.Task, upd *types.TaskArtifactUpdate) *types.Task {
	if upd == nil || upd.Artifact == nil {
		return cloneTask(prior)
	}
	var result *types.Task
	if prior == nil {
		result = &types.Task{ID: upd.TaskID, ContextID: upd.ContextID}
	} else {
		result = cloneTask(prior)
	}

	idx := -1
	for i, a := range result.Artifacts {
		if a.ArtifactID == upd.Artifact.ArtifactID {
			idx = i
			break
		}
	}

	switch {
	case idx < 0:
		result.Artifacts = append(result.Artifacts, cloneArtifact(upd.Artifact))
	case !upd.Append:
		result.Artifacts[idx] = cloneArtifact(upd.Artifact)
	default:
		existing := result.Artifacts[idx]
		merged := cloneArtifact(existing)
		merged.Parts = append(append([]*types.Part{}, existing.Parts...), upd.Artifact.Parts...)
		result.Artifacts[idx] = merged
	}

	result.Metadata = mergeMetadata(result.Metadata, upd.Metadata)
	return result
}

// mergeMetadata returns a new map containing base's entries overridden by
// overlay's entries for duplicate keys (spec.md §4.2 "new overrides old").
func mergeMetadata(base, overlay map[string]any) map[string]any {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

func cloneTask(t *types.Task) *types.Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Status.Message != nil {
		cp.Status.Message = cloneMessage(t.Status.Message)
	}
	cp.Artifacts = cloneArtifacts(t.Artifacts)
	cp.History = cloneMessages(t.History)
	if t.Metadata != nil {
		cp.Metadata = mergeMetadata(t.Metadata, nil)
	}
	return &cp
}

func cloneMessage(m *types.Message) *types.Message {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Parts = append([]*types.Part{}, m.Parts...)
	return &cp
}

func cloneMessages(ms []*types.Message) []*types.Message {
	if ms == nil {
		return nil
	}
	out := make([]*types.Message, len(ms))
	for i, m := range ms {
		out[i] = cloneMessage(m)
	}
	return out
}

func cloneArtifact(a *types.Artifact) *types.Artifact {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Parts = append([]*types.Part{}, a.Parts...)
	return &cp
}

func cloneArtifacts(as []*types.Artifact) []*types.Artifact {
	if as == nil {
		return nil
	}
	out := make([]*types.Artifact, len(as))
	for i, a := range as {
		out[i] = cloneArtifact(a)
	}
	return out
}
