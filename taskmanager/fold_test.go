package taskmanager

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"goa.design/a2a/types"
)

func fixedClock() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func textMessage(role types.Role, text string) *types.Message {
	return &types.Message{
		MessageID: "m-" + text,
		Role:      role,
		Parts:     []*types.Part{{Type: "text", Text: text}},
	}
}

// TestFoldIdempotenceOnSnapshots verifies invariant 6 of spec.md §8:
// fold(fold(nil, snap1), snap1) == fold(nil, snap1).
func TestFoldIdempotenceOnSnapshots(t *testing.T) {
	t.Helper()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("fold is idempotent on repeated identical snapshots", prop.ForAll(
		func(id string) bool {
			if id == "" {
				id = "t1"
			}
			snap := &types.Task{
				ID:     id,
				Status: types.TaskStatus{State: types.TaskStateWorking, Timestamp: "2026-01-01T00:00:00Z"},
			}
			once := Fold(nil, types.NewTaskSnapshotEvent(snap), fixedClock)
			twice := Fold(once, types.NewTaskSnapshotEvent(snap), fixedClock)
			return tasksEqual(once, twice)
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestArtifactAppendLaw verifies invariant 7 of spec.md §8: repeated append
// updates concatenate parts in order.
func TestArtifactAppendLaw(t *testing.T) {
	t.Helper()

	base := &types.Task{ID: "t1", Status: types.TaskStatus{State: types.TaskStateWorking}}
	upd1 := &types.TaskArtifactUpdate{
		TaskID: "t1", Append: true,
		Artifact: &types.Artifact{ArtifactID: "a1", Parts: []*types.Part{{Type: "text", Text: "A"}}},
	}
	upd2 := &types.TaskArtifactUpdate{
		TaskID: "t1", Append: true,
		Artifact: &types.Artifact{ArtifactID: "a1", Parts: []*types.Part{{Type: "text", Text: "B"}}},
	}

	after1 := Fold(base, types.NewTaskArtifactEvent(upd1), fixedClock)
	after2 := Fold(after1, types.NewTaskArtifactEvent(upd2), fixedClock)

	require.Len(t, after2.Artifacts, 1)
	require.Len(t, after2.Artifacts[0].Parts, 2)
	require.Equal(t, "A", after2.Artifacts[0].Parts[0].Text)
	require.Equal(t, "B", after2.Artifacts[0].Parts[1].Text)
}

// TestArtifactNotFoundAppends verifies the "not found -> append" branch.
func TestArtifactNotFoundAppends(t *testing.T) {
	base := &types.Task{ID: "t1"}
	upd := &types.TaskArtifactUpdate{
		TaskID: "t1",
		Artifact: &types.Artifact{ArtifactID: "a1", Parts: []*types.Part{{Type: "text", Text: "X"}}},
	}
	out := Fold(base, types.NewTaskArtifactEvent(upd), fixedClock)
	require.Len(t, out.Artifacts, 1)
	require.Equal(t, "a1", out.Artifacts[0].ArtifactID)
}

// TestArtifactReplaceWholesale verifies the "found, append=false -> replace" branch.
func TestArtifactReplaceWholesale(t *testing.T) {
	base := &types.Task{
		ID: "t1",
		Artifacts: []*types.Artifact{
			{ArtifactID: "a1", Parts: []*types.Part{{Type: "text", Text: "old"}}},
		},
	}
	upd := &types.TaskArtifactUpdate{
		TaskID: "t1",
		Artifact: &types.Artifact{ArtifactID: "a1", Parts: []*types.Part{{Type: "text", Text: "new"}}},
	}
	out := Fold(base, types.NewTaskArtifactEvent(upd), fixedClock)
	require.Len(t, out.Artifacts, 1)
	require.Len(t, out.Artifacts[0].Parts, 1)
	require.Equal(t, "new", out.Artifacts[0].Parts[0].Text)
}

// TestStatusMessageDemotion verifies invariant 8 of spec.md §8: the prior
// status message moves to history, the new message becomes the status.
func TestStatusMessageDemotion(t *testing.T) {
	prior := &types.Task{
		ID: "t1",
		Status: types.TaskStatus{
			State:   types.TaskStateWorking,
			Message: textMessage(types.RoleAgent, "thinking"),
		},
	}
	upd := &types.TaskStatusUpdate{
		TaskID: "t1",
		Status: types.TaskStatus{State: types.TaskStateCompleted, Message: textMessage(types.RoleAgent, "done")},
	}
	out := Fold(prior, types.NewTaskStatusEvent(upd), fixedClock)

	require.Len(t, out.History, 1)
	require.Equal(t, "thinking", out.History[0].Parts[0].Text)
	require.NotNil(t, out.Status.Message)
	require.Equal(t, "done", out.Status.Message.Parts[0].Text)
}

// TestStatusUpdateOnNewTaskCreatesSubmittedSkeleton verifies the
// "status-update-on-new-task" rule of spec.md §4.2.
func TestStatusUpdateOnNewTaskCreatesSubmittedSkeleton(t *testing.T) {
	upd := &types.TaskStatusUpdate{
		TaskID:    "t1",
		ContextID: "ctx1",
		Status:    types.TaskStatus{State: types.TaskStateWorking},
	}
	out := Fold(nil, types.NewTaskStatusEvent(upd), fixedClock)
	require.Equal(t, "t1", out.ID)
	require.Equal(t, "ctx1", out.ContextID)
	require.Equal(t, types.TaskStateWorking, out.Status.State)
}

// TestMessageEventDoesNotModifyTask verifies the Message folding rule.
func TestMessageEventDoesNotModifyTask(t *testing.T) {
	prior := &types.Task{ID: "t1", Status: types.TaskStatus{State: types.TaskStateWorking}}
	out := Fold(prior, types.NewMessageEvent(textMessage(types.RoleUser, "hi")), fixedClock)
	require.Equal(t, prior.ID, out.ID)
	require.Equal(t, prior.Status.State, out.Status.State)

	require.Nil(t, Fold(nil, types.NewMessageEvent(textMessage(types.RoleUser, "hi")), fixedClock))
}

// TestMetadataMergeOverridesOnDuplicateKeys verifies the merge-new-overrides-old rule.
func TestMetadataMergeOverridesOnDuplicateKeys(t *testing.T) {
	prior := &types.Task{ID: "t1", Metadata: map[string]any{"a": 1, "b": 2}}
	snap := &types.Task{ID: "t1", Metadata: map[string]any{"b": 3, "c": 4}}
	out := Fold(prior, types.NewTaskSnapshotEvent(snap), fixedClock)
	require.Equal(t, 1, out.Metadata["a"])
	require.Equal(t, 3, out.Metadata["b"])
	require.Equal(t, 4, out.Metadata["c"])
}

func tasksEqual(a, b *types.Task) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.Status.State != b.Status.State {
		return false
	}
	if len(a.Artifacts) != len(b.Artifacts) || len(a.History) != len(b.History) {
		return false
	}
	return true
}
