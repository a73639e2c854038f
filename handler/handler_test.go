package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/a2a/eventbus"
	"goa.design/a2a/executor"
	"goa.design/a2a/pushconfig"
	"goa.design/a2a/queuemanager"
	"goa.design/a2a/taskstore"
	"goa.design/a2a/types"
)

// echoExecutor completes every task immediately after emitting one
// artifact, simulating a minimal well-behaved AgentExecutor.
type echoExecutor struct {
	canceled chan string
}

func (e *echoExecutor) Execute(ctx context.Context, reqCtx executor.RequestContext, sink executor.Sink) error {
	if err := sink.Emit(ctx, reqCtx.TaskID, types.NewTaskArtifactEvent(&types.TaskArtifactUpdate{
		TaskID:   reqCtx.TaskID,
		Artifact: &types.Artifact{ArtifactID: "out", Parts: []*types.Part{{Type: "text", Text: "done"}}},
	})); err != nil {
		return err
	}
	return sink.Emit(ctx, reqCtx.TaskID, types.NewTaskStatusEvent(&types.TaskStatusUpdate{
		TaskID: reqCtx.TaskID,
		Status: types.TaskStatus{State: types.TaskStateCompleted},
		Final:  true,
	}))
}

func (e *echoExecutor) Cancel(_ context.Context, taskID string) error {
	if e.canceled != nil {
		e.canceled <- taskID
	}
	return nil
}

// blockingExecutor waits for ctx to be canceled before returning, used to
// exercise CancelTask.
type blockingExecutor struct{}

func (blockingExecutor) Execute(ctx context.Context, _ executor.RequestContext, _ executor.Sink) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingExecutor) Cancel(context.Context, string) error { return nil }

func newTestHandler(t *testing.T, exec executor.AgentExecutor) (*Handler, func()) {
	t.Helper()
	bus := eventbus.NewBus(16, 0)
	store := taskstore.NewMemory()
	tracker := eventbus.NewTracker()
	queues := queuemanager.New(8, tracker)
	configs := pushconfig.NewMemory(func() string { return "cfg" })
	proc := eventbus.NewProcessor(bus, store, queues, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	go proc.Run(ctx)

	h := New(bus, store, queues, configs, exec)
	return h, cancel
}

func TestSendMessageBlocksUntilCompleted(t *testing.T) {
	h, stop := newTestHandler(t, &echoExecutor{})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	task, err := h.SendMessage(ctx, &types.Message{MessageID: "m1", Role: types.RoleUser, TaskID: "t1"})
	require.NoError(t, err)
	require.Equal(t, types.TaskStateCompleted, task.Status.State)
	require.Len(t, task.Artifacts, 1)
}

func TestSendMessageStreamDeliversEveryEvent(t *testing.T) {
	h, stop := newTestHandler(t, &echoExecutor{})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var kinds []types.EventKind
	err := h.SendMessageStream(ctx, &types.Message{MessageID: "m1", Role: types.RoleUser, TaskID: "t1"}, func(e types.Event) error {
		kinds = append(kinds, e.Kind)
		return nil
	})
	require.NoError(t, err)
	require.Contains(t, kinds, types.EventKindMessage)
	require.Contains(t, kinds, types.EventKindTaskArtifact)
	require.Contains(t, kinds, types.EventKindTaskStatus)
}

func TestCancelTaskIsIdempotentOnFinalTask(t *testing.T) {
	h, stop := newTestHandler(t, &echoExecutor{})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	task, err := h.SendMessage(ctx, &types.Message{MessageID: "m1", Role: types.RoleUser, TaskID: "t1"})
	require.NoError(t, err)
	require.True(t, task.Status.State.IsFinal())

	again, err := h.CancelTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, task.Status.State, again.Status.State)
}

func TestCancelTaskStopsInFlightExecution(t *testing.T) {
	canceled := make(chan string, 1)
	h, stop := newTestHandler(t, &echoExecutorWithCancel{blockingExecutor{}, canceled})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	mq := h.queues.CreateOrTap("t1")
	child := mq.Tap()
	defer child.Close()

	h.startExecution(executor.RequestContext{TaskID: "t1", Message: &types.Message{MessageID: "m1", TaskID: "t1"}})
	require.NoError(t, h.store.Save(ctx, &types.Task{ID: "t1", Status: types.TaskStatus{State: types.TaskStateWorking}}))

	task, err := h.CancelTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, types.TaskStateCanceled, task.Status.State)

	select {
	case got := <-canceled:
		require.Equal(t, "t1", got)
	case <-time.After(time.Second):
		t.Fatal("executor Cancel was not invoked")
	}
}

// TestCancelTaskCancelableWithoutInFlightExecution verifies spec.md §6:
// TaskNotCancelable is reserved for terminal states. A task left in
// input-required after its AgentExecutor.Execute call already returned (so
// no in-flight context is tracked) must still be cancelable.
func TestCancelTaskCancelableWithoutInFlightExecution(t *testing.T) {
	canceled := make(chan string, 1)
	h, stop := newTestHandler(t, &echoExecutorWithCancel{blockingExecutor{}, canceled})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, h.store.Save(ctx, &types.Task{ID: "t1", Status: types.TaskStatus{State: types.TaskStateInputRequired}}))

	task, err := h.CancelTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, types.TaskStateCanceled, task.Status.State)

	select {
	case got := <-canceled:
		require.Equal(t, "t1", got)
	case <-time.After(time.Second):
		t.Fatal("executor Cancel was not invoked")
	}
}

type echoExecutorWithCancel struct {
	executor.AgentExecutor
	canceled chan string
}

func (e *echoExecutorWithCancel) Cancel(ctx context.Context, taskID string) error {
	e.canceled <- taskID
	return nil
}
