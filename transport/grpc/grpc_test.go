package grpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"goa.design/a2a/errs"
	"goa.design/a2a/eventbus"
	"goa.design/a2a/executor"
	"goa.design/a2a/handler"
	"goa.design/a2a/pushconfig"
	"goa.design/a2a/queuemanager"
	"goa.design/a2a/taskstore"
	"goa.design/a2a/types"
)

type completingExecutor struct{}

func (completingExecutor) Execute(ctx context.Context, reqCtx executor.RequestContext, sink executor.Sink) error {
	return sink.Emit(ctx, reqCtx.TaskID, types.NewTaskStatusEvent(&types.TaskStatusUpdate{
		TaskID: reqCtx.TaskID,
		Status: types.TaskStatus{State: types.TaskStateCompleted},
		Final:  true,
	}))
}

func (completingExecutor) Cancel(context.Context, string) error { return nil }

func newTestService(t *testing.T) *Service {
	t.Helper()
	bus := eventbus.NewBus(16, 0)
	store := taskstore.NewMemory()
	tracker := eventbus.NewTracker()
	queues := queuemanager.New(8, tracker)
	proc := eventbus.NewProcessor(bus, store, queues, tracker)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go proc.Run(ctx)

	h := handler.New(bus, store, queues, pushconfig.NewMemory(func() string { return "cfg-1" }), completingExecutor{})
	return NewService(h)
}

func TestServiceSendMessage(t *testing.T) {
	svc := newTestService(t)
	task, err := svc.SendMessage(context.Background(), &SendMessageRequest{
		Message: &types.Message{MessageID: "m1", Role: types.RoleUser, TaskID: "t1",
			Parts: []*types.Part{{Type: "text", Text: "hi"}}},
	})
	require.NoError(t, err)
	require.Equal(t, types.TaskStateCompleted, task.Status.State)
}

func TestServiceGetTaskMapsNotFoundToGRPCCode(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.GetTask(context.Background(), &GetTaskRequest{TaskID: "missing"})
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.NotFound, st.Code())
}

func TestServiceCancelNonCancelableMapsToFailedPrecondition(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.SendMessage(context.Background(), &SendMessageRequest{
		Message: &types.Message{MessageID: "m1", Role: types.RoleUser, TaskID: "t2",
			Parts: []*types.Part{{Type: "text", Text: "hi"}}},
	})
	require.NoError(t, err)

	_, err = svc.CancelTask(context.Background(), &CancelTaskRequest{TaskID: "t2"})
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.FailedPrecondition, st.Code())
}

type fakeStream struct {
	ctx  context.Context
	sent []any
}

func (f *fakeStream) Context() context.Context { return f.ctx }
func (f *fakeStream) SendMsg(m any) error {
	f.sent = append(f.sent, m)
	return nil
}

func TestServiceSubscribeToTaskStreamsSnapshotAndEvents(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.SendMessage(context.Background(), &SendMessageRequest{
		Message: &types.Message{MessageID: "m1", Role: types.RoleUser, TaskID: "t3",
			Parts: []*types.Part{{Type: "text", Text: "hi"}}},
	})
	require.NoError(t, err)

	stream := &fakeStream{ctx: context.Background()}
	err = svc.SubscribeToTask(&SubscribeRequest{TaskID: "t3"}, stream)
	require.NoError(t, err)
	require.NotEmpty(t, stream.sent)

	first, ok := stream.sent[0].(*types.Event)
	require.True(t, ok)
	require.Equal(t, types.EventKindTaskSnapshot, first.Kind)
}

func TestMapErrorDefaultsToInternal(t *testing.T) {
	err := mapError(errs.New(errs.KindInvalidAgentResponse, "bad response"))
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.Internal, st.Code())
}
