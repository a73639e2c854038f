package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/a2a/taskstore"
	"goa.design/a2a/types"
)

// fakeCaller is a minimal in-memory Caller used to test Client's dispatch
// logic without any real transport.
type fakeCaller struct {
	card           *types.AgentCard
	extCard        *types.AgentCard
	extCardErr     error
	task           *types.Task
	streamEvents   []types.Event
	streamErr      error
	cardCalls      int
	sentMessages   []*types.Message
}

func (f *fakeCaller) SendMessage(_ context.Context, msg *types.Message) (*types.Task, error) {
	f.sentMessages = append(f.sentMessages, msg)
	return f.task, nil
}

func (f *fakeCaller) SendMessageStream(_ context.Context, msg *types.Message, onEvent func(types.Event) error) error {
	f.sentMessages = append(f.sentMessages, msg)
	for _, ev := range f.streamEvents {
		if err := onEvent(ev); err != nil {
			return err
		}
	}
	return f.streamErr
}

func (f *fakeCaller) GetTask(_ context.Context, _ string, _ int) (*types.Task, error) {
	return f.task, nil
}

func (f *fakeCaller) ListTasks(_ context.Context, _ taskstore.ListFilter) (taskstore.Page, error) {
	return taskstore.Page{}, nil
}

func (f *fakeCaller) CancelTask(_ context.Context, _ string) (*types.Task, error) { return f.task, nil }

func (f *fakeCaller) Resubscribe(_ context.Context, _ string, onEvent func(types.Event) error) error {
	for _, ev := range f.streamEvents {
		if err := onEvent(ev); err != nil {
			return err
		}
	}
	return f.streamErr
}

func (f *fakeCaller) CreatePushConfig(_ context.Context, _ string, cfg *types.PushNotificationConfig) (*types.PushNotificationConfig, error) {
	return cfg, nil
}
func (f *fakeCaller) GetPushConfig(_ context.Context, _, _ string) (*types.PushNotificationConfig, error) {
	return nil, nil
}
func (f *fakeCaller) ListPushConfigs(_ context.Context, _ string) ([]*types.PushNotificationConfig, error) {
	return nil, nil
}
func (f *fakeCaller) DeletePushConfig(_ context.Context, _, _ string) error { return nil }

func (f *fakeCaller) GetAgentCard(_ context.Context) (*types.AgentCard, error) {
	f.cardCalls++
	return f.card, nil
}

func (f *fakeCaller) GetExtendedAgentCard(_ context.Context) (*types.AgentCard, error) {
	return f.extCard, f.extCardErr
}

var _ Caller = (*fakeCaller)(nil)

func TestSendMessageFallsBackToBlockingWithoutStreamingConfig(t *testing.T) {
	fc := &fakeCaller{
		card: &types.AgentCard{Capabilities: types.Capabilities{Streaming: true}},
		task: &types.Task{ID: "t1", Status: types.TaskStatus{State: types.TaskStateCompleted}},
	}
	c := New(fc)

	task, err := c.SendMessage(context.Background(), &types.Message{TaskID: "t1"})
	require.NoError(t, err)
	require.Equal(t, types.TaskStateCompleted, task.Status.State)
	require.Len(t, fc.sentMessages, 1)
}

func TestSendMessageStreamsWhenConfiguredAndSupported(t *testing.T) {
	fc := &fakeCaller{
		card: &types.AgentCard{Capabilities: types.Capabilities{Streaming: true}},
		streamEvents: []types.Event{
			types.NewTaskSnapshotEvent(&types.Task{ID: "t1", Status: types.TaskStatus{State: types.TaskStateSubmitted}}),
			types.NewTaskStatusEvent(&types.TaskStatusUpdate{TaskID: "t1", Status: types.TaskStatus{State: types.TaskStateWorking}}),
			types.NewTaskStatusEvent(&types.TaskStatusUpdate{TaskID: "t1", Status: types.TaskStatus{State: types.TaskStateCompleted}, Final: true}),
		},
	}
	var seen []types.TaskState
	c := New(fc, WithStreaming(true), WithConsumer(func(_ context.Context, task *types.Task, _ types.Event) {
		if task != nil {
			seen = append(seen, task.Status.State)
		}
	}))

	task, err := c.SendMessage(context.Background(), &types.Message{TaskID: "t1"})
	require.NoError(t, err)
	require.Equal(t, types.TaskStateCompleted, task.Status.State)
	require.Equal(t, []types.TaskState{
		types.TaskStateSubmitted, types.TaskStateWorking, types.TaskStateCompleted,
	}, seen)
}

func TestResubscribeFailsWhenServerDoesNotStream(t *testing.T) {
	fc := &fakeCaller{card: &types.AgentCard{Capabilities: types.Capabilities{Streaming: false}}}
	c := New(fc)

	err := c.Resubscribe(context.Background(), "t1")
	require.Error(t, err)
}

func TestAgentCardIsCachedAfterFirstCall(t *testing.T) {
	fc := &fakeCaller{card: &types.AgentCard{Name: "agent"}}
	c := New(fc)

	for i := 0; i < 3; i++ {
		card, err := c.AgentCard(context.Background())
		require.NoError(t, err)
		require.Equal(t, "agent", card.Name)
	}
	require.Equal(t, 1, fc.cardCalls)
}
