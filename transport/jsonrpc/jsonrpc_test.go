package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

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

func newTestServer(t *testing.T) *Server {
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
	return New(h)
}

func TestHandleSendMessage(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(request{
		JSONRPC: Version,
		Method:  "message/send",
		ID:      json.RawMessage(`1`),
		Params: mustMarshal(t, sendMessageParams{Message: &types.Message{
			MessageID: "m1",
			Role:      types.RoleUser,
			TaskID:    "t1",
			Parts:     []*types.Part{{Type: "text", Text: "hi"}},
		}}),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)

	var task types.Task
	require.NoError(t, json.Unmarshal(mustMarshalAny(t, resp.Result), &task))
	require.Equal(t, types.TaskStateCompleted, task.Status.State)
}

func TestHandleUnknownMethod(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(request{JSONRPC: Version, Method: "bogus/method", ID: json.RawMessage(`2`)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, -32601, resp.Error.Code)
}

func TestHandleGetTaskNotFound(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(request{
		JSONRPC: Version,
		Method:  "tasks/get",
		ID:      json.RawMessage(`3`),
		Params:  mustMarshal(t, map[string]string{"taskId": "missing"}),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func mustMarshalAny(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
