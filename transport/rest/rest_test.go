package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

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

type staticCards struct{ card *types.AgentCard }

func (c staticCards) AgentCard(context.Context) (*types.AgentCard, error) { return c.card, nil }
func (c staticCards) ExtendedAgentCard(context.Context) (*types.AgentCard, error) {
	return nil, errs.New(errs.KindExtendedCardNotConfigured, "no extended card configured")
}

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
	return New(h, staticCards{card: &types.AgentCard{Name: "test-agent", ProtocolVersion: "1"}})
}

func TestRESTSendMessage(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(map[string]any{"message": &types.Message{
		MessageID: "m1", Role: types.RoleUser, TaskID: "t1",
		Parts: []*types.Part{{Type: "text", Text: "hi"}},
	}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/message:send", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var task types.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	require.Equal(t, types.TaskStateCompleted, task.Status.State)
}

func TestRESTGetTaskNotFound(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/missing", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRESTGetCard(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/card", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var card types.AgentCard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &card))
	require.Equal(t, "test-agent", card.Name)
}

func TestRESTExtendedCardNotConfigured(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/extended-card", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestRESTPushConfigCRUD(t *testing.T) {
	srv := newTestServer(t)

	sendBody, _ := json.Marshal(map[string]any{"message": &types.Message{
		MessageID: "m1", Role: types.RoleUser, TaskID: "t1",
		Parts: []*types.Part{{Type: "text", Text: "hi"}},
	}})
	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/message:send", bytes.NewReader(sendBody)))

	createBody, _ := json.Marshal(&types.PushNotificationConfig{URL: "https://example.com/hook"})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tasks/t1/pushNotificationConfigs", bytes.NewReader(createBody)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var cfg types.PushNotificationConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	require.NotEmpty(t, cfg.ID)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/tasks/t1/pushNotificationConfigs/"+cfg.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
