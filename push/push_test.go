package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/a2a/pushconfig"
	"goa.design/a2a/types"
)

func TestNotifyPostsJSONWithTokenHeader(t *testing.T) {
	var mu sync.Mutex
	var gotBody webhookPayload
	var gotToken, gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotToken = r.Header.Get("X-A2A-Notification-Token")
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := 0
	configs := pushconfig.NewMemory(func() string { n++; return "cfg" })
	_, err := configs.Create(context.Background(), "t1", &types.PushNotificationConfig{URL: srv.URL, Token: "secret"})
	require.NoError(t, err)

	sender := NewSender(configs)
	task := &types.Task{ID: "t1", Status: types.TaskStatus{State: types.TaskStateWorking}}
	event := types.NewTaskStatusEvent(&types.TaskStatusUpdate{TaskID: "t1", Status: task.Status})

	sender.Notify(context.Background(), task, event)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := gotBody.TaskID != ""
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "secret", gotToken)
	require.Equal(t, "application/json", gotContentType)
	require.Equal(t, "t1", gotBody.TaskID)
}

func TestNotifyNoopWhenNoConfigsRegistered(t *testing.T) {
	configs := pushconfig.NewMemory(func() string { return "cfg" })
	sender := NewSender(configs)
	task := &types.Task{ID: "t1"}
	// Must not panic or block when no webhook is registered.
	sender.Notify(context.Background(), task, types.NewMessageEvent(&types.Message{MessageID: "m1"}))
}
