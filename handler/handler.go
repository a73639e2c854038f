// Package handler implements component C9 (spec.md §4.5): RequestHandler,
// the transport-agnostic orchestration layer every transport adapter (C11)
// calls into. It wires together the AgentExecutor (C8), the MainEventBus
// (C6), the QueueManager (C7), TaskStore (C1), and PushNotificationConfigStore
// (C2) behind a single surface.
//
// Grounded on the teacher's Server (runtime/a2a/server.go): the same
// TasksSend/TasksSendSubscribe/TasksGet/TasksCancel method set and
// ServerOption functional-options pattern, generalized from a single
// request-scoped agentruntime.Client.Run call into the full
// queue/bus-backed pipeline with independent subscriber fan-out.
package handler

import (
	"context"
	"sync"

	"goa.design/a2a/errs"
	"goa.design/a2a/eventbus"
	"goa.design/a2a/executor"
	"goa.design/a2a/pushconfig"
	"goa.design/a2a/queue"
	"goa.design/a2a/queuemanager"
	"goa.design/a2a/skillvalidate"
	"goa.design/a2a/taskstore"
	"goa.design/a2a/telemetry"
	"goa.design/a2a/types"
)

// Option configures a Handler.
type Option func(*Handler)

// WithLogger overrides the default clue-backed logger.
func WithLogger(l telemetry.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithHistoryLengthCap bounds how much History a GetTask/ListTasks response
// includes by default (spec.md §4.1). 0 means unbounded.
func WithHistoryLengthCap(n int) Option {
	return func(h *Handler) { h.historyCap = n }
}

// WithSkillValidator enables data-part validation against declared skill
// payload schemas before admission (spec.md §4.5 onMessageSend).
func WithSkillValidator(v *skillvalidate.Validator) Option {
	return func(h *Handler) { h.validator = v }
}

// Handler is the transport-agnostic A2A request orchestrator.
type Handler struct {
	bus      *eventbus.Bus
	store    taskstore.Store
	queues   *queuemanager.Manager
	configs  pushconfig.Store
	executor  executor.AgentExecutor
	logger    telemetry.Logger
	validator *skillvalidate.Validator

	historyCap int

	mu         sync.Mutex
	inFlight   map[string]context.CancelFunc
}

// New constructs a Handler. bus and queues must be the same instances
// driving the eventbus.Processor that owns task state, and executor is the
// application's agent implementation.
func New(bus *eventbus.Bus, store taskstore.Store, queues *queuemanager.Manager, configs pushconfig.Store, exec executor.AgentExecutor, opts ...Option) *Handler {
	h := &Handler{
		bus:      bus,
		store:    store,
		queues:   queues,
		configs:  configs,
		executor: exec,
		logger:   telemetry.NewClueLogger(),
		inFlight: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// sinkFromBus adapts the Handler's Bus as an executor.Sink.
type sinkFromBus struct{ bus *eventbus.Bus }

func (s sinkFromBus) Emit(ctx context.Context, taskID string, event types.Event) error {
	return s.bus.Submit(ctx, taskID, event)
}

// startExecution registers a cancelable execution for taskID and launches
// the AgentExecutor in its own goroutine, feeding events onto the Bus. The
// caller's context is not used for the execution's lifetime: execution
// continues independent of the originating RPC so streaming and
// non-streaming callers share identical semantics (spec.md §4.5).
func (h *Handler) startExecution(reqCtx executor.RequestContext) {
	execCtx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	h.inFlight[reqCtx.TaskID] = cancel
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.inFlight, reqCtx.TaskID)
			h.mu.Unlock()
			cancel()
		}()
		if err := h.executor.Execute(execCtx, reqCtx, sinkFromBus{bus: h.bus}); err != nil {
			h.logger.Error(execCtx, "agent executor returned an error", err, "taskId", reqCtx.TaskID)
			_ = h.bus.Submit(context.Background(), reqCtx.TaskID, types.NewTaskStatusEvent(&types.TaskStatusUpdate{
				TaskID: reqCtx.TaskID,
				Status: types.TaskStatus{
					State:   types.TaskStateFailed,
					Message: errorMessage(reqCtx.TaskID, err),
				},
				Final: true,
			}))
		}
	}()
}

func errorMessage(taskID string, err error) *types.Message {
	return &types.Message{
		Role:   types.RoleAgent,
		TaskID: taskID,
		Parts:  []*types.Part{{Type: "text", Text: err.Error()}},
	}
}

// SendMessage implements message/send (spec.md §4.5 onMessageSend): it
// starts or resumes execution for the message's task and blocks until the
// task reaches a final state or a state in which no further automatic
// progress will occur (input-required, auth-required).
func (h *Handler) SendMessage(ctx context.Context, msg *types.Message) (*types.Task, error) {
	taskID := msg.TaskID
	if taskID == "" {
		return nil, errs.New(errs.KindInvalidParams, "message.taskId is required")
	}
	if err := h.validator.ValidateMessage(msg); err != nil {
		return nil, err
	}

	prior, _ := h.store.Get(ctx, taskID)
	mq := h.queues.CreateOrTap(taskID)
	child := mq.Tap()
	defer child.Close()

	h.startExecution(executor.RequestContext{TaskID: taskID, ContextID: msg.ContextID, Message: msg, Task: prior})

	if err := h.bus.Submit(ctx, taskID, types.NewMessageEvent(msg)); err != nil {
		return nil, err
	}

	for {
		item, ok, err := child.Dequeue(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if item.Event.IsFinal() || isAwaitingInput(item.Event) {
			return h.store.Get(ctx, taskID)
		}
	}
	return h.store.Get(ctx, taskID)
}

func isAwaitingInput(e types.Event) bool {
	if e.Kind != types.EventKindTaskStatus || e.Status == nil {
		return false
	}
	switch e.Status.Status.State {
	case types.TaskStateInputRequired, types.TaskStateAuthRequired:
		return true
	default:
		return false
	}
}

// SendMessageStream implements message/stream (spec.md §4.5
// onMessageSendStream): it starts or resumes execution and calls deliver
// for every event until the stream ends, context is canceled, or a final
// event is delivered.
func (h *Handler) SendMessageStream(ctx context.Context, msg *types.Message, deliver func(types.Event) error) error {
	taskID := msg.TaskID
	if taskID == "" {
		return errs.New(errs.KindInvalidParams, "message.taskId is required")
	}
	if err := h.validator.ValidateMessage(msg); err != nil {
		return err
	}

	prior, _ := h.store.Get(ctx, taskID)
	mq := h.queues.CreateOrTap(taskID)
	child := mq.Tap()
	defer child.Close()

	h.startExecution(executor.RequestContext{TaskID: taskID, ContextID: msg.ContextID, Message: msg, Task: prior})

	if err := h.bus.Submit(ctx, taskID, types.NewMessageEvent(msg)); err != nil {
		return err
	}

	return h.pump(ctx, child, deliver)
}

// SubscribeToTask implements tasks/resubscribe: attach a new ChildQueue to
// an already-running task without starting a new execution (spec.md §4.5
// onSubscribeToTask).
func (h *Handler) SubscribeToTask(ctx context.Context, taskID string, deliver func(types.Event) error) error {
	task, err := h.store.Get(ctx, taskID)
	if err != nil {
		return err
	}

	mq := h.queues.CreateOrTap(taskID)
	child := mq.Tap()
	defer child.Close()

	if err := deliver(types.NewTaskSnapshotEvent(task)); err != nil {
		return err
	}
	if task.Status.State.IsFinal() {
		return nil
	}
	return h.pump(ctx, child, deliver)
}

func (h *Handler) pump(ctx context.Context, child *queue.ChildQueue, deliver func(types.Event) error) error {
	for {
		item, ok, err := child.Dequeue(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := deliver(item.Event); err != nil {
			return err
		}
		if item.Event.IsFinal() {
			return nil
		}
	}
}

// CancelTask implements tasks/cancel (spec.md §4.5 onCancelTask). Canceling
// a task already in a final state is idempotent and returns the task
// unchanged (spec.md §8); every non-final state is cancelable, including
// input-required/auth-required tasks whose AgentExecutor.Execute call has
// already returned and left no tracked in-flight context (spec.md §6:
// TaskNotCancelable is reserved for terminal states only).
func (h *Handler) CancelTask(ctx context.Context, taskID string) (*types.Task, error) {
	task, err := h.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.State.IsFinal() {
		return task, nil
	}

	h.mu.Lock()
	cancel, ok := h.inFlight[taskID]
	h.mu.Unlock()
	if ok {
		cancel()
	}
	if err := h.executor.Cancel(ctx, taskID); err != nil {
		h.logger.Warn(ctx, "agent executor cancel returned an error", "taskId", taskID, "err", err)
	}

	if err := h.bus.Submit(ctx, taskID, types.NewTaskStatusEvent(&types.TaskStatusUpdate{
		TaskID: taskID,
		Status: types.TaskStatus{State: types.TaskStateCanceled},
		Final:  true,
	})); err != nil {
		return nil, err
	}
	return h.store.Get(ctx, taskID)
}

// GetTask implements tasks/get (spec.md §4.5 onGetTask).
func (h *Handler) GetTask(ctx context.Context, taskID string, historyLength int) (*types.Task, error) {
	task, err := h.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	limit := h.historyCap
	if historyLength > 0 {
		limit = historyLength
	}
	if limit > 0 && len(task.History) > limit {
		task.History = task.History[len(task.History)-limit:]
	}
	return task, nil
}

// ListTasks implements tasks/list (spec.md §4.5 onListTasks).
func (h *Handler) ListTasks(ctx context.Context, filter taskstore.ListFilter) (taskstore.Page, error) {
	return h.store.List(ctx, filter)
}

// CreatePushConfig implements tasks/pushNotificationConfig/set.
func (h *Handler) CreatePushConfig(ctx context.Context, taskID string, cfg *types.PushNotificationConfig) (*types.PushNotificationConfig, error) {
	if _, err := h.store.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return h.configs.Create(ctx, taskID, cfg)
}

// GetPushConfig implements tasks/pushNotificationConfig/get.
func (h *Handler) GetPushConfig(ctx context.Context, taskID, configID string) (*types.PushNotificationConfig, error) {
	return h.configs.Get(ctx, taskID, configID)
}

// ListPushConfigs implements tasks/pushNotificationConfig/list.
func (h *Handler) ListPushConfigs(ctx context.Context, taskID string) ([]*types.PushNotificationConfig, error) {
	return h.configs.List(ctx, taskID)
}

// DeletePushConfig implements tasks/pushNotificationConfig/delete.
func (h *Handler) DeletePushConfig(ctx context.Context, taskID, configID string) error {
	return h.configs.Delete(ctx, taskID, configID)
}
