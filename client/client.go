// Package client's Client type is the transport-agnostic facade of
// spec.md §4.9: it resolves and caches the agent card, decides blocking vs.
// streaming dispatch, and folds streamed events into a per-stream local
// Task mirror so every delivered event carries the current, fully-folded
// view rather than a partial one.
package client

import (
	"context"
	"sync"
	"sync/atomic"

	"goa.design/a2a/errs"
	"goa.design/a2a/taskmanager"
	"goa.design/a2a/taskstore"
	"goa.design/a2a/types"
)

// Consumer receives every event delivered on a stream, along with the
// locally-folded Task view current as of that event (spec.md §4.9: "every
// event delivered to a consumer carries the current, fully-folded Task
// view"). task is nil for Message events that are not yet associated with
// any task.
type Consumer func(ctx context.Context, task *types.Task, event types.Event)

// StreamErrorHandler is invoked when a streaming call ends with an error
// other than context cancellation (spec.md §4.9 "route errors to a
// streaming error handler").
type StreamErrorHandler func(err error)

// Option configures a Client.
type Option func(*Client)

// WithStreaming sets clientConfig.streaming (spec.md §4.9): when true and
// the agent card advertises streaming capability, SendMessage prefers the
// streaming transport internally to populate its consumer callbacks, still
// returning only the terminal Task.
func WithStreaming(enabled bool) Option {
	return func(c *Client) { c.streamingPreferred = enabled }
}

// WithConsumer registers a default Consumer invoked for every streaming
// call that does not supply a per-call override.
func WithConsumer(fn Consumer) Option {
	return func(c *Client) { c.consumers = append(c.consumers, fn) }
}

// WithErrorHandler registers the default StreamErrorHandler.
func WithErrorHandler(fn StreamErrorHandler) Option {
	return func(c *Client) { c.errHandler = fn }
}

// Client is the transport-agnostic A2A client facade (component C12).
type Client struct {
	caller Caller

	streamingPreferred bool
	consumers          []Consumer
	errHandler         StreamErrorHandler

	cardOnce sync.Once
	cardErr  error
	card     atomic.Pointer[types.AgentCard]

	extCardOnce sync.Once
	extCardErr  error
	extCard     atomic.Pointer[types.AgentCard]
}

// New constructs a Client dispatching RPCs through caller.
func New(caller Caller, opts ...Option) *Client {
	c := &Client{caller: caller}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AgentCard resolves and caches the public agent card, fetching it at most
// once for the lifetime of the Client (spec.md §4.9 "resolve the agent card
// once and cache it").
func (c *Client) AgentCard(ctx context.Context) (*types.AgentCard, error) {
	c.cardOnce.Do(func() {
		card, err := c.caller.GetAgentCard(ctx)
		if err != nil {
			c.cardErr = err
			return
		}
		c.card.Store(card)
	})
	if c.cardErr != nil {
		return nil, c.cardErr
	}
	return c.card.Load(), nil
}

// GetExtendedAgentCard resolves and caches the authenticated extended card
// on first call, upgrading from the cached public card (spec.md §4.9 "on
// first authenticated call, optionally upgrade to an authenticated extended
// card").
func (c *Client) GetExtendedAgentCard(ctx context.Context) (*types.AgentCard, error) {
	c.extCardOnce.Do(func() {
		card, err := c.caller.GetExtendedAgentCard(ctx)
		if err != nil {
			c.extCardErr = err
			return
		}
		c.extCard.Store(card)
	})
	if c.extCardErr != nil {
		return nil, c.extCardErr
	}
	return c.extCard.Load(), nil
}

// serverStreams reports whether the resolved agent card advertises
// streaming capability. A card resolution failure is treated as
// non-streaming, matching the fallback behavior spec.md §4.9 describes for
// SendMessage.
func (c *Client) serverStreams(ctx context.Context) bool {
	card, err := c.AgentCard(ctx)
	return err == nil && card != nil && card.Capabilities.Streaming
}

// SendMessage sends msg and blocks for the task's terminal state. If
// clientConfig.streaming is enabled and the server supports streaming, the
// call is driven over the streaming transport internally (feeding
// consumers with every intermediate event and the running folded Task) but
// still returns only the terminal snapshot — mid-task artifact events are
// never surfaced to a plain SendMessage caller by design (spec.md §4.9 Open
// Question: "this spec says no — blocking returns only the terminal").
// Otherwise it falls back silently to the blocking RPC.
func (c *Client) SendMessage(ctx context.Context, msg *types.Message, consumers ...Consumer) (*types.Task, error) {
	if c.streamingPreferred && c.serverStreams(ctx) {
		return c.sendMessageViaStream(ctx, msg, consumers...)
	}
	return c.caller.SendMessage(ctx, msg)
}

func (c *Client) sendMessageViaStream(ctx context.Context, msg *types.Message, consumers ...Consumer) (*types.Task, error) {
	mirror := newMirror()
	var final *types.Task
	err := c.caller.SendMessageStream(ctx, msg, func(ev types.Event) error {
		task := mirror.apply(ev)
		final = task
		c.dispatch(ctx, task, ev, consumers)
		return nil
	})
	if err != nil {
		c.reportError(err)
		if final != nil {
			return final, nil
		}
		return nil, err
	}
	return final, nil
}

// SendMessageStream always drives the streaming transport explicitly,
// regardless of clientConfig.streaming, delivering every event to consumers
// (or the Client's default consumers) as it arrives. It returns an error if
// the server does not advertise streaming capability.
func (c *Client) SendMessageStream(ctx context.Context, msg *types.Message, consumers ...Consumer) error {
	if !c.serverStreams(ctx) {
		return errs.New(errs.KindUnsupportedOperation, "server does not support streaming")
	}
	mirror := newMirror()
	err := c.caller.SendMessageStream(ctx, msg, func(ev types.Event) error {
		task := mirror.apply(ev)
		c.dispatch(ctx, task, ev, consumers)
		return nil
	})
	if err != nil {
		c.reportError(err)
	}
	return err
}

// Resubscribe rejoins the streaming event feed of taskID without replay
// (spec.md §4.9, §6). It requires both sides support streaming; unlike
// SendMessage, Resubscribe raises an error rather than silently degrading
// (spec.md §4.9: "if streaming is requested but the server does not
// support it, resubscribe raises an error").
func (c *Client) Resubscribe(ctx context.Context, taskID string, consumers ...Consumer) error {
	if !c.serverStreams(ctx) {
		return errs.New(errs.KindUnsupportedOperation, "server does not support streaming; cannot resubscribe")
	}
	mirror := newMirror()
	if task, err := c.caller.GetTask(ctx, taskID, 0); err == nil {
		mirror.seed(task)
	}
	err := c.caller.Resubscribe(ctx, taskID, func(ev types.Event) error {
		task := mirror.apply(ev)
		c.dispatch(ctx, task, ev, consumers)
		return nil
	})
	if err != nil {
		c.reportError(err)
	}
	return err
}

// GetTask implements the getTask method (spec.md §6).
func (c *Client) GetTask(ctx context.Context, taskID string, historyLength int) (*types.Task, error) {
	return c.caller.GetTask(ctx, taskID, historyLength)
}

// ListTasks implements the listTasks method (spec.md §6).
func (c *Client) ListTasks(ctx context.Context, filter taskstore.ListFilter) (taskstore.Page, error) {
	return c.caller.ListTasks(ctx, filter)
}

// CancelTask implements the cancelTask method (spec.md §6).
func (c *Client) CancelTask(ctx context.Context, taskID string) (*types.Task, error) {
	return c.caller.CancelTask(ctx, taskID)
}

// CreatePushNotificationConfig implements createTaskPushNotificationConfig (spec.md §6).
func (c *Client) CreatePushNotificationConfig(ctx context.Context, taskID string, cfg *types.PushNotificationConfig) (*types.PushNotificationConfig, error) {
	return c.caller.CreatePushConfig(ctx, taskID, cfg)
}

// GetPushNotificationConfig implements getTaskPushNotificationConfig (spec.md §6).
func (c *Client) GetPushNotificationConfig(ctx context.Context, taskID, configID string) (*types.PushNotificationConfig, error) {
	return c.caller.GetPushConfig(ctx, taskID, configID)
}

// ListPushNotificationConfig implements listTaskPushNotificationConfig (spec.md §6).
func (c *Client) ListPushNotificationConfig(ctx context.Context, taskID string) ([]*types.PushNotificationConfig, error) {
	return c.caller.ListPushConfigs(ctx, taskID)
}

// DeletePushNotificationConfig implements deleteTaskPushNotificationConfig (spec.md §6).
func (c *Client) DeletePushNotificationConfig(ctx context.Context, taskID, configID string) error {
	return c.caller.DeletePushConfig(ctx, taskID, configID)
}

func (c *Client) dispatch(ctx context.Context, task *types.Task, ev types.Event, override []Consumer) {
	targets := override
	if len(targets) == 0 {
		targets = c.consumers
	}
	for _, fn := range targets {
		fn(ctx, task, ev)
	}
}

func (c *Client) reportError(err error) {
	if c.errHandler != nil {
		c.errHandler(err)
	}
}

// mirror is a client-side, per-stream instance of the event-folding rules
// of spec.md §4.2, kept separate from any other active stream's mirror so
// mutable Task state is never shared across streams (spec.md §9).
type mirror struct {
	task *types.Task
}

func newMirror() *mirror { return &mirror{} }

func (m *mirror) seed(task *types.Task) { m.task = task }

func (m *mirror) apply(ev types.Event) *types.Task {
	m.task = taskmanager.Fold(m.task, ev, nil)
	return m.task
}
