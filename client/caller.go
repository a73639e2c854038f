// Package client implements component C12 (spec.md §4.9): a
// transport-agnostic facade consolidating blocking vs. streaming dispatch,
// agent-card caching, and consumer fan-out over any wire encoding that
// satisfies the Caller interface.
//
// Grounded on the teacher's httpclient.Client (runtime/a2a/httpclient/client.go):
// the same functional-options *http.Client wrapper, JSON-RPC envelope, and
// atomic request-ID counter, generalized from a single a2a.Caller method
// (SendTask) to the full logical surface of spec.md §6.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"goa.design/a2a/errs"
	"goa.design/a2a/taskstore"
	"goa.design/a2a/types"
)

// Caller is the transport-agnostic wire surface a concrete transport
// implementation (JSON-RPC, REST, gRPC) must provide for Client to consume.
// Streaming methods deliver each Event to onEvent as it arrives and return
// once the stream ends or ctx is canceled.
type Caller interface {
	SendMessage(ctx context.Context, msg *types.Message) (*types.Task, error)
	SendMessageStream(ctx context.Context, msg *types.Message, onEvent func(types.Event) error) error
	GetTask(ctx context.Context, taskID string, historyLength int) (*types.Task, error)
	ListTasks(ctx context.Context, filter taskstore.ListFilter) (taskstore.Page, error)
	CancelTask(ctx context.Context, taskID string) (*types.Task, error)
	Resubscribe(ctx context.Context, taskID string, onEvent func(types.Event) error) error
	CreatePushConfig(ctx context.Context, taskID string, cfg *types.PushNotificationConfig) (*types.PushNotificationConfig, error)
	GetPushConfig(ctx context.Context, taskID, configID string) (*types.PushNotificationConfig, error)
	ListPushConfigs(ctx context.Context, taskID string) ([]*types.PushNotificationConfig, error)
	DeletePushConfig(ctx context.Context, taskID, configID string) error
	GetAgentCard(ctx context.Context) (*types.AgentCard, error)
	GetExtendedAgentCard(ctx context.Context) (*types.AgentCard, error)
}

// JSONRPCCaller implements Caller over the JSON-RPC 2.0 HTTP transport of
// transport/jsonrpc. Grounded directly on the teacher's httpclient.Client.
type JSONRPCCaller struct {
	endpoint string
	cardURL  string
	http     *http.Client
	headers  http.Header
	id       uint64
}

// CallerOption configures a JSONRPCCaller.
type CallerOption func(*JSONRPCCaller)

// WithHTTPClient overrides the underlying *http.Client used for requests.
func WithHTTPClient(c *http.Client) CallerOption {
	return func(cl *JSONRPCCaller) { cl.http = c }
}

// WithHeader adds a static header to all outgoing requests.
func WithHeader(name, value string) CallerOption {
	return func(cl *JSONRPCCaller) {
		if cl.headers == nil {
			cl.headers = make(http.Header)
		}
		cl.headers.Add(name, value)
	}
}

// WithBearerToken configures the client to send an Authorization Bearer token.
func WithBearerToken(token string) CallerOption {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithCardURL overrides the agent-card discovery URL (default:
// endpoint's origin + "/v1/card").
func WithCardURL(url string) CallerOption {
	return func(cl *JSONRPCCaller) { cl.cardURL = url }
}

// NewJSONRPCCaller constructs a Caller that POSTs JSON-RPC envelopes to endpoint.
func NewJSONRPCCaller(endpoint string, opts ...CallerOption) *JSONRPCCaller {
	cl := &JSONRPCCaller{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		headers:  make(http.Header),
	}
	for _, opt := range opts {
		opt(cl)
	}
	if cl.cardURL == "" {
		cl.cardURL = endpoint
	}
	return cl
}

var _ Caller = (*JSONRPCCaller)(nil)

func (c *JSONRPCCaller) nextID() uint64 { return atomic.AddUint64(&c.id, 1) }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      uint64 `json:"id"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      uint64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TaskID  string `json:"taskId"`
}

func (e *rpcError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("a2a error %d: %s", e.Code, e.Message)
}

// asErr converts an rpcError into the *errs.Error taxonomy so callers can
// use errors.As uniformly regardless of transport (spec.md §7).
func (e *rpcError) asErr() *errs.Error {
	if e == nil {
		return nil
	}
	kind := errs.KindInternal
	switch e.Code {
	case -32700:
		kind = errs.KindJSONParse
	case -32600:
		kind = errs.KindInvalidRequest
	case -32601:
		kind = errs.KindMethodNotFound
	case -32602:
		kind = errs.KindInvalidParams
	case -32001:
		kind = errs.KindTaskNotFound
	case -32002:
		kind = errs.KindTaskNotCancelable
	case -32003:
		kind = errs.KindPushNotificationNotSupported
	case -32004:
		kind = errs.KindUnsupportedOperation
	case -32005:
		kind = errs.KindExtensionSupportRequired
	case -32006:
		kind = errs.KindVersionNotSupported
	case -32007:
		kind = errs.KindAuthentication
	case -32008:
		kind = errs.KindAuthorization
	}
	return (&errs.Error{Kind: kind, Message: e.Message}).WithTaskID(e.TaskID)
}

func (c *JSONRPCCaller) call(ctx context.Context, method string, params, result any) error {
	req := rpcRequest{JSONRPC: "2.0", Method: method, ID: c.nextID(), Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return errs.Wrap(errs.KindJSONParse, err, "failed to encode %s request", method)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, vs := range c.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return errs.Wrap(errs.KindJSONParse, err, "failed to decode %s response", method)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error.asErr()
	}
	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return errs.Wrap(errs.KindJSONParse, err, "failed to decode %s result", method)
		}
	}
	return nil
}

// SendMessage implements Caller.
func (c *JSONRPCCaller) SendMessage(ctx context.Context, msg *types.Message) (*types.Task, error) {
	var task types.Task
	if err := c.call(ctx, "message/send", map[string]any{"message": msg}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SendMessageStream implements Caller by consuming a server-sent-events
// stream frame by frame.
func (c *JSONRPCCaller) SendMessageStream(ctx context.Context, msg *types.Message, onEvent func(types.Event) error) error {
	return c.stream(ctx, "message/stream", map[string]any{"message": msg}, onEvent)
}

// Resubscribe implements Caller.
func (c *JSONRPCCaller) Resubscribe(ctx context.Context, taskID string, onEvent func(types.Event) error) error {
	return c.stream(ctx, "tasks/resubscribe", map[string]any{"taskId": taskID}, onEvent)
}

type sseFrame struct {
	Result types.Event `json:"result"`
	Error  *rpcError   `json:"error"`
}

func (c *JSONRPCCaller) stream(ctx context.Context, method string, params any, onEvent func(types.Event) error) error {
	req := rpcRequest{JSONRPC: "2.0", Method: method, ID: c.nextID(), Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return errs.Wrap(errs.KindJSONParse, err, "failed to encode %s request", method)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, vs := range c.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return scanSSE(resp.Body, func(data []byte) error {
		var frame sseFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return errs.Wrap(errs.KindJSONParse, err, "failed to decode SSE frame")
		}
		if frame.Error != nil {
			return frame.Error.asErr()
		}
		return onEvent(frame.Result)
	})
}

// GetTask implements Caller.
func (c *JSONRPCCaller) GetTask(ctx context.Context, taskID string, historyLength int) (*types.Task, error) {
	var task types.Task
	err := c.call(ctx, "tasks/get", map[string]any{"taskId": taskID, "historyLength": historyLength}, &task)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks implements Caller.
func (c *JSONRPCCaller) ListTasks(ctx context.Context, filter taskstore.ListFilter) (taskstore.Page, error) {
	var page taskstore.Page
	err := c.call(ctx, "tasks/list", filter, &page)
	return page, err
}

// CancelTask implements Caller.
func (c *JSONRPCCaller) CancelTask(ctx context.Context, taskID string) (*types.Task, error) {
	var task types.Task
	if err := c.call(ctx, "tasks/cancel", map[string]any{"taskId": taskID}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreatePushConfig implements Caller.
func (c *JSONRPCCaller) CreatePushConfig(ctx context.Context, taskID string, cfg *types.PushNotificationConfig) (*types.PushNotificationConfig, error) {
	var out types.PushNotificationConfig
	err := c.call(ctx, "tasks/pushNotificationConfig/create", map[string]any{"taskId": taskID, "config": cfg}, &out)
	return &out, err
}

// GetPushConfig implements Caller.
func (c *JSONRPCCaller) GetPushConfig(ctx context.Context, taskID, configID string) (*types.PushNotificationConfig, error) {
	var out types.PushNotificationConfig
	err := c.call(ctx, "tasks/pushNotificationConfig/get", map[string]any{"taskId": taskID, "configId": configID}, &out)
	return &out, err
}

// ListPushConfigs implements Caller.
func (c *JSONRPCCaller) ListPushConfigs(ctx context.Context, taskID string) ([]*types.PushNotificationConfig, error) {
	var out []*types.PushNotificationConfig
	err := c.call(ctx, "tasks/pushNotificationConfig/list", map[string]any{"taskId": taskID}, &out)
	return out, err
}

// DeletePushConfig implements Caller.
func (c *JSONRPCCaller) DeletePushConfig(ctx context.Context, taskID, configID string) error {
	return c.call(ctx, "tasks/pushNotificationConfig/delete", map[string]any{"taskId": taskID, "configId": configID}, nil)
}

// GetAgentCard implements Caller by fetching the REST card endpoint, since
// agent-card discovery is a plain GET regardless of which RPC transport a
// deployment otherwise uses (spec.md §6).
func (c *JSONRPCCaller) GetAgentCard(ctx context.Context) (*types.AgentCard, error) {
	return c.fetchCard(ctx, c.cardURL)
}

// GetExtendedAgentCard implements Caller.
func (c *JSONRPCCaller) GetExtendedAgentCard(ctx context.Context) (*types.AgentCard, error) {
	return c.fetchCard(ctx, c.cardURL+"/extended")
}

func (c *JSONRPCCaller) fetchCard(ctx context.Context, url string) (*types.AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return nil, errs.New(errs.KindInternal, "agent card fetch failed with status %d", resp.StatusCode)
	}
	var card types.AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, errs.Wrap(errs.KindJSONParse, err, "failed to decode agent card")
	}
	return &card, nil
}
