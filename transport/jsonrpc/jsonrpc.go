// Package jsonrpc implements component C11's JSON-RPC 2.0 transport adapter
// (spec.md §6): an HTTP handler that decodes a JSON-RPC envelope, dispatches
// to the handler.Handler (C9), and re-encodes the result. Streaming methods
// (message/stream, tasks/resubscribe) degrade the response to
// "text/event-stream" and push one JSON-RPC-shaped frame per event.
//
// Grounded on the teacher's httpclient.Client request/response envelope
// (runtime/a2a/httpclient/client.go), generalized from the client side to
// the server side, and on streambridge.Bridge for the SSE fan-out loop.
package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"goa.design/a2a/errs"
	"goa.design/a2a/handler"
	"goa.design/a2a/servercontext"
	"goa.design/a2a/taskstore"
	"goa.design/a2a/telemetry"
	"goa.design/a2a/types"
)

// Version is the JSON-RPC 2.0 envelope version string.
const Version = "2.0"

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      json.RawMessage `json:"id"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TaskID  string `json:"taskId,omitempty"`
}

// errorCodeOf maps an errs.Kind to a JSON-RPC error code, following the
// same bucket shape as the standard JSON-RPC reserved range (-32700..-32600)
// extended with an application range for A2A-specific kinds (spec.md §7).
func errorCodeOf(k errs.Kind) int {
	switch k {
	case errs.KindJSONParse:
		return -32700
	case errs.KindInvalidRequest:
		return -32600
	case errs.KindMethodNotFound:
		return -32601
	case errs.KindInvalidParams:
		return -32602
	case errs.KindTaskNotFound:
		return -32001
	case errs.KindTaskNotCancelable:
		return -32002
	case errs.KindPushNotificationNotSupported:
		return -32003
	case errs.KindUnsupportedOperation:
		return -32004
	case errs.KindExtensionSupportRequired:
		return -32005
	case errs.KindVersionNotSupported:
		return -32006
	case errs.KindAuthentication:
		return -32007
	case errs.KindAuthorization:
		return -32008
	default:
		return -32603
	}
}

func toRPCError(err error) *rpcError {
	var e *errs.Error
	if errors.As(err, &e) {
		return &rpcError{Code: errorCodeOf(e.Kind), Message: e.Message, TaskID: e.TaskID}
	}
	return &rpcError{Code: -32603, Message: err.Error()}
}

// Server exposes handler.Handler over the JSON-RPC 2.0 transport.
type Server struct {
	h      *handler.Handler
	logger telemetry.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the default clue-backed logger.
func WithLogger(l telemetry.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New constructs a Server dispatching onto h.
func New(h *handler.Handler, opts ...Option) *Server {
	s := &Server{h: h, logger: telemetry.NewClueLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP implements http.Handler. A single POST endpoint serves every
// JSON-RPC method (spec.md §6 "JSON-RPC 2.0 over HTTP POST").
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		writeJSON(w, http.StatusUnsupportedMediaType, response{JSONRPC: Version,
			Error: &rpcError{Code: -32015, Message: "unsupported content type " + ct}})
		return
	}

	var req request
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{JSONRPC: Version,
			Error: toRPCError(errs.Wrap(errs.KindJSONParse, err, "failed to decode request body"))})
		return
	}

	ctx := servercontext.WithCallContext(r.Context(), &servercontext.CallContext{
		Extensions:      servercontext.ParseExtensionsHeader(r.Header.Get(servercontext.HeaderExtensions)),
		ProtocolVersion: r.Header.Get(servercontext.HeaderProtocolVersion),
	})

	switch req.Method {
	case "message/send":
		s.handleSendMessage(ctx, w, req)
	case "message/stream":
		s.handleSendMessageStream(ctx, w, req)
	case "tasks/get":
		s.handleGetTask(ctx, w, req)
	case "tasks/list":
		s.handleListTasks(ctx, w, req)
	case "tasks/cancel":
		s.handleCancelTask(ctx, w, req)
	case "tasks/resubscribe", "tasks/subscribe":
		s.handleResubscribe(ctx, w, req)
	case "tasks/pushNotificationConfig/create":
		s.handleCreatePushConfig(ctx, w, req)
	case "tasks/pushNotificationConfig/get":
		s.handleGetPushConfig(ctx, w, req)
	case "tasks/pushNotificationConfig/list":
		s.handleListPushConfigs(ctx, w, req)
	case "tasks/pushNotificationConfig/delete":
		s.handleDeletePushConfig(ctx, w, req)
	default:
		writeJSON(w, http.StatusNotFound, response{JSONRPC: Version, ID: req.ID,
			Error: toRPCError(errs.New(errs.KindMethodNotFound, "unknown method %q", req.Method))})
	}
}

func writeJSON(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	writeJSON(w, http.StatusOK, response{JSONRPC: Version, ID: id, Result: result})
}

func writeErr(w http.ResponseWriter, id json.RawMessage, err error) {
	status := http.StatusInternalServerError
	var e *errs.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case errs.KindInvalidRequest, errs.KindInvalidParams, errs.KindJSONParse, errs.KindContentTypeNotSupported:
			status = http.StatusBadRequest
		case errs.KindTaskNotFound, errs.KindMethodNotFound:
			status = http.StatusNotFound
		case errs.KindTaskNotCancelable:
			status = http.StatusConflict
		case errs.KindVersionNotSupported, errs.KindUnsupportedOperation, errs.KindPushNotificationNotSupported:
			status = http.StatusNotImplemented
		case errs.KindAuthentication:
			status = http.StatusUnauthorized
		case errs.KindAuthorization:
			status = http.StatusForbidden
		}
	}
	writeJSON(w, status, response{JSONRPC: Version, ID: id, Error: toRPCError(err)})
}

type sendMessageParams struct {
	Message *types.Message `json:"message"`
}

func (s *Server) handleSendMessage(ctx context.Context, w http.ResponseWriter, req request) {
	var p sendMessageParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErr(w, req.ID, errs.Wrap(errs.KindJSONParse, err, "invalid message/send params"))
		return
	}
	task, err := s.h.SendMessage(ctx, p.Message)
	if err != nil {
		writeErr(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, task)
}

// sseEvent is the frame shape emitted for every streamed JSON-RPC event
// (spec.md §6: "channel closed on final status event or explicit cancel").
type sseEvent struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  types.Event `json:"result"`
}

func (s *Server) handleSendMessageStream(ctx context.Context, w http.ResponseWriter, req request) {
	var p sendMessageParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErr(w, req.ID, errs.Wrap(errs.KindJSONParse, err, "invalid message/stream params"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, req.ID, errs.New(errs.KindUnsupportedOperation, "streaming unsupported by this ResponseWriter"))
		return
	}
	setupSSE(w)
	bw := bufio.NewWriter(w)
	err := s.h.SendMessageStream(ctx, p.Message, func(ev types.Event) error {
		return writeSSEFrame(bw, flusher, req.ID, ev)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		_ = writeSSEFrame(bw, flusher, req.ID, types.NewInternalErrorEvent("", err.Error()))
	}
}

func (s *Server) handleResubscribe(ctx context.Context, w http.ResponseWriter, req request) {
	var p struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErr(w, req.ID, errs.Wrap(errs.KindJSONParse, err, "invalid tasks/resubscribe params"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, req.ID, errs.New(errs.KindUnsupportedOperation, "streaming unsupported by this ResponseWriter"))
		return
	}
	setupSSE(w)
	bw := bufio.NewWriter(w)
	err := s.h.SubscribeToTask(ctx, p.TaskID, func(ev types.Event) error {
		return writeSSEFrame(bw, flusher, req.ID, ev)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		_ = writeSSEFrame(bw, flusher, req.ID, types.NewInternalErrorEvent(p.TaskID, err.Error()))
	}
}

func setupSSE(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

// writeSSEFrame serializes a JSON-RPC-shaped event as a single SSE frame and
// flushes immediately, mirroring streambridge.Sink's one-event-per-write
// contract (spec.md §4.5 Stage B).
func writeSSEFrame(bw *bufio.Writer, flusher http.Flusher, id json.RawMessage, ev types.Event) error {
	body, err := json.Marshal(sseEvent{JSONRPC: Version, ID: id, Result: ev})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(bw, "data: %s\n\n", body); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (s *Server) handleGetTask(ctx context.Context, w http.ResponseWriter, req request) {
	var p struct {
		TaskID        string `json:"taskId"`
		HistoryLength int    `json:"historyLength"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErr(w, req.ID, errs.Wrap(errs.KindJSONParse, err, "invalid tasks/get params"))
		return
	}
	task, err := s.h.GetTask(ctx, p.TaskID, p.HistoryLength)
	if err != nil {
		writeErr(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, task)
}

func (s *Server) handleListTasks(ctx context.Context, w http.ResponseWriter, req request) {
	var p taskstore.ListFilter
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			writeErr(w, req.ID, errs.Wrap(errs.KindJSONParse, err, "invalid tasks/list params"))
			return
		}
	}
	page, err := s.h.ListTasks(ctx, p)
	if err != nil {
		writeErr(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, page)
}

func (s *Server) handleCancelTask(ctx context.Context, w http.ResponseWriter, req request) {
	var p struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErr(w, req.ID, errs.Wrap(errs.KindJSONParse, err, "invalid tasks/cancel params"))
		return
	}
	task, err := s.h.CancelTask(ctx, p.TaskID)
	if err != nil {
		writeErr(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, task)
}

func (s *Server) handleCreatePushConfig(ctx context.Context, w http.ResponseWriter, req request) {
	var p struct {
		TaskID string                         `json:"taskId"`
		Config *types.PushNotificationConfig `json:"config"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErr(w, req.ID, errs.Wrap(errs.KindJSONParse, err, "invalid pushNotificationConfig/create params"))
		return
	}
	cfg, err := s.h.CreatePushConfig(ctx, p.TaskID, p.Config)
	if err != nil {
		writeErr(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, cfg)
}

func (s *Server) handleGetPushConfig(ctx context.Context, w http.ResponseWriter, req request) {
	var p struct {
		TaskID   string `json:"taskId"`
		ConfigID string `json:"configId"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErr(w, req.ID, errs.Wrap(errs.KindJSONParse, err, "invalid pushNotificationConfig/get params"))
		return
	}
	cfg, err := s.h.GetPushConfig(ctx, p.TaskID, p.ConfigID)
	if err != nil {
		writeErr(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, cfg)
}

func (s *Server) handleListPushConfigs(ctx context.Context, w http.ResponseWriter, req request) {
	var p struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErr(w, req.ID, errs.Wrap(errs.KindJSONParse, err, "invalid pushNotificationConfig/list params"))
		return
	}
	cfgs, err := s.h.ListPushConfigs(ctx, p.TaskID)
	if err != nil {
		writeErr(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, cfgs)
}

func (s *Server) handleDeletePushConfig(ctx context.Context, w http.ResponseWriter, req request) {
	var p struct {
		TaskID   string `json:"taskId"`
		ConfigID string `json:"configId"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErr(w, req.ID, errs.Wrap(errs.KindJSONParse, err, "invalid pushNotificationConfig/delete params"))
		return
	}
	if err := s.h.DeletePushConfig(ctx, p.TaskID, p.ConfigID); err != nil {
		writeErr(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, struct{}{})
}
