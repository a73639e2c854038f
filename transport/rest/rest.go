// Package rest implements component C11's REST/JSON transport adapter
// (spec.md §6): the `/v1/...` path scheme, status-code mapping, and SSE
// streaming for `message:stream` and `tasks/{id}:subscribe`.
//
// Grounded on the teacher's server.go method set (TasksSend/TasksGet/...),
// generalized from a single JSON-RPC dispatch surface to per-method REST
// routes using the standard library's pattern-based ServeMux (method +
// path + {wildcard}), so no third-party router is required for this
// transport while still matching the pack's preference for stdlib net/http
// plus functional options over a web framework.
package rest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"goa.design/a2a/errs"
	"goa.design/a2a/handler"
	"goa.design/a2a/servercontext"
	"goa.design/a2a/taskstore"
	"goa.design/a2a/telemetry"
	"goa.design/a2a/types"
)

// CardProvider supplies the agent card for GET /v1/card and
// GET /v1/extended-card (spec.md §6, §4.9).
type CardProvider interface {
	// AgentCard returns the public agent card.
	AgentCard(ctx context.Context) (*types.AgentCard, error)
	// ExtendedAgentCard returns the authenticated extended card, or an
	// *errs.Error with KindExtendedCardNotConfigured if none is configured.
	ExtendedAgentCard(ctx context.Context) (*types.AgentCard, error)
}

// Server exposes handler.Handler over the REST/JSON transport of spec.md §6.
type Server struct {
	h      *handler.Handler
	cards  CardProvider
	logger telemetry.Logger
	mux    *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the default clue-backed logger.
func WithLogger(l telemetry.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New constructs a Server dispatching onto h, with card retrieval served by
// cards (may be nil if the deployment has no card endpoint).
func New(h *handler.Handler, cards CardProvider, opts ...Option) *Server {
	s := &Server{h: h, cards: cards, logger: telemetry.NewClueLogger()}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/card", s.getCard)
	mux.HandleFunc("GET /v1/extended-card", s.getExtendedCard)
	mux.HandleFunc("POST /v1/message:send", s.sendMessage)
	mux.HandleFunc("POST /v1/message:stream", s.sendMessageStream)
	mux.HandleFunc("GET /v1/tasks", s.listTasks)
	mux.HandleFunc("GET /v1/tasks/{id}", s.getTask)
	mux.HandleFunc("POST /v1/tasks/{id}:cancel", s.cancelTask)
	mux.HandleFunc("POST /v1/tasks/{id}:subscribe", s.subscribeTask)
	mux.HandleFunc("POST /v1/tasks/{id}/pushNotificationConfigs", s.createPushConfig)
	mux.HandleFunc("GET /v1/tasks/{id}/pushNotificationConfigs", s.listPushConfigs)
	mux.HandleFunc("GET /v1/tasks/{id}/pushNotificationConfigs/{configId}", s.getPushConfig)
	mux.HandleFunc("DELETE /v1/tasks/{id}/pushNotificationConfigs/{configId}", s.deletePushConfig)
	s.mux = mux
}

func withCallContext(r *http.Request) context.Context {
	return servercontext.WithCallContext(r.Context(), &servercontext.CallContext{
		Extensions:      servercontext.ParseExtensionsHeader(r.Header.Get(servercontext.HeaderExtensions)),
		ProtocolVersion: r.Header.Get(servercontext.HeaderProtocolVersion),
	})
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindInvalidRequest, errs.KindInvalidParams, errs.KindJSONParse:
		return http.StatusBadRequest
	case errs.KindContentTypeNotSupported:
		return http.StatusUnsupportedMediaType
	case errs.KindTaskNotFound, errs.KindMethodNotFound:
		return http.StatusNotFound
	case errs.KindTaskNotCancelable:
		return http.StatusConflict
	case errs.KindVersionNotSupported, errs.KindUnsupportedOperation, errs.KindPushNotificationNotSupported,
		errs.KindExtendedCardNotConfigured, errs.KindExtensionSupportRequired:
		return http.StatusNotImplemented
	case errs.KindAuthentication:
		return http.StatusUnauthorized
	case errs.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to the status-code table of spec.md §6.
func writeError(w http.ResponseWriter, err error) {
	var e *errs.Error
	status := http.StatusInternalServerError
	if errors.As(err, &e) {
		status = statusFor(e.Kind)
	} else {
		e = errs.Wrap(errs.KindInternal, err, "%s", err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Kind    errs.Kind `json:"kind"`
		Message string    `json:"message"`
		TaskID  string    `json:"taskId,omitempty"`
	}{Kind: e.Kind, Message: e.Message, TaskID: e.TaskID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) getCard(w http.ResponseWriter, r *http.Request) {
	if s.cards == nil {
		writeError(w, errs.New(errs.KindUnsupportedOperation, "no agent card configured"))
		return
	}
	card, err := s.cards.AgentCard(withCallContext(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) getExtendedCard(w http.ResponseWriter, r *http.Request) {
	if s.cards == nil {
		writeError(w, errs.New(errs.KindUnsupportedOperation, "no agent card configured"))
		return
	}
	card, err := s.cards.ExtendedAgentCard(withCallContext(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && ct != "application/json" {
		writeError(w, errs.New(errs.KindContentTypeNotSupported, "unsupported content type %q", ct))
		return
	}
	var body struct {
		Message *types.Message `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.Wrap(errs.KindJSONParse, err, "invalid request body"))
		return
	}
	task, err := s.h.SendMessage(withCallContext(r), body.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func setupSSE(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

func writeSSEFrame(bw *bufio.Writer, flusher http.Flusher, ev types.Event) error {
	body, err := json.Marshal(ev)
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

func (s *Server) sendMessageStream(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message *types.Message `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.Wrap(errs.KindJSONParse, err, "invalid request body"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errs.New(errs.KindUnsupportedOperation, "streaming unsupported by this ResponseWriter"))
		return
	}
	setupSSE(w)
	bw := bufio.NewWriter(w)
	err := s.h.SendMessageStream(withCallContext(r), body.Message, func(ev types.Event) error {
		return writeSSEFrame(bw, flusher, ev)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		_ = writeSSEFrame(bw, flusher, types.NewInternalErrorEvent("", err.Error()))
	}
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := taskstore.ListFilter{
		ContextID:        q.Get("contextId"),
		State:            types.TaskState(q.Get("status")),
		PageToken:        q.Get("pageToken"),
		IncludeArtifacts: q.Get("includeArtifacts") == "true",
	}
	if v := q.Get("pageSize"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.PageSize = n
		}
	}
	if v := q.Get("historyLength"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.HistoryLengthCap = n
		}
	}
	page, err := s.h.ListTasks(withCallContext(r), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	historyLength := 0
	if v := r.URL.Query().Get("historyLength"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			historyLength = n
		}
	}
	task, err := s.h.GetTask(withCallContext(r), id, historyLength)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.h.CancelTask(withCallContext(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) subscribeTask(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errs.New(errs.KindUnsupportedOperation, "streaming unsupported by this ResponseWriter"))
		return
	}
	id := r.PathValue("id")
	setupSSE(w)
	bw := bufio.NewWriter(w)
	err := s.h.SubscribeToTask(withCallContext(r), id, func(ev types.Event) error {
		return writeSSEFrame(bw, flusher, ev)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		_ = writeSSEFrame(bw, flusher, types.NewInternalErrorEvent(id, err.Error()))
	}
}

func (s *Server) createPushConfig(w http.ResponseWriter, r *http.Request) {
	var cfg types.PushNotificationConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, errs.Wrap(errs.KindJSONParse, err, "invalid request body"))
		return
	}
	created, err := s.h.CreatePushConfig(withCallContext(r), r.PathValue("id"), &cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getPushConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.h.GetPushConfig(withCallContext(r), r.PathValue("id"), r.PathValue("configId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) listPushConfigs(w http.ResponseWriter, r *http.Request) {
	cfgs, err := s.h.ListPushConfigs(withCallContext(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfgs)
}

func (s *Server) deletePushConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.h.DeletePushConfig(withCallContext(r), r.PathValue("id"), r.PathValue("configId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
