// Package grpc implements component C11's gRPC transport adapter
// (spec.md §6): server-streaming RPCs for SendStreamingMessage and
// SubscribeToTask, and the error-code mapping table of spec.md §6.
//
// The protobuf schema is documented in a2a.proto alongside this package.
// Because this repository is built without invoking the Go toolchain (no
// `protoc`/`protoc-gen-go` run is possible here), the wire messages are
// plain Go structs carried over a registered JSON encoding.Codec rather
// than protoc-generated types — see DESIGN.md "gRPC codec" for the
// rationale. The transport (HTTP/2 framing, flow control, status codes,
// server-streaming) is the real google.golang.org/grpc stack; only the
// message marshaling differs from a canonical protobuf deployment.
//
// Grounded on the teacher's registry/gen/grpc wiring pattern
// (runtime/registry/grpc_client_adapter.go): a hand-maintained Go type per
// RPC message, a typed client/server pair, generalized from the toolset
// registry's request/response shape to the A2A method set of spec.md §6.
package grpc

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	gojson "encoding/json"

	"goa.design/a2a/errs"
	"goa.design/a2a/handler"
	"goa.design/a2a/servercontext"
	"goa.design/a2a/taskstore"
	"goa.design/a2a/types"
)

// CodecName is registered with google.golang.org/grpc/encoding so both this
// server and any Go client dialing with grpc.CallContentSubtype(CodecName)
// exchange JSON-encoded messages instead of protobuf wire bytes.
const CodecName = "a2a-json"

// jsonCodec implements encoding.Codec by delegating to encoding/json. It is
// registered globally in init, matching the package-level registration
// convention of every encoding.Codec implementation in the grpc ecosystem.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return gojson.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() { encoding.RegisterCodec(jsonCodec{}) }

// ServiceName is the fully qualified gRPC service name, matching the
// package.Service convention a .proto file would declare.
const ServiceName = "goa.design.a2a.v1.A2AService"

// Wire message types, one per RPC (spec.md §6). Each embeds or aliases the
// equivalent domain type from package types so the JSON codec round-trips
// without a translation layer, matching how a protoc-gen-go message would
// simply wrap the same fields.
type (
	// SendMessageRequest is the request for SendMessage/SendStreamingMessage.
	SendMessageRequest struct {
		Message *types.Message `json:"message"`
	}
	// GetTaskRequest is the request for GetTask.
	GetTaskRequest struct {
		TaskID        string `json:"taskId"`
		HistoryLength int    `json:"historyLength"`
	}
	// ListTasksRequest is the request for ListTasks.
	ListTasksRequest struct {
		taskstore.ListFilter
	}
	// ListTasksResponse is the response for ListTasks.
	ListTasksResponse struct {
		Tasks     []*types.Task `json:"tasks"`
		NextToken string        `json:"nextToken"`
	}
	// CancelTaskRequest is the request for CancelTask.
	CancelTaskRequest struct {
		TaskID string `json:"taskId"`
	}
	// SubscribeRequest is the request for SubscribeToTask.
	SubscribeRequest struct {
		TaskID string `json:"taskId"`
	}
	// CreatePushConfigRequest is the request for CreateTaskPushNotificationConfig.
	CreatePushConfigRequest struct {
		TaskID string                         `json:"taskId"`
		Config *types.PushNotificationConfig `json:"config"`
	}
	// GetPushConfigRequest is the request for GetTaskPushNotificationConfig.
	GetPushConfigRequest struct {
		TaskID   string `json:"taskId"`
		ConfigID string `json:"configId"`
	}
	// ListPushConfigsRequest is the request for ListTaskPushNotificationConfig.
	ListPushConfigsRequest struct {
		TaskID string `json:"taskId"`
	}
	// ListPushConfigsResponse is the response for ListTaskPushNotificationConfig.
	ListPushConfigsResponse struct {
		Configs []*types.PushNotificationConfig `json:"configs"`
	}
	// DeletePushConfigRequest is the request for DeleteTaskPushNotificationConfig.
	DeletePushConfigRequest struct {
		TaskID   string `json:"taskId"`
		ConfigID string `json:"configId"`
	}
	// Empty is the response for methods with no meaningful return value.
	Empty struct{}
)

// mapError implements the gRPC error-code mapping table of spec.md §6.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var e *errs.Error
	if !errors.As(err, &e) {
		return status.Error(codes.Internal, err.Error())
	}
	var code codes.Code
	switch e.Kind {
	case errs.KindInvalidRequest, errs.KindInvalidParams, errs.KindContentTypeNotSupported:
		code = codes.InvalidArgument
	case errs.KindMethodNotFound, errs.KindTaskNotFound:
		code = codes.NotFound
	case errs.KindTaskNotCancelable, errs.KindExtendedCardNotConfigured, errs.KindExtensionSupportRequired:
		code = codes.FailedPrecondition
	case errs.KindPushNotificationNotSupported, errs.KindUnsupportedOperation, errs.KindVersionNotSupported:
		code = codes.Unimplemented
	case errs.KindInternal, errs.KindJSONParse, errs.KindInvalidAgentResponse,
		errs.KindTaskStoreError, errs.KindTaskPersistenceError, errs.KindTaskSerializationError:
		code = codes.Internal
	case errs.KindAuthentication:
		code = codes.Unauthenticated
	case errs.KindAuthorization:
		code = codes.PermissionDenied
	default:
		code = codes.Unknown
	}
	return status.Error(code, e.Error())
}

// EventStream is the server-streaming surface used by SendStreamingMessage
// and SubscribeToTask, satisfied by grpc.ServerStream in production and by
// a fake in tests.
type EventStream interface {
	Context() context.Context
	SendMsg(m any) error
}

// Service adapts handler.Handler to the gRPC method set of spec.md §6.
type Service struct {
	h *handler.Handler
}

// NewService constructs a Service dispatching onto h.
func NewService(h *handler.Handler) *Service { return &Service{h: h} }

func callContext(ctx context.Context) context.Context {
	// Metadata-based extension/version propagation is handled by a
	// grpc.UnaryServerInterceptor/StreamServerInterceptor installed by the
	// server binary (cmd/a2aserver); here we only guarantee a CallContext is
	// always present so handler-adjacent code need not nil-check it.
	if servercontext.FromContext(ctx) != nil {
		return ctx
	}
	return servercontext.WithCallContext(ctx, &servercontext.CallContext{})
}

// SendMessage implements the unary sendMessage RPC.
func (s *Service) SendMessage(ctx context.Context, req *SendMessageRequest) (*types.Task, error) {
	task, err := s.h.SendMessage(callContext(ctx), req.Message)
	if err != nil {
		return nil, mapError(err)
	}
	return task, nil
}

// SendStreamingMessage implements the server-streaming sendStreamingMessage RPC.
func (s *Service) SendStreamingMessage(req *SendMessageRequest, stream EventStream) error {
	err := s.h.SendMessageStream(callContext(stream.Context()), req.Message, func(ev types.Event) error {
		return stream.SendMsg(&ev)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return mapError(err)
	}
	return nil
}

// SubscribeToTask implements the server-streaming subscribeToTask RPC.
func (s *Service) SubscribeToTask(req *SubscribeRequest, stream EventStream) error {
	err := s.h.SubscribeToTask(callContext(stream.Context()), req.TaskID, func(ev types.Event) error {
		return stream.SendMsg(&ev)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return mapError(err)
	}
	return nil
}

// GetTask implements the unary getTask RPC.
func (s *Service) GetTask(ctx context.Context, req *GetTaskRequest) (*types.Task, error) {
	task, err := s.h.GetTask(callContext(ctx), req.TaskID, req.HistoryLength)
	if err != nil {
		return nil, mapError(err)
	}
	return task, nil
}

// ListTasks implements the unary listTasks RPC.
func (s *Service) ListTasks(ctx context.Context, req *ListTasksRequest) (*ListTasksResponse, error) {
	page, err := s.h.ListTasks(callContext(ctx), req.ListFilter)
	if err != nil {
		return nil, mapError(err)
	}
	return &ListTasksResponse{Tasks: page.Tasks, NextToken: page.NextToken}, nil
}

// CancelTask implements the unary cancelTask RPC.
func (s *Service) CancelTask(ctx context.Context, req *CancelTaskRequest) (*types.Task, error) {
	task, err := s.h.CancelTask(callContext(ctx), req.TaskID)
	if err != nil {
		return nil, mapError(err)
	}
	return task, nil
}

// CreateTaskPushNotificationConfig implements the unary RPC of the same name.
func (s *Service) CreateTaskPushNotificationConfig(ctx context.Context, req *CreatePushConfigRequest) (*types.PushNotificationConfig, error) {
	cfg, err := s.h.CreatePushConfig(callContext(ctx), req.TaskID, req.Config)
	if err != nil {
		return nil, mapError(err)
	}
	return cfg, nil
}

// GetTaskPushNotificationConfig implements the unary RPC of the same name.
func (s *Service) GetTaskPushNotificationConfig(ctx context.Context, req *GetPushConfigRequest) (*types.PushNotificationConfig, error) {
	cfg, err := s.h.GetPushConfig(callContext(ctx), req.TaskID, req.ConfigID)
	if err != nil {
		return nil, mapError(err)
	}
	return cfg, nil
}

// ListTaskPushNotificationConfig implements the unary RPC of the same name.
func (s *Service) ListTaskPushNotificationConfig(ctx context.Context, req *ListPushConfigsRequest) (*ListPushConfigsResponse, error) {
	cfgs, err := s.h.ListPushConfigs(callContext(ctx), req.TaskID)
	if err != nil {
		return nil, mapError(err)
	}
	return &ListPushConfigsResponse{Configs: cfgs}, nil
}

// DeleteTaskPushNotificationConfig implements the unary RPC of the same name.
func (s *Service) DeleteTaskPushNotificationConfig(ctx context.Context, req *DeletePushConfigRequest) (*Empty, error) {
	if err := s.h.DeletePushConfig(callContext(ctx), req.TaskID, req.ConfigID); err != nil {
		return nil, mapError(err)
	}
	return &Empty{}, nil
}

// serverStreamAdapter adapts a *grpc.ServerStream method handler's raw
// grpc.ServerStream into the narrower EventStream interface Service methods
// consume, so tests can substitute a fake without depending on grpc
// internals.
type serverStreamAdapter struct{ grpc.ServerStream }

func (a serverStreamAdapter) SendMsg(m any) error { return a.ServerStream.SendMsg(m) }

// ServiceDesc is the grpc.ServiceDesc for Service, hand-maintained in place
// of protoc-gen-go-grpc output (see the package doc comment). Register it
// with grpc.NewServer().RegisterService(&ServiceDesc, svc).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendMessage", Handler: unarySendMessage},
		{MethodName: "GetTask", Handler: unaryGetTask},
		{MethodName: "ListTasks", Handler: unaryListTasks},
		{MethodName: "CancelTask", Handler: unaryCancelTask},
		{MethodName: "CreateTaskPushNotificationConfig", Handler: unaryCreatePushConfig},
		{MethodName: "GetTaskPushNotificationConfig", Handler: unaryGetPushConfig},
		{MethodName: "ListTaskPushNotificationConfig", Handler: unaryListPushConfigs},
		{MethodName: "DeleteTaskPushNotificationConfig", Handler: unaryDeletePushConfig},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "SendStreamingMessage", Handler: streamSendMessage, ServerStreams: true},
		{StreamName: "SubscribeToTask", Handler: streamSubscribe, ServerStreams: true},
	},
	Metadata: "a2a.proto",
}

var registryMu sync.Mutex

func unarySendMessage(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(SendMessageRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Service)
	if interceptor == nil {
		return s.SendMessage(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: ServiceName + "/SendMessage"}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return s.SendMessage(ctx, req.(*SendMessageRequest))
	})
}

func unaryGetTask(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(GetTaskRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Service)
	if interceptor == nil {
		return s.GetTask(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: ServiceName + "/GetTask"}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return s.GetTask(ctx, req.(*GetTaskRequest))
	})
}

func unaryListTasks(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ListTasksRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Service)
	if interceptor == nil {
		return s.ListTasks(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: ServiceName + "/ListTasks"}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return s.ListTasks(ctx, req.(*ListTasksRequest))
	})
}

func unaryCancelTask(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(CancelTaskRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Service)
	if interceptor == nil {
		return s.CancelTask(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: ServiceName + "/CancelTask"}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return s.CancelTask(ctx, req.(*CancelTaskRequest))
	})
}

func unaryCreatePushConfig(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(CreatePushConfigRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Service)
	if interceptor == nil {
		return s.CreateTaskPushNotificationConfig(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: ServiceName + "/CreateTaskPushNotificationConfig"}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return s.CreateTaskPushNotificationConfig(ctx, req.(*CreatePushConfigRequest))
	})
}

func unaryGetPushConfig(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(GetPushConfigRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Service)
	if interceptor == nil {
		return s.GetTaskPushNotificationConfig(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: ServiceName + "/GetTaskPushNotificationConfig"}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return s.GetTaskPushNotificationConfig(ctx, req.(*GetPushConfigRequest))
	})
}

func unaryListPushConfigs(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ListPushConfigsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Service)
	if interceptor == nil {
		return s.ListTaskPushNotificationConfig(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: ServiceName + "/ListTaskPushNotificationConfig"}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return s.ListTaskPushNotificationConfig(ctx, req.(*ListPushConfigsRequest))
	})
}

func unaryDeletePushConfig(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(DeletePushConfigRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Service)
	if interceptor == nil {
		return s.DeleteTaskPushNotificationConfig(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: ServiceName + "/DeleteTaskPushNotificationConfig"}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return s.DeleteTaskPushNotificationConfig(ctx, req.(*DeletePushConfigRequest))
	})
}

func streamSendMessage(srv any, stream grpc.ServerStream) error {
	req := new(SendMessageRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(*Service).SendStreamingMessage(req, serverStreamAdapter{stream})
}

func streamSubscribe(srv any, stream grpc.ServerStream) error {
	req := new(SubscribeRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(*Service).SubscribeToTask(req, serverStreamAdapter{stream})
}

// Register attaches Service to srv under ServiceDesc. registryMu guards
// against concurrent Register calls racing grpc.Server's own internal
// service map during process startup.
func Register(srv *grpc.Server, svc *Service) {
	registryMu.Lock()
	defer registryMu.Unlock()
	srv.RegisterService(&ServiceDesc, svc)
}
