// Package errs defines the A2A error taxonomy shared by every layer of the
// runtime: the event pipeline, the request handler, and the transport
// adapters. A single Kind enum lets transports map errors to wire-level
// status codes deterministically (see spec.md §6, §7).
package errs

import "fmt"

// Kind identifies a stable category of A2A failure. Transports map Kind to
// their own status codes (HTTP status, gRPC code, JSON-RPC error code).
type Kind string

// Error kinds from spec.md §7.
const (
	KindInvalidRequest              Kind = "invalid_request"
	KindMethodNotFound               Kind = "method_not_found"
	KindInvalidParams                Kind = "invalid_params"
	KindJSONParse                    Kind = "json_parse"
	KindContentTypeNotSupported      Kind = "content_type_not_supported"
	KindInternal                     Kind = "internal"
	KindTaskNotFound                 Kind = "task_not_found"
	KindTaskNotCancelable            Kind = "task_not_cancelable"
	KindPushNotificationNotSupported Kind = "push_notification_not_supported"
	KindUnsupportedOperation         Kind = "unsupported_operation"
	KindInvalidAgentResponse         Kind = "invalid_agent_response"
	KindExtendedCardNotConfigured    Kind = "extended_card_not_configured"
	KindExtensionSupportRequired     Kind = "extension_support_required"
	KindVersionNotSupported          Kind = "version_not_supported"
	KindAuthentication               Kind = "authentication"
	KindAuthorization                Kind = "authorization"

	// Storage-layer kinds (spec.md §7).
	KindTaskStoreError        Kind = "task_store_error"
	KindTaskPersistenceError  Kind = "task_persistence_error"
	KindTaskSerializationError Kind = "task_serialization_error"
)

// Error is the concrete error type carried across every A2A layer. It always
// has a stable Kind and human-readable Message; TaskID is populated when the
// failure is scoped to a specific task (spec.md §7: "storage errors
// additionally carry the taskId context when available").
type Error struct {
	Kind    Kind
	Message string
	TaskID  string
	Cause   error
}

// New constructs an *Error with the given kind and formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error with the given kind that wraps cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithTaskID returns a copy of e with TaskID set, for storage errors that
// need to surface which task failed.
func (e *Error) WithTaskID(taskID string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.TaskID = taskID
	return &cp
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.TaskID != "" {
		return fmt.Sprintf("a2a: %s (task %s): %s", e.Kind, e.TaskID, e.Message)
	}
	return fmt.Sprintf("a2a: %s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.As/errors.Is.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target has the same Kind. This lets callers use
// errors.Is(err, errs.New(errs.KindTaskNotFound, "")) idiomatically.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and
// KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// as is a tiny indirection around errors.As to keep this file's only import
// to fmt at the top while still supporting Kind extraction through wrapped
// errors elsewhere in the module.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
