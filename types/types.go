// Package types defines the A2A protocol data types shared by the event
// pipeline, the task manager, and the transport adapters. Field names use
// camelCase JSON tags to conform to the A2A protocol specification.
//
//nolint:tagliatelle // A2A protocol specification requires camelCase JSON field names
package types

import "encoding/json"

// Role identifies the author of a Message.
type Role string

// Roles recognized by the protocol (spec.md §3).
const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// TaskState is the canonical task lifecycle state (spec.md §4.4).
type TaskState string

// States of the task state machine.
const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateAuthRequired  TaskState = "auth-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
	TaskStateRejected      TaskState = "rejected"
	TaskStateUnknown       TaskState = "unknown"
)

// IsFinal reports whether s is a terminal state from which no further
// transitions occur (spec.md §4.4).
func (s TaskState) IsFinal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateRejected, TaskStateUnknown:
		return true
	default:
		return false
	}
}

type (
	// Task is the canonical, denormalized A2A task record (spec.md §3).
	Task struct {
		// ID is the unique, immutable identifier for the task.
		ID string `json:"id"`
		// ContextID groups related tasks together.
		ContextID string `json:"contextId,omitempty"`
		// Status is the most recent task status snapshot.
		Status TaskStatus `json:"status"`
		// Artifacts are the task output artifacts accumulated so far, in order.
		Artifacts []*Artifact `json:"artifacts,omitempty"`
		// History is the append-only ordered message history. It never contains
		// the message currently referenced by Status.Message.
		History []*Message `json:"history,omitempty"`
		// Metadata holds implementation-defined task metadata.
		Metadata map[string]any `json:"metadata,omitempty"`
	}

	// TaskStatus represents the status of a task at a point in time.
	TaskStatus struct {
		// State is the canonical task state.
		State TaskState `json:"state"`
		// Message is an optional human-readable status message. It is demoted
		// to Task.History the next time Status is replaced (spec.md §4.2).
		Message *Message `json:"message,omitempty"`
		// Timestamp is the RFC3339 timestamp of this status.
		Timestamp string `json:"timestamp,omitempty"`
	}

	// Message is a single message exchanged in a task conversation.
	Message struct {
		// MessageID is the opaque, unique identifier for the message.
		MessageID string `json:"messageId"`
		// Role identifies the author of the message.
		Role Role `json:"role"`
		// Parts are the ordered content parts that make up the message.
		Parts []*Part `json:"parts"`
		// TaskID optionally associates this message with a task.
		TaskID string `json:"taskId,omitempty"`
		// ContextID optionally associates this message with a context.
		ContextID string `json:"contextId,omitempty"`
		// ReferenceTaskIDs lists other tasks this message refers to.
		ReferenceTaskIDs []string `json:"referenceTaskIds,omitempty"`
		// Metadata holds implementation-defined message metadata.
		Metadata map[string]any `json:"metadata,omitempty"`
	}

	// Part is a single tagged-variant content part of a Message or Artifact.
	// Exactly one of Text, Data, or (MIMEType, URI) is meaningful, selected
	// by Type.
	Part struct {
		// Type identifies the part kind: "text", "data", or "file".
		Type string `json:"type"`
		// Text is the textual content when Type == "text".
		Text string `json:"text,omitempty"`
		// Data is the structured payload when Type == "data".
		Data json.RawMessage `json:"data,omitempty"`
		// MIMEType is the MIME type when Type == "file".
		MIMEType string `json:"mimeType,omitempty"`
		// URI is the file reference URI when Type == "file".
		URI string `json:"uri,omitempty"`
	}

	// Artifact is a named, ordered sequence of parts produced by an agent for
	// a task. It is uniquely identified by ArtifactID within the task.
	Artifact struct {
		// ArtifactID uniquely identifies the artifact within its task.
		ArtifactID string `json:"artifactId"`
		// Name is an optional display name for the artifact.
		Name string `json:"name,omitempty"`
		// Description is an optional human-readable description.
		Description string `json:"description,omitempty"`
		// Parts are the content parts that make up the artifact.
		Parts []*Part `json:"parts"`
		// Metadata carries implementation-defined artifact metadata.
		Metadata map[string]any `json:"metadata,omitempty"`
	}

	// PushNotificationConfig describes a webhook subscribed to a task's
	// events (spec.md §3, §4.8).
	PushNotificationConfig struct {
		// ID uniquely identifies the config within its task.
		ID string `json:"id"`
		// URL is the webhook endpoint events are POSTed to.
		URL string `json:"url"`
		// Token, when non-empty, is sent as X-A2A-Notification-Token.
		Token string `json:"token,omitempty"`
		// Authentication optionally describes additional auth requirements
		// the sender must satisfy when calling URL.
		Authentication *PushNotificationAuthentication `json:"authentication,omitempty"`
	}

	// PushNotificationAuthentication describes how the sender should
	// authenticate to a push notification URL.
	PushNotificationAuthentication struct {
		Schemes    []string `json:"schemes,omitempty"`
		Credentials string  `json:"credentials,omitempty"`
	}

	// AgentCard is the A2A discovery document returned by getAgentCard.
	AgentCard struct {
		ProtocolVersion    string                     `json:"protocolVersion"`
		Name               string                     `json:"name"`
		Description        string                     `json:"description,omitempty"`
		URL                string                     `json:"url"`
		Version            string                     `json:"version"`
		Capabilities       Capabilities               `json:"capabilities"`
		DefaultInputModes  []string                   `json:"defaultInputModes,omitempty"`
		DefaultOutputModes []string                   `json:"defaultOutputModes,omitempty"`
		Skills             []*Skill                   `json:"skills"`
		SecuritySchemes    map[string]*SecurityScheme `json:"securitySchemes,omitempty"`
		Security           any                        `json:"security,omitempty"`
	}

	// Capabilities captures the protocol-level capability flags used for
	// routing decisions by the client (spec.md §4.9). Out of scope: the
	// full agent card schema (spec.md §1 Non-goals).
	Capabilities struct {
		Streaming              bool `json:"streaming"`
		PushNotifications      bool `json:"pushNotifications"`
		StateTransitionHistory bool `json:"stateTransitionHistory"`
	}

	// Skill describes a single capability exposed by the agent.
	Skill struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		Description string   `json:"description,omitempty"`
		Tags        []string `json:"tags,omitempty"`
		InputModes  []string `json:"inputModes,omitempty"`
		OutputModes []string `json:"outputModes,omitempty"`
		// PayloadSchema, if set, is a JSON Schema document that a "data" part
		// of any message naming this skill (via Message.Metadata["skillId"])
		// must validate against before admission (spec.md §4.5 onMessageSend).
		PayloadSchema json.RawMessage `json:"payloadSchema,omitempty"`
	}

	// SecurityScheme describes a single security scheme in the AgentCard.
	SecurityScheme struct {
		Type   string          `json:"type"`
		Scheme string          `json:"scheme,omitempty"`
		In     string          `json:"in,omitempty"`
		Name   string          `json:"name,omitempty"`
		Flows  json.RawMessage `json:"flows,omitempty"`
	}
)

// EventKind discriminates the Event sum type (spec.md §3).
type EventKind string

// Event kinds.
const (
	EventKindTaskSnapshot     EventKind = "task_snapshot"
	EventKindTaskStatus       EventKind = "task_status_update"
	EventKindTaskArtifact     EventKind = "task_artifact_update"
	EventKindMessage          EventKind = "message"
	EventKindInternalError    EventKind = "internal_error"
)

type (
	// Event is the sum type flowing through the pipeline (spec.md §3). Exactly
	// one of the typed fields is populated, selected by Kind.
	Event struct {
		Kind EventKind `json:"kind"`

		Snapshot *Task                `json:"snapshot,omitempty"`
		Status   *TaskStatusUpdate    `json:"statusUpdate,omitempty"`
		Artifact *TaskArtifactUpdate  `json:"artifactUpdate,omitempty"`
		Message  *Message             `json:"message,omitempty"`
		Internal *InternalErrorEvent  `json:"internalError,omitempty"`
	}

	// TaskStatusUpdate carries a new status for a task.
	TaskStatusUpdate struct {
		TaskID    string         `json:"taskId"`
		ContextID string         `json:"contextId,omitempty"`
		Status    TaskStatus     `json:"status"`
		Final     bool           `json:"final"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}

	// TaskArtifactUpdate carries an artifact chunk or replacement.
	TaskArtifactUpdate struct {
		TaskID    string         `json:"taskId"`
		ContextID string         `json:"contextId,omitempty"`
		Artifact  *Artifact      `json:"artifact"`
		Append    bool           `json:"append"`
		LastChunk bool           `json:"lastChunk"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}

	// InternalErrorEvent is substituted by the pipeline in place of an event
	// that failed to persist (spec.md §4.3, §7).
	InternalErrorEvent struct {
		TaskID  string `json:"taskId"`
		Message string `json:"message"`
	}
)

// NewTaskSnapshotEvent constructs a TaskSnapshot event.
func NewTaskSnapshotEvent(t *Task) Event { return Event{Kind: EventKindTaskSnapshot, Snapshot: t} }

// NewTaskStatusEvent constructs a TaskStatusUpdate event.
func NewTaskStatusEvent(u *TaskStatusUpdate) Event { return Event{Kind: EventKindTaskStatus, Status: u} }

// NewTaskArtifactEvent constructs a TaskArtifactUpdate event.
func NewTaskArtifactEvent(u *TaskArtifactUpdate) Event {
	return Event{Kind: EventKindTaskArtifact, Artifact: u}
}

// NewMessageEvent constructs a Message event.
func NewMessageEvent(m *Message) Event { return Event{Kind: EventKindMessage, Message: m} }

// NewInternalErrorEvent constructs an InternalError substitute event.
func NewInternalErrorEvent(taskID, msg string) Event {
	return Event{Kind: EventKindInternalError, Internal: &InternalErrorEvent{TaskID: taskID, Message: msg}}
}

// TaskIDOf returns the task identifier carried by e, if any.
func (e Event) TaskIDOf() string {
	switch e.Kind {
	case EventKindTaskSnapshot:
		if e.Snapshot != nil {
			return e.Snapshot.ID
		}
	case EventKindTaskStatus:
		if e.Status != nil {
			return e.Status.TaskID
		}
	case EventKindTaskArtifact:
		if e.Artifact != nil {
			return e.Artifact.TaskID
		}
	case EventKindMessage:
		if e.Message != nil {
			return e.Message.TaskID
		}
	case EventKindInternalError:
		if e.Internal != nil {
			return e.Internal.TaskID
		}
	}
	return ""
}

// IsFinal reports whether e is the final event for its task, i.e. a
// TaskStatusUpdate with Final set, or a TaskSnapshot whose status is final.
func (e Event) IsFinal() bool {
	switch e.Kind {
	case EventKindTaskStatus:
		return e.Status != nil && e.Status.Final
	case EventKindTaskSnapshot:
		return e.Snapshot != nil && e.Snapshot.Status.State.IsFinal()
	default:
		return false
	}
}
