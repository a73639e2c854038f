// Package executor defines component C8 (spec.md §4.6): AgentExecutor, the
// interface through which the RequestHandler invokes application-specific
// agent logic. The runtime contains no implementation of this interface; it
// is the boundary the application fills in.
//
// Grounded on the teacher's runtime.AgentClient (runtime/agent/runtime/client.go):
// the same request/handle split (blocking vs. asynchronous) generalized
// from the Temporal workflow handle into the pipeline's own event-sink
// model, since an AgentExecutor reports progress by emitting events onto a
// Sink rather than by returning typed run output.
package executor

import (
	"context"

	"goa.design/a2a/types"
)

// Sink is the write side of a task's event stream, handed to an
// AgentExecutor so it can report task status and artifact updates as work
// proceeds. Sink.Emit is the only way application code may affect task
// state; it does not touch the TaskStore or any queue directly.
type Sink interface {
	// Emit submits event for taskID onto the pipeline. It blocks according
	// to the pipeline's backpressure policy and returns only if ctx is
	// canceled before admission succeeds (spec.md §5).
	Emit(ctx context.Context, taskID string, event types.Event) error
}

// RequestContext carries the inbound message and task identity an
// AgentExecutor needs to begin or continue work.
type RequestContext struct {
	// TaskID is the task this execution is for.
	TaskID string
	// ContextID groups this task with related tasks.
	ContextID string
	// Message is the message that triggered this execution.
	Message *types.Message
	// Task is the task's current state, nil if this is the first message
	// for a brand-new task.
	Task *types.Task
}

// AgentExecutor runs application-specific agent logic for a task. Execute
// should emit at least one terminal TaskStatusUpdate (Final == true) via
// sink before returning, unless ctx is canceled first; a Cancel call must
// make any in-flight Execute call return promptly.
type AgentExecutor interface {
	// Execute begins or resumes processing reqCtx.TaskID, emitting progress
	// through sink. It blocks until the task reaches a point where no
	// immediate further progress can be made (a final state, or
	// input-required/auth-required).
	Execute(ctx context.Context, reqCtx RequestContext, sink Sink) error

	// Cancel requests cooperative cancellation of any in-flight Execute
	// call for taskID. It returns immediately; the corresponding Execute
	// call should observe its context canceled and return promptly. Cancel
	// on a taskID with no in-flight execution is a no-op.
	Cancel(ctx context.Context, taskID string) error
}
