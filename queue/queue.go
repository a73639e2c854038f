// Package queue implements the per-task event fan-out primitives described
// in spec.md §4.4 (component C5): a MainQueue that receives every event for
// one task and replicates it to a dynamic set of bounded ChildQueue
// subscribers, each an independent FIFO consumed by one streaming client.
//
// Grounded on the teacher's fan-out hooks.Bus (runtime/agent/hooks/bus.go):
// the same snapshot-before-iterate, copy-on-write subscriber set and
// sync.Once idempotent-Close pattern is generalized here from a synchronous,
// error-halting publish to bounded, independently-paced per-subscriber
// channels with backpressure and reference-counted lifecycle.
package queue

import (
	"context"
	"sync"

	"goa.design/a2a/types"
)

// EventQueueItem wraps an event as it flows through a MainQueue. Replicated
// is true for every copy handed to a ChildQueue after the first (the
// MainQueue's own tap sees Replicated == false); transports use it only for
// diagnostics, never for correctness decisions.
type EventQueueItem struct {
	Event      types.Event
	Replicated bool
}

// TaskStateProvider answers whether a task has reached a final state, used
// by MainQueue to decide whether to close itself once its last child detaches
// (spec.md §4.4 "reference counting").
type TaskStateProvider interface {
	IsFinalized(taskID string) bool
}

// DefaultChildCapacity is the default bound on a ChildQueue's internal
// buffer. A slow consumer that falls this far behind blocks the distributing
// goroutine, which is the backpressure mechanism described in spec.md §5.
const DefaultChildCapacity = 64

// MainQueue is the single point of entry for every event belonging to one
// task. The MainEventBusProcessor (component C6) calls EnqueueEvent/
// EnqueueItem once per event, in persisted order; MainQueue fans that single
// ordered stream out to every currently attached ChildQueue.
type MainQueue struct {
	taskID   string
	capacity int
	state    TaskStateProvider

	mu       sync.Mutex
	children map[*ChildQueue]struct{}
	closed   bool
	pollers  int

	pollerStarted chan struct{}
	pollerOnce    sync.Once

	onClose func()
}

// SetOnClose registers a callback invoked exactly once when the queue
// closes, after all children have been force-closed. QueueManager uses this
// to deregister the queue from its task-ID map without the two packages
// needing to know about each other's locking.
func (q *MainQueue) SetOnClose(fn func()) {
	q.mu.Lock()
	q.onClose = fn
	q.mu.Unlock()
}

// NewMainQueue constructs a MainQueue for taskID. childCapacity bounds every
// ChildQueue created via Tap; a value <= 0 uses DefaultChildCapacity. state
// may be nil, in which case a detaching last child always closes the queue.
func NewMainQueue(taskID string, childCapacity int, state TaskStateProvider) *MainQueue {
	if childCapacity <= 0 {
		childCapacity = DefaultChildCapacity
	}
	return &MainQueue{
		taskID:        taskID,
		capacity:      childCapacity,
		state:         state,
		children:      make(map[*ChildQueue]struct{}),
		pollerStarted: make(chan struct{}),
	}
}

// TaskID returns the task this queue serves.
func (q *MainQueue) TaskID() string { return q.taskID }

// Tap attaches a new ChildQueue and returns it. Each call to Tap increments
// the queue's reference count; the returned ChildQueue's Close decrements it
// (spec.md §4.4).
func (q *MainQueue) Tap() *ChildQueue {
	c := &ChildQueue{
		parent: q,
		ch:     make(chan EventQueueItem, q.capacity),
		done:   make(chan struct{}),
	}
	q.mu.Lock()
	q.children[c] = struct{}{}
	q.mu.Unlock()
	return c
}

// GetChildCount reports the number of currently attached ChildQueues.
func (q *MainQueue) GetChildCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.children)
}

// AwaitPollerStart blocks until at least one ChildQueue has begun dequeuing,
// or ctx is done. Callers use this to avoid dropping the first event for a
// newly-created task before any subscriber has attached.
func (q *MainQueue) AwaitPollerStart(ctx context.Context) error {
	select {
	case <-q.pollerStarted:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// markPollerStarted is invoked by the first ChildQueue.Dequeue call.
func (q *MainQueue) markPollerStarted() {
	q.pollerOnce.Do(func() { close(q.pollerStarted) })
}

// EnqueueItem replicates item to every currently attached child with a
// non-blocking offer. A child whose buffer is full is force-closed
// immediately rather than stalling the others: spec.md §4.3 step 4 and §5
// require that one slow subscriber on a task never stalls distribution to
// any other child, any other task, or the shared MainEventBusProcessor
// calling this method.
//
// The snapshot of children is taken under lock and then released before
// delivery, matching the teacher's snapshot-before-iterate bus pattern so a
// concurrent Tap/detach never blocks distribution nor races the map.
func (q *MainQueue) EnqueueItem(ctx context.Context, item EventQueueItem) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	children := make([]*ChildQueue, 0, len(q.children))
	for c := range q.children {
		children = append(children, c)
	}
	q.mu.Unlock()

	for _, c := range children {
		c.deliver(item)
	}
}

// EnqueueEvent wraps event in an EventQueueItem and calls EnqueueItem.
func (q *MainQueue) EnqueueEvent(ctx context.Context, event types.Event) {
	q.EnqueueItem(ctx, EventQueueItem{Event: event})
}

// Size returns the number of attached children, provided for parity with
// the A2A reference queue API; MainQueue itself holds no buffered events.
func (q *MainQueue) Size() int { return q.GetChildCount() }

// Close detaches and closes every child immediately, regardless of the
// reference count. Used when a task is deleted or the server shuts down.
func (q *MainQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	children := make([]*ChildQueue, 0, len(q.children))
	for c := range q.children {
		children = append(children, c)
	}
	q.children = make(map[*ChildQueue]struct{})
	onClose := q.onClose
	q.mu.Unlock()

	for _, c := range children {
		c.forceClose()
	}
	if onClose != nil {
		onClose()
	}
}

// childClosing is called by a ChildQueue when it detaches (spec.md §4.4
// reference counting): remove it from the children set, and if it was the
// last one, close the MainQueue unless the task is not yet finalized, in
// which case the queue lingers for a future subscriber to Tap again.
func (q *MainQueue) childClosing(c *ChildQueue) {
	q.mu.Lock()
	delete(q.children, c)
	remaining := len(q.children)
	closed := q.closed
	q.mu.Unlock()

	if closed || remaining > 0 {
		return
	}
	if q.state == nil || q.state.IsFinalized(q.taskID) {
		q.Close()
	}
}

// ChildQueue is a single subscriber's bounded FIFO view of a MainQueue. Each
// streaming client (SSE connection, gRPC stream) owns exactly one ChildQueue.
type ChildQueue struct {
	parent *MainQueue
	ch     chan EventQueueItem
	done   chan struct{}
	once   sync.Once

	startOnce sync.Once
}

// Dequeue blocks until an event is available, ctx is done, or the queue is
// closed. ok is false only when the queue is closed and drained.
func (c *ChildQueue) Dequeue(ctx context.Context) (EventQueueItem, bool, error) {
	c.startOnce.Do(c.parent.markPollerStarted)
	select {
	case item, ok := <-c.ch:
		if !ok {
			return EventQueueItem{}, false, nil
		}
		return item, true, nil
	case <-c.done:
		select {
		case item, ok := <-c.ch:
			if ok {
				return item, true, nil
			}
		default:
		}
		return EventQueueItem{}, false, nil
	case <-ctx.Done():
		return EventQueueItem{}, false, ctx.Err()
	}
}

// EnqueueEvent lets a ChildQueue's owner inject a locally-synthesized event
// (e.g. a final internal-error) without going through the MainQueue. It
// delegates straight to the channel so ordering with distributed events is
// preserved for this subscriber only.
func (c *ChildQueue) EnqueueEvent(event types.Event) {
	c.deliver(EventQueueItem{Event: event})
}

// deliver makes a non-blocking offer of item to the child's buffer. If the
// child is already detaching, the item is dropped. If the buffer is full,
// the child is force-closed immediately instead of blocking the caller: a
// full child means this one subscriber has fallen behind, and distribution
// to every other child and every other task must proceed regardless
// (spec.md §4.3, §5).
func (c *ChildQueue) deliver(item EventQueueItem) {
	select {
	case c.ch <- item:
		return
	case <-c.done:
		return
	default:
	}
	c.Close()
}

// Size returns the number of events currently buffered for this subscriber.
func (c *ChildQueue) Size() int { return len(c.ch) }

// Close detaches this child from its MainQueue. Idempotent.
func (c *ChildQueue) Close() {
	c.once.Do(func() {
		close(c.done)
		c.parent.childClosing(c)
	})
}

// forceClose is used by MainQueue.Close to tear down a child without
// re-entering childClosing (the parent has already cleared its children map).
func (c *ChildQueue) forceClose() {
	c.once.Do(func() {
		close(c.done)
	})
}
