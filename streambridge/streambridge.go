// Package streambridge implements component C10 (spec.md §4.5, §9): the
// two-stage bridge between a subscriber's ChildQueue and a transport's wire
// encoding. Stage A dequeues events and accounts for delivery credit; stage
// B (the Sink) serializes and writes one event to the wire, whatever the
// transport.
//
// Grounded on the teacher's stream.Subscriber/bridge.Register
// (runtime/agent/stream/subscriber.go, runtime/agents/stream/bridge/bridge.go):
// the same "translate and forward to a Sink" shape, generalized from a
// push-style hooks.Bus subscriber into a pull-style ChildQueue consumer
// with explicit request/credit backpressure, since unlike the hooks bus (one
// synchronous Publish call per event) a transport write can legitimately
// outpace or lag the event source and must flow-control independently.
package streambridge

import (
	"context"
	"sync"

	"goa.design/a2a/queue"
	"goa.design/a2a/types"
)

// Sink is stage B: the transport-specific wire writer. SSE adapters
// serialize to "data: <json>\n\n"; the gRPC adapter calls
// responseObserver.SendMsg. An error from Send is treated as a disconnected
// client and stops the bridge.
type Sink interface {
	Send(ctx context.Context, event types.Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, event types.Event) error

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, event types.Event) error { return f(ctx, event) }

// DefaultCredit is the number of events a Bridge may deliver before an
// explicit Request call is required, used when a transport has no feedback
// of its own (e.g. plain SSE without client-side flow control signaling).
const DefaultCredit = 1 << 20

// Bridge pumps events from a ChildQueue (stage A) to a Sink (stage B),
// tracking delivery credit explicitly instead of relying on the queue's own
// channel buffering, so a transport that DOES have its own flow control
// (HTTP/2 stream windows, gRPC flow control) can throttle delivery by
// withholding Request calls.
type Bridge struct {
	child *queue.ChildQueue
	sink  Sink

	mu      sync.Mutex
	credit  int
	wake    chan struct{}
}

// New constructs a Bridge with an initial credit balance. initialCredit <= 0
// uses DefaultCredit (effectively unthrottled).
func New(child *queue.ChildQueue, sink Sink, initialCredit int) *Bridge {
	if initialCredit <= 0 {
		initialCredit = DefaultCredit
	}
	return &Bridge{
		child:  child,
		sink:   sink,
		credit: initialCredit,
		wake:   make(chan struct{}, 1),
	}
}

// Request grants n additional units of delivery credit. Transports with
// their own flow control call this as they regain capacity to send.
func (b *Bridge) Request(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	b.credit += n
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// acquireCredit blocks until at least one unit of credit is available (or
// ctx is done), then consumes it.
func (b *Bridge) acquireCredit(ctx context.Context) error {
	for {
		b.mu.Lock()
		if b.credit > 0 {
			b.credit--
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()

		select {
		case <-b.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Run drives the bridge until ctx is done, the ChildQueue closes, or Send
// returns an error (interpreted as the client having disconnected). It
// always detaches the ChildQueue before returning.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.child.Close()

	for {
		if err := b.acquireCredit(ctx); err != nil {
			return err
		}

		item, ok, err := b.child.Dequeue(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if err := b.sink.Send(ctx, item.Event); err != nil {
			return err
		}
		if item.Event.IsFinal() {
			return nil
		}
	}
}
