// Package eventbus implements components C6 (spec.md §4.3): a single
// ordered MainEventBus feeding one consumer goroutine, the
// MainEventBusProcessor, which is the only writer of task state. Every
// event is persisted before it is made visible to any subscriber
// (spec.md §8 "persist-before-visibility").
//
// Grounded on the teacher's inMemoryTaskStore/Server wiring
// (runtime/a2a/server.go), generalized from a request-scoped store write
// into a standalone, always-running single-consumer pipeline stage, and on
// the fan-out bus's snapshot/lock discipline (runtime/agent/hooks/bus.go)
// for the admission semaphore.
package eventbus

import (
	"context"
	"sync"

	"goa.design/a2a/errs"
	"goa.design/a2a/queue"
	"goa.design/a2a/queuemanager"
	"goa.design/a2a/taskmanager"
	"goa.design/a2a/taskstore"
	"goa.design/a2a/telemetry"
	"goa.design/a2a/types"
)

// Tracker records which tasks have reached a final state. It implements
// queue.TaskStateProvider so a queuemanager.Manager can be constructed
// before the Processor that will later mark tasks finalized, breaking what
// would otherwise be a construction cycle between the two.
type Tracker struct {
	mu        sync.Mutex
	finalized map[string]bool
}

// NewTracker constructs an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{finalized: make(map[string]bool)}
}

// IsFinalized implements queue.TaskStateProvider.
func (t *Tracker) IsFinalized(taskID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalized[taskID]
}

// markFinalized records that taskID has reached a final state.
func (t *Tracker) markFinalized(taskID string) {
	t.mu.Lock()
	t.finalized[taskID] = true
	t.mu.Unlock()
}

var _ queue.TaskStateProvider = (*Tracker)(nil)

// PushNotifier is the minimal surface the processor needs from component C3
// to fire outbound webhook notifications after a successful persist. It is
// invoked asynchronously and its errors are logged, never propagated.
type PushNotifier interface {
	Notify(ctx context.Context, task *types.Task, event types.Event)
}

// Observer receives a callback for every event the processor handles, after
// persistence and distribution. Tests use this to await pipeline progress
// deterministically instead of sleeping (spec.md §8 test-observability).
type Observer func(taskID string, event types.Event, task *types.Task)

// FinalizedFunc is invoked once a task reaches a final state.
type FinalizedFunc func(taskID string, task *types.Task)

// busItem is a single admitted unit of work.
type busItem struct {
	taskID  string
	event   types.Event
	release func()
}

// Bus is the single ordered channel of events awaiting processing
// (spec.md §4.3 "MainEventBus"). Capacity is the bus's internal buffer;
// AdmissionLimit independently bounds how many events may be in flight
// (queued or being processed) at once, which is the backpressure knob
// callers tune under load (spec.md §5).
type Bus struct {
	ch     chan busItem
	tokens chan struct{}
}

// Option configures a Processor.
type Option func(*Processor)

// WithPushNotifier registers the push-notification dispatcher invoked after
// each successful persist.
func WithPushNotifier(p PushNotifier) Option {
	return func(pr *Processor) { pr.push = p }
}

// WithObserver registers a callback invoked after every event is handled.
func WithObserver(o Observer) Option {
	return func(pr *Processor) { pr.observe = o }
}

// WithOnFinalized registers a callback invoked once per task the first time
// it reaches a final state.
func WithOnFinalized(f FinalizedFunc) Option {
	return func(pr *Processor) { pr.onFinalized = f }
}

// WithLogger overrides the default clue-backed logger.
func WithLogger(l telemetry.Logger) Option {
	return func(pr *Processor) { pr.logger = l }
}

// WithMeter overrides the default OTEL meter.
func WithMeter(m telemetry.Meter) Option {
	return func(pr *Processor) { pr.meter = m }
}

// WithTracer overrides the default OTEL tracer.
func WithTracer(t telemetry.Tracer) Option {
	return func(pr *Processor) { pr.tracer = t }
}

// NewBus constructs a Bus with the given internal buffer size and admission
// limit. admissionLimit <= 0 means unbounded admission (only the buffer
// size, if any, applies backpressure).
func NewBus(bufferSize, admissionLimit int) *Bus {
	if bufferSize < 0 {
		bufferSize = 0
	}
	b := &Bus{ch: make(chan busItem, bufferSize)}
	if admissionLimit > 0 {
		b.tokens = make(chan struct{}, admissionLimit)
		for i := 0; i < admissionLimit; i++ {
			b.tokens <- struct{}{}
		}
	}
	return b
}

// Submit admits event for taskID onto the bus, blocking while the admission
// semaphore is exhausted or the internal buffer is full (spec.md §5
// backpressure). It returns only ctx.Err() on cancellation; the event is
// otherwise guaranteed to eventually reach Processor.Run's persist step in
// submission order for a given taskID as long as all submissions for that
// task come from a single goroutine or are otherwise already ordered.
func (b *Bus) Submit(ctx context.Context, taskID string, event types.Event) error {
	release := func() {}
	if b.tokens != nil {
		select {
		case <-b.tokens:
			release = func() { b.tokens <- struct{}{} }
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case b.ch <- busItem{taskID: taskID, event: event, release: release}:
		return nil
	case <-ctx.Done():
		release()
		return ctx.Err()
	}
}

// Close signals no further events will be submitted. Processor.Run returns
// once the buffered items drain.
func (b *Bus) Close() { close(b.ch) }

// Processor is the single consumer of a Bus: the sole writer of task state
// (spec.md §4.3). Exactly one goroutine must call Run for a given Processor.
type Processor struct {
	bus     *Bus
	store   taskstore.Store
	queues  *queuemanager.Manager
	tracker *Tracker
	clock   taskmanager.Clock

	push        PushNotifier
	observe     Observer
	onFinalized FinalizedFunc

	logger telemetry.Logger
	meter  telemetry.Meter
	tracer telemetry.Tracer
}

// NewProcessor constructs a Processor reading from bus, persisting through
// store, and distributing via queues. tracker should be the same Tracker
// passed to the queuemanager.Manager backing queues, so MainQueue's
// reference-counting close decision sees finalization marks as soon as this
// Processor records them.
func NewProcessor(bus *Bus, store taskstore.Store, queues *queuemanager.Manager, tracker *Tracker, opts ...Option) *Processor {
	p := &Processor{
		bus:     bus,
		store:   store,
		queues:  queues,
		tracker: tracker,
		clock:   nil,
		logger:  telemetry.NewClueLogger(),
		meter:   telemetry.NewMeter("goa.design/a2a/eventbus"),
		tracer:  telemetry.NewTracer("goa.design/a2a/eventbus"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes the bus until it is closed and drained. It must be called
// from exactly one goroutine; this is what makes the processor the sole
// writer of task state (spec.md §4.3, §5).
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case item, ok := <-p.bus.ch:
			if !ok {
				return
			}
			p.handle(ctx, item)
		case <-ctx.Done():
			return
		}
	}
}

// handle implements the six-step processing loop of spec.md §4.3.
func (p *Processor) handle(ctx context.Context, item busItem) {
	defer item.release()

	ctx, span := p.tracer.Start(ctx, "eventbus.process")
	defer span.End()

	event := item.event
	taskID := item.taskID

	// Step 1: fold and persist. The current task is the source of truth for
	// the next fold; a missing task is simply nil prior (new task).
	prior, _ := p.store.Get(ctx, taskID)
	folded := taskmanager.Fold(prior, event, p.clock)

	if err := p.store.Save(ctx, folded); err != nil {
		// Step 2: substitute an InternalError event in place of the one
		// that failed to persist, so subscribers learn the task is in an
		// indeterminate state rather than silently stalling (spec.md §7,
		// Open Question: adopted).
		p.logger.Error(ctx, "failed to persist task event", err, "taskId", taskID)
		p.meter.IncCounter("a2a.eventbus.persist_errors", 1)
		event = types.NewInternalErrorEvent(taskID, errs.Wrap(errs.KindTaskPersistenceError, err,
			"failed to persist event for task %s", taskID).Error())
		folded = prior
	}

	task := folded
	if task != nil && task.Status.State.IsFinal() {
		p.tracker.markFinalized(taskID)
	}

	// Step 3: fire push notifications asynchronously; never block
	// distribution on webhook delivery (spec.md §4.8).
	if p.push != nil && task != nil {
		go p.push.Notify(context.WithoutCancel(ctx), task, event)
	}

	// Step 4: distribute to every attached child, in persisted order.
	mq := p.queues.CreateOrTap(taskID)
	mq.EnqueueEvent(ctx, event)

	// Step 5: test-observability and finalization callbacks.
	if p.observe != nil {
		p.observe(taskID, event, task)
	}
	if task != nil && task.Status.State.IsFinal() && p.onFinalized != nil {
		p.onFinalized(taskID, task)
	}

	// Step 6 (the admission permit) is released by the deferred item.release
	// above regardless of how this function returns.
}
