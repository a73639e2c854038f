package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/a2a/types"
)

type fakeStateProvider struct {
	mu       sync.Mutex
	finalized map[string]bool
}

func newFakeStateProvider() *fakeStateProvider {
	return &fakeStateProvider{finalized: make(map[string]bool)}
}

func (f *fakeStateProvider) IsFinalized(taskID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finalized[taskID]
}

func (f *fakeStateProvider) setFinalized(taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized[taskID] = true
}

func textEvent(text string) types.Event {
	return types.NewMessageEvent(&types.Message{MessageID: text, Role: types.RoleAgent,
		Parts: []*types.Part{{Type: "text", Text: text}}})
}

// TestFanOutIsolation verifies spec.md §8: two ChildQueues on the same
// MainQueue each observe the full, independently-paced event sequence.
func TestFanOutIsolation(t *testing.T) {
	q := NewMainQueue("t1", 8, nil)
	a := q.Tap()
	b := q.Tap()
	require.Equal(t, 2, q.GetChildCount())

	ctx := context.Background()
	q.EnqueueEvent(ctx, textEvent("1"))
	q.EnqueueEvent(ctx, textEvent("2"))

	for _, want := range []string{"1", "2"} {
		item, ok, err := a.Dequeue(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, item.Event.Message.MessageID)
	}
	for _, want := range []string{"1", "2"} {
		item, ok, err := b.Dequeue(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, item.Event.Message.MessageID)
	}
}

// TestPerTaskFIFOOrdering verifies events are observed by a single child in
// the order they were enqueued (spec.md §8 per-task FIFO).
func TestPerTaskFIFOOrdering(t *testing.T) {
	q := NewMainQueue("t1", 16, nil)
	c := q.Tap()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		q.EnqueueEvent(ctx, textEvent(string(rune('a'+i))))
	}

	for i := 0; i < 10; i++ {
		item, ok, err := c.Dequeue(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, string(rune('a'+i)), item.Event.Message.MessageID)
	}
}

// TestOverflowForceClosesOnlyThatChild verifies spec.md §4.3 step 4 and §5: a
// child whose buffer is full is force-closed immediately by a non-blocking
// offer, rather than stalling EnqueueEvent for every other child or task.
func TestOverflowForceClosesOnlyThatChild(t *testing.T) {
	slow := NewMainQueue("slow", 1, nil)
	fast := NewMainQueue("fast", 1, nil)
	slowChild := slow.Tap()
	fastChild := fast.Tap()

	ctx := context.Background()
	slow.EnqueueEvent(ctx, textEvent("1")) // fills slowChild's buffer (capacity 1)

	done := make(chan struct{})
	go func() {
		slow.EnqueueEvent(ctx, textEvent("2")) // must not block: slowChild overflows and closes
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EnqueueEvent on a full child blocked instead of force-closing it")
	}

	// fast's distribution is unaffected by slow's overflow.
	fast.EnqueueEvent(ctx, textEvent("x"))
	item, ok, err := fastChild.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", item.Event.Message.MessageID)

	// slowChild was force-closed: it still delivers its one buffered event,
	// then reports closed rather than ever receiving event "2".
	item, ok, err = slowChild.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", item.Event.Message.MessageID)
	_, ok, err = slowChild.Dequeue(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, slow.GetChildCount())
}

// TestReferenceCountingLingersUntilFinalized verifies spec.md §4.4: the
// MainQueue stays open after its last child detaches if the task is not
// finalized, and closes once it is.
func TestReferenceCountingLingersUntilFinalized(t *testing.T) {
	state := newFakeStateProvider()
	q := NewMainQueue("t1", 4, state)
	c := q.Tap()
	c.Close()

	require.Equal(t, 0, q.GetChildCount())
	require.False(t, q.closed)

	state.setFinalized("t1")
	c2 := q.Tap()
	c2.Close()
	require.True(t, q.closed)
}

// TestCloseForceDetachesAllChildren verifies MainQueue.Close tears down every
// attached child regardless of reference count.
func TestCloseForceDetachesAllChildren(t *testing.T) {
	q := NewMainQueue("t1", 4, nil)
	a := q.Tap()
	b := q.Tap()
	q.Close()

	ctx := context.Background()
	_, okA, errA := a.Dequeue(ctx)
	_, okB, errB := b.Dequeue(ctx)
	require.NoError(t, errA)
	require.NoError(t, errB)
	require.False(t, okA)
	require.False(t, okB)
}

// TestChildCloseIdempotent verifies Close can be called multiple times safely.
func TestChildCloseIdempotent(t *testing.T) {
	q := NewMainQueue("t1", 4, nil)
	c := q.Tap()
	c.Close()
	c.Close()
	require.Equal(t, 0, q.GetChildCount())
}

// TestAwaitPollerStartUnblocksOnFirstDequeue verifies the
// subscribe-before-distribute helper signals exactly once.
func TestAwaitPollerStartUnblocksOnFirstDequeue(t *testing.T) {
	q := NewMainQueue("t1", 4, nil)
	c := q.Tap()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.EnqueueEvent(context.Background(), textEvent("1"))
	}()

	go func() {
		_, _, _ = c.Dequeue(context.Background())
	}()

	require.NoError(t, q.AwaitPollerStart(ctx))
}
