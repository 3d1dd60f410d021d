package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/anonto42/nano-midea/livechat/internal/repositories"
	"github.com/go-playground/assert/v2"
	"google.golang.org/api/iterator"
)

// eventually polls cond until it holds or the deadline passes
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

// lockedRenderer records events from the loop goroutine for test readers
type lockedRenderer struct {
	mu      sync.Mutex
	changed []models.FeedEntry
	removed []string
}

func (r *lockedRenderer) OnEntryChanged(entry models.FeedEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, entry)
}

func (r *lockedRenderer) OnEntryRemoved(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
}

func (r *lockedRenderer) removedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.removed...)
}

type loopHarness struct {
	messages *repositories.MemoryMessageRepository
	loop     *Loop
	renderer *lockedRenderer
	cancel   context.CancelFunc
	done     chan error
	stopOnce sync.Once
	runErr   error
}

func startLoop(t *testing.T, windowSize int) *loopHarness {
	t.Helper()
	h := &loopHarness{
		messages: repositories.NewMemoryMessageRepository(),
		renderer: &lockedRenderer{},
		done:     make(chan error, 1),
	}
	h.loop = NewLoop(NewReconciler(NewStore(), h.renderer))

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	changes, err := h.messages.Subscribe(ctx, windowSize)
	assert.Equal(t, err, nil)

	go func() { h.done <- h.loop.Run(ctx, changes) }()
	t.Cleanup(h.stop)
	return h
}

func (h *loopHarness) stop() {
	h.stopOnce.Do(func() {
		h.cancel()
		h.runErr = <-h.done
	})
}

func (h *loopHarness) snapshot(t *testing.T) []models.FeedEntry {
	t.Helper()
	entries, err := h.loop.Snapshot(context.Background())
	assert.Equal(t, err, nil)
	return entries
}

func (h *loopHarness) ids(t *testing.T) []string {
	ids := []string{}
	for _, e := range h.snapshot(t) {
		ids = append(ids, e.ID)
	}
	return ids
}

var ada = models.CurrentUser{UID: "u1", Name: "Ada", AvatarURL: "https://example.com/ada.png"}

func TestLoopAppliesStream(t *testing.T) {
	h := startLoop(t, 0)
	ctx := context.Background()

	first, _, err := h.messages.CreateEntry(ctx, models.NewTextMessage(ada, "hello"))
	assert.Equal(t, err, nil)
	second, _, err := h.messages.CreateEntry(ctx, models.NewTextMessage(ada, "world"))
	assert.Equal(t, err, nil)

	eventually(t, func() bool { return len(h.snapshot(t)) == 2 })
	assert.Equal(t, h.ids(t), []string{first, second})

	assert.Equal(t, h.messages.Delete(ctx, first), nil)
	eventually(t, func() bool { return len(h.snapshot(t)) == 1 })
	assert.Equal(t, h.renderer.removedIDs(), []string{first})
}

func TestLoopWindowSlide(t *testing.T) {
	h := startLoop(t, 3)
	ctx := context.Background()

	var ids []string
	for _, text := range []string{"one", "two", "three", "four"} {
		id, _, err := h.messages.CreateEntry(ctx, models.NewTextMessage(ada, text))
		assert.Equal(t, err, nil)
		ids = append(ids, id)
	}

	eventually(t, func() bool {
		got := h.ids(t)
		return len(got) == 3 && got[2] == ids[3]
	})
	assert.Equal(t, h.ids(t), ids[1:])
	assert.Equal(t, h.renderer.removedIDs(), []string{ids[0]})
}

func TestLoopDispatchRunsOnLoop(t *testing.T) {
	h := startLoop(t, 0)

	ran := false
	err := h.loop.Dispatch(context.Background(), func() { ran = true })
	assert.Equal(t, err, nil)
	assert.Equal(t, ran, true)
}

func TestLoopDispatchAfterStop(t *testing.T) {
	h := startLoop(t, 0)
	h.stop()

	assert.Equal(t, errors.Is(h.runErr, context.Canceled), true)

	err := h.loop.Dispatch(context.Background(), func() {})
	assert.Equal(t, errors.Is(err, ErrLoopStopped), true)
}

func TestLoopDispatchHonorsContext(t *testing.T) {
	loop := NewLoop(NewReconciler(NewStore(), nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// nothing runs the loop, so the task never completes
	err := loop.Dispatch(ctx, func() {})
	assert.Equal(t, errors.Is(err, context.Canceled), true)
}

type endedIterator struct {
	err error
}

func (it endedIterator) Next() (models.Batch, error) { return models.Batch{}, it.err }
func (it endedIterator) Stop()                       {}

func TestLoopStreamEnd(t *testing.T) {
	loop := NewLoop(NewReconciler(NewStore(), nil))
	err := loop.Run(context.Background(), endedIterator{err: errors.New("permission denied")})
	assert.NotEqual(t, err, nil)

	loop = NewLoop(NewReconciler(NewStore(), nil))
	err = loop.Run(context.Background(), endedIterator{err: iterator.Done})
	assert.Equal(t, err, nil)
}
