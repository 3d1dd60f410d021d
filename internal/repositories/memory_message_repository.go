package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/oklog/ulid/v2"
	"google.golang.org/api/iterator"
)

type memoryDoc struct {
	id  string
	seq int64
	doc models.MessageDoc
}

// MemoryMessageRepository is an in-process message store with the same
// windowed change-stream semantics as the Firestore collection
type MemoryMessageRepository struct {
	mu          sync.Mutex
	docs        map[string]*memoryDoc
	seq         int64
	now         func() time.Time
	last        time.Time
	subscribers map[*memoryChangeIterator]struct{}
	createErr   error
	updateErr   error
}

// NewMemoryMessageRepository creates an empty MemoryMessageRepository
func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		docs:        make(map[string]*memoryDoc),
		now:         time.Now,
		subscribers: make(map[*memoryChangeIterator]struct{}),
	}
}

// SetWriteErrors makes subsequent creates and updates fail with the given errors
func (r *MemoryMessageRepository) SetWriteErrors(create, update error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createErr = create
	r.updateErr = update
}

// CreateEntry stores a new document with a server-assigned timestamp
func (r *MemoryMessageRepository) CreateEntry(_ context.Context, doc models.MessageDoc) (string, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return "", time.Time{}, r.createErr
	}

	id := ulid.Make().String()
	ts := r.stamp()
	doc.Timestamp = &ts
	r.seq++
	r.docs[id] = &memoryDoc{id: id, seq: r.seq, doc: doc}
	r.publish()
	return id, ts, nil
}

// UpdateEntry writes the finalize fields over an existing document
func (r *MemoryMessageRepository) UpdateEntry(_ context.Context, id string, update models.MessageUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.updateErr != nil {
		return r.updateErr
	}
	d, ok := r.docs[id]
	if !ok {
		return ErrEntryNotFound
	}
	d.doc = d.doc.Apply(update)
	r.publish()
	return nil
}

// Delete removes a document, sliding older documents back into the window
func (r *MemoryMessageRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[id]; !ok {
		return ErrEntryNotFound
	}
	delete(r.docs, id)
	r.publish()
	return nil
}

// Doc returns the stored document
func (r *MemoryMessageRepository) Doc(id string) (models.MessageDoc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.docs[id]
	if !ok {
		return models.MessageDoc{}, false
	}
	return d.doc, true
}

// Subscribe starts a change stream over the most recent windowSize documents.
// The first batch holds the current window as additions.
func (r *MemoryMessageRepository) Subscribe(ctx context.Context, windowSize int) (ChangeIterator, error) {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	it := &memoryChangeIterator{
		repo:   r,
		window: windowSize,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	it.prev = r.windowLocked(windowSize)
	it.enqueue(models.Batch{Changes: diffWindow(nil, it.prev)})
	r.subscribers[it] = struct{}{}
	r.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			it.Stop()
		case <-it.done:
		}
	}()
	return it, nil
}

// stamp returns a strictly increasing server time
func (r *MemoryMessageRepository) stamp() time.Time {
	t := r.now().UTC()
	if !t.After(r.last) {
		t = r.last.Add(time.Microsecond)
	}
	r.last = t
	return t
}

func (r *MemoryMessageRepository) publish() {
	for it := range r.subscribers {
		next := r.windowLocked(it.window)
		changes := diffWindow(it.prev, next)
		it.prev = next
		if len(changes) > 0 {
			it.enqueue(models.Batch{Changes: changes})
		}
	}
}

// windowLocked orders by timestamp desc like the remote query, newest first
func (r *MemoryMessageRepository) windowLocked(n int) []windowDoc {
	all := make([]*memoryDoc, 0, len(r.docs))
	for _, d := range r.docs {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool {
		ti, tj := all[i].doc.Timestamp, all[j].doc.Timestamp
		if !ti.Equal(*tj) {
			return ti.After(*tj)
		}
		return all[i].seq > all[j].seq
	})
	if len(all) > n {
		all = all[:n]
	}

	out := make([]windowDoc, len(all))
	for i, d := range all {
		out[i] = windowDoc{ID: d.id, Doc: d.doc}
	}
	return out
}

type memoryChangeIterator struct {
	repo   *MemoryMessageRepository
	window int
	prev   []windowDoc // guarded by repo.mu

	mu       sync.Mutex
	queue    []models.Batch
	notify   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (it *memoryChangeIterator) enqueue(b models.Batch) {
	it.mu.Lock()
	it.queue = append(it.queue, b)
	it.mu.Unlock()

	select {
	case it.notify <- struct{}{}:
	default:
	}
}

func (it *memoryChangeIterator) Next() (models.Batch, error) {
	for {
		select {
		case <-it.done:
			return models.Batch{}, iterator.Done
		default:
		}

		it.mu.Lock()
		if len(it.queue) > 0 {
			b := it.queue[0]
			it.queue = it.queue[1:]
			it.mu.Unlock()
			return b, nil
		}
		it.mu.Unlock()

		select {
		case <-it.notify:
		case <-it.done:
			return models.Batch{}, iterator.Done
		}
	}
}

func (it *memoryChangeIterator) Stop() {
	it.stopOnce.Do(func() {
		close(it.done)
		it.repo.mu.Lock()
		delete(it.repo.subscribers, it)
		it.repo.mu.Unlock()
	})
}
