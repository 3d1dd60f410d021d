package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/anonto42/nano-midea/livechat/internal/repositories"
	"github.com/golang/glog"
	"google.golang.org/api/iterator"
)

const defaultTaskCapacity = 100

// Dispatcher runs fn on the goroutine that owns the feed store
type Dispatcher interface {
	Dispatch(ctx context.Context, fn func()) error
}

type loopTask struct {
	fn   func()
	done chan struct{}
}

// Loop is the single goroutine owning the store. Stream batches and
// dispatched tasks are handled one at a time, in arrival order.
type Loop struct {
	reconciler *Reconciler
	tasks      chan loopTask
	stopped    chan struct{}
	stopOnce   sync.Once
}

func NewLoop(reconciler *Reconciler) *Loop {
	return &Loop{
		reconciler: reconciler,
		tasks:      make(chan loopTask, defaultTaskCapacity),
		stopped:    make(chan struct{}),
	}
}

// Run consumes the change stream until ctx is done or the stream ends.
// The iterator is stopped on return; a Loop runs once.
func (l *Loop) Run(ctx context.Context, changes repositories.ChangeIterator) error {
	defer l.stopOnce.Do(func() { close(l.stopped) })
	defer changes.Stop()

	batches := make(chan models.Batch)
	streamErr := make(chan error, 1)
	go func() {
		for {
			batch, err := changes.Next()
			if err != nil {
				streamErr <- err
				return
			}
			select {
			case batches <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()

	glog.Infof("[loop]started\n")
	for {
		select {
		case <-ctx.Done():
			glog.Infof("[loop]stopped = %s\n", ctx.Err())
			return ctx.Err()
		case batch := <-batches:
			l.reconciler.Apply(batch)
		case task := <-l.tasks:
			task.fn()
			close(task.done)
		case err := <-streamErr:
			if ctx.Err() != nil {
				glog.Infof("[loop]stopped = %s\n", ctx.Err())
				return ctx.Err()
			}
			if errors.Is(err, iterator.Done) {
				glog.Infof("[loop]change stream ended\n")
				return nil
			}
			return fmt.Errorf("change stream: %w", err)
		}
	}
}

// Dispatch runs fn on the loop goroutine and waits for it to finish
func (l *Loop) Dispatch(ctx context.Context, fn func()) error {
	task := loopTask{fn: fn, done: make(chan struct{})}
	select {
	case l.tasks <- task:
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-task.done:
		return nil
	case <-l.stopped:
		select {
		case <-task.done:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach hands fn the current feed on the loop goroutine. Renderer
// notifications emitted after fn returns are strictly newer than the snapshot.
func (l *Loop) Attach(ctx context.Context, fn func(entries []models.FeedEntry)) error {
	return l.Dispatch(ctx, func() {
		fn(l.reconciler.Store().Snapshot())
	})
}

// Snapshot returns the feed in presentation order
func (l *Loop) Snapshot(ctx context.Context) ([]models.FeedEntry, error) {
	var entries []models.FeedEntry
	err := l.Attach(ctx, func(e []models.FeedEntry) { entries = e })
	return entries, err
}
