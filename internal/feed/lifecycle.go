package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/anonto42/nano-midea/livechat/internal/repositories"
	"github.com/golang/glog"
)

// EntryState is where an asset-backed entry is in its two-phase creation
type EntryState int

const (
	StatePending EntryState = iota
	StateFinalizing
	StateFinalized
	StateFailed
)

func (s EntryState) String() string {
	switch s {
	case StateFinalizing:
		return "finalizing"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// settledCapacity bounds how many finalized or failed entries keep their state
const settledCapacity = 256

// Lifecycle creates entries on the remote store. Image entries are created as
// a placeholder first and finalized once their upload completes; the
// finalized content comes back through the change stream like any other edit.
type Lifecycle struct {
	messages   repositories.MessageRepository
	assets     repositories.AssetRepository
	failures   repositories.FailureRepository
	reconciler *Reconciler
	dispatcher Dispatcher

	mu      sync.Mutex
	states  map[string]EntryState
	settled []string
	uploads sync.WaitGroup
}

func NewLifecycle(
	messages repositories.MessageRepository,
	assets repositories.AssetRepository,
	failures repositories.FailureRepository,
	reconciler *Reconciler,
	dispatcher Dispatcher,
) *Lifecycle {
	if failures == nil {
		failures = repositories.LogFailureRepository{}
	}
	return &Lifecycle{
		messages:   messages,
		assets:     assets,
		failures:   failures,
		reconciler: reconciler,
		dispatcher: dispatcher,
		states:     make(map[string]EntryState),
	}
}

// PostText creates a text entry in one step. It shows up through the stream.
func (l *Lifecycle) PostText(ctx context.Context, author models.CurrentUser, text string) (string, error) {
	id, _, err := l.messages.CreateEntry(ctx, models.NewTextMessage(author, text))
	if err != nil {
		return "", l.writeFailed(ctx, StageCreate, "", err)
	}
	glog.V(1).Infof("[lifecycle]text %s by %s\n", id, author.UID)
	return id, nil
}

// BeginPending creates a placeholder entry and shows it immediately.
// It returns once the remote store has acknowledged and assigned the id.
func (l *Lifecycle) BeginPending(ctx context.Context, author models.CurrentUser) (string, error) {
	id, ts, err := l.messages.CreateEntry(ctx, models.NewPendingMessage(author))
	if err != nil {
		return "", l.writeFailed(ctx, StageCreate, "", err)
	}
	l.setState(id, StatePending)

	// the placeholder is seated where the stream will report it
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := models.FeedEntry{
		ID:              id,
		AuthorName:      author.Name,
		AuthorAvatarURL: author.ProfilePicURL(),
		Timestamp:       &ts,
		Body:            models.PendingBody(),
	}
	if err := l.dispatcher.Dispatch(ctx, func() { l.reconciler.ApplyLocal(entry) }); err != nil {
		// the stream still delivers the placeholder
		glog.Warningf("[lifecycle]local placeholder %s = %s\n", id, err)
	}
	glog.V(1).Infof("[lifecycle]pending %s by %s\n", id, author.UID)
	return id, nil
}

// SendImage starts an image entry: the placeholder is created before this
// returns, the upload and finalize run in the background.
func (l *Lifecycle) SendImage(ctx context.Context, author models.CurrentUser, asset models.Asset) (string, error) {
	if !asset.IsImage() {
		return "", ErrNotImage
	}

	id, err := l.BeginPending(ctx, author)
	if err != nil {
		return "", err
	}

	path := fmt.Sprintf("%s/%s/%s", author.UID, id, asset.Name)
	// uploads are never cancelled, they outlive the request that started them
	uploadCtx := context.WithoutCancel(ctx)
	l.uploads.Add(1)
	go func() {
		defer l.uploads.Done()
		result, err := l.assets.Upload(uploadCtx, path, asset)
		if err != nil {
			l.uploadFailed(uploadCtx, id, path, err)
			return
		}
		if err := l.Finalize(uploadCtx, id, result.FinalURL, result.StorageLocation); err != nil {
			glog.Warningf("[lifecycle]finalize %s = %s\n", id, err)
		}
	}()
	return id, nil
}

// Finalize writes the final image url and storage location of a pending
// entry. A pending entry is finalized at most once.
func (l *Lifecycle) Finalize(ctx context.Context, id, finalURL, storageLocation string) error {
	l.mu.Lock()
	state, ok := l.states[id]
	if !ok {
		l.mu.Unlock()
		return ErrUnknownEntry
	}
	if state != StatePending {
		l.mu.Unlock()
		return ErrAlreadySettled
	}
	l.states[id] = StateFinalizing
	l.mu.Unlock()

	update := models.MessageUpdate{ImageURL: finalURL, StorageURI: storageLocation}
	if err := l.messages.UpdateEntry(ctx, id, update); err != nil {
		l.setState(id, StateFailed)
		return l.writeFailed(ctx, StageFinalize, id, err)
	}
	l.setState(id, StateFinalized)
	glog.Infof("[lifecycle]finalized %s at %s\n", id, storageLocation)
	return nil
}

// State returns the lifecycle state of an entry started on this client.
// Only the most recent settled entries are remembered.
func (l *Lifecycle) State(id string) (EntryState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.states[id]
	return s, ok
}

// Wait blocks until every upload started so far has settled
func (l *Lifecycle) Wait() {
	l.uploads.Wait()
}

func (l *Lifecycle) setState(id string, s EntryState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.states[id] = s
	if s != StateFinalized && s != StateFailed {
		return
	}
	l.settled = append(l.settled, id)
	if len(l.settled) > settledCapacity {
		delete(l.states, l.settled[0])
		l.settled = l.settled[1:]
	}
}

func (l *Lifecycle) writeFailed(ctx context.Context, stage, id string, err error) error {
	failure := &WriteFailure{
		Stage:     stage,
		EntryID:   id,
		Transient: repositories.IsTransient(err),
		Err:       err,
	}
	l.report(ctx, models.EntryFailure{
		EntryID:   id,
		Stage:     stage,
		Transient: failure.Transient,
		Message:   err.Error(),
	})
	return failure
}

func (l *Lifecycle) uploadFailed(ctx context.Context, id, path string, err error) {
	l.setState(id, StateFailed)
	failure := &UploadFailure{
		EntryID:   id,
		Path:      path,
		Transient: repositories.IsTransient(err),
		Err:       err,
	}
	glog.Warningf("[lifecycle]%s\n", failure)
	l.report(ctx, models.EntryFailure{
		EntryID:   id,
		Stage:     StageUpload,
		Transient: failure.Transient,
		Message:   failure.Error(),
	})
}

func (l *Lifecycle) report(ctx context.Context, failure models.EntryFailure) {
	if err := l.failures.Report(ctx, failure); err != nil {
		glog.Errorf("[lifecycle]report %s failure for %q = %s\n", failure.Stage, failure.EntryID, err)
	}
}
