package repositories

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/anonto42/nano-midea/livechat/internal/models"
	"go.mongodb.org/mongo-driver/mongo"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultWindowSize is how many of the most recent messages a subscription keeps
const DefaultWindowSize = 12

var ErrEntryNotFound = errors.New("entry not found")

// MessageRepository is the remote message store: writes plus the change stream
type MessageRepository interface {
	// CreateEntry returns the assigned id and the acknowledged server timestamp
	CreateEntry(ctx context.Context, doc models.MessageDoc) (string, time.Time, error)
	UpdateEntry(ctx context.Context, id string, update models.MessageUpdate) error
	Subscribe(ctx context.Context, windowSize int) (ChangeIterator, error)
}

// ChangeIterator is a lazy, non-restartable sequence of batches.
// Next blocks until a batch is available and returns iterator.Done after Stop.
type ChangeIterator interface {
	Next() (models.Batch, error)
	Stop()
}

// AssetRepository stores binary assets for image messages
type AssetRepository interface {
	Upload(ctx context.Context, path string, asset models.Asset) (models.UploadResult, error)
}

// AssetReader is implemented by asset stores that serve their own downloads
type AssetReader interface {
	Open(ctx context.Context, id string) (body []byte, contentType string, err error)
}

// FailureRepository receives reports of entries that failed to create or finalize
type FailureRepository interface {
	Report(ctx context.Context, failure models.EntryFailure) error
}

// FailureJournal lists the failures recorded for an entry, oldest first
type FailureJournal interface {
	GetByEntryID(ctx context.Context, entryID string) ([]models.EntryFailure, error)
}

// IsTransient reports whether a write or upload error is worth retrying upstream
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
			return true
		}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}
