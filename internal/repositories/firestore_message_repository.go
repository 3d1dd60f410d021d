package repositories

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/golang/glog"
)

// FirestoreMessageRepository implements MessageRepository for Cloud Firestore
type FirestoreMessageRepository struct {
	collection *firestore.CollectionRef
}

// NewFirestoreMessageRepository creates a new FirestoreMessageRepository
func NewFirestoreMessageRepository(client *firestore.Client, collection string) *FirestoreMessageRepository {
	return &FirestoreMessageRepository{collection: client.Collection(collection)}
}

// CreateEntry adds a message document stamped with the server timestamp
func (r *FirestoreMessageRepository) CreateEntry(ctx context.Context, doc models.MessageDoc) (string, time.Time, error) {
	fields := map[string]interface{}{
		"name":          doc.Name,
		"profilePicUrl": doc.ProfilePicURL,
		"timestamp":     firestore.ServerTimestamp,
	}
	if doc.Text != "" {
		fields["text"] = doc.Text
	}
	if doc.ImageURL != "" {
		fields["imageUrl"] = doc.ImageURL
	}

	ref, wr, err := r.collection.Add(ctx, fields)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("create message: %w", err)
	}
	// the server timestamp transform resolves to the commit time
	return ref.ID, wr.UpdateTime, nil
}

// UpdateEntry writes the final image url and storage location
func (r *FirestoreMessageRepository) UpdateEntry(ctx context.Context, id string, update models.MessageUpdate) error {
	_, err := r.collection.Doc(id).Update(ctx, []firestore.Update{
		{Path: "imageUrl", Value: update.ImageURL},
		{Path: "storageUri", Value: update.StorageURI},
	})
	if err != nil {
		return fmt.Errorf("update message %s: %w", id, err)
	}
	return nil
}

// Subscribe listens to the most recent windowSize messages, newest first
func (r *FirestoreMessageRepository) Subscribe(ctx context.Context, windowSize int) (ChangeIterator, error) {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	snapshots := r.collection.
		OrderBy("timestamp", firestore.Desc).
		Limit(windowSize).
		Snapshots(ctx)
	return &firestoreChangeIterator{snapshots: snapshots}, nil
}

type firestoreChangeIterator struct {
	snapshots *firestore.QuerySnapshotIterator
}

func (it *firestoreChangeIterator) Next() (models.Batch, error) {
	snap, err := it.snapshots.Next()
	if err != nil {
		return models.Batch{}, err
	}

	batch := models.Batch{Changes: make([]models.Change, 0, len(snap.Changes))}
	for _, ch := range snap.Changes {
		change := models.Change{ID: ch.Doc.Ref.ID}
		switch ch.Kind {
		case firestore.DocumentRemoved:
			change.Type = models.ChangeRemoved
			batch.Changes = append(batch.Changes, change)
			continue
		case firestore.DocumentAdded:
			change.Type = models.ChangeAdded
		case firestore.DocumentModified:
			change.Type = models.ChangeModified
		}

		var doc models.MessageDoc
		if err := ch.Doc.DataTo(&doc); err != nil {
			// left without a snapshot, the reconciler skips it as malformed
			glog.Warningf("[firestore]decode %s = %s\n", change.ID, err)
		} else {
			change.Doc = &doc
		}
		batch.Changes = append(batch.Changes, change)
	}
	return batch, nil
}

func (it *firestoreChangeIterator) Stop() {
	it.snapshots.Stop()
}
