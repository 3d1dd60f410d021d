package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/golang/glog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/api/iterator"
)

// mongoMessage is the stored form of a message in MongoDB
type mongoMessage struct {
	ID                primitive.ObjectID `bson:"_id"`
	models.MessageDoc `bson:",inline"`
}

// MongoMessageRepository implements MessageRepository for MongoDB.
// The change stream requires a replica set deployment.
type MongoMessageRepository struct {
	collection *mongo.Collection
}

// NewMongoMessageRepository creates a new MongoMessageRepository
func NewMongoMessageRepository(db *mongo.Database, collection string) *MongoMessageRepository {
	return &MongoMessageRepository{collection: db.Collection(collection)}
}

// CreateEntry inserts a message and lets the server assign its timestamp
func (r *MongoMessageRepository) CreateEntry(ctx context.Context, doc models.MessageDoc) (string, time.Time, error) {
	id := primitive.NewObjectID()
	doc.Timestamp = nil
	update := bson.M{
		"$set":         doc,
		"$currentDate": bson.M{"timestamp": true},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored mongoMessage
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&stored)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("create message: %w", err)
	}
	var ts time.Time
	if stored.Timestamp != nil {
		ts = *stored.Timestamp
	}
	return id.Hex(), ts, nil
}

// UpdateEntry writes the final image url and storage location
func (r *MongoMessageRepository) UpdateEntry(ctx context.Context, id string, update models.MessageUpdate) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid message ID format: %w", err)
	}

	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("update message %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Subscribe watches the collection and re-reads the window on every change,
// reporting the difference as a batch
func (r *MongoMessageRepository) Subscribe(ctx context.Context, windowSize int) (ChangeIterator, error) {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	// open the stream before the first read so nothing is missed in between
	stream, err := r.collection.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, fmt.Errorf("watch messages: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	return &mongoChangeIterator{
		ctx:    ctx,
		cancel: cancel,
		repo:   r,
		stream: stream,
		window: windowSize,
	}, nil
}

func (r *MongoMessageRepository) recent(ctx context.Context, n int) ([]windowDoc, error) {
	findOptions := options.Find().
		SetLimit(int64(n)).
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.D{}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []mongoMessage
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	docs := make([]windowDoc, len(messages))
	for i, m := range messages {
		docs[i] = windowDoc{ID: m.ID.Hex(), Doc: m.MessageDoc}
	}
	return docs, nil
}

type mongoChangeIterator struct {
	ctx     context.Context
	cancel  context.CancelFunc
	repo    *MongoMessageRepository
	stream  *mongo.ChangeStream
	window  int
	started bool
	prev    []windowDoc
}

func (it *mongoChangeIterator) Next() (models.Batch, error) {
	if !it.started {
		it.started = true
		return it.refresh()
	}
	for {
		if !it.stream.Next(it.ctx) {
			err := it.stream.Err()
			if closeErr := it.stream.Close(context.Background()); closeErr != nil {
				glog.Warningf("[mongo]close change stream = %s\n", closeErr)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return models.Batch{}, err
			}
			return models.Batch{}, iterator.Done
		}
		glog.V(2).Infof("[mongo]change resume token = %s\n", it.stream.ResumeToken())

		batch, err := it.refresh()
		if err != nil {
			return models.Batch{}, err
		}
		// changes to documents outside the window produce nothing
		if len(batch.Changes) > 0 {
			return batch, nil
		}
	}
}

func (it *mongoChangeIterator) refresh() (models.Batch, error) {
	next, err := it.repo.recent(it.ctx, it.window)
	if err != nil {
		return models.Batch{}, fmt.Errorf("read message window: %w", err)
	}
	changes := diffWindow(it.prev, next)
	it.prev = next
	return models.Batch{Changes: changes}, nil
}

// Stop cancels the blocked Next, which closes the stream on its way out
func (it *mongoChangeIterator) Stop() {
	it.cancel()
}
