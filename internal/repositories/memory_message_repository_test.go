package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/go-playground/assert/v2"
	"google.golang.org/api/iterator"
)

var author = models.CurrentUser{UID: "u1", Name: "Ada"}

func TestMemoryMessageRepositoryInitialWindow(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMessageRepository()
	for i := 0; i < DefaultWindowSize+1; i++ {
		_, _, err := repo.CreateEntry(ctx, models.NewTextMessage(author, fmt.Sprintf("m%d", i)))
		assert.Equal(t, err, nil)
	}

	it, err := repo.Subscribe(ctx, 0)
	assert.Equal(t, err, nil)
	defer it.Stop()

	b, err := it.Next()
	assert.Equal(t, err, nil)
	assert.Equal(t, len(b.Changes), DefaultWindowSize)
	assert.Equal(t, b.Changes[0].Doc.Text, fmt.Sprintf("m%d", DefaultWindowSize))
	assert.Equal(t, b.Changes[len(b.Changes)-1].Doc.Text, "m1")
}

func TestMemoryMessageRepositoryStream(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMessageRepository()

	it, err := repo.Subscribe(ctx, 2)
	assert.Equal(t, err, nil)
	defer it.Stop()

	b, err := it.Next()
	assert.Equal(t, err, nil)
	assert.Equal(t, len(b.Changes), 0)

	first, _, _ := repo.CreateEntry(ctx, models.NewPendingMessage(author))
	b, _ = it.Next()
	assert.Equal(t, b.Changes[0].Type, models.ChangeAdded)
	assert.Equal(t, b.Changes[0].ID, first)
	assert.Equal(t, b.Changes[0].Doc.Timestamp != nil, true)

	err = repo.UpdateEntry(ctx, first, models.MessageUpdate{ImageURL: "https://cdn/x.png", StorageURI: "u1/x.png"})
	assert.Equal(t, err, nil)
	b, _ = it.Next()
	assert.Equal(t, b.Changes[0].Type, models.ChangeModified)
	assert.Equal(t, b.Changes[0].Doc.StorageURI, "u1/x.png")

	repo.CreateEntry(ctx, models.NewTextMessage(author, "two"))
	it.Next()
	repo.CreateEntry(ctx, models.NewTextMessage(author, "three"))
	b, _ = it.Next()
	assert.Equal(t, b.Changes[0], models.Change{Type: models.ChangeRemoved, ID: first})
	assert.Equal(t, b.Changes[1].Type, models.ChangeAdded)

	assert.Equal(t, errors.Is(repo.UpdateEntry(ctx, "missing", models.MessageUpdate{}), ErrEntryNotFound), true)
	assert.Equal(t, errors.Is(repo.Delete(ctx, "missing"), ErrEntryNotFound), true)
}

func TestMemoryMessageRepositoryTimestampsIncrease(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMessageRepository()

	a, tsA, _ := repo.CreateEntry(ctx, models.NewTextMessage(author, "a"))
	b, tsB, _ := repo.CreateEntry(ctx, models.NewTextMessage(author, "b"))

	da, _ := repo.Doc(a)
	db, _ := repo.Doc(b)
	assert.Equal(t, db.Timestamp.After(*da.Timestamp), true)
	assert.Equal(t, da.Timestamp.Equal(tsA), true)
	assert.Equal(t, db.Timestamp.Equal(tsB), true)
}

func TestMemoryMessageRepositoryStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := NewMemoryMessageRepository()

	it, err := repo.Subscribe(ctx, 0)
	assert.Equal(t, err, nil)
	it.Next()

	cancel()
	_, err = it.Next()
	assert.Equal(t, err, iterator.Done)

	it.Stop()
	_, err = it.Next()
	assert.Equal(t, err, iterator.Done)
}

func TestMemoryMessageRepositoryWriteErrors(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMessageRepository()
	boom := errors.New("boom")

	repo.SetWriteErrors(boom, nil)
	_, _, err := repo.CreateEntry(ctx, models.NewTextMessage(author, "a"))
	assert.Equal(t, err, boom)
}
