package repositories

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"cloud.google.com/go/storage"
	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/go-playground/assert/v2"
	"google.golang.org/api/option"
)

// fakeBucket answers JSON API uploads and counts them
func fakeBucket(t *testing.T) (*StorageAssetRepository, *atomic.Int32) {
	t.Helper()
	var uploads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/upload/") {
			http.NotFound(w, r)
			return
		}
		io.Copy(io.Discard, r.Body)
		uploads.Add(1)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"name":"u1/P/cat.png","bucket":"chat"}`)
	}))
	t.Cleanup(srv.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	assert.Equal(t, err, nil)
	t.Cleanup(func() { client.Close() })
	return NewStorageAssetRepository(client.Bucket("chat")), &uploads
}

func TestStorageUpload(t *testing.T) {
	repo, uploads := fakeBucket(t)

	result, err := repo.Upload(context.Background(), "u1/P/cat.png", models.Asset{
		Name:        "cat.png",
		ContentType: "image/png",
		Body:        strings.NewReader("\x89PNG"),
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, uploads.Load(), int32(1))
	assert.Equal(t, result.StorageLocation, "u1/P/cat.png")
	assert.Equal(t, strings.HasPrefix(result.FinalURL, "https://firebasestorage.googleapis.com/v0/b/chat/o/u1%2FP%2Fcat.png?alt=media&token="), true)
}

func TestStorageUploadReadFailureCommitsNothing(t *testing.T) {
	repo, uploads := fakeBucket(t)

	body := io.MultiReader(strings.NewReader("\x89PNG"), iotest.ErrReader(errors.New("disk gone")))
	_, err := repo.Upload(context.Background(), "u1/P/cat.png", models.Asset{
		Name:        "cat.png",
		ContentType: "image/png",
		Body:        body,
	})
	assert.NotEqual(t, err, nil)
	assert.Equal(t, strings.Contains(err.Error(), "disk gone"), true)

	// the aborted writer must never send the truncated prefix
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, uploads.Load(), int32(0))
}
