package repositories

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/oklog/ulid/v2"
)

// StorageAssetRepository uploads assets to the Firebase Cloud Storage bucket
type StorageAssetRepository struct {
	bucket *storage.BucketHandle
}

// NewStorageAssetRepository creates a new StorageAssetRepository
func NewStorageAssetRepository(bucket *storage.BucketHandle) *StorageAssetRepository {
	return &StorageAssetRepository{bucket: bucket}
}

// Upload writes the asset and returns its token-protected download url
func (r *StorageAssetRepository) Upload(ctx context.Context, path string, asset models.Asset) (models.UploadResult, error) {
	token := ulid.Make().String()

	// cancelling before Close aborts the write, Close would commit a truncated object
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := r.bucket.Object(path).NewWriter(ctx)
	w.ContentType = asset.ContentType
	w.Metadata = map[string]string{"firebaseStorageDownloadTokens": token}

	if _, err := io.Copy(w, asset.Body); err != nil {
		cancel()
		return models.UploadResult{}, fmt.Errorf("upload %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return models.UploadResult{}, fmt.Errorf("upload %s: %w", path, err)
	}

	fullPath := w.Attrs().Name
	return models.UploadResult{
		FinalURL:        downloadURL(r.bucket.BucketName(), fullPath, token),
		StorageLocation: fullPath,
	}, nil
}

func downloadURL(bucket, fullPath, token string) string {
	object := strings.ReplaceAll(url.PathEscape(fullPath), "/", "%2F")
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s", bucket, object, token)
}
