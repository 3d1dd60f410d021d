package repositories

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/anonto42/nano-midea/livechat/internal/models"
)

type memoryBlob struct {
	contentType string
	data        []byte
}

// MemoryAssetRepository keeps uploaded assets in memory
type MemoryAssetRepository struct {
	mu        sync.Mutex
	blobs     map[string]memoryBlob
	uploadErr error
	gate      chan struct{}
	baseURL   string
}

// NewMemoryAssetRepository creates an empty MemoryAssetRepository
func NewMemoryAssetRepository() *MemoryAssetRepository {
	return &MemoryAssetRepository{blobs: make(map[string]memoryBlob)}
}

// WithBaseURL makes final urls point at the asset route under baseURL
// instead of the memory:// scheme
func (r *MemoryAssetRepository) WithBaseURL(baseURL string) *MemoryAssetRepository {
	r.baseURL = strings.TrimSuffix(baseURL, "/")
	return r
}

// SetUploadError makes subsequent uploads fail
func (r *MemoryAssetRepository) SetUploadError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploadErr = err
}

// Pause holds every upload until the returned resume func is called
func (r *MemoryAssetRepository) Pause() (resume func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gate := make(chan struct{})
	r.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if r.gate == gate {
				r.gate = nil
			}
			r.mu.Unlock()
			close(gate)
		})
	}
}

// Upload stores the asset under path
func (r *MemoryAssetRepository) Upload(ctx context.Context, path string, asset models.Asset) (models.UploadResult, error) {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.UploadResult{}, ctx.Err()
		}
	}

	r.mu.Lock()
	err := r.uploadErr
	r.mu.Unlock()
	if err != nil {
		return models.UploadResult{}, err
	}

	data, err := io.ReadAll(asset.Body)
	if err != nil {
		return models.UploadResult{}, fmt.Errorf("read asset: %w", err)
	}

	r.mu.Lock()
	r.blobs[path] = memoryBlob{contentType: asset.ContentType, data: data}
	r.mu.Unlock()

	finalURL := "memory://" + path
	if r.baseURL != "" {
		finalURL = r.baseURL + "/api/v1/assets/" + path
	}
	return models.UploadResult{
		FinalURL:        finalURL,
		StorageLocation: path,
	}, nil
}

// Open returns a stored asset by its storage location
func (r *MemoryAssetRepository) Open(_ context.Context, id string) ([]byte, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.blobs[id]
	if !ok {
		return nil, "", ErrEntryNotFound
	}
	return b.data, b.contentType, nil
}
