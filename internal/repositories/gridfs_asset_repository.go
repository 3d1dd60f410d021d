package repositories

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anonto42/nano-midea/livechat/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GridFSAssetRepository stores assets in a MongoDB GridFS bucket and serves them
// back through the API under publicBaseURL
type GridFSAssetRepository struct {
	bucket        *gridfs.Bucket
	publicBaseURL string
}

// NewGridFSAssetRepository creates a new GridFSAssetRepository
func NewGridFSAssetRepository(db *mongo.Database, publicBaseURL string) (*GridFSAssetRepository, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName("assets"))
	if err != nil {
		return nil, fmt.Errorf("open gridfs bucket: %w", err)
	}
	return &GridFSAssetRepository{
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

// Upload streams the asset into GridFS under path
func (r *GridFSAssetRepository) Upload(_ context.Context, path string, asset models.Asset) (models.UploadResult, error) {
	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": asset.ContentType})
	fileID, err := r.bucket.UploadFromStream(path, asset.Body, opts)
	if err != nil {
		return models.UploadResult{}, fmt.Errorf("upload %s: %w", path, err)
	}
	return models.UploadResult{
		FinalURL:        fmt.Sprintf("%s/api/v1/assets/%s", r.publicBaseURL, fileID.Hex()),
		StorageLocation: path,
	}, nil
}

// Open reads a stored asset by file id
func (r *GridFSAssetRepository) Open(_ context.Context, id string) ([]byte, string, error) {
	fileID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, "", fmt.Errorf("invalid asset ID format: %w", err)
	}

	var buf bytes.Buffer
	if _, err := r.bucket.DownloadToStream(fileID, &buf); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, "", ErrEntryNotFound
		}
		return nil, "", err
	}

	contentType := "application/octet-stream"
	cursor, err := r.bucket.Find(bson.M{"_id": fileID})
	if err == nil {
		defer cursor.Close(context.Background())
		var file struct {
			Metadata struct {
				ContentType string `bson:"contentType"`
			} `bson:"metadata"`
		}
		if cursor.Next(context.Background()) && cursor.Decode(&file) == nil && file.Metadata.ContentType != "" {
			contentType = file.Metadata.ContentType
		}
	}
	return buf.Bytes(), contentType, nil
}
