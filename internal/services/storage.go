package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"

	apperrors "abocaments-api/internal/errors"
	"abocaments-api/internal/models"
)

// ifGenerationMatchHeader makes the signed PUT succeed only while the object
// does not exist yet, so each capability can be used once.
const ifGenerationMatchHeader = "x-goog-if-generation-match"

type StorageService struct {
	client     *storage.Client
	bucketName string
}

func NewStorageService(client *storage.Client, bucketName string) *StorageService {
	return &StorageService{
		client:     client,
		bucketName: bucketName,
	}
}

// Issues a V4 signed PUT URL for path valid for ttl.
func (s *StorageService) IssueUploadCapability(ctx context.Context, path, contentType string, ttl time.Duration) (models.UploadCapability, error) {
	url, err := s.client.Bucket(s.bucketName).SignedURL(path, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		Expires:     time.Now().Add(ttl),
		ContentType: contentType,
		Headers:     []string{ifGenerationMatchHeader + ":0"},
	})
	if err != nil {
		return models.UploadCapability{}, fmt.Errorf("failed to sign upload url for %s: %w", path, err)
	}

	return models.UploadCapability{
		Path:       path,
		Capability: url,
		Method:     http.MethodPut,
		Headers: map[string]string{
			"Content-Type":          contentType,
			ifGenerationMatchHeader: "0",
		},
	}, nil
}

// Retrieves a file from Google Cloud Storage by its path.
// Returns the file contents as bytes or an error if the file cannot be retrieved.
func (s *StorageService) FetchFile(ctx context.Context, filePath string) ([]byte, error) {
	bucket := s.client.Bucket(s.bucketName)
	obj := bucket.Object(filePath)

	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, apperrors.New(apperrors.ErrNotFound, "blob not found")
		}
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}
