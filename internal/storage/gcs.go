package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/joseph-ayodele/insolvency-docs/internal/common"
)

// GCSStore keeps blobs in a Cloud Storage bucket. Objects are written once;
// a second Put of the same key is a no-op.
type GCSStore struct {
	bucket *storage.BucketHandle
	name   string
	logger *slog.Logger
}

func NewGCSStore(client *storage.Client, bucket string, logger *slog.Logger) *GCSStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSStore{bucket: client.Bucket(bucket), name: bucket, logger: logger}
}

func (s *GCSStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	r, err := s.bucket.Object(k).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("gs://%s/%s", s.name, k), common.ErrNotFound)
	}
	if err != nil {
		s.logger.Error("failed to open gcs object", "bucket", s.name, "key", k, "error", err)
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	w := s.bucket.Object(k).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = http.DetectContentType(data)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			s.logger.Info("object already exists, skipping", "bucket", s.name, "key", k)
			return nil
		}
		s.logger.Error("failed to finalize gcs write", "bucket", s.name, "key", k, "error", err)
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}
