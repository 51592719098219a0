package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/eventface/internal/config"
	"github.com/your-org/eventface/internal/faceerr"
)

// BlobStore holds the uploaded image bytes. Photo references produced by
// batch uploads are object keys in this store.
type BlobStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeletePrefix(ctx context.Context, prefix string) error
	Ping(ctx context.Context) error
}

// EventPrefix is the key prefix shared by every object of one event.
func EventPrefix(eventID uuid.UUID) string {
	return "events/" + eventID.String() + "/"
}

// BatchPrefix is the key prefix of every image uploaded with one batch.
func BatchPrefix(eventID, batchID uuid.UUID) string {
	return EventPrefix(eventID) + "batches/" + batchID.String() + "/"
}

// BatchItemKey names the uploaded image of one batch item.
func BatchItemKey(eventID, batchID uuid.UUID, index int, filename string) string {
	return fmt.Sprintf("%s%04d-%s", BatchPrefix(eventID, batchID), index, path.Base(filename))
}

type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

func (s *MinIOStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return faceerr.Storage("put object", fmt.Errorf("%s: %w", key, err))
	}
	return nil
}

// GetObject returns a reference error when the key does not exist.
func (s *MinIOStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, faceerr.Storage("get object", fmt.Errorf("%s: %w", key, err))
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, faceerr.Reference("get object", "object %s not found", key)
		}
		return nil, faceerr.Storage("read object", fmt.Errorf("%s: %w", key, err))
	}
	return data, nil
}

// DeletePrefix removes every object under prefix in batched requests. A
// failed listing is reported like a failed removal.
func (s *MinIOStore) DeletePrefix(ctx context.Context, prefix string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var listErr error
	listed := make(chan struct{})
	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(listed)
		defer close(objectsCh)
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if obj.Err != nil {
				listErr = obj.Err
				return
			}
			select {
			case objectsCh <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	var removeErr error
	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil && removeErr == nil {
			removeErr = fmt.Errorf("%s: %w", result.ObjectName, result.Err)
		}
	}
	cancel()
	<-listed

	if listErr != nil {
		return faceerr.Storage("delete prefix", fmt.Errorf("list %s: %w", prefix, listErr))
	}
	if removeErr != nil {
		return faceerr.Storage("delete prefix", removeErr)
	}
	return nil
}

func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
