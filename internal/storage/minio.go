package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/repository"
)

const (
	descriptorPrefix  = "descriptors/"
	errCodeNoSuchKey  = "NoSuchKey"
	objectContentType = "application/json"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore keeps each user's reference descriptor as a JSON object
// under descriptors/<user_id>.json.
type MinIOStore struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

func NewMinIOStore(cfg MinIOConfig) (*MinIOStore, error) {
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
		now:    time.Now,
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

// Save writes the reference, replacing any previous one. The creation
// time of an existing reference is kept.
func (s *MinIOStore) Save(ctx context.Context, ref *domain.FaceReference) error {
	if len(ref.Descriptor) == 0 {
		return fmt.Errorf("save descriptor: empty descriptor for user %s", ref.UserID)
	}

	now := s.now().UTC()
	createdAt := now
	existing, err := s.Load(ctx, ref.UserID)
	switch {
	case err == nil:
		createdAt = existing.CreatedAt
	case !errors.Is(err, domain.ErrNoReferenceDescriptor):
		return fmt.Errorf("save descriptor: %w", err)
	}

	ref.CreatedAt = createdAt
	ref.UpdatedAt = now

	data, err := encodeReference(ref)
	if err != nil {
		return fmt.Errorf("save descriptor: %w", err)
	}

	key := objectKey(ref.UserID)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: objectContentType,
	})
	if err != nil {
		return fmt.Errorf("save descriptor: put object %s: %w", key, err)
	}
	return nil
}

func (s *MinIOStore) Load(ctx context.Context, userID string) (*domain.FaceReference, error) {
	key := objectKey(userID)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyObjectError("load descriptor", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classifyObjectError("load descriptor", key, err)
	}

	ref, err := decodeReference(data)
	if err != nil {
		return nil, fmt.Errorf("load descriptor %s: %w", key, err)
	}
	return ref, nil
}

func (s *MinIOStore) Delete(ctx context.Context, userID string) error {
	key := objectKey(userID)
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return classifyObjectError("delete descriptor", key, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete descriptor: remove object %s: %w", key, err)
	}
	return nil
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("ping minio: %w", err)
	}
	return nil
}

func objectKey(userID string) string {
	return descriptorPrefix + userID + ".json"
}

func classifyObjectError(op, key string, err error) error {
	if minio.ToErrorResponse(err).Code == errCodeNoSuchKey {
		return domain.ErrNoReferenceDescriptor
	}
	return fmt.Errorf("%s: object %s: %w", op, key, err)
}

var _ repository.DescriptorStore = (*MinIOStore)(nil)
