package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"streamify/internal/config"
	"streamify/internal/media"
)

// minioStorage implements the Storage interface using an S3-compatible backend (MinIO, AWS S3, etc.).
// It is safe for concurrent use by multiple goroutines.
type minioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinIO creates a new S3-compatible storage client backed by MinIO.
// It validates connectivity and ensures the bucket exists (creates it if missing).
func NewMinIO(cfg config.MinIOConfig) (Storage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	transport, err := minio.DefaultTransport(cfg.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("create minio transport: %w", err)
	}
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Transport: otelhttp.NewTransport(transport),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ms := &minioStorage{client: cli, bucket: cfg.Bucket}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Ensure bucket exists.
	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return ms, nil
}

// Put uploads an object using streaming I/O only (no local disk).
// S3 PUTs are atomic, so a partially uploaded object is never listed.
func (m *minioStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	clean, err := media.CleanKey(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	size := opt.Size
	if size <= 0 {
		size = -1
	}
	ct := opt.ContentType
	if ct == "" {
		ct = media.ContentTypeFor(clean)
	}
	info, err := m.client.PutObject(ctx, m.bucket, clean, r, size, minio.PutObjectOptions{
		ContentType:  ct,
		UserMetadata: opt.Metadata,
	})
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{
		Key:          clean,
		Size:         info.Size,
		ContentType:  ct,
		LastModified: time.Now(), // MinIO PutObjectInfo doesn't return LastModified
	}, nil
}

func (m *minioStorage) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	clean, err := media.CleanKey(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	st, err := m.client.StatObject(ctx, m.bucket, clean, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, mapMinIOError(err)
	}
	return objectInfo(clean, st), nil
}

// Get downloads an object content as a ReadCloser along with basic info.
// With a range, only that slice is requested from the server.
func (m *minioStorage) Get(ctx context.Context, key string, rng *Range) (io.ReadCloser, ObjectInfo, error) {
	clean, err := media.CleanKey(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	opts := minio.GetObjectOptions{}
	if rng != nil {
		if err := opts.SetRange(rng.Start, rng.End); err != nil {
			return nil, ObjectInfo{}, fmt.Errorf("set range: %w", err)
		}
	}
	obj, err := m.client.GetObject(ctx, m.bucket, clean, opts)
	if err != nil {
		return nil, ObjectInfo{}, mapMinIOError(err)
	}
	// Fetch stat to populate info; avoid reading content into memory.
	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, ObjectInfo{}, mapMinIOError(err)
	}
	return obj, objectInfo(clean, st), nil
}

// Delete removes an object by key.
func (m *minioStorage) Delete(ctx context.Context, key string) error {
	clean, err := media.CleanKey(key)
	if err != nil {
		return err
	}
	return m.client.RemoveObject(ctx, m.bucket, clean, minio.RemoveObjectOptions{})
}

func (m *minioStorage) Ping(ctx context.Context) error {
	ok, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", m.bucket)
	}
	return nil
}

func objectInfo(key string, st minio.ObjectInfo) ObjectInfo {
	ct := st.ContentType
	if ct == "" {
		ct = media.ContentTypeFor(key)
	}
	return ObjectInfo{
		Key:          key,
		Size:         st.Size,
		ContentType:  ct,
		LastModified: st.LastModified,
	}
}

func mapMinIOError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return err
}
