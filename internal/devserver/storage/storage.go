package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/filedeck/filedeck/internal/devserver/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var errBadKey = errors.New("invalid storage key")

// Blobs stores file contents by key.
type Blobs interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, key string) error
}

// NewBlobs builds the storage backend selected by cfg.Driver.
func NewBlobs(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (Blobs, error) {
	switch cfg.Driver {
	case "minio":
		m, err := NewMinIOBlobs(cfg.MinIO, log)
		if err != nil {
			return nil, err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return m, nil
	case "s3":
		return NewS3Blobs(ctx, cfg.S3, log)
	case "disk", "":
		return NewDiskBlobs(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.Driver)
	}
}

// DiskBlobs keeps each blob as a file under Dir.
type DiskBlobs struct {
	Dir string
}

func NewDiskBlobs(dir string) (*DiskBlobs, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &DiskBlobs{Dir: dir}, nil
}

func (d *DiskBlobs) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return "", errBadKey
	}
	return filepath.Join(d.Dir, filepath.FromSlash(key)), nil
}

func (d *DiskBlobs) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (d *DiskBlobs) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (d *DiskBlobs) Delete(ctx context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MinIOBlobs stores blobs in one MinIO (or S3 compatible) bucket.
type MinIOBlobs struct {
	client *minio.Client
	bucket string
	log    *slog.Logger
}

func NewMinIOBlobs(cfg config.MinIOConfig, log *slog.Logger) (*MinIOBlobs, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinIOBlobs{client: client, bucket: cfg.Bucket, log: log}, nil
}

func (m *MinIOBlobs) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		m.log.Error("minio_upload_failed", "object_name", key, "size", size, "bucket", m.bucket, "error", err)
		return err
	}
	m.log.Debug("minio_upload_success", "object_name", key, "size", size, "bucket", m.bucket)
	return nil
}

func (m *MinIOBlobs) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		m.log.Error("minio_download_failed", "object_name", key, "bucket", m.bucket, "error", err)
		return nil, 0, err
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		m.log.Error("minio_download_stat_failed", "object_name", key, "bucket", m.bucket, "error", err)
		return nil, 0, err
	}
	return obj, info.Size, nil
}

func (m *MinIOBlobs) Delete(ctx context.Context, key string) error {
	err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		m.log.Error("minio_delete_failed", "object_name", key, "bucket", m.bucket, "error", err)
	}
	return err
}

func (m *MinIOBlobs) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed creating bucket %s: %w", m.bucket, err)
	}
	return nil
}
