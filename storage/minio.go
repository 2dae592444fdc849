package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio is an ObjectStore backed by any S3-compatible service.
type Minio struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

func NewMinio(endpoint, accessKey, secretKey, bucket, publicBase string, secure bool) (*Minio, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &Minio{client: client, bucket: bucket, publicBase: publicBase}, nil
}

func (m *Minio) Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) error {
	if !upsert {
		if _, err := m.client.StatObject(ctx, m.bucket, path, minio.StatObjectOptions{}); err == nil {
			return fmt.Errorf("%w: %s", ErrConflict, path)
		}
	}
	_, err := m.client.PutObject(ctx, m.bucket, path,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}

func (m *Minio) Download(ctx context.Context, path string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (m *Minio) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

func (m *Minio) Remove(ctx context.Context, paths ...string) error {
	for _, path := range paths {
		if err := m.client.RemoveObject(ctx, m.bucket, path, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

func (m *Minio) PublicURL(path string) string {
	return strings.TrimRight(m.publicBase, "/") + "/" + m.bucket + "/" + path
}
