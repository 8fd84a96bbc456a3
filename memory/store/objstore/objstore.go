// Package objstore mirrors crew files to an S3-compatible bucket.
package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mshafei721/ADOS-sub001/memory"
)

// Mirror uploads crew files as <prefix>/<crew>.json objects.
type Mirror struct {
	client *minio.Client
	bucket string
	prefix string
	logger *log.Logger

	mu          sync.Mutex
	bucketReady bool
}

var _ memory.Mirror = (*Mirror)(nil)

// New creates a Mirror. The bucket is created on first upload if missing.
func New(cfg memory.MirrorConfig) (*Mirror, error) {
	if !cfg.Enabled() {
		return nil, errors.New("objstore: endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: create client: %w", err)
	}

	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: log.Default().WithPrefix("objstore"),
	}, nil
}

// Upload stores data as the crew's object.
func (m *Mirror) Upload(ctx context.Context, crew string, data []byte) error {
	if err := m.ensureBucket(ctx); err != nil {
		return err
	}

	key := ObjectKey(m.prefix, crew)
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("objstore: put %s/%s: %w", m.bucket, key, err)
	}

	m.logger.Debug("mirrored crew memory", "bucket", m.bucket, "key", key, "bytes", len(data))
	return nil
}

func (m *Mirror) ensureBucket(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bucketReady {
		return nil
	}

	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("objstore: check bucket %s: %w", m.bucket, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("objstore: create bucket %s: %w", m.bucket, err)
		}
		m.logger.Info("created bucket", "bucket", m.bucket)
	}
	m.bucketReady = true
	return nil
}

// ObjectKey returns the object key for crew under prefix.
func ObjectKey(prefix, crew string) string {
	if prefix == "" {
		return crew + ".json"
	}
	return path.Join(prefix, crew+".json")
}
