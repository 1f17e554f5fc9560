// Package objectstore wraps an S3-compatible bucket holding raw documents
// and derived text.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config carries the connection settings for the bucket.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// Store is a thin client for one bucket.
type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// New creates a Store for the configured bucket. A nil logger falls back to
// slog.Default().
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Bucket returns the bucket name the store operates on.
func (s *Store) Bucket() string {
	return s.bucket
}

// Stat returns the object size and whether the key exists.
func (s *Store) Stat(ctx context.Context, key string) (size int64, exists bool, err error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("stat %s: %w", key, err)
	}
	return info.Size, true, nil
}

// PutText writes a plain-text object.
func (s *Store) PutText(ctx context.Context, key, text string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, strings.NewReader(text), int64(len(text)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return fmt.Errorf("putting %s: %w", key, err)
	}
	s.logger.Debug("object written", "key", key, "bytes", len(text))
	return nil
}

// GetText reads an object as a string.
func (s *Store) GetText(ctx context.Context, key string) (string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("getting %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return string(data), nil
}

// List returns all keys under a prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// UploadFile copies a local file to the given key. The upload is skipped when
// the destination already holds an object of the same size, which makes
// re-runs of the pipeline no-ops for already-uploaded documents. Returns true
// if the object was uploaded, false if it was skipped.
func (s *Store) UploadFile(ctx context.Context, localPath, key string) (bool, error) {
	fi, err := os.Stat(localPath)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", localPath, err)
	}

	remoteSize, exists, err := s.Stat(ctx, key)
	if err != nil {
		return false, err
	}
	if exists && remoteSize == fi.Size() {
		s.logger.Debug("upload skipped, same size", "path", localPath, "key", key)
		return false, nil
	}

	if _, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{}); err != nil {
		return false, fmt.Errorf("uploading %s: %w", localPath, err)
	}
	s.logger.Info("uploaded", "path", localPath, "key", key, "bytes", fi.Size())
	return true, nil
}

// documentExts are the file types accepted for ingestion.
var documentExts = map[string]bool{".pdf": true, ".png": true}

// ListLocalDocuments walks dir and returns paths of ingestible documents.
func ListLocalDocuments(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if documentExts[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return paths, nil
}

// UploadDir uploads every ingestible document in dir under the prefix,
// skipping unchanged objects. Returns the destination keys in upload order.
func (s *Store) UploadDir(ctx context.Context, dir, prefix string) ([]string, error) {
	paths, err := ListLocalDocuments(dir)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		key := prefix + filepath.Base(p)
		if _, err := s.UploadFile(ctx, p, key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
