package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"

	// Blob drivers selectable via bucket URL scheme.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// Sink creates destinations for downloaded files.
type Sink interface {
	// Prepare makes sure dir can receive files. It must be idempotent.
	Prepare(ctx context.Context, dir string) error

	// Create opens name inside dir for writing, replacing any existing
	// content, and returns the writer and the destination path.
	Create(ctx context.Context, dir, name string) (io.WriteCloser, string, error)
}

// DirSink writes files to the local filesystem.
type DirSink struct{}

// Prepare creates dir and any missing parents.
func (DirSink) Prepare(_ context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return nil
}

// Create truncates or creates dir/name.
func (DirSink) Create(_ context.Context, dir, name string) (io.WriteCloser, string, error) {
	filePath := filepath.Join(dir, name)
	f, err := os.Create(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("create file: %w", err)
	}
	return f, filePath, nil
}

// BucketSink writes files as objects in a gocloud.dev blob bucket. The
// directory becomes a key prefix.
type BucketSink struct {
	bucket *blob.Bucket
	prefix string
}

// OpenBucketSink opens the bucket at bucketURL (file://, mem://, s3://, gs://).
func OpenBucketSink(ctx context.Context, bucketURL string) (*BucketSink, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}
	return &BucketSink{bucket: bucket}, nil
}

// NewBucketSink wraps an already opened bucket. Keys are written under prefix.
func NewBucketSink(bucket *blob.Bucket, prefix string) *BucketSink {
	return &BucketSink{bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Prepare is a no-op: object stores have no directories.
func (s *BucketSink) Prepare(context.Context, string) error {
	return nil
}

// Create opens a writer for the object dir/name. The object is committed
// when the writer is closed.
func (s *BucketSink) Create(ctx context.Context, dir, name string) (io.WriteCloser, string, error) {
	key := objectKey(s.prefix, dir, name)
	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return nil, "", fmt.Errorf("open object writer: %w", err)
	}
	return w, key, nil
}

// Close closes the underlying bucket.
func (s *BucketSink) Close() error {
	return s.bucket.Close()
}

// objectKey joins key parts with forward slashes, dropping "." and leading "./".
func objectKey(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(filepath.ToSlash(p), "/")
		if p == "" || p == "." {
			continue
		}
		cleaned = append(cleaned, p)
	}
	return path.Clean(strings.Join(cleaned, "/"))
}
