// Package gcs provides an archive store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/crawl-archiver/internal/crawler"
)

const zipContentType = "application/zip"

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// ArchiveStore keeps archives as objects in a bucket under an optional prefix.
type ArchiveStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed archive store.
func New(client *storage.Client, cfg Config) (*ArchiveStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &ArchiveStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// Put uploads the archive and returns a gs:// URI.
func (s *ArchiveStore) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := crawler.CheckArchiveName(name); err != nil {
		return "", err
	}
	key := s.key(name)
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = zipContentType
	writer.ContentDisposition = fmt.Sprintf("attachment; filename=%q", name)
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

// Open streams the object. The caller closes the reader.
func (s *ArchiveStore) Open(ctx context.Context, name string) (io.ReadCloser, crawler.ObjectInfo, error) {
	if err := crawler.CheckArchiveName(name); err != nil {
		return nil, crawler.ObjectInfo{}, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(s.key(name)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, crawler.ObjectInfo{}, fmt.Errorf("%w: %s", crawler.ErrArchiveNotFound, name)
		}
		return nil, crawler.ObjectInfo{}, fmt.Errorf("open object: %w", err)
	}
	info := crawler.ObjectInfo{
		Name:    name,
		Size:    reader.Attrs.Size,
		ModTime: reader.Attrs.LastModified,
	}
	return reader, info, nil
}

// Delete removes the object.
func (s *ArchiveStore) Delete(ctx context.Context, name string) error {
	if err := crawler.CheckArchiveName(name); err != nil {
		return err
	}
	if err := s.client.Bucket(s.bucket).Object(s.key(name)).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", crawler.ErrArchiveNotFound, name)
		}
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// List returns every archive object directly under the prefix.
func (s *ArchiveStore) List(ctx context.Context) ([]crawler.ObjectInfo, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix, Delimiter: "/"})
	var out []crawler.ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		if attrs.Name == "" {
			// Synthetic prefix entry.
			continue
		}
		name := path.Base(attrs.Name)
		if crawler.CheckArchiveName(name) != nil {
			continue
		}
		out = append(out, crawler.ObjectInfo{Name: name, Size: attrs.Size, ModTime: attrs.Updated})
	}
	return out, nil
}

func (s *ArchiveStore) key(name string) string {
	return s.prefix + name
}
