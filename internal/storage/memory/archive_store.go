// Package memory stores archives in-memory for tests and dry runs.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/crawl-archiver/internal/crawler"
)

type object struct {
	data    []byte
	modTime time.Time
}

// ArchiveStore keeps archives in a map and returns memory:// URIs.
type ArchiveStore struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

// NewArchiveStore creates an empty in-memory archive store.
func NewArchiveStore() *ArchiveStore {
	return &ArchiveStore{
		objects: make(map[string]object),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Put stores a copy of the content under name.
func (s *ArchiveStore) Put(_ context.Context, name string, data io.Reader) (string, error) {
	if err := crawler.CheckArchiveName(name); err != nil {
		return "", err
	}
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = object{data: byteData, modTime: s.now()}
	return fmt.Sprintf("memory://%s", name), nil
}

// Open returns a reader over the stored archive.
func (s *ArchiveStore) Open(_ context.Context, name string) (io.ReadCloser, crawler.ObjectInfo, error) {
	if err := crawler.CheckArchiveName(name); err != nil {
		return nil, crawler.ObjectInfo{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[name]
	if !ok {
		return nil, crawler.ObjectInfo{}, fmt.Errorf("%w: %s", crawler.ErrArchiveNotFound, name)
	}
	info := crawler.ObjectInfo{Name: name, Size: int64(len(obj.data)), ModTime: obj.modTime}
	return io.NopCloser(bytes.NewReader(obj.data)), info, nil
}

// Delete removes the archive.
func (s *ArchiveStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[name]; !ok {
		return fmt.Errorf("%w: %s", crawler.ErrArchiveNotFound, name)
	}
	delete(s.objects, name)
	return nil
}

// List returns all archives sorted by name.
func (s *ArchiveStore) List(_ context.Context) ([]crawler.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.ObjectInfo, 0, len(s.objects))
	for name, obj := range s.objects {
		out = append(out, crawler.ObjectInfo{Name: name, Size: int64(len(obj.data)), ModTime: obj.modTime})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SetModTime backdates an archive, letting retention tests avoid sleeping.
func (s *ArchiveStore) SetModTime(name string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj, ok := s.objects[name]; ok {
		obj.modTime = t
		s.objects[name] = obj
	}
}

// Bytes returns a copy of the stored content, or nil.
func (s *ArchiveStore) Bytes(name string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[name]
	if !ok {
		return nil
	}
	return append([]byte(nil), obj.data...)
}
