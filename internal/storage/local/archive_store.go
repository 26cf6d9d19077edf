// Package local implements a local filesystem archive store.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JakeFAU/crawl-archiver/internal/crawler"
)

// Config captures the parameters for the local filesystem archive store.
type Config struct {
	// BaseDir is the directory archives are written to.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ArchiveStore writes archives to a single flat directory.
type ArchiveStore struct {
	baseDir string
}

// New creates a new local filesystem-backed archive store, creating BaseDir
// when needed and verifying it is writable.
func New(cfg Config) (*ArchiveStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &ArchiveStore{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// Put writes data to a hidden temp file and renames it into place, so readers
// and the janitor never observe a partial archive. Returns a file:// URI.
func (s *ArchiveStore) Put(_ context.Context, name string, data io.Reader) (uri string, err error) {
	fullPath, err := s.path(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.baseDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, data); err != nil {
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close archive: %w", err)
	}
	if err = os.Rename(tmp.Name(), fullPath); err != nil {
		return "", fmt.Errorf("failed to move archive into place: %w", err)
	}
	return fmt.Sprintf("file://%s", fullPath), nil
}

// Open returns the archive file. The caller closes it.
func (s *ArchiveStore) Open(_ context.Context, name string) (io.ReadCloser, crawler.ObjectInfo, error) {
	fullPath, err := s.path(name)
	if err != nil {
		return nil, crawler.ObjectInfo{}, err
	}
	// #nosec G304 -- name validated and confined to baseDir by s.path.
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, crawler.ObjectInfo{}, fmt.Errorf("%w: %s", crawler.ErrArchiveNotFound, name)
		}
		return nil, crawler.ObjectInfo{}, fmt.Errorf("failed to open archive: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, crawler.ObjectInfo{}, fmt.Errorf("failed to stat archive: %w", err)
	}
	return f, crawler.ObjectInfo{Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Delete removes the archive file.
func (s *ArchiveStore) Delete(_ context.Context, name string) error {
	fullPath, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", crawler.ErrArchiveNotFound, name)
		}
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return nil
}

// List returns every archive in the directory, skipping temp files.
func (s *ArchiveStore) List(_ context.Context) ([]crawler.ObjectInfo, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}
	out := make([]crawler.ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || crawler.CheckArchiveName(entry.Name()) != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		out = append(out, crawler.ObjectInfo{Name: entry.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *ArchiveStore) path(name string) (string, error) {
	if err := crawler.CheckArchiveName(name); err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.baseDir, name)
	if !strings.HasPrefix(filepath.Clean(fullPath), s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal detected", crawler.ErrInvalidName)
	}
	return fullPath, nil
}
