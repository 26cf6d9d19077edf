// Package archive turns a crawl result into a zip of markdown files and hands
// it to an archive store.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-archiver/internal/crawler"
	"github.com/JakeFAU/crawl-archiver/internal/hash"
	"github.com/JakeFAU/crawl-archiver/internal/metrics"
)

// Config controls the builder.
type Config struct {
	// TempDir is where staging directories and zip files are created; empty
	// means the OS default.
	TempDir    string
	WriteIndex bool
}

// Builder implements crawler.ArchiveBuilder.
type Builder struct {
	store  crawler.ArchiveStore
	ids    crawler.IDGenerator
	clock  crawler.Clock
	cfg    Config
	logger *zap.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(
	store crawler.ArchiveStore,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		store:  store,
		ids:    ids,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Build stages the pages, zips them and uploads the archive. Staging files
// and the local zip are removed before Build returns, on success or failure.
func (b *Builder) Build(ctx context.Context, req crawler.Request, result crawler.Result) (crawler.Archive, error) {
	now := b.clock.Now()
	id, err := b.ids.NewID()
	if err != nil {
		return crawler.Archive{}, fmt.Errorf("archive id: %w", err)
	}
	name := ArchiveName(req, now, id)
	logger := b.logger.With(zap.String("archive", name), zap.String("job_id", result.JobID))

	stageDir, err := os.MkdirTemp(b.cfg.TempDir, "crawl-stage-*")
	if err != nil {
		return crawler.Archive{}, fmt.Errorf("create staging dir: %w", err)
	}
	defer b.removeAll(stageDir, logger)

	entries, err := Stage(stageDir, req, result, now, StageOptions{WriteIndex: b.cfg.WriteIndex})
	if err != nil {
		return crawler.Archive{}, fmt.Errorf("stage pages: %w", err)
	}

	zipFile, err := os.CreateTemp(b.cfg.TempDir, "crawl-*.zip")
	if err != nil {
		return crawler.Archive{}, fmt.Errorf("create zip file: %w", err)
	}
	defer func() {
		_ = zipFile.Close()
		b.removeAll(zipFile.Name(), logger)
	}()

	digest := hash.NewDigest()
	if err := ZipDir(stageDir, io.MultiWriter(zipFile, digest)); err != nil {
		return crawler.Archive{}, err
	}
	if _, err := zipFile.Seek(0, io.SeekStart); err != nil {
		return crawler.Archive{}, fmt.Errorf("rewind zip file: %w", err)
	}

	uri, err := b.store.Put(ctx, name, zipFile)
	if err != nil {
		return crawler.Archive{}, fmt.Errorf("store archive: %w", err)
	}

	archive := crawler.Archive{
		Name:      name,
		URI:       uri,
		SourceURL: req.URL,
		Pages:     len(entries),
		Bytes:     digest.Size(),
		SHA256:    digest.Hex(),
		CreatedAt: now,
	}
	metrics.ObservePages(req.URL, archive.Pages)
	metrics.ObserveArchiveBytes(archive.Bytes)
	logger.Info("archive stored",
		zap.String("uri", uri),
		zap.Int("pages", archive.Pages),
		zap.Int64("bytes", archive.Bytes),
	)
	return archive, nil
}

func (b *Builder) removeAll(path string, logger *zap.Logger) {
	if err := os.RemoveAll(path); err != nil {
		logger.Warn("remove temporary artifact", zap.String("path", path), zap.Error(err))
	}
}
