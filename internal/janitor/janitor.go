// Package janitor removes archives that were never downloaded once they
// outlive the retention window.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-archiver/internal/crawler"
	"github.com/JakeFAU/crawl-archiver/internal/metrics"
)

// DeleteReasonExpired labels deletions made by the janitor.
const DeleteReasonExpired = "expired"

// Config controls retention.
type Config struct {
	Retention time.Duration
	Interval  time.Duration
}

// Janitor periodically sweeps an archive store.
type Janitor struct {
	store  crawler.ArchiveStore
	clock  crawler.Clock
	cfg    Config
	logger *zap.Logger
}

// New creates a Janitor. Retention and Interval must be positive.
func New(store crawler.ArchiveStore, clock crawler.Clock, cfg Config, logger *zap.Logger) (*Janitor, error) {
	if store == nil {
		return nil, fmt.Errorf("archive store is required")
	}
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{store: store, clock: clock, cfg: cfg, logger: logger}, nil
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
			j.logger.Warn("archive sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep deletes every archive last modified before now minus Retention and
// returns the number removed. Archives that vanish mid-sweep are not errors.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	objects, err := j.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list archives: %w", err)
	}
	cutoff := j.clock.Now().Add(-j.cfg.Retention)
	removed := 0
	var errs []error
	for _, obj := range objects {
		if !obj.ModTime.Before(cutoff) {
			continue
		}
		if err := j.store.Delete(ctx, obj.Name); err != nil {
			if errors.Is(err, crawler.ErrArchiveNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("delete %s: %w", obj.Name, err))
			continue
		}
		removed++
		metrics.ObserveArchiveDeleted(DeleteReasonExpired)
		j.logger.Info("expired archive removed",
			zap.String("archive", obj.Name),
			zap.Time("modified", obj.ModTime),
		)
	}
	return removed, errors.Join(errs...)
}
