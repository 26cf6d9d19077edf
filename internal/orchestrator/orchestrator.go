// Package orchestrator drives one crawl job on the external API from
// submission to a terminal state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-archiver/internal/crawler"
	"github.com/JakeFAU/crawl-archiver/internal/firecrawl"
	"github.com/JakeFAU/crawl-archiver/internal/metrics"
)

// API is the slice of the crawl service the orchestrator depends on.
type API interface {
	StartCrawl(ctx context.Context, req crawler.Request) (string, error)
	CrawlStatus(ctx context.Context, jobID string) (firecrawl.CrawlStatus, error)
	CancelCrawl(ctx context.Context, jobID string) error
}

// Progress is reported after every status poll.
type Progress struct {
	JobID     string
	Status    crawler.JobStatus
	Completed int
	Total     int
}

// Config controls polling behavior.
type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
	// OnProgress, when set, is called after each poll.
	OnProgress func(Progress)
}

// Orchestrator implements crawler.Crawler on top of an API client.
type Orchestrator struct {
	api    API
	clock  crawler.Clock
	cfg    Config
	logger *zap.Logger
}

// New constructs an Orchestrator.
func New(api API, clock crawler.Clock, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		api:    api,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Crawl validates req, starts the job and blocks until it finishes, the
// configured timeout elapses or ctx is canceled. Nothing is retried.
func (o *Orchestrator) Crawl(ctx context.Context, req crawler.Request) (crawler.Result, error) {
	if err := req.Validate(); err != nil {
		metrics.ObserveCrawl(metrics.OutcomeRejected, 0)
		return crawler.Result{}, err
	}

	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	metrics.IncCrawlsInFlight()
	defer metrics.DecCrawlsInFlight()

	start := o.clock.Now()
	logger := o.logger.With(
		zap.String("url", req.URL),
		zap.Int("depth", req.Depth),
		zap.Int("max_pages", req.MaxPages),
	)

	jobID, err := o.api.StartCrawl(ctx, req)
	if err != nil {
		err = o.contextError(ctx, err)
		metrics.ObserveCrawl(outcomeFor(err), o.clock.Now().Sub(start))
		logger.Warn("crawl submission failed", zap.Error(err))
		return crawler.Result{}, err
	}
	logger = logger.With(zap.String("job_id", jobID))
	logger.Info("crawl job submitted")

	status, err := o.poll(ctx, jobID)
	elapsed := o.clock.Now().Sub(start)
	if err != nil {
		err = o.contextError(ctx, err)
		if ctx.Err() != nil {
			o.cancelRemote(jobID, logger)
		}
		metrics.ObserveCrawl(outcomeFor(err), elapsed)
		logger.Warn("crawl job did not complete", zap.Error(err), zap.Duration("elapsed", elapsed))
		return crawler.Result{}, err
	}

	result := toResult(jobID, status)
	metrics.ObserveCrawl(metrics.OutcomeSucceeded, elapsed)
	logger.Info("crawl job completed",
		zap.Int("pages", len(result.Pages)),
		zap.Int("credits_used", result.CreditsUsed),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

func (o *Orchestrator) poll(ctx context.Context, jobID string) (firecrawl.CrawlStatus, error) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, err := o.api.CrawlStatus(ctx, jobID)
		if err != nil {
			return firecrawl.CrawlStatus{}, err
		}
		state := crawler.JobStatus(status.Status)
		if o.cfg.OnProgress != nil {
			o.cfg.OnProgress(Progress{
				JobID:     jobID,
				Status:    state,
				Completed: status.Completed,
				Total:     status.Total,
			})
		}
		o.logger.Debug("crawl job polled",
			zap.String("job_id", jobID),
			zap.String("status", status.Status),
			zap.Int("completed", status.Completed),
			zap.Int("total", status.Total),
		)

		switch state {
		case crawler.JobStatusCompleted:
			return status, nil
		case crawler.JobStatusFailed, crawler.JobStatusCancelled:
			return firecrawl.CrawlStatus{}, fmt.Errorf("%w: job %s ended with status %q", crawler.ErrCrawlFailed, jobID, status.Status)
		}

		select {
		case <-ctx.Done():
			return firecrawl.CrawlStatus{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// contextError folds deadline expiry into ErrTimeout so callers see one cause.
func (o *Orchestrator) contextError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, crawler.ErrTimeout) {
		return fmt.Errorf("%w: no terminal state within %s", crawler.ErrTimeout, o.cfg.Timeout)
	}
	return err
}

// cancelRemote releases the job upstream once nobody is waiting for it.
func (o *Orchestrator) cancelRemote(jobID string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.api.CancelCrawl(ctx, jobID); err != nil {
		logger.Warn("cancel abandoned crawl job", zap.Error(err))
		return
	}
	logger.Info("abandoned crawl job cancelled")
}

func toResult(jobID string, status firecrawl.CrawlStatus) crawler.Result {
	pages := make([]crawler.Page, 0, len(status.Data))
	for idx, doc := range status.Data {
		pageURL := doc.Metadata.SourceURL
		if pageURL == "" {
			pageURL = doc.Metadata.URL
		}
		if pageURL == "" {
			pageURL = fmt.Sprintf("page_%d", idx)
		}
		pages = append(pages, crawler.Page{
			URL:        pageURL,
			Title:      doc.Metadata.Title,
			Markdown:   doc.Markdown,
			StatusCode: doc.Metadata.StatusCode,
		})
	}
	total := status.Total
	if total == 0 {
		total = len(pages)
	}
	return crawler.Result{
		JobID:       jobID,
		Status:      crawler.JobStatus(status.Status),
		Total:       total,
		CreditsUsed: status.CreditsUsed,
		Pages:       pages,
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, crawler.ErrTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, crawler.ErrQuotaExceeded):
		return metrics.OutcomeQuota
	case errors.Is(err, crawler.ErrInvalidURL), errors.Is(err, crawler.ErrValidation):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailed
	}
}
