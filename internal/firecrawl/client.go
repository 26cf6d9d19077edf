// Package firecrawl is a small client for the hosted Firecrawl v1 crawl API.
// It only covers starting, polling and cancelling crawl jobs.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-archiver/internal/crawler"
)

// DefaultBaseURL is the public Firecrawl endpoint.
const DefaultBaseURL = "https://api.firecrawl.dev"

// maxStatusPages bounds how many "next" links are followed for one job.
const maxStatusPages = 1000

// Config captures the client connection parameters.
type Config struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	OnlyMainContent bool
	UserAgent       string
}

// Client talks to the Firecrawl REST API.
type Client struct {
	baseURL         *url.URL
	apiKey          string
	onlyMainContent bool
	userAgent       string
	maxStatusPages  int
	http            *http.Client
	logger          *zap.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("firecrawl api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid firecrawl base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:         base,
		apiKey:          cfg.APIKey,
		onlyMainContent: cfg.OnlyMainContent,
		userAgent:       cfg.UserAgent,
		maxStatusPages:  maxStatusPages,
		http:            &http.Client{Timeout: cfg.Timeout},
		logger:          logger,
	}, nil
}

// StartCrawl submits a crawl job and returns its id.
func (c *Client) StartCrawl(ctx context.Context, req crawler.Request) (string, error) {
	params := CrawlParams{
		URL:      req.URL,
		Limit:    req.MaxPages,
		MaxDepth: req.Depth,
		ScrapeOptions: ScrapeOptions{
			Formats:         []string{"markdown"},
			OnlyMainContent: c.onlyMainContent,
		},
	}
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal crawl params: %w", err)
	}
	var resp startResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint("/v1/crawl"), body, &resp); err != nil {
		return "", fmt.Errorf("start crawl: %w", err)
	}
	if !resp.Success || resp.ID == "" {
		msg := resp.Error
		if msg == "" {
			msg = "response did not include a job id"
		}
		return "", fmt.Errorf("start crawl: %w: %s", crawler.ErrCrawlFailed, msg)
	}
	c.logger.Debug("crawl job started", zap.String("job_id", resp.ID), zap.String("url", req.URL))
	return resp.ID, nil
}

// CrawlStatus fetches the job status. For completed jobs, paginated data is
// followed through "next" links so Data holds every page.
func (c *Client) CrawlStatus(ctx context.Context, jobID string) (CrawlStatus, error) {
	if jobID == "" {
		return CrawlStatus{}, errors.New("job id is required")
	}
	var status CrawlStatus
	if err := c.do(ctx, http.MethodGet, c.endpoint("/v1/crawl/"+url.PathEscape(jobID)), nil, &status); err != nil {
		return CrawlStatus{}, fmt.Errorf("crawl status: %w", err)
	}
	if status.Status != string(crawler.JobStatusCompleted) {
		return status, nil
	}

	next := status.Next
	for followed := 0; next != ""; followed++ {
		if followed >= c.maxStatusPages {
			c.logger.Warn("crawl status pagination limit reached, remaining pages dropped",
				zap.String("job_id", jobID),
				zap.Int("limit", c.maxStatusPages),
				zap.Int("pages_collected", len(status.Data)),
			)
			break
		}
		target, err := c.sameOrigin(next)
		if err != nil {
			return CrawlStatus{}, fmt.Errorf("crawl status page %d: %w", followed+2, err)
		}
		var page CrawlStatus
		if err := c.do(ctx, http.MethodGet, target, nil, &page); err != nil {
			return CrawlStatus{}, fmt.Errorf("crawl status page %d: %w", followed+2, err)
		}
		status.Data = append(status.Data, page.Data...)
		next = page.Next
	}
	status.Next = ""
	return status, nil
}

// sameOrigin resolves a "next" link against the base URL and refuses links
// to any other scheme or host, since every request carries the API key.
func (c *Client) sameOrigin(next string) (string, error) {
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("%w: invalid next link %q", crawler.ErrNetwork, next)
	}
	target := c.baseURL.ResolveReference(ref)
	if !strings.EqualFold(target.Scheme, c.baseURL.Scheme) || !strings.EqualFold(target.Host, c.baseURL.Host) {
		return "", fmt.Errorf("%w: next link host %q does not match %q", crawler.ErrNetwork, target.Host, c.baseURL.Host)
	}
	return target.String(), nil
}

// CancelCrawl asks the API to stop a running job.
func (c *Client) CancelCrawl(ctx context.Context, jobID string) error {
	if err := c.do(ctx, http.MethodDelete, c.endpoint("/v1/crawl/"+url.PathEscape(jobID)), nil, nil); err != nil {
		return fmt.Errorf("cancel crawl: %w", err)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(resp.StatusCode, payload)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", crawler.ErrNetwork, err)
	}
	return nil
}

func classifyStatus(code int, payload []byte) error {
	msg := strings.TrimSpace(string(payload))
	var apiErr errorResponse
	if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	switch {
	case code == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", crawler.ErrInvalidURL, msg)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", crawler.ErrUnauthorized, msg)
	case code == http.StatusPaymentRequired || code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", crawler.ErrQuotaExceeded, msg)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: job not found: %s", crawler.ErrCrawlFailed, msg)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: upstream status %d: %s", crawler.ErrTimeout, code, msg)
	default:
		return fmt.Errorf("%w: upstream status %d: %s", crawler.ErrNetwork, code, msg)
	}
}

func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return fmt.Errorf("request abandoned: %w", ctx.Err())
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", crawler.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", crawler.ErrNetwork, err)
}
