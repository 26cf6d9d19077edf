package crawler

import (
	"time"
)

// Crawl parameter bounds accepted at the HTTP and CLI boundaries.
const (
	MinDepth    = 0
	MaxDepth    = 10
	MinMaxPages = 1
	MaxMaxPages = 1000

	DefaultDepth    = 2
	DefaultMaxPages = 50
)

// JobStatus represents the lifecycle state reported by the crawl API.
type JobStatus string

// Job status values returned by the external crawl service.
const (
	JobStatusScraping  JobStatus = "scraping"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further status transitions are expected.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Request is a validated crawl submission.
type Request struct {
	URL      string `json:"url"`
	Depth    int    `json:"depth"`
	MaxPages int    `json:"max_pages"`
}

// Page is one crawled document converted to markdown by the crawl API.
type Page struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Markdown   string `json:"-"`
	StatusCode int    `json:"status_code"`
}

// Result is the ordered page set of one finished crawl job.
type Result struct {
	JobID       string    `json:"job_id"`
	Status      JobStatus `json:"status"`
	Total       int       `json:"total"`
	CreditsUsed int       `json:"credits_used"`
	Pages       []Page    `json:"-"`
}

// Archive is the handle of a packaged crawl result.
type Archive struct {
	Name      string    `json:"filename"`
	URI       string    `json:"uri"`
	SourceURL string    `json:"source_url"`
	Pages     int       `json:"pages"`
	Bytes     int64     `json:"bytes"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`
}

// ObjectInfo describes a stored archive.
type ObjectInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// CrawlCompleted is published after an archive has been stored.
type CrawlCompleted struct {
	Archive     string    `json:"archive"`
	URI         string    `json:"uri"`
	SourceURL   string    `json:"source_url"`
	JobID       string    `json:"job_id"`
	Pages       int       `json:"pages"`
	Bytes       int64     `json:"bytes"`
	SHA256      string    `json:"sha256"`
	CreditsUsed int       `json:"credits_used"`
	CompletedAt time.Time `json:"completed_at"`
}
