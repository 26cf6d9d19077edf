package firecrawl

// Metadata is the subset of Firecrawl's page metadata the archiver reads.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
	SourceURL   string `json:"sourceURL,omitempty"`
	URL         string `json:"url,omitempty"`
	StatusCode  int    `json:"statusCode"`
	Error       string `json:"error,omitempty"`
}

// Document is one crawled page as returned in crawl status responses.
type Document struct {
	Markdown string   `json:"markdown,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// ScrapeOptions controls how each discovered page is scraped.
type ScrapeOptions struct {
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

// CrawlParams is the body of POST /v1/crawl.
type CrawlParams struct {
	URL           string        `json:"url"`
	Limit         int           `json:"limit"`
	MaxDepth      int           `json:"maxDepth"`
	ScrapeOptions ScrapeOptions `json:"scrapeOptions"`
}

// CrawlStatus is the body of GET /v1/crawl/{id}. Data holds every page when
// returned by Client.CrawlStatus for a completed job.
type CrawlStatus struct {
	Status      string     `json:"status"`
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	CreditsUsed int        `json:"creditsUsed"`
	ExpiresAt   string     `json:"expiresAt,omitempty"`
	Next        string     `json:"next,omitempty"`
	Data        []Document `json:"data"`
}

type startResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	URL     string `json:"url"`
	Error   string `json:"error,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
