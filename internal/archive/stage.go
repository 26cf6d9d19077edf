package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nao1215/markdown"

	"github.com/JakeFAU/crawl-archiver/internal/crawler"
)

// Layout of a staged crawl.
const (
	PagesDir     = "pages"
	MetadataFile = "metadata.json"
	IndexFile    = "index.md"
)

// StageOptions controls optional artifacts of the page tree.
type StageOptions struct {
	WriteIndex bool
}

// Entry records one page file written by Stage.
type Entry struct {
	File  string `json:"file"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Metadata is written to metadata.json next to the pages.
type Metadata struct {
	BaseURL        string  `json:"base_url"`
	CrawlTimestamp string  `json:"crawl_timestamp"`
	JobID          string  `json:"job_id"`
	Depth          int     `json:"depth"`
	MaxPages       int     `json:"max_pages"`
	TotalPages     int     `json:"total_pages"`
	SavedPages     int     `json:"saved_pages"`
	Status         string  `json:"status"`
	CreditsUsed    int     `json:"credits_used"`
	Pages          []Entry `json:"pages"`
}

// Stage writes one markdown file per page under dir/pages, plus metadata.json
// and, when enabled, index.md. Every page yields exactly one file.
func Stage(dir string, req crawler.Request, result crawler.Result, now time.Time, opts StageOptions) ([]Entry, error) {
	pagesDir := filepath.Join(dir, PagesDir)
	if err := os.MkdirAll(pagesDir, 0o750); err != nil {
		return nil, fmt.Errorf("create pages directory: %w", err)
	}

	timestamp := now.UTC().Format(timestampLayout)
	namer := newUniqueNamer()
	entries := make([]Entry, 0, len(result.Pages))
	for idx, page := range result.Pages {
		name := namer.next(idx, SafeName(page.URL, page.Title))
		if err := writePage(filepath.Join(pagesDir, name), page, timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{File: name, URL: page.URL, Title: page.Title})
	}

	meta := Metadata{
		BaseURL:        req.URL,
		CrawlTimestamp: timestamp,
		JobID:          result.JobID,
		Depth:          req.Depth,
		MaxPages:       req.MaxPages,
		TotalPages:     result.Total,
		SavedPages:     len(entries),
		Status:         string(result.Status),
		CreditsUsed:    result.CreditsUsed,
		Pages:          entries,
	}
	if err := writeJSON(filepath.Join(dir, MetadataFile), meta); err != nil {
		return nil, err
	}

	if opts.WriteIndex {
		if err := writeIndex(filepath.Join(dir, IndexFile), req, meta); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func writePage(path string, page crawler.Page, timestamp string) (err error) {
	// #nosec G304 -- path is built from a sanitized name inside the staging dir.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create page file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close page file: %w", cerr)
		}
	}()

	title := page.Title
	if title == "" {
		title = "Untitled"
	}
	md := markdown.NewMarkdown(f)
	md.H1(title)
	md.PlainText("")
	md.PlainTextf("**URL:** %s", page.URL)
	md.PlainText("")
	md.PlainTextf("**Crawled:** %s", timestamp)
	md.PlainText("")
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText(page.Markdown)
	if err := md.Build(); err != nil {
		return fmt.Errorf("write page %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeIndex(path string, req crawler.Request, meta Metadata) (err error) {
	// #nosec G304 -- fixed file name inside the staging dir.
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close index: %w", cerr)
		}
	}()

	md := markdown.NewMarkdown(f)
	md.H1("Crawl Results: " + req.Domain())
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Base URL", meta.BaseURL},
			{"Crawled", meta.CrawlTimestamp},
			{"Depth", strconv.Itoa(meta.Depth)},
			{"Total Pages", strconv.Itoa(meta.SavedPages)},
			{"Credits Used", strconv.Itoa(meta.CreditsUsed)},
		},
	})
	md.PlainText("")
	md.H2("Pages")
	md.PlainText("")
	if len(meta.Pages) == 0 {
		md.PlainText("The crawl returned no pages.")
	} else {
		items := make([]string, 0, len(meta.Pages))
		for _, e := range meta.Pages {
			title := e.Title
			if title == "" {
				title = "Untitled"
			}
			items = append(items, fmt.Sprintf("[%s](%s/%s) - %s", title, PagesDir, e.File, e.URL))
		}
		md.BulletList(items...)
	}
	if err := md.Build(); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
