package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-archiver/internal/archive"
	"github.com/JakeFAU/crawl-archiver/internal/auth"
	"github.com/JakeFAU/crawl-archiver/internal/clock"
	"github.com/JakeFAU/crawl-archiver/internal/crawler"
	"github.com/JakeFAU/crawl-archiver/internal/id"
	pubmemory "github.com/JakeFAU/crawl-archiver/internal/publisher/memory"
	"github.com/JakeFAU/crawl-archiver/internal/storage/memory"
)

const password = "s3cret"

var now = time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)

type fakeCrawler struct {
	mu     sync.Mutex
	calls  []crawler.Request
	result crawler.Result
	err    error
}

func (f *fakeCrawler) Crawl(_ context.Context, req crawler.Request) (crawler.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return crawler.Result{}, f.err
	}
	return f.result, nil
}

func (f *fakeCrawler) Calls() []crawler.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]crawler.Request(nil), f.calls...)
}

type harness struct {
	server    *httptest.Server
	crawler   *fakeCrawler
	store     *memory.ArchiveStore
	publisher *pubmemory.Publisher
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	fc := &fakeCrawler{result: crawler.Result{
		JobID:  "job-1",
		Status: crawler.JobStatusCompleted,
		Total:  2,
		Pages: []crawler.Page{
			{URL: "https://example.com/", Title: "Home", Markdown: "# Home"},
			{URL: "https://example.com/about", Title: "About", Markdown: "about us"},
		},
	}}
	store := memory.NewArchiveStore()
	clk := clock.NewFixed(now)
	builder := archive.NewBuilder(store, &id.Sequence{Prefix: "t"}, clk,
		archive.Config{TempDir: t.TempDir(), WriteIndex: true}, zap.NewNop())
	pub := pubmemory.New()
	srv := NewServer(auth.NewGate(password, nil), fc, builder, store, pub, clk, cfg, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{server: ts, crawler: fc, store: store, publisher: pub}
}

func (h *harness) client() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func (h *harness) do(t *testing.T, method, path string, body io.Reader, contentType string, authed bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authed {
		req.SetBasicAuth("admin", password)
	}
	resp, err := h.client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) postJSON(t *testing.T, payload string) *http.Response {
	t.Helper()
	return h.do(t, http.MethodPost, "/crawl", strings.NewReader(payload), "application/json", true)
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t, Config{})
	h.crawler.err = errors.New("crawl api must not be touched")

	resp := h.do(t, http.MethodGet, "/health", nil, "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, now.Format(time.RFC3339), body["timestamp"])
	assert.Empty(t, h.crawler.Calls())
}

func TestMetricsIsPublic(t *testing.T) {
	h := newHarness(t, Config{})
	h.do(t, http.MethodGet, "/health", nil, "", false)

	resp := h.do(t, http.MethodGet, "/metrics", nil, "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "http_requests_total")
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	h := newHarness(t, Config{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/"},
		{http.MethodPost, "/crawl"},
		{http.MethodGet, "/download/x.zip"},
	} {
		resp := h.do(t, tc.method, tc.path, nil, "", false)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, tc.path)
		assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")
	}

	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "wrong")
	resp, err := h.client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, h.crawler.Calls())
}

func TestIndexRendersForm(t *testing.T) {
	h := newHarness(t, Config{DefaultDepth: 3, DefaultMaxPages: 25})
	resp := h.do(t, http.MethodGet, "/", nil, "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	page := string(data)
	assert.Contains(t, page, `action="/crawl"`)
	assert.Contains(t, page, `name="depth" type="number" min="0" max="10" value="3"`)
	assert.Contains(t, page, `value="25"`)
	assert.Contains(t, page, "Signed in as admin")
}

func TestCrawlJSONCreatesArchive(t *testing.T) {
	h := newHarness(t, Config{})
	resp := h.postJSON(t, `{"url":"example.com","depth":1,"max_pages":5}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body crawlResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "example_com_20240701_093000_t000001.zip", body.Filename)
	assert.Equal(t, "/download/"+body.Filename, body.DownloadURL)
	assert.Equal(t, 2, body.Pages)
	assert.NotEmpty(t, body.SHA256)

	calls := h.crawler.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, crawler.Request{URL: "https://example.com", Depth: 1, MaxPages: 5}, calls[0])

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, EventCrawlCompleted, msgs[0].Event)
	event, ok := msgs[0].Payload.(crawler.CrawlCompleted)
	require.True(t, ok)
	assert.Equal(t, body.Filename, event.Archive)
	assert.Equal(t, "job-1", event.JobID)
}

func TestCrawlAppliesDefaults(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	resp := h.postJSON(t, `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	calls := h.crawler.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, crawler.DefaultDepth, calls[0].Depth)
	assert.Equal(t, crawler.DefaultMaxPages, calls[0].MaxPages)
}

func TestConfiguredDefaultsAreKeptPerField(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantDepth int
		wantPages int
	}{
		{"ZeroDepthKept", Config{DefaultDepth: 0, DefaultMaxPages: 10}, 0, 10},
		{"DepthKeptWhenPagesUnset", Config{DefaultDepth: 4}, 4, crawler.DefaultMaxPages},
		{"BothSet", Config{DefaultDepth: 7, DefaultMaxPages: 300}, 7, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.cfg)
			resp := h.postJSON(t, `{"url":"https://example.com"}`)
			require.Equal(t, http.StatusCreated, resp.StatusCode)

			calls := h.crawler.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.wantDepth, calls[0].Depth)
			assert.Equal(t, tt.wantPages, calls[0].MaxPages)
		})
	}
}

func TestCrawlFormRedirectsToDownload(t *testing.T) {
	h := newHarness(t, Config{})
	form := url.Values{"url": {"https://example.com"}, "depth": {"0"}, "max_pages": {"1000"}}
	resp := h.do(t, http.MethodPost, "/crawl", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", true)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/download/example_com_"))

	calls := h.crawler.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 0, calls[0].Depth)
	assert.Equal(t, 1000, calls[0].MaxPages)
}

func TestCrawlRejectsOutOfRangeBeforeCrawling(t *testing.T) {
	h := newHarness(t, Config{})
	cases := []struct {
		name string
		body string
		want string
	}{
		{"DepthTooHigh", `{"url":"https://example.com","depth":11}`, "depth must be between"},
		{"DepthNegative", `{"url":"https://example.com","depth":-1}`, "depth must be between"},
		{"MaxPagesZero", `{"url":"https://example.com","max_pages":0}`, "max pages must be between"},
		{"MaxPagesTooHigh", `{"url":"https://example.com","max_pages":1001}`, "max pages must be between"},
		{"MissingURL", `{"depth":1}`, "url"},
		{"BadScheme", `{"url":"ftp://example.com"}`, "url"},
		{"BrokenJSON", `{"url":`, "invalid JSON"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := h.postJSON(t, tc.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body map[string]string
			decodeBody(t, resp, &body)
			assert.Contains(t, body["error"], tc.want)
		})
	}

	form := url.Values{"url": {"https://example.com"}, "depth": {"two"}}
	resp := h.do(t, http.MethodPost, "/crawl", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Empty(t, h.crawler.Calls())
}

func TestCrawlMapsUpstreamErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: out of credits", crawler.ErrQuotaExceeded), http.StatusTooManyRequests},
		{fmt.Errorf("%w: after 10m", crawler.ErrTimeout), http.StatusGatewayTimeout},
		{fmt.Errorf("%w: job abc failed", crawler.ErrCrawlFailed), http.StatusBadGateway},
		{fmt.Errorf("%w: status 401", crawler.ErrUnauthorized), http.StatusBadGateway},
	}
	for _, tc := range cases {
		h := newHarness(t, Config{})
		h.crawler.err = tc.err
		resp := h.postJSON(t, `{"url":"https://example.com"}`)
		assert.Equal(t, tc.status, resp.StatusCode, tc.err.Error())
		var body map[string]string
		decodeBody(t, resp, &body)
		assert.Equal(t, tc.err.Error(), body["error"])
		assert.Empty(t, h.publisher.Messages())
	}
}

func TestCrawlHidesInternalErrors(t *testing.T) {
	h := newHarness(t, Config{})
	h.crawler.err = errors.New("disk full at /var/tmp/secret")
	resp := h.postJSON(t, `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "Internal Server Error", body["error"])
}

func TestCrawlSucceedsWhenPublishFails(t *testing.T) {
	h := newHarness(t, Config{})
	h.publisher.FailWith(errors.New("topic gone"))
	resp := h.postJSON(t, `{"url":"https://example.com"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestDownloadStreamsAndDeletes(t *testing.T) {
	h := newHarness(t, Config{DeleteAfterDownload: true})
	var created crawlResponse
	decodeBody(t, h.postJSON(t, `{"url":"https://example.com"}`), &created)

	resp := h.do(t, http.MethodGet, created.DownloadURL, nil, "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), created.Filename)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.EqualValues(t, created.Bytes, len(data))

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	pages := 0
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, archive.PagesDir+"/") {
			pages++
		}
	}
	assert.Equal(t, 2, pages)

	require.Eventually(t, func() bool {
		_, _, err := h.store.Open(context.Background(), created.Filename)
		return errors.Is(err, crawler.ErrArchiveNotFound)
	}, time.Second, 10*time.Millisecond)

	again := h.do(t, http.MethodGet, created.DownloadURL, nil, "", true)
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
}

func TestDownloadKeepsArchiveWhenConfigured(t *testing.T) {
	h := newHarness(t, Config{})
	var created crawlResponse
	decodeBody(t, h.postJSON(t, `{"url":"https://example.com"}`), &created)

	for i := 0; i < 2; i++ {
		resp := h.do(t, http.MethodGet, created.DownloadURL, nil, "", true)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_, err := io.Copy(io.Discard, resp.Body)
		require.NoError(t, err)
	}
}

func TestDownloadUnknownOrInvalid(t *testing.T) {
	h := newHarness(t, Config{})
	for _, name := range []string{"missing.zip", "not-a-zip.txt", "..%2Fetc%2Fpasswd.zip"} {
		resp := h.do(t, http.MethodGet, "/download/"+name, nil, "", true)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, name)
		var body map[string]string
		decodeBody(t, resp, &body)
		assert.Equal(t, "archive not found", body["error"])
	}
}
