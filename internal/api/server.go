package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-archiver/internal/auth"
	"github.com/JakeFAU/crawl-archiver/internal/crawler"
	"github.com/JakeFAU/crawl-archiver/internal/logging"
	"github.com/JakeFAU/crawl-archiver/internal/metrics"
)

const tracerName = "github.com/JakeFAU/crawl-archiver/internal/api"

// EventCrawlCompleted names the notification published for every archive.
const EventCrawlCompleted = "crawl.completed"

// DeleteReasonDownloaded labels archives removed after a complete download.
const DeleteReasonDownloaded = "downloaded"

const maxFormBytes = 64 << 10

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Config holds the HTTP layer's knobs.
type Config struct {
	DefaultDepth        int
	DefaultMaxPages     int
	DeleteAfterDownload bool
}

// DefaultConfig returns the form defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{DefaultDepth: crawler.DefaultDepth, DefaultMaxPages: crawler.DefaultMaxPages}
}

// Server wires HTTP handlers to the crawl pipeline and archive store.
type Server struct {
	router    chi.Router
	crawler   crawler.Crawler
	builder   crawler.ArchiveBuilder
	store     crawler.ArchiveStore
	publisher crawler.Publisher
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. publisher may be
// nil to disable completion notifications.
func NewServer(
	gate *auth.Gate,
	crawl crawler.Crawler,
	builder crawler.ArchiveBuilder,
	store crawler.ArchiveStore,
	publisher crawler.Publisher,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Zero pages is never a valid default; depth 0 is.
	if cfg.DefaultMaxPages == 0 {
		cfg.DefaultMaxPages = crawler.DefaultMaxPages
	}
	s := &Server{
		crawler:   crawl,
		builder:   builder,
		store:     store,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(gate.Middleware)
		r.Get("/", s.index)
		r.Post("/crawl", s.crawl)
		r.Get("/download/{filename}", s.download)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": s.clock.Now().Format(time.RFC3339),
	})
}

type indexData struct {
	Username                 string
	Depth, MaxPages          int
	MinDepth, MaxDepth       int
	MinMaxPages, MaxMaxPages int
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	username, _, _ := r.BasicAuth()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTemplate.Execute(w, indexData{
		Username:    username,
		Depth:       s.cfg.DefaultDepth,
		MaxPages:    s.cfg.DefaultMaxPages,
		MinDepth:    crawler.MinDepth,
		MaxDepth:    crawler.MaxDepth,
		MinMaxPages: crawler.MinMaxPages,
		MaxMaxPages: crawler.MaxMaxPages,
	})
	if err != nil {
		s.logger.Error("render index", zap.Error(err))
	}
}

type crawlRequest struct {
	URL      string `json:"url"`
	Depth    *int   `json:"depth"`
	MaxPages *int   `json:"max_pages"`
}

type crawlResponse struct {
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url"`
	Pages       int    `json:"pages"`
	Bytes       int64  `json:"bytes"`
	SHA256      string `json:"sha256"`
}

func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	req, jsonBody, err := s.parseCrawlRequest(w, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		metrics.ObserveCrawl(metrics.OutcomeRejected, 0)
		s.writeFailure(w, r, err)
		return
	}

	logger := s.logger.With(
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("url", req.URL),
	)
	logger.Info("crawl requested", zap.Int("depth", req.Depth), zap.Int("max_pages", req.MaxPages))

	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "crawl")
	defer span.End()
	span.SetAttributes(
		attribute.String("crawl.url", req.URL),
		attribute.Int("crawl.depth", req.Depth),
		attribute.Int("crawl.max_pages", req.MaxPages),
	)

	result, err := s.crawler.Crawl(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "crawl failed")
		s.writeFailure(w, r, err)
		return
	}
	archive, err := s.builder.Build(ctx, req, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "archive failed")
		s.writeFailure(w, r, err)
		return
	}
	span.SetAttributes(
		attribute.String("crawl.job_id", result.JobID),
		attribute.String("archive.name", archive.Name),
		attribute.Int("archive.pages", archive.Pages),
	)
	s.publish(ctx, result, archive, logger)

	downloadURL := "/download/" + url.PathEscape(archive.Name)
	if !jsonBody && !acceptsJSON(r) {
		http.Redirect(w, r, downloadURL, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusCreated, crawlResponse{
		Filename:    archive.Name,
		DownloadURL: downloadURL,
		Pages:       archive.Pages,
		Bytes:       archive.Bytes,
		SHA256:      archive.SHA256,
	})
}

// parseCrawlRequest reads a JSON body or form fields, applying defaults for
// omitted depth and max pages. It reports whether the body was JSON.
func (s *Server) parseCrawlRequest(w http.ResponseWriter, r *http.Request) (crawler.Request, bool, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	req := crawler.Request{Depth: s.cfg.DefaultDepth, MaxPages: s.cfg.DefaultMaxPages}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body crawlRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return req, true, fmt.Errorf("%w: invalid JSON body", crawler.ErrValidation)
		}
		req.URL = body.URL
		if body.Depth != nil {
			req.Depth = *body.Depth
		}
		if body.MaxPages != nil {
			req.MaxPages = *body.MaxPages
		}
		return req, true, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, false, fmt.Errorf("%w: invalid form body", crawler.ErrValidation)
	}
	req.URL = r.PostFormValue("url")
	var err error
	if req.Depth, err = intField(r, "depth", req.Depth); err != nil {
		return req, false, err
	}
	if req.MaxPages, err = intField(r, "max_pages", req.MaxPages); err != nil {
		return req, false, err
	}
	return req, false, nil
}

func intField(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.PostFormValue(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", crawler.ErrValidation, strings.ReplaceAll(name, "_", " "))
	}
	return v, nil
}

func acceptsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func (s *Server) publish(ctx context.Context, result crawler.Result, archive crawler.Archive, logger *zap.Logger) {
	if s.publisher == nil {
		return
	}
	event := crawler.CrawlCompleted{
		Archive:     archive.Name,
		URI:         archive.URI,
		SourceURL:   archive.SourceURL,
		JobID:       result.JobID,
		Pages:       archive.Pages,
		Bytes:       archive.Bytes,
		SHA256:      archive.SHA256,
		CreditsUsed: result.CreditsUsed,
		CompletedAt: archive.CreatedAt,
	}
	id, err := s.publisher.Publish(ctx, EventCrawlCompleted, event)
	if err != nil {
		logger.Warn("publish completion event failed", zap.String("archive", archive.Name), zap.Error(err))
		return
	}
	logger.Debug("completion event published", zap.String("message_id", id))
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	rc, info, err := s.store.Open(r.Context(), name)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	n, err := io.Copy(w, rc)
	if err != nil {
		s.logger.Warn("archive download interrupted", zap.String("archive", name), zap.Int64("bytes", n), zap.Error(err))
		return
	}
	if info.Size > 0 && n != info.Size {
		s.logger.Warn("archive download short", zap.String("archive", name), zap.Int64("bytes", n), zap.Int64("size", info.Size))
		return
	}
	if !s.cfg.DeleteAfterDownload {
		return
	}
	// The response is complete; the request context may already be done.
	if err := s.store.Delete(context.WithoutCancel(r.Context()), name); err != nil && !errors.Is(err, crawler.ErrArchiveNotFound) {
		s.logger.Warn("delete downloaded archive", zap.String("archive", name), zap.Error(err))
		return
	}
	metrics.ObserveArchiveDeleted(DeleteReasonDownloaded)
}

// writeFailure maps pipeline errors to statuses. Internal causes are logged
// but never shown.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := crawler.HTTPStatus(err)
	msg := http.StatusText(status)
	if crawler.UserFacing(err) {
		msg = err.Error()
	}
	switch {
	case errors.Is(err, crawler.ErrArchiveNotFound), errors.Is(err, crawler.ErrInvalidName):
		msg = "archive not found"
	case status >= http.StatusInternalServerError:
		s.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	default:
		s.logger.Info("request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
