package crawler

import (
	"errors"
	"net/http"
)

// Error taxonomy shared by the orchestrator, archive builder and HTTP layer.
var (
	ErrValidation      = errors.New("invalid crawl request")
	ErrInvalidURL      = errors.New("invalid url")
	ErrUnauthorized    = errors.New("crawl api rejected the api key")
	ErrQuotaExceeded   = errors.New("crawl api quota exceeded")
	ErrNetwork         = errors.New("crawl api unreachable")
	ErrTimeout         = errors.New("crawl timed out")
	ErrCrawlFailed     = errors.New("crawl job failed")
	ErrArchiveNotFound = errors.New("archive not found")
	ErrInvalidName     = errors.New("invalid archive name")
)

// HTTPStatus maps an error from the crawl pipeline to a response status.
// Unknown errors are treated as internal failures.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, ErrArchiveNotFound), errors.Is(err, ErrInvalidName):
		return http.StatusNotFound
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNetwork), errors.Is(err, ErrCrawlFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// UserFacing reports whether the cause of err may be shown to the caller.
// Archive I/O and other internal failures are reported generically.
func UserFacing(err error) bool {
	for _, target := range []error{
		ErrValidation, ErrInvalidURL, ErrUnauthorized, ErrQuotaExceeded,
		ErrNetwork, ErrTimeout, ErrCrawlFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
