package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL trims the input, assumes https when no scheme is given, and
// lowercases the scheme and host. Fragments are dropped.
func NormalizeURL(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidURL)
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		if strings.Contains(raw, "://") {
			return "", fmt.Errorf("%w: only http and https are supported", ErrInvalidURL)
		}
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), nil
}

// Validate checks the request bounds and normalizes its URL in place.
func (r *Request) Validate() error {
	if r.Depth < MinDepth || r.Depth > MaxDepth {
		return fmt.Errorf("%w: depth must be between %d and %d", ErrValidation, MinDepth, MaxDepth)
	}
	if r.MaxPages < MinMaxPages || r.MaxPages > MaxMaxPages {
		return fmt.Errorf("%w: max pages must be between %d and %d", ErrValidation, MinMaxPages, MaxMaxPages)
	}
	normalized, err := NormalizeURL(r.URL)
	if err != nil {
		return err
	}
	r.URL = normalized
	return nil
}

// Domain returns the request host with every character outside [a-z0-9-]
// replaced by an underscore so it can be embedded in file names.
func (r Request) Domain() string {
	u, err := url.Parse(r.URL)
	if err != nil || u.Host == "" {
		return "site"
	}
	return strings.Map(func(c rune) rune {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			return c
		}
		return '_'
	}, strings.ToLower(u.Host))
}
