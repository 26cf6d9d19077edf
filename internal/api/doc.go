// Package api exposes the password-protected web front-end: the crawl form,
// the crawl endpoint that returns a zip of markdown pages, archive download
// and the unauthenticated health and metrics endpoints.
package api
