// Package crawler holds the request, result and archive types plus the
// interfaces that connect the HTTP layer, the crawl orchestrator and the
// archive stores.
package crawler
