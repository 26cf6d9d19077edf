package crawler

import (
	"context"
	"io"
	"time"
)

// Crawler runs one crawl job to completion.
type Crawler interface {
	Crawl(ctx context.Context, req Request) (Result, error)
}

// ArchiveBuilder packages a crawl result into a stored archive.
type ArchiveBuilder interface {
	Build(ctx context.Context, req Request, result Result) (Archive, error)
}

// ArchiveStore persists packaged archives keyed by file name.
type ArchiveStore interface {
	Put(ctx context.Context, name string, data io.Reader) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]ObjectInfo, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
