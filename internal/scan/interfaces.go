package scan

import (
	"context"
	"net/http"
	"time"
)

// FetchRequest captures everything needed to fetch a single URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
	Timeout time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// ResultStore persists scan records and serves cache lookups.
// Lookup returns only fresh, owner-scoped records; a missing record is
// reported as (nil, nil), not an error.
type ResultStore interface {
	Lookup(ctx context.Context, fp Fingerprint, ownerID string) (*ScanRecord, error)
	Save(ctx context.Context, record ScanRecord) error
	ListRecent(ctx context.Context, ownerID string, limit int) ([]ScanRecord, error)
}

// BlobStore writes raw page artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes scan-completed events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces scan record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
