package ports

import (
	"context"
	"io"
	"time"

	"mediagate/internal/core/domain"
)

// EngineOptions are the knobs the orchestrator hands to an extraction engine.
type EngineOptions struct {
	Format        string            // engine format selector, empty for the engine default
	MaxHeight     int               // 0 means unbounded
	MaxBytes      int64             // per-file size cap hint, 0 means unbounded
	ItemIndex     int               // 1-based item selection, 0 for all items
	CookieFile    string            // Netscape cookie jar, empty when unavailable
	SocketTimeout time.Duration     // per-connection timeout inside the engine
	Retries       int               // engine-internal retry count
	Headers       map[string]string // extra request headers
}

// Engine is the boundary to the media extraction engine. Implementations
// must return *domain.Error values so callers never inspect message text.
type Engine interface {
	// Extract returns metadata for url without fetching media bytes.
	Extract(ctx context.Context, url string, opts EngineOptions) (*domain.ExtractionResult, error)

	// Fetch downloads the media behind url into dest and returns the files
	// in the order the engine produced them.
	Fetch(ctx context.Context, url string, opts EngineOptions, dest string) ([]domain.LocalFile, error)
}

// Downloader fetches a remote resource as a stream.
type Downloader interface {
	// Download returns a ReadCloser that the caller must close.
	Download(ctx context.Context, resourceURL string, headers map[string]string) (io.ReadCloser, error)
}

// ArtifactStore holds produced artifacts keyed by a generated identifier.
type ArtifactStore interface {
	// Put persists the artifact content read from body and returns the
	// stored artifact with its ID and creation time filled in.
	Put(ctx context.Context, artifact domain.Artifact, body io.Reader) (*domain.Artifact, error)

	// Get returns the artifact and its content. The caller must close the
	// reader. Unknown or expired IDs yield a domain NotFound error.
	Get(ctx context.Context, id string) (*domain.Artifact, io.ReadCloser, error)

	// SweepExpired removes entries older than the store TTL.
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	// Stats reports the number and total size of stored artifacts.
	Stats(ctx context.Context) (domain.StoreStats, error)
}

// RateLimiter performs per-client sliding-window admission control.
type RateLimiter interface {
	Admit(ctx context.Context, clientID string, now time.Time) (bool, error)
}

// Sweeper is anything the cleanup scheduler can sweep.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// EventSink records request outcomes.
type EventSink interface {
	Record(ctx context.Context, event domain.Event) error
	Close() error
}
