package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"mediagate/internal/core/domain"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// HTTPDownloader implements ports.Downloader using standard HTTP.
type HTTPDownloader struct {
	client *http.Client
}

// NewHTTPDownloader creates a new HTTPDownloader. jar may be nil.
func NewHTTPDownloader(timeout time.Duration, jar http.CookieJar) *HTTPDownloader {
	if timeout <= 0 {
		timeout = 30 * time.Minute // media files can be large
	}
	return &HTTPDownloader{
		client: &http.Client{Timeout: timeout, Jar: jar},
	}
}

// Client exposes the underlying client so engines can share its jar.
func (d *HTTPDownloader) Client() *http.Client {
	return d.client
}

// Download fetches resourceURL. Non-200 responses are mapped to domain errors.
func (d *HTTPDownloader) Download(ctx context.Context, resourceURL string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return nil, domain.InvalidInput("invalid resource URL", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, domain.Timeout("download timed out", err)
		}
		return nil, domain.ExtractionFailure("failed to download media", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, StatusError(resp.StatusCode)
	}

	return resp.Body, nil
}

// StatusError maps an upstream HTTP status onto a domain error.
func StatusError(code int) error {
	cause := fmt.Errorf("unexpected status code: %d", code)
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.AuthRequired("the source requires authentication", cause)
	case http.StatusNotFound, http.StatusGone:
		return domain.NotFound("the source could not be found", cause)
	case http.StatusTooManyRequests:
		return domain.RateLimited("the source is rate limiting requests", cause)
	default:
		return domain.ExtractionFailure("the source returned an error", cause)
	}
}
