// Package blobstore fetches attachment content from object storage.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Error types for blob operations.
var (
	ErrNotFound   = errors.New("blob not found")
	ErrForbidden  = errors.New("forbidden")
	ErrServerFail = errors.New("server error")
)

// Downloader fetches an object's bytes by storage key.
type Downloader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// HTTPDoer abstracts HTTP client operations for dependency inversion.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPDownloader fetches blobs over HTTP from an S3-compatible endpoint.
// Request signing, when needed, belongs to the injected client's transport.
type HTTPDownloader struct {
	baseURL    string
	httpClient HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	sleepFunc  func(time.Duration)
}

// NewHTTPDownloader creates an HTTPDownloader with default retry settings.
func NewHTTPDownloader(baseURL string, httpClient HTTPDoer) *HTTPDownloader {
	return &HTTPDownloader{
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: 2,
		baseDelay:  100 * time.Millisecond,
		sleepFunc:  time.Sleep,
	}
}

// objectURL builds the object's URL. Keys contain slashes that are real
// path separators, so only the individual segments are escaped.
func (d *HTTPDownloader) objectURL(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return d.baseURL + "/" + strings.Join(segments, "/")
}

// Download fetches the object stored under key. Server errors and transport
// failures are retried with exponential backoff; 404 and 403 are final.
func (d *HTTPDownloader) Download(ctx context.Context, key string) ([]byte, error) {
	objectURL := d.objectURL(key)

	maxAttempts := d.maxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Sleep before retry (not before first attempt)
		if attempt > 0 && d.sleepFunc != nil && d.baseDelay > 0 {
			delay := d.baseDelay * time.Duration(1<<(attempt-1))
			d.sleepFunc(delay)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, objectURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := d.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		case resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %s", ErrForbidden, key)
		case resp.StatusCode >= http.StatusInternalServerError:
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: status %d for %s", ErrServerFail, resp.StatusCode, key)
			continue
		case resp.StatusCode != http.StatusOK:
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, key)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return body, nil
	}
	return nil, lastErr
}
