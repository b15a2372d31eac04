// Package fetch retrieves raw document bytes from upstream over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout is the default timeout for upstream requests.
const DefaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of an upstream error response is read for
// diagnostics.
const maxErrorBody = 4 * 1024

// ErrNotFound is returned when the upstream reports the resource missing.
var ErrNotFound = errors.New("not found")

// HTTPSource fetches resource bytes by URL. The cache key is expected to be
// a fully qualified URL.
type HTTPSource struct {
	client *http.Client
}

// Option configures an HTTPSource.
type Option func(*HTTPSource)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// WithTimeout sets the request timeout on the default client.
func WithTimeout(timeout time.Duration) Option {
	return func(s *HTTPSource) {
		s.client.Timeout = timeout
	}
}

// NewHTTPSource creates a new HTTP byte source.
func NewHTTPSource(opts ...Option) *HTTPSource {
	s := &HTTPSource{
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch downloads the resource at key and returns its raw bytes. Any
// non-2xx response is a failure.
func (s *HTTPSource) Fetch(ctx context.Context, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return body, nil
}
