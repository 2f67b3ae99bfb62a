// Package fetch downloads remote feed documents.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// UserAgent identifies this scraper to feed publishers.
const UserAgent = "FeedZero/1.0 (tightenupthe.tech)"

// maxBodySize caps how much of a response is read.
const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Document is a successfully fetched feed document.
type Document struct {
	Body   []byte
	Status int
}

// StatusError reports a non-200 response. Body carries the raw response
// for forensic logging; there are no retries at this layer.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Status)
}

// Fetcher downloads feed documents with a fixed user agent.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client and per-request timeout.
func New(client HTTPClient, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{client: client, timeout: timeout}
}

// Fetch issues a GET for the feed link. Any non-200 response is returned as
// a *StatusError carrying the raw body.
func (f *Fetcher) Fetch(ctx context.Context, link string) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode, Body: body}
	}

	return &Document{Body: body, Status: resp.StatusCode}, nil
}
