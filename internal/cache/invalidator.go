// Package cache notifies the edge cache when cached leaderboards go stale.
package cache

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Invalidator drops a cached entry by key.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// NoopInvalidator is used when no edge cache is configured.
type NoopInvalidator struct{}

// Invalidate performs no action.
func (NoopInvalidator) Invalidate(context.Context, string) error { return nil }

// HTTPInvalidator calls an upstream edge cache invalidation endpoint.
type HTTPInvalidator struct {
	client *http.Client
	url    string
	token  string
}

// NewHTTPInvalidator constructs an HTTPInvalidator.
func NewHTTPInvalidator(endpoint, token string, timeout time.Duration) *HTTPInvalidator {
	return &HTTPInvalidator{
		client: &http.Client{Timeout: timeout},
		url:    strings.TrimRight(endpoint, "/"),
		token:  token,
	}
}

// New returns an HTTPInvalidator when endpoint is set and a NoopInvalidator otherwise.
func New(endpoint, token string, timeout time.Duration) Invalidator {
	if strings.TrimSpace(endpoint) == "" {
		return NoopInvalidator{}
	}
	return NewHTTPInvalidator(endpoint, token, timeout)
}

// Invalidate posts key as plain text.
func (h *HTTPInvalidator) Invalidate(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, strings.NewReader(key))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &InvalidationError{Key: key, Status: resp.StatusCode}
	}
	return nil
}

// InvalidationError represents a non-successful invalidation response.
type InvalidationError struct {
	Key    string
	Status int
}

func (e *InvalidationError) Error() string {
	return fmt.Sprintf("cache invalidation of %q failed with status %d %s", e.Key, e.Status, http.StatusText(e.Status))
}
