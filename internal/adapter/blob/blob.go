// Package blob provides the blob-store collaborator boundary used for
// attachment download, temporary uploads and signed URLs.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Store is the blob-store contract consumed by the pipeline.
type Store interface {
	Get(ctx context.Context, path string) ([]byte, error)
	GetSize(ctx context.Context, path string) (int64, error)
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	Delete(ctx context.Context, path string) error
	SASURL(ctx context.Context, path string, hours int) (string, error)
}

// HTTPStore talks to the blob service over HTTP.
type HTTPStore struct {
	baseURL    string
	token      string
	httpClient *http.Client

	// retries for idempotent reads only
	maxAttempts int
	backoffBase time.Duration
}

// NewHTTPStore creates a blob store client.
func NewHTTPStore(baseURL, token string) *HTTPStore {
	return &HTTPStore{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		token:       token,
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		maxAttempts: 3,
		backoffBase: 250 * time.Millisecond,
	}
}

func (s *HTTPStore) objectURL(path string) string {
	return s.baseURL + "/blobs/" + url.PathEscape(strings.TrimPrefix(path, "/"))
}

func (s *HTTPStore) setHeaders(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

// Get downloads the object. Downloads are idempotent, so transient
// failures retry with bounded exponential backoff.
func (s *HTTPStore) Get(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := s.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(path), nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		s.setHeaders(req)
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to download blob: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("blob store returned status %d for %s", resp.StatusCode, path)
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read blob body: %w", err)
		}
		return nil
	})
	return data, err
}

// GetSize returns the object size without fetching a single content byte.
func (s *HTTPStore) GetSize(ctx context.Context, path string) (int64, error) {
	var size int64
	err := s.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.objectURL(path), nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		s.setHeaders(req)
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to stat blob: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("blob store returned status %d for %s", resp.StatusCode, path)
		}
		cl := resp.Header.Get("Content-Length")
		size, err = strconv.ParseInt(cl, 10, 64)
		if err != nil {
			return fmt.Errorf("blob store returned unusable content length %q: %w", cl, err)
		}
		return nil
	})
	return size, err
}

// Upload stores the object. Not retried; uploads are not idempotent from
// the caller's point of view.
func (s *HTTPStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(path), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", contentType)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload blob: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("blob store returned status %d uploading %s", resp.StatusCode, path)
	}
	return nil
}

// Delete removes the object.
func (s *HTTPStore) Delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(path), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("blob store returned status %d deleting %s", resp.StatusCode, path)
	}
	return nil
}

// SASURL returns a time-limited signed URL for the object.
func (s *HTTPStore) SASURL(ctx context.Context, path string, hours int) (string, error) {
	u := fmt.Sprintf("%s/sas?path=%s&hours=%d", s.baseURL, url.QueryEscape(path), hours)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request signed url: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("blob store returned status %d signing %s", resp.StatusCode, path)
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode signed url response: %w", err)
	}
	return out.URL, nil
}

func (s *HTTPStore) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.backoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
