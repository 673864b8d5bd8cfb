// Package transcribe provides the transcription collaborator boundary:
// a synchronous call for small audio and an asynchronous job API for
// large audio, plus a bounded polling helper.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Job states reported by the transcription service.
const (
	StateRunning   = "Running"
	StateSucceeded = "Succeeded"
	StateFailed    = "Failed"
)

// Transcriber is the transcription contract consumed by the pipeline.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte, language string) (string, error)
	Submit(ctx context.Context, audioURL, language string) (string, error)
	Status(ctx context.Context, jobID string) (string, error)
	Transcript(ctx context.Context, jobID string) (string, error)
	Delete(ctx context.Context, jobID string) error
}

// Client talks to the transcription service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// async polling bounds
	pollInitial time.Duration
	pollMax     time.Duration
	pollCeiling time.Duration
}

// NewClient creates a transcription client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		pollInitial: 2 * time.Second,
		pollMax:     30 * time.Second,
		pollCeiling: 10 * time.Minute,
	}
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	}
}

// Transcribe runs a synchronous transcription of the audio bytes.
func (c *Client) Transcribe(ctx context.Context, filename string, audio []byte, language string) (string, error) {
	u := fmt.Sprintf("%s/transcribe?filename=%s&language=%s",
		c.baseURL, url.QueryEscape(filename), url.QueryEscape(language))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription service returned status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode transcript: %w", err)
	}
	return out.Text, nil
}

// Submit starts an asynchronous transcription job for the audio at the
// given URL and returns the job id.
func (c *Client) Submit(ctx context.Context, audioURL, language string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"contentUrl": audioURL,
		"locale":     language,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit transcription job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var out struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode job response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("transcription service returned no job id")
	}
	return out.JobID, nil
}

// Status returns the current state of an asynchronous job.
func (c *Client) Status(ctx context.Context, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to query job status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription service returned status %d for job %s", resp.StatusCode, jobID)
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode job status: %w", err)
	}
	return out.Status, nil
}

// Transcript fetches the result of a succeeded job.
func (c *Client) Transcript(ctx context.Context, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+url.PathEscape(jobID)+"/transcript", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch transcript: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription service returned status %d for job %s", resp.StatusCode, jobID)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode transcript: %w", err)
	}
	return out.Text, nil
}

// Delete removes a finished job and its artifacts.
func (c *Client) Delete(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("transcription service returned status %d deleting job %s", resp.StatusCode, jobID)
	}
	return nil
}

// WaitForTranscript polls a job with growing intervals until it finishes
// or the wall-clock ceiling passes. The async file path does not use
// this; it exists for the out-of-band status surface and tooling.
func (c *Client) WaitForTranscript(ctx context.Context, jobID string) (string, error) {
	deadline := time.Now().Add(c.pollCeiling)
	interval := c.pollInitial

	for {
		state, err := c.Status(ctx, jobID)
		if err != nil {
			return "", err
		}
		switch state {
		case StateSucceeded:
			return c.Transcript(ctx, jobID)
		case StateFailed:
			return "", fmt.Errorf("transcription job %s failed", jobID)
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("transcription job %s did not finish within %s", jobID, c.pollCeiling)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
		if interval *= 2; interval > c.pollMax {
			interval = c.pollMax
		}
	}
}
