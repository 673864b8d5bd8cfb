package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/msf-usa/chatd/internal/domain"
)

// WebSearch queries the web-search collaborator and renders its results
// as numbered source snippets.
type WebSearch struct {
	baseURL     string
	apiKey      string
	resultCount int
	httpClient  *http.Client
}

// NewWebSearch creates the web-search tool.
func NewWebSearch(baseURL, apiKey string, resultCount int) *WebSearch {
	if resultCount <= 0 {
		resultCount = 5
	}
	return &WebSearch{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		resultCount: resultCount,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Type returns the tool's type tag.
func (t *WebSearch) Type() string { return TypeWebSearch }

// Name returns the tool's display name.
func (t *WebSearch) Name() string { return "Web Search" }

// Execute runs the search with the derived query only.
func (t *WebSearch) Execute(ctx context.Context, query string) (*Result, error) {
	u := fmt.Sprintf("%s/search?q=%s&count=%d", t.baseURL, url.QueryEscape(query), t.resultCount)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if t.apiKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search service returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		WebPages struct {
			Value []struct {
				Name            string `json:"name"`
				URL             string `json:"url"`
				Snippet         string `json:"snippet"`
				DateLastCrawled string `json:"dateLastCrawled"`
			} `json:"value"`
		} `json:"webPages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	var text strings.Builder
	var cites []domain.Citation
	for i, page := range parsed.WebPages.Value {
		n := i + 1
		fmt.Fprintf(&text, "[%d] %s\n%s\n\n", n, page.Name, page.Snippet)
		cites = append(cites, domain.Citation{
			Number: n,
			Title:  page.Name,
			URL:    page.URL,
			Date:   page.DateLastCrawled,
		})
	}
	return &Result{Text: strings.TrimSpace(text.String()), Citations: cites}, nil
}
