package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/msf-usa/chatd/internal/config"
	"github.com/msf-usa/chatd/internal/domain"
	"github.com/msf-usa/chatd/internal/identity"
	"github.com/msf-usa/chatd/internal/policy"
	"github.com/msf-usa/chatd/internal/ratelimit"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	catalog, err := config.NewCatalog([]domain.ModelInfo{
		{ID: "gpt-4o", Provider: domain.ProviderChat, Vision: true, SupportsTemperature: true, SupportsSystemRole: true},
		{ID: "o3-mini", Provider: domain.ProviderReasoning},
	})
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	eng, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to build policy engine: %v", err)
	}
	limiter := ratelimit.New(600, 100, time.Minute)
	t.Cleanup(func() { limiter.Close() })

	cfg := &config.Config{AllowedStorageHosts: []string{"storage.internal"}}
	return NewBuilder(identity.NewHeaderProvider(), limiter, eng, catalog, cfg, zap.NewNop())
}

func chatRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "u1")
	return req
}

func buildStatus(t *testing.T, err error) int {
	t.Helper()
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("expected BuildError, got %v", err)
	}
	return be.Status
}

func TestBuildValidRequest(t *testing.T) {
	b := newTestBuilder(t)
	req := chatRequest(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hello"}]}`)

	c, err := b.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if c.User.ID != "u1" {
		t.Fatalf("unexpected user: %+v", c.User)
	}
	if c.Model.Provider != domain.ProviderChat {
		t.Fatalf("model not resolved: %+v", c.Model)
	}
	if !c.Stream {
		t.Fatalf("stream should default to true")
	}
	if c.SearchMode != domain.SearchModeOff {
		t.Fatalf("search mode should default to off, got %q", c.SearchMode)
	}
	if c.RequestID == "" {
		t.Fatalf("request id not assigned")
	}
}

func TestBuildMissingUser(t *testing.T) {
	b := newTestBuilder(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat",
		strings.NewReader(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`))

	_, err := b.Build(context.Background(), req)
	if got := buildStatus(t, err); got != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", got)
	}
}

func TestBuildValidationErrors(t *testing.T) {
	b := newTestBuilder(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing model", `{"messages":[{"role":"user","content":"hi"}]}`},
		{"missing messages", `{"model":"gpt-4o"}`},
		{"unknown model", `{"model":"nope","messages":[{"role":"user","content":"hi"}]}`},
		{"temperature out of range", `{"model":"gpt-4o","temperature":3.5,"messages":[{"role":"user","content":"hi"}]}`},
		{"unknown search mode", `{"model":"gpt-4o","searchMode":"sometimes","messages":[{"role":"user","content":"hi"}]}`},
		{"unknown field", `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"bogus":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(context.Background(), chatRequest(t, tt.body))
			if got := buildStatus(t, err); got != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", got)
			}
		})
	}
}

func TestBuildTooManyMessages(t *testing.T) {
	b := newTestBuilder(t)
	var msgs []string
	for i := 0; i < maxMessages+1; i++ {
		msgs = append(msgs, `{"role":"user","content":"hi"}`)
	}
	body := fmt.Sprintf(`{"model":"gpt-4o","messages":[%s]}`, strings.Join(msgs, ","))

	_, err := b.Build(context.Background(), chatRequest(t, body))
	if got := buildStatus(t, err); got != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", got)
	}
}

func TestBuildAttachmentHostPolicy(t *testing.T) {
	b := newTestBuilder(t)

	allowed := `{"model":"gpt-4o","messages":[{"role":"user","content":[
		{"type":"text","text":"what is this"},
		{"type":"file","url":"https://storage.internal/bucket/doc.pdf","name":"doc.pdf"}]}]}`
	c, err := b.Build(context.Background(), chatRequest(t, allowed))
	if err != nil {
		t.Fatalf("allow-listed host rejected: %v", err)
	}
	if !c.HasFiles {
		t.Fatalf("file flag not derived")
	}

	denied := `{"model":"gpt-4o","messages":[{"role":"user","content":[
		{"type":"file","url":"https://evil.example/doc.pdf","name":"doc.pdf"}]}]}`
	_, err = b.Build(context.Background(), chatRequest(t, denied))
	if got := buildStatus(t, err); got != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-allow-listed host, got %d", got)
	}
}

func TestBuildVisionUpgrade(t *testing.T) {
	b := newTestBuilder(t)
	body := `{"model":"o3-mini","messages":[{"role":"user","content":[
		{"type":"text","text":"describe"},
		{"type":"image_url","image_url":{"url":"https://storage.internal/img.png"}}]}]}`

	c, err := b.Build(context.Background(), chatRequest(t, body))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !c.HasImages {
		t.Fatalf("image flag not derived")
	}
	if c.Model.ID != "gpt-4o" {
		t.Fatalf("expected vision upgrade to gpt-4o, got %s", c.Model.ID)
	}
}

func TestBuildRateLimit(t *testing.T) {
	catalog, _ := config.NewCatalog([]domain.ModelInfo{{ID: "gpt-4o", Provider: domain.ProviderChat, Vision: true}})
	eng, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to build policy engine: %v", err)
	}
	limiter := ratelimit.New(1, 1, time.Minute)
	defer limiter.Close()
	b := NewBuilder(identity.NewHeaderProvider(), limiter, eng, catalog,
		&config.Config{AllowedStorageHosts: []string{"storage.internal"}}, zap.NewNop())

	body := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`
	if _, err := b.Build(context.Background(), chatRequest(t, body)); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	_, err = b.Build(context.Background(), chatRequest(t, body))
	if got := buildStatus(t, err); got != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", got)
	}
}
