package tools

import (
	"context"
	"errors"
	"testing"
)

func TestRouteForceSkipsClassifier(t *testing.T) {
	r := NewRouter(func(_ context.Context, _, _ string) (string, error) {
		t.Fatalf("classifier must not run when forced")
		return "", nil
	})

	decisions, err := r.Route(context.Background(), "latest news", true)
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if len(decisions) != 1 || decisions[0].ToolType != TypeWebSearch || decisions[0].Query != "latest news" {
		t.Fatalf("unexpected decisions: %+v", decisions)
	}
}

func TestRouteClassifierPositive(t *testing.T) {
	r := NewRouter(func(_ context.Context, _, _ string) (string, error) {
		return "Sure, here you go:\n{\"web_search\": true, \"query\": \"go release history\"}", nil
	})

	decisions, err := r.Route(context.Background(), "when did go come out", false)
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if len(decisions) != 1 || decisions[0].Query != "go release history" {
		t.Fatalf("wrapped JSON not extracted: %+v", decisions)
	}
}

func TestRouteClassifierNegative(t *testing.T) {
	r := NewRouter(func(_ context.Context, _, _ string) (string, error) {
		return `{"web_search": false, "query": ""}`, nil
	})

	decisions, err := r.Route(context.Background(), "2+2", false)
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if decisions != nil {
		t.Fatalf("expected no decisions: %+v", decisions)
	}
}

func TestRouteEmptyQueryFallsBackToComposite(t *testing.T) {
	r := NewRouter(func(_ context.Context, _, _ string) (string, error) {
		return `{"web_search": true, "query": "  "}`, nil
	})

	decisions, err := r.Route(context.Background(), "original question", false)
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if decisions[0].Query != "original question" {
		t.Fatalf("composite fallback missing: %+v", decisions)
	}
}

func TestRouteClassifierFailure(t *testing.T) {
	r := NewRouter(func(_ context.Context, _, _ string) (string, error) {
		return "", errors.New("model down")
	})
	if _, err := r.Route(context.Background(), "q", false); err == nil {
		t.Fatalf("expected error")
	}

	r = NewRouter(func(_ context.Context, _, _ string) (string, error) {
		return "definitely not json", nil
	})
	if _, err := r.Route(context.Background(), "q", false); err == nil {
		t.Fatalf("expected unparsable-answer error")
	}
}
