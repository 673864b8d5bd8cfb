package tokenizer

import (
	"strings"
	"testing"
)

func TestCount(t *testing.T) {
	c := New()
	if got := c.Count(""); got != 0 {
		t.Fatalf("empty string counted %d tokens", got)
	}
	if got := c.Count(strings.Repeat("a", 400)); got != 100 {
		t.Fatalf("400 chars counted %d tokens, want 100", got)
	}
}

func TestTruncate(t *testing.T) {
	c := New()
	s := strings.Repeat("word ", 200)

	short := c.Truncate(s, 50)
	if c.Count(short) > 50 {
		t.Fatalf("truncated text still %d tokens", c.Count(short))
	}
	if c.Truncate("small", 1000) != "small" {
		t.Fatalf("text under budget changed")
	}
	if c.Truncate("anything", 0) != "" {
		t.Fatalf("zero budget should return empty")
	}
}

func TestTruncateRuneBoundary(t *testing.T) {
	c := New()
	s := strings.Repeat("日本語", 100)
	out := c.Truncate(s, 10)
	for _, r := range out {
		if r == '�' {
			t.Fatalf("truncation split a rune")
		}
	}
}
