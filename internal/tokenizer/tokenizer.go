// Package tokenizer provides heuristic token counting for budget
// decisions. A single Counter is constructed at startup and shared
// read-only across requests.
package tokenizer

import "unicode/utf8"

const defaultCharsPerToken = 4.0

// Counter estimates token counts from rune counts. The calibration is
// the common ~4 characters per token ratio.
type Counter struct {
	charsPerToken float64
}

// New creates a counter with the default calibration.
func New() *Counter {
	return &Counter{charsPerToken: defaultCharsPerToken}
}

// Count estimates tokens in s.
func (c *Counter) Count(s string) int {
	if s == "" {
		return 0
	}
	return int(float64(utf8.RuneCountInString(s)) / c.charsPerToken)
}

// Truncate trims s so its estimate stays at or under maxTokens, cutting
// on a rune boundary.
func (c *Counter) Truncate(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if c.Count(s) <= maxTokens {
		return s
	}
	budget := int(float64(maxTokens) * c.charsPerToken)
	runes := []rune(s)
	if budget >= len(runes) {
		return s
	}
	return string(runes[:budget])
}

// Reset restores the default calibration. Intended for tests.
func (c *Counter) Reset() {
	c.charsPerToken = defaultCharsPerToken
}
