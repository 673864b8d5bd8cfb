// Package citations merges and renumbers source citations. The same
// source may be cited several times with different raw numbers, or arrive
// from several tool calls; deduplication collapses every raw number that
// shares an identity key (url, else title) onto one sequential number and
// rewrites the inline bracket markers to match.
package citations

import (
	"fmt"
	"strings"

	"github.com/msf-usa/chatd/internal/domain"
)

// placeholder is a collision-proof intermediate marker. NUL bytes cannot
// appear in a final [n] marker, so the second rewrite pass can never
// touch a marker produced by the first.
func placeholder(n int) string {
	return fmt.Sprintf("\x00cite:%d\x00", n)
}

// Dedupe collapses duplicate citations and rewrites the inline markers in
// text to the new numbering. The returned list holds exactly one entry
// per distinct identity key, ordered by new number (first-seen key
// order). Every inline marker left in the text refers to an entry in the
// returned list.
func Dedupe(list []domain.Citation, text string) ([]domain.Citation, string) {
	if len(list) == 0 {
		return nil, text
	}

	// Group raw numbers by identity key, preserving first-seen order.
	type group struct {
		citation domain.Citation
		newNum   int
	}
	groups := make(map[string]*group)
	var order []string
	remap := make(map[int]int)

	for _, c := range list {
		key := c.Key()
		g, ok := groups[key]
		if !ok {
			g = &group{citation: c, newNum: len(order) + 1}
			groups[key] = g
			order = append(order, key)
		}
		remap[c.Number] = g.newNum
	}

	// Two-pass rewrite: old markers to placeholders first, so a cyclic
	// remap (old 2 -> new 1 while old 1 -> new 3) cannot clobber markers
	// already rewritten.
	for old, newNum := range remap {
		text = strings.ReplaceAll(text, fmt.Sprintf("[%d]", old), placeholder(newNum))
	}
	for _, newNum := range remap {
		text = strings.ReplaceAll(text, placeholder(newNum), fmt.Sprintf("[%d]", newNum))
	}

	out := make([]domain.Citation, 0, len(order))
	for _, key := range order {
		g := groups[key]
		c := g.citation
		c.Number = g.newNum
		out = append(out, c)
	}
	return out, text
}
