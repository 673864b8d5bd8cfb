package citations

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/msf-usa/chatd/internal/domain"
)

var (
	markerOpen  = []byte("【")
	markerClose = []byte("】")
)

// StreamRewriter rewrites provider bracketed-source notation
// (【i:j†source】) into sequential [n] markers on the fly, while building
// the deduplicated citation list. The same source key always maps to the
// same number. Only the bytes that could still belong to an unfinished
// marker are held back between chunks; everything else is emitted
// immediately.
type StreamRewriter struct {
	pending []byte
	numbers map[string]int
	cites   []domain.Citation
}

// NewStreamRewriter creates a rewriter with an empty citation table.
func NewStreamRewriter() *StreamRewriter {
	return &StreamRewriter{numbers: make(map[string]int)}
}

// Process consumes the next chunk and returns the rewritten text that is
// safe to emit now.
func (r *StreamRewriter) Process(chunk string) string {
	r.pending = append(r.pending, chunk...)
	var out bytes.Buffer

	for {
		open := bytes.Index(r.pending, markerOpen)
		if open < 0 {
			keep := partialMarkerSuffix(r.pending)
			cut := len(r.pending) - keep
			out.Write(r.pending[:cut])
			r.pending = append([]byte(nil), r.pending[cut:]...)
			break
		}
		closeIdx := bytes.Index(r.pending[open:], markerClose)
		if closeIdx < 0 {
			// Marker not closed yet; emit up to it and wait.
			out.Write(r.pending[:open])
			r.pending = append([]byte(nil), r.pending[open:]...)
			break
		}
		inner := string(r.pending[open+len(markerOpen) : open+closeIdx])
		out.Write(r.pending[:open])
		out.WriteString(r.markerFor(inner))
		r.pending = append([]byte(nil), r.pending[open+closeIdx+len(markerClose):]...)
	}

	return out.String()
}

// Flush returns any bytes still held back. Call once the upstream stream
// is drained; an unterminated marker is emitted verbatim.
func (r *StreamRewriter) Flush() string {
	out := string(r.pending)
	r.pending = nil
	return out
}

// Citations returns the deduplicated citation list in marker order.
func (r *StreamRewriter) Citations() []domain.Citation {
	out := make([]domain.Citation, len(r.cites))
	copy(out, r.cites)
	return out
}

func (r *StreamRewriter) markerFor(inner string) string {
	key := inner
	title := inner
	if idx := strings.Index(inner, "†"); idx >= 0 {
		title = strings.TrimSpace(inner[idx+len("†"):])
		if title != "" {
			key = title
		}
	}
	n, ok := r.numbers[key]
	if !ok {
		n = len(r.cites) + 1
		r.numbers[key] = n
		r.cites = append(r.cites, domain.Citation{Number: n, Title: title})
	}
	return fmt.Sprintf("[%d]", n)
}

// partialMarkerSuffix returns the length of the longest suffix of p that
// is a proper prefix of the marker-open rune bytes.
func partialMarkerSuffix(p []byte) int {
	max := len(markerOpen) - 1
	if max > len(p) {
		max = len(p)
	}
	for n := max; n > 0; n-- {
		if bytes.Equal(p[len(p)-n:], markerOpen[:n]) {
			return n
		}
	}
	return 0
}
