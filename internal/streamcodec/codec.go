// Package streamcodec embeds structured JSON payloads inside a plain
// text stream. A payload is framed by a unique sentinel pair and injected
// into the same byte stream as the answer: before the first content chunk
// for progress hints, after the last chunk for trailing metadata. The
// decoder strips the blocks and forwards every other byte unchanged.
//
// Correctness depends on the sentinel strings never appearing in
// generated text; the markers are chosen to make that collision
// practically impossible.
package streamcodec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/msf-usa/chatd/internal/domain"
)

// Sentinels framing an embedded metadata block.
const (
	StartSentinel = "\x1e__CHATD_METADATA_BEGIN__\x1e"
	EndSentinel   = "\x1e__CHATD_METADATA_END__\x1e"
)

// Metadata is the payload carried in-band within the response stream.
type Metadata struct {
	// Kind is "progress" for the pre-content hint, "final" for the
	// trailing block.
	Kind       string            `json:"kind"`
	Message    string            `json:"message,omitempty"`
	Citations  []domain.Citation `json:"citations,omitempty"`
	ThreadID   string            `json:"threadId,omitempty"`
	Transcript string            `json:"transcript,omitempty"`
}

// Metadata kinds.
const (
	KindProgress = "progress"
	KindFinal    = "final"
)

// Encode frames v as a sentinel-delimited metadata block.
func Encode(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(StartSentinel)
	buf.Write(payload)
	buf.WriteString(EndSentinel)
	return buf.Bytes(), nil
}

// WriteBlock encodes v and writes the framed block to w.
func WriteBlock(w io.Writer, v any) error {
	block, err := Encode(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(block); err != nil {
		return fmt.Errorf("failed to write metadata block: %w", err)
	}
	return nil
}

// Decoder incrementally splits a byte stream into visible text and
// metadata payloads. Visible bytes are forwarded to Out as soon as they
// can no longer be part of a sentinel; metadata JSON is delivered to
// OnMetadata. Decoder implements io.Writer.
type Decoder struct {
	Out        io.Writer
	OnMetadata func(payload json.RawMessage) error

	inBlock bool
	pending []byte
}

// NewDecoder creates a decoder forwarding visible text to out.
func NewDecoder(out io.Writer, onMetadata func(json.RawMessage) error) *Decoder {
	return &Decoder{Out: out, OnMetadata: onMetadata}
}

// Write consumes the next chunk of the stream.
func (d *Decoder) Write(p []byte) (int, error) {
	d.pending = append(d.pending, p...)
	if err := d.drain(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush forwards any bytes still held back waiting for a possible
// sentinel. Call once the upstream stream is fully drained.
func (d *Decoder) Flush() error {
	if d.inBlock {
		return fmt.Errorf("stream ended inside a metadata block")
	}
	if len(d.pending) == 0 {
		return nil
	}
	out := d.pending
	d.pending = nil
	return d.forward(out)
}

func (d *Decoder) drain() error {
	for {
		if d.inBlock {
			end := bytes.Index(d.pending, []byte(EndSentinel))
			if end < 0 {
				return nil
			}
			payload := append(json.RawMessage(nil), d.pending[:end]...)
			d.pending = d.pending[end+len(EndSentinel):]
			d.inBlock = false
			if d.OnMetadata != nil {
				if err := d.OnMetadata(payload); err != nil {
					return err
				}
			}
			continue
		}

		start := bytes.Index(d.pending, []byte(StartSentinel))
		if start >= 0 {
			if err := d.forward(d.pending[:start]); err != nil {
				return err
			}
			d.pending = d.pending[start+len(StartSentinel):]
			d.inBlock = true
			continue
		}

		// No full sentinel. Hold back only a tail that could still be
		// the beginning of one; everything before it is visible text.
		keep := partialSuffix(d.pending, []byte(StartSentinel))
		cut := len(d.pending) - keep
		if cut > 0 {
			out := d.pending[:cut]
			d.pending = append([]byte(nil), d.pending[cut:]...)
			if err := d.forward(out); err != nil {
				return err
			}
		}
		return nil
	}
}

func (d *Decoder) forward(p []byte) error {
	if len(p) == 0 || d.Out == nil {
		return nil
	}
	if _, err := d.Out.Write(p); err != nil {
		return err
	}
	return nil
}

// partialSuffix returns the length of the longest suffix of p that is a
// proper prefix of sentinel.
func partialSuffix(p, sentinel []byte) int {
	max := len(sentinel) - 1
	if max > len(p) {
		max = len(p)
	}
	for n := max; n > 0; n-- {
		if bytes.Equal(p[len(p)-n:], sentinel[:n]) {
			return n
		}
	}
	return 0
}
