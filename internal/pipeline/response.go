package pipeline

import (
	"context"
	"io"
)

// StreamFunc writes the streamed response body. The writer flushes after
// every write; implementations must forward bytes as they arrive rather
// than buffering the whole answer.
type StreamFunc func(ctx context.Context, w io.Writer) error

// Response is the terminal output of the pipeline. Either Text is set
// (non-streaming, returned as a JSON object) or Stream is set (plain-text
// stream with interleaved sentinel metadata blocks).
type Response struct {
	Streaming bool
	Text      string
	Stream    StreamFunc
}
