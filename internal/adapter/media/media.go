// Package media extracts the audio track from video containers so the
// transcription path only ever sees audio.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

// Extractor pulls the audio track out of a video payload.
type Extractor interface {
	ExtractAudio(ctx context.Context, video []byte) ([]byte, error)
}

// FFmpegExtractor shells out to ffmpeg via temporary files.
type FFmpegExtractor struct {
	bin string
}

// NewFFmpegExtractor creates an extractor using the given ffmpeg binary.
func NewFFmpegExtractor(bin string) *FFmpegExtractor {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegExtractor{bin: bin}
}

// ExtractAudio writes the video to a temp file, extracts the audio track
// as mp3 and returns its bytes. Temp artifacts are always removed.
func (e *FFmpegExtractor) ExtractAudio(ctx context.Context, video []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "chatd-media-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, uuid.New().String()+".video")
	out := filepath.Join(dir, uuid.New().String()+".mp3")
	if err := os.WriteFile(in, video, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp video: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.bin, "-i", in, "-vn", "-acodec", "libmp3lame", "-y", out)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, string(output))
	}

	audio, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted audio: %w", err)
	}
	return audio, nil
}
