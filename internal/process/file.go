// Package process contains the content processor stages that populate
// the pipeline context with extracted and derived attachment content.
package process

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/msf-usa/chatd/internal/adapter/blob"
	"github.com/msf-usa/chatd/internal/adapter/docqa"
	"github.com/msf-usa/chatd/internal/adapter/media"
	"github.com/msf-usa/chatd/internal/adapter/transcribe"
	"github.com/msf-usa/chatd/internal/domain"
	"github.com/msf-usa/chatd/internal/pipeline"
)

// PendingTranscriptPlaceholder stands in for a transcript still being
// produced by an asynchronous job.
const PendingTranscriptPlaceholder = "[Transcription in progress. Poll the transcription status endpoint with the job id to retrieve it.]"

// FileProcessor downloads, transcribes and summarizes file attachments.
//
// The I/O-bound sub-phases (size validation, download, read) fan out
// across all attachments; the transcription/summarization sub-phase runs
// strictly sequentially to stay under upstream provider rate limits;
// cleanup fans out again and always runs.
type FileProcessor struct {
	blob        blob.Store
	transcriber transcribe.Transcriber
	docqa       docqa.Summarizer
	media       media.Extractor

	maxFileBytes int64
	syncLimit    int64
	rawHeadBytes int
	language     string
}

// NewFileProcessor creates the file processor stage.
func NewFileProcessor(store blob.Store, t transcribe.Transcriber, d docqa.Summarizer, m media.Extractor, maxFileBytes, syncLimit int64, rawHeadBytes int) *FileProcessor {
	return &FileProcessor{
		blob:         store,
		transcriber:  t,
		docqa:        d,
		media:        m,
		maxFileBytes: maxFileBytes,
		syncLimit:    syncLimit,
		rawHeadBytes: rawHeadBytes,
		language:     "en-US",
	}
}

// Name identifies the stage in metrics and error entries.
func (p *FileProcessor) Name() string { return "file_processor" }

// ShouldRun runs the stage only when the turn carries file attachments.
func (p *FileProcessor) ShouldRun(c pipeline.Context) bool { return c.HasFiles }

type attachment struct {
	name     string
	blobPath string

	tempPath string
	data     []byte
}

// Run processes every attachment of the latest user turn. One failing
// file aborts the whole stage rather than silently dropping that file.
func (p *FileProcessor) Run(ctx context.Context, c pipeline.Context) (pipeline.Context, error) {
	attachments, err := collectAttachments(c)
	if err != nil {
		return c, err
	}
	if len(attachments) == 0 {
		return c, nil
	}

	tempDir, err := os.MkdirTemp("", "chatd-files-")
	if err != nil {
		return c, fmt.Errorf("failed to create temp dir: %w", err)
	}
	// Cleanup always runs, fanned out, regardless of processing outcome.
	defer p.cleanup(tempDir, attachments, c.Log())

	// Phase 1: validate sizes before fetching a single byte.
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range attachments {
		g.Go(func() error {
			size, err := p.blob.GetSize(gctx, a.blobPath)
			if err != nil {
				return fmt.Errorf("file %s: %w", a.name, err)
			}
			if size > p.maxFileBytes {
				return fmt.Errorf("file %s: size %d exceeds limit %d", a.name, size, p.maxFileBytes)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return c, err
	}

	// Phase 2: download all attachments concurrently.
	g, gctx = errgroup.WithContext(ctx)
	for _, a := range attachments {
		g.Go(func() error {
			data, err := p.blob.Get(gctx, a.blobPath)
			if err != nil {
				return fmt.Errorf("file %s: %w", a.name, err)
			}
			a.tempPath = filepath.Join(tempDir, uuid.New().String())
			if err := os.WriteFile(a.tempPath, data, 0o600); err != nil {
				return fmt.Errorf("file %s: failed to write temp file: %w", a.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return c, err
	}

	// Phase 3: read all buffers concurrently.
	g, _ = errgroup.WithContext(ctx)
	for _, a := range attachments {
		g.Go(func() error {
			data, err := os.ReadFile(a.tempPath)
			if err != nil {
				return fmt.Errorf("file %s: failed to read temp file: %w", a.name, err)
			}
			a.data = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return c, err
	}

	// Phase 4: process strictly sequentially to respect upstream quota.
	var items []domain.ProcessedContent
	for _, a := range attachments {
		item, err := p.processOne(ctx, a, c.Log())
		if err != nil {
			return c, fmt.Errorf("file %s: %w", a.name, err)
		}
		items = append(items, item)
	}

	return c.WithProcessed(items...), nil
}

func (p *FileProcessor) processOne(ctx context.Context, a *attachment, logger *zap.Logger) (domain.ProcessedContent, error) {
	sig := detectSignature(a.data)

	if sig.kind == kindOther {
		summary, err := p.docqa.Summarize(ctx, a.name, a.data)
		if err != nil {
			return domain.ProcessedContent{}, fmt.Errorf("summarization failed: %w", err)
		}
		head := a.data
		if len(head) > p.rawHeadBytes {
			head = head[:p.rawHeadBytes]
		}
		return domain.ProcessedContent{
			Kind:    domain.ProcessedSummary,
			Name:    a.name,
			Text:    summary,
			RawHead: string(head),
		}, nil
	}

	audio := a.data
	if sig.kind == kindVideo {
		extracted, err := p.media.ExtractAudio(ctx, a.data)
		if err != nil {
			return domain.ProcessedContent{}, fmt.Errorf("audio extraction failed: %w", err)
		}
		audio = extracted
	}

	if int64(len(audio)) <= p.syncLimit {
		text, err := p.transcriber.Transcribe(ctx, a.name, audio, p.language)
		if err != nil {
			return domain.ProcessedContent{}, fmt.Errorf("transcription failed: %w", err)
		}
		return domain.ProcessedContent{Kind: domain.ProcessedTranscript, Name: a.name, Text: text}, nil
	}

	// Too large for the synchronous call: hand off to an async job and
	// return immediately. The caller polls the status surface
	// out-of-band.
	blobPath := "transcription-inbox/" + uuid.New().String() + sig.ext
	if err := p.blob.Upload(ctx, blobPath, audio, sig.contentType); err != nil {
		return domain.ProcessedContent{}, fmt.Errorf("failed to stage audio for transcription: %w", err)
	}
	signedURL, err := p.blob.SASURL(ctx, blobPath, 24)
	if err != nil {
		return domain.ProcessedContent{}, fmt.Errorf("failed to sign staged audio: %w", err)
	}
	jobID, err := p.transcriber.Submit(ctx, signedURL, p.language)
	if err != nil {
		return domain.ProcessedContent{}, fmt.Errorf("failed to submit transcription job: %w", err)
	}
	logger.Info("submitted async transcription job",
		zap.String("file", a.name), zap.String("job_id", jobID))
	return domain.ProcessedContent{
		Kind:  domain.ProcessedPendingTranscript,
		Name:  a.name,
		Text:  PendingTranscriptPlaceholder,
		JobID: jobID,
	}, nil
}

// cleanup removes every temporary artifact concurrently, whether or not
// processing succeeded.
func (p *FileProcessor) cleanup(tempDir string, attachments []*attachment, logger *zap.Logger) {
	var wg sync.WaitGroup
	for _, a := range attachments {
		if a.tempPath == "" {
			continue
		}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				logger.Warn("failed to remove temp file", zap.String("path", path), zap.Error(err))
			}
		}(a.tempPath)
	}
	wg.Wait()
	if err := os.RemoveAll(tempDir); err != nil {
		logger.Warn("failed to remove temp dir", zap.String("path", tempDir), zap.Error(err))
	}
}

// collectAttachments pulls the file references out of the latest user
// turn. Attachment URLs were validated against the storage allow-list at
// build time; here only the object path matters.
func collectAttachments(c pipeline.Context) ([]*attachment, error) {
	last := domain.LastOfRole(c.Messages, domain.RoleUser)
	if last == nil {
		return nil, nil
	}
	var out []*attachment
	for _, ref := range last.FileRefs() {
		u, err := url.Parse(ref.FileURL)
		if err != nil {
			return nil, fmt.Errorf("unusable file URL %q: %w", ref.FileURL, err)
		}
		name := ref.Name
		if name == "" {
			name = filepath.Base(u.Path)
		}
		out = append(out, &attachment{
			name:     name,
			blobPath: strings.TrimPrefix(u.Path, "/"),
		})
	}
	return out, nil
}
