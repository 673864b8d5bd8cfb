// Package execute contains the terminal execution handlers. Exactly one
// of them runs per turn and produces the pipeline response.
package execute

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/msf-usa/chatd/internal/domain"
	"github.com/msf-usa/chatd/internal/modelhandler"
	"github.com/msf-usa/chatd/internal/pipeline"
	"github.com/msf-usa/chatd/internal/streamcodec"
)

// Standard executes the turn against a model provider through the
// matching call-shape strategy.
type Standard struct {
	cfg modelhandler.Config
}

// NewStandard creates the standard execution handler.
func NewStandard(cfg modelhandler.Config) *Standard {
	return &Standard{cfg: cfg}
}

// Name identifies the stage in metrics and error entries.
func (h *Standard) Name() string { return "standard_executor" }

// ShouldRun runs for every turn not promoted to agent execution.
func (h *Standard) ShouldRun(c pipeline.Context) bool {
	return c.Strategy != domain.ExecutionAgent
}

// Run builds the normalized model request and produces the response. For
// streaming turns the provider call itself is deferred into the stream
// closure so content bytes are never buffered.
func (h *Standard) Run(ctx context.Context, c pipeline.Context) (pipeline.Context, error) {
	transcript := transcriptText(c.Processed)

	// A transcription request with no actual question needs no model
	// call; the transcript is the answer.
	if transcript != "" && emptyOrBracketOnly(questionText(c)) {
		c.Response = h.transcriptResponse(c, transcript)
		return c, nil
	}

	handler, err := modelhandler.Select(c.Model.Provider, h.cfg)
	if err != nil {
		return c, pipeline.Critical(err)
	}

	req := &modelhandler.Request{
		Model:           c.Model,
		Messages:        h.effectiveMessages(c),
		SystemPrompt:    c.Prompt,
		Temperature:     c.Temperature,
		MaxTokens:       c.Model.MaxOutputTokens,
		Stream:          c.Stream,
		ReasoningEffort: c.ReasoningEffort,
		Verbosity:       c.Verbosity,
		BotID:           c.BotID,
	}
	if rc, ok := c.Metadata[pipeline.MetaRetrieval].(domain.RetrievalConfig); ok {
		req.Retrieval = &rc
	}

	final := streamcodec.Metadata{
		Kind:       streamcodec.KindFinal,
		Citations:  c.Citations(),
		Transcript: transcript,
	}

	if !c.Stream {
		result, err := handler.Execute(ctx, req, nil)
		if err != nil {
			return c, pipeline.Critical(fmt.Errorf("model call failed: %w", err))
		}
		c.Response = &pipeline.Response{Text: result.Text}
		return c, nil
	}

	progress, _ := c.Metadata[pipeline.MetaProgress].(string)
	c.Response = &pipeline.Response{
		Streaming: true,
		Stream: func(ctx context.Context, w io.Writer) error {
			if progress != "" {
				hint := streamcodec.Metadata{Kind: streamcodec.KindProgress, Message: progress}
				if err := streamcodec.WriteBlock(w, hint); err != nil {
					return err
				}
			}
			_, err := handler.Execute(ctx, req, func(delta string) error {
				_, werr := io.WriteString(w, delta)
				return werr
			})
			if err != nil {
				return fmt.Errorf("model call failed: %w", err)
			}
			if len(final.Citations) > 0 || final.Transcript != "" {
				return streamcodec.WriteBlock(w, final)
			}
			return nil
		},
	}
	return c, nil
}

// effectiveMessages picks the message set for the model call. Enriched
// messages win; otherwise processed content is merged in as an extra
// system turn so the model sees what the user attached.
func (h *Standard) effectiveMessages(c pipeline.Context) []domain.Message {
	if c.Enriched != nil {
		return c.Enriched
	}
	digest := processedDigest(c.Processed)
	if digest == "" {
		return c.Messages
	}
	out := make([]domain.Message, len(c.Messages), len(c.Messages)+1)
	copy(out, c.Messages)
	note := "The user attached the following content:\n" + digest
	return append(out, domain.TextMessage(domain.RoleSystem, note))
}

func (h *Standard) transcriptResponse(c pipeline.Context, transcript string) *pipeline.Response {
	if !c.Stream {
		return &pipeline.Response{Text: transcript}
	}
	final := streamcodec.Metadata{Kind: streamcodec.KindFinal, Transcript: transcript}
	return &pipeline.Response{
		Streaming: true,
		Stream: func(_ context.Context, w io.Writer) error {
			if _, err := io.WriteString(w, transcript); err != nil {
				return err
			}
			return streamcodec.WriteBlock(w, final)
		},
	}
}

// transcriptText joins the transcript artifacts, pending placeholders
// included.
func transcriptText(items []domain.ProcessedContent) string {
	var parts []string
	for _, item := range items {
		switch item.Kind {
		case domain.ProcessedTranscript, domain.ProcessedPendingTranscript:
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// processedDigest renders the non-image artifacts as named sections.
func processedDigest(items []domain.ProcessedContent) string {
	var b strings.Builder
	for _, item := range items {
		if item.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "--- %s ---\n%s\n", item.Name, item.Text)
	}
	return strings.TrimSpace(b.String())
}

func questionText(c pipeline.Context) string {
	if last := domain.LastOfRole(c.Messages, domain.RoleUser); last != nil {
		return last.Content.PlainText()
	}
	return ""
}

// emptyOrBracketOnly reports whether s carries no real question: nothing
// but whitespace, punctuation and bracketed annotations.
func emptyOrBracketOnly(s string) bool {
	depth := 0
	for _, r := range s {
		switch {
		case r == '[':
			depth++
		case r == ']':
			if depth > 0 {
				depth--
			}
		case depth > 0:
			// inside a bracketed annotation
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return false
		}
	}
	return true
}
