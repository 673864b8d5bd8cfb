package process

import (
	"context"

	"github.com/msf-usa/chatd/internal/domain"
	"github.com/msf-usa/chatd/internal/pipeline"
)

// ImageProcessor records image references so downstream stages can reason
// about them. It performs no I/O; vision-capable providers take the image
// URLs as-is.
type ImageProcessor struct{}

// NewImageProcessor creates the image processor stage.
func NewImageProcessor() *ImageProcessor { return &ImageProcessor{} }

// Name identifies the stage in metrics and error entries.
func (p *ImageProcessor) Name() string { return "image_processor" }

// ShouldRun runs only for image-only turns. Mixed turns go through the
// file processor, which owns all attachment handling.
func (p *ImageProcessor) ShouldRun(c pipeline.Context) bool {
	return c.HasImages && !c.HasFiles
}

// Run extracts the image references of the latest user turn.
func (p *ImageProcessor) Run(_ context.Context, c pipeline.Context) (pipeline.Context, error) {
	last := domain.LastOfRole(c.Messages, domain.RoleUser)
	if last == nil {
		return c, nil
	}
	var items []domain.ProcessedContent
	for _, ref := range last.ImageRefs() {
		items = append(items, domain.ProcessedContent{
			Kind:     domain.ProcessedImage,
			Name:     ref.Name,
			ImageURL: ref.ImageURL,
		})
	}
	return c.WithProcessed(items...), nil
}
