package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/msf-usa/chatd/internal/config"
	"github.com/msf-usa/chatd/internal/domain"
	"github.com/msf-usa/chatd/internal/identity"
	"github.com/msf-usa/chatd/internal/policy"
	"github.com/msf-usa/chatd/internal/ratelimit"
)

// Inbound validation limits.
const (
	maxMessages       = 100
	maxStringContent  = 50_000
	maxBlockContent   = 100_000
	defaultSearchMode = domain.SearchModeOff
)

// BuildError is a request construction failure. It happens before any
// pipeline stage runs and has zero side effects.
type BuildError struct {
	Status  int
	Field   string
	Message string
}

func (e *BuildError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func badRequest(field, format string, args ...any) *BuildError {
	return &BuildError{Status: http.StatusBadRequest, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Builder produces the fully-populated initial Context from a raw
// inbound request.
type Builder struct {
	identity identity.Provider
	limiter  *ratelimit.Limiter
	policy   *policy.Engine
	catalog  *config.Catalog
	cfg      *config.Config
	logger   *zap.Logger
}

// NewBuilder creates a context builder.
func NewBuilder(idp identity.Provider, limiter *ratelimit.Limiter, eng *policy.Engine, catalog *config.Catalog, cfg *config.Config, logger *zap.Logger) *Builder {
	return &Builder{
		identity: idp,
		limiter:  limiter,
		policy:   eng,
		catalog:  catalog,
		cfg:      cfg,
		logger:   logger,
	}
}

type buildStep struct {
	name  string
	apply func(ctx context.Context, r *http.Request, c Context) (Context, error)
}

// Build applies the ordered construction steps, validates required
// fields, then runs the dependent steps (content analysis, model
// selection). It fails fast with a descriptive error naming what is
// missing or invalid.
func (b *Builder) Build(ctx context.Context, r *http.Request) (Context, error) {
	c := Context{RequestID: uuid.New().String()}

	steps := []buildStep{
		{name: "authenticate", apply: b.authenticate},
		{name: "logger", apply: b.attachLogger},
		{name: "parse", apply: b.parseBody},
		{name: "ratelimit", apply: b.checkRateLimit},
	}
	for _, step := range steps {
		var err error
		if c, err = step.apply(ctx, r, c); err != nil {
			return c, err
		}
	}

	if err := validateRequired(c); err != nil {
		return c, err
	}

	// Dependent steps: these need the parsed messages and model.
	c = analyzeContent(c)
	var err error
	if c, err = b.selectModel(c); err != nil {
		return c, err
	}
	return c, nil
}

func (b *Builder) authenticate(_ context.Context, r *http.Request, c Context) (Context, error) {
	user, err := b.identity.Authenticate(r)
	if err != nil {
		return c, &BuildError{Status: http.StatusUnauthorized, Field: "user", Message: err.Error()}
	}
	c.User = user
	return c, nil
}

func (b *Builder) attachLogger(_ context.Context, _ *http.Request, c Context) (Context, error) {
	c.Logger = b.logger.With(
		zap.String("request_id", c.RequestID),
		zap.String("user_id", c.User.ID),
	)
	return c, nil
}

func (b *Builder) parseBody(ctx context.Context, r *http.Request, c Context) (Context, error) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req domain.ChatRequest
	if err := dec.Decode(&req); err != nil {
		return c, badRequest("body", "invalid request body: %v", err)
	}

	if err := b.validateRequest(ctx, &req); err != nil {
		return c, err
	}

	c.Prompt = req.Prompt
	c.Stream = req.WantStream()
	c.ReasoningEffort = req.ReasoningEffort
	c.Verbosity = req.Verbosity
	c.BotID = req.BotID
	c.ThreadID = req.ThreadID
	c.ForcedAgentType = req.ForcedAgentType
	c.Messages = req.Messages
	c.Strategy = domain.ExecutionStandard

	c.SearchMode = req.SearchMode
	if c.SearchMode == "" {
		c.SearchMode = defaultSearchMode
	}
	if req.Temperature != nil {
		c.Temperature = *req.Temperature
	} else {
		c.Temperature = 1.0
	}

	// The model id is resolved against the catalog later; keep it on the
	// descriptor so required-field validation can name it.
	c.Model = domain.ModelInfo{ID: req.Model}
	return c, nil
}

func (b *Builder) validateRequest(ctx context.Context, req *domain.ChatRequest) error {
	if len(req.Messages) > maxMessages {
		return badRequest("messages", "too many messages: %d (limit %d)", len(req.Messages), maxMessages)
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return badRequest("temperature", "temperature %v outside [0, 2]", *req.Temperature)
	}
	if req.SearchMode != "" && !req.SearchMode.Valid() {
		return badRequest("searchMode", "unknown search mode %q", req.SearchMode)
	}

	for i, m := range req.Messages {
		if !m.Content.IsBlocks {
			if len(m.Content.Text) > maxStringContent {
				return badRequest("messages", "message %d exceeds %d characters", i, maxStringContent)
			}
			continue
		}
		for _, block := range m.Content.Blocks {
			switch block.Type {
			case domain.BlockText:
				if len(block.Text) > maxBlockContent {
					return badRequest("messages", "text block in message %d exceeds %d characters", i, maxBlockContent)
				}
			case domain.BlockImage:
				if err := b.checkAttachmentURL(ctx, block.ImageURL); err != nil {
					return err
				}
			case domain.BlockFile:
				if err := b.checkAttachmentURL(ctx, block.FileURL); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// checkAttachmentURL enforces the storage-host allow-list so the file
// processor can never be steered into fetching arbitrary URLs.
func (b *Builder) checkAttachmentURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return badRequest("messages", "attachment URL %q is not a valid http(s) URL", raw)
	}
	allowed, err := b.policy.AllowAttachmentHost(ctx, u.Hostname(), b.cfg.AllowedStorageHosts)
	if err != nil {
		return fmt.Errorf("attachment policy evaluation failed: %w", err)
	}
	if !allowed {
		return badRequest("messages", "attachment host %q is not allow-listed", u.Hostname())
	}
	return nil
}

func (b *Builder) checkRateLimit(_ context.Context, _ *http.Request, c Context) (Context, error) {
	if !b.limiter.Allow(c.User.ID) {
		return c, &BuildError{Status: http.StatusTooManyRequests, Field: "user", Message: "rate limit exceeded"}
	}
	return c, nil
}

func validateRequired(c Context) error {
	if c.User.ID == "" {
		return badRequest("user", "missing required field user")
	}
	if c.Model.ID == "" {
		return badRequest("model", "missing required field model")
	}
	if len(c.Messages) == 0 {
		return badRequest("messages", "missing required field messages")
	}
	return nil
}

// analyzeContent derives the content-type flags, computed once and
// read-only afterward.
func analyzeContent(c Context) Context {
	for _, m := range c.Messages {
		for _, block := range m.Content.Blocks {
			switch block.Type {
			case domain.BlockFile:
				c.HasFiles = true
				if looksLikeAudioName(block.Name) {
					c.HasAudio = true
				}
			case domain.BlockImage:
				c.HasImages = true
			}
		}
	}
	return c
}

// looksLikeAudioName is only a hint for the derived flag; the file
// processor decides audio vs not from the byte signature.
func looksLikeAudioName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range []string{".mp3", ".wav", ".ogg", ".flac", ".m4a", ".mp4", ".webm", ".mov"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// selectModel resolves the requested model against the catalog and
// upgrades it when the request carries content the model cannot handle.
func (b *Builder) selectModel(c Context) (Context, error) {
	model, ok := b.catalog.Lookup(c.Model.ID)
	if !ok {
		return c, badRequest("model", "unknown model %q", c.Model.ID)
	}
	if c.HasImages && !model.Vision {
		upgraded := b.catalog.VisionUpgrade(model)
		if !upgraded.Vision {
			return c, badRequest("model", "model %q cannot handle image content and no vision-capable model is available", model.ID)
		}
		c.Log().Info("upgrading model for vision content",
			zap.String("from", model.ID), zap.String("to", upgraded.ID))
		model = upgraded
	}
	c.Model = model
	return c, nil
}
