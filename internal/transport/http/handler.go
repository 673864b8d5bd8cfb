// Package http exposes the service's HTTP surface over echo.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/msf-usa/chatd/internal/adapter/transcribe"
	"github.com/msf-usa/chatd/internal/config"
	"github.com/msf-usa/chatd/internal/domain"
	"github.com/msf-usa/chatd/internal/modelhandler"
	"github.com/msf-usa/chatd/internal/pipeline"
	"github.com/msf-usa/chatd/internal/repository"
)

// Handler carries the HTTP endpoints and their dependencies.
type Handler struct {
	builder      *pipeline.Builder
	orchestrator *pipeline.Orchestrator
	store        *repository.Store
	transcriber  transcribe.Transcriber
	catalog      *config.Catalog
	logger       *zap.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(builder *pipeline.Builder, orch *pipeline.Orchestrator, store *repository.Store, t transcribe.Transcriber, catalog *config.Catalog, logger *zap.Logger) *Handler {
	return &Handler{
		builder:      builder,
		orchestrator: orch,
		store:        store,
		transcriber:  t,
		catalog:      catalog,
		logger:       logger,
	}
}

// Register mounts the routes on the echo instance.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	v1 := e.Group("/v1")
	v1.POST("/chat", h.Chat)
	v1.GET("/transcriptions/:job_id", h.TranscriptionStatus)
	v1.GET("/models", h.Models)
}

type errorResponse struct {
	Error string `json:"error"`
}

type chatResponse struct {
	Text      string            `json:"text"`
	ThreadID  string            `json:"thread_id,omitempty"`
	Citations []domain.Citation `json:"citations,omitempty"`
}

// Health reports liveness.
func (h *Handler) Health(ec echo.Context) error {
	return ec.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Models lists the selectable model catalog.
func (h *Handler) Models(ec echo.Context) error {
	return ec.JSON(http.StatusOK, map[string]any{"models": h.catalog.Models()})
}

// Chat handles one conversational turn end to end.
func (h *Handler) Chat(ec echo.Context) error {
	ctx := ec.Request().Context()

	pc, err := h.builder.Build(ctx, ec.Request())
	if err != nil {
		var be *pipeline.BuildError
		if errors.As(err, &be) {
			return ec.JSON(be.Status, errorResponse{Error: be.Error()})
		}
		h.logger.Error("request construction failed", zap.Error(err))
		return ec.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}

	pc = h.orchestrator.Execute(ctx, pc)
	defer h.recordUsage(pc)

	if se := pc.FirstCriticalError(); se != nil {
		status := http.StatusInternalServerError
		var statusErr *modelhandler.StatusError
		if errors.As(se.Err, &statusErr) && statusErr.StatusCode >= 400 {
			status = statusErr.StatusCode
		}
		pc.Log().Error("turn failed", zap.String("stage", se.Stage), zap.Error(se.Err))
		return ec.JSON(status, errorResponse{Error: se.Error()})
	}
	if pc.Response == nil {
		pc.Log().Error("no execution handler produced a response")
		return ec.JSON(http.StatusInternalServerError, errorResponse{Error: "no response produced"})
	}

	if !pc.Response.Streaming {
		return ec.JSON(http.StatusOK, chatResponse{
			Text:      pc.Response.Text,
			ThreadID:  pc.ThreadID,
			Citations: pc.Citations(),
		})
	}

	res := ec.Response()
	res.Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	res.Header().Set("X-Request-Id", pc.RequestID)
	res.WriteHeader(http.StatusOK)

	if err := pc.Response.Stream(ctx, &flushWriter{res}); err != nil {
		// Headers are already on the wire; all that remains is to cut the
		// stream and log.
		pc.Log().Error("stream aborted", zap.Error(err))
	}
	return nil
}

// TranscriptionStatus reports an async transcription job, including the
// transcript once the job has succeeded.
func (h *Handler) TranscriptionStatus(ec echo.Context) error {
	jobID := ec.Param("job_id")
	if jobID == "" {
		return ec.JSON(http.StatusBadRequest, errorResponse{Error: "missing job id"})
	}
	ctx := ec.Request().Context()

	status, err := h.transcriber.Status(ctx, jobID)
	if err != nil {
		h.logger.Error("transcription status lookup failed", zap.String("job_id", jobID), zap.Error(err))
		return ec.JSON(http.StatusBadGateway, errorResponse{Error: "transcription status lookup failed"})
	}

	out := map[string]any{"job_id": jobID, "status": status}
	if status == transcribe.StateSucceeded {
		text, err := h.transcriber.Transcript(ctx, jobID)
		if err != nil {
			h.logger.Error("transcript fetch failed", zap.String("job_id", jobID), zap.Error(err))
			return ec.JSON(http.StatusBadGateway, errorResponse{Error: "transcript fetch failed"})
		}
		out["transcript"] = text
		// The job is drained; clean it up on the provider side.
		if err := h.transcriber.Delete(ctx, jobID); err != nil {
			h.logger.Warn("failed to delete drained transcription job", zap.String("job_id", jobID), zap.Error(err))
		}
	}
	return ec.JSON(http.StatusOK, out)
}

// recordUsage writes the turn to the ledger. Persistence never fails the
// request.
func (h *Handler) recordUsage(pc pipeline.Context) {
	if h.store == nil {
		return
	}
	errs := make([]string, 0, len(pc.Errors))
	for _, e := range pc.Errors {
		errs = append(errs, e.Error())
	}
	rec := domain.TurnRecord{
		RequestID:      pc.RequestID,
		UserID:         pc.User.ID,
		Model:          pc.Model.ID,
		Strategy:       pc.Strategy,
		StartedAt:      pc.Metrics.StartedAt,
		EndedAt:        pc.Metrics.EndedAt,
		StageDurations: pc.Metrics.StageDurations,
		Errors:         errs,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.store.RecordTurn(ctx, rec); err != nil {
		pc.Log().Warn("failed to record turn", zap.Error(err))
	}
}

// flushWriter flushes after every write so stream chunks reach the client
// as they are produced.
type flushWriter struct {
	res *echo.Response
}

func (w *flushWriter) Write(p []byte) (int, error) {
	n, err := w.res.Write(p)
	if err != nil {
		return n, err
	}
	w.res.Flush()
	return n, nil
}
