// Package web provides the HTTP control surface for pipeline runs.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/pipeline"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const heartbeatInterval = 15 * time.Second

// Controller is the run lifecycle served over HTTP.
type Controller interface {
	StartRun(ctx context.Context, date string, mode models.RunMode) (string, error)
	StopRun(ctx context.Context, runID string) error
	Status(ctx context.Context, runID string) (*models.RunRecord, error)
	Subscribe(ctx context.Context, runID string) (*pipeline.Subscription, error)
	List(ctx context.Context, dates models.DateRange) ([]*models.RunRecord, error)
	Active(ctx context.Context) (*models.RunRecord, error)
	Events(ctx context.Context, runID string, afterSeq int64) ([]models.StepEvent, error)
	Bundle(ctx context.Context, runID string) (*models.OutputBundle, error)
	BundleFile(ctx context.Context, runID, name string) (string, error)
	HealthCheck(ctx context.Context) error
}

type APIHandlers struct {
	controller Controller
	validator  *validator.Validate
	logger     *slog.Logger
}

func NewAPIHandlers(controller Controller, validator *validator.Validate, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		controller: controller,
		validator:  validator,
		logger:     logger.With("module", "web"),
	}
}

// Register mounts the run routes on router.
func (h *APIHandlers) Register(router fiber.Router) {
	r := router.Group("/runs")
	r.Post("/", h.StartRun)
	r.Get("/", h.ListRuns)
	r.Get("/active", h.GetActiveRun)
	r.Get("/:id", h.GetRun)
	r.Post("/:id/stop", h.StopRun)
	r.Get("/:id/events", h.StreamEvents)
	r.Get("/:id/events/log", h.GetEventLog)
	r.Get("/:id/bundle", h.GetBundle)
	r.Get("/:id/bundle/:file", h.GetBundleFile)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	var req StartRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	runID, err := h.controller.StartRun(c.Context(), req.Date, models.RunMode(req.Mode))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(RunAcceptedResponse{
		RunID:  runID,
		Status: models.RunStatusRunning,
	})
}

func (h *APIHandlers) ListRuns(c fiber.Ctx) error {
	runs, err := h.controller.List(c.Context(), models.DateRange{
		From: c.Query("from"),
		To:   c.Query("to"),
	})
	if err != nil {
		return h.handleServiceError(c, err)
	}

	if runs == nil {
		runs = []*models.RunRecord{}
	}

	return c.JSON(RunListResponse{Runs: runs, TotalCount: len(runs)})
}

func (h *APIHandlers) GetActiveRun(c fiber.Ctx) error {
	record, err := h.controller.Active(c.Context())
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	record, err := h.controller.Status(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) StopRun(c fiber.Ctx) error {
	id := c.Params("id")

	err := h.controller.StopRun(c.Context(), id)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	record, err := h.controller.Status(c.Context(), id)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	message := "stop requested, the run halts after the current step"
	if record.Status.IsTerminal() {
		message = "run already finished"
	}

	return c.Status(fiber.StatusAccepted).JSON(RunAcceptedResponse{
		RunID:   id,
		Status:  record.Status,
		Message: message,
	})
}

// StreamEvents serves the run's subscription as server-sent events. The
// stream ends after the terminal run event.
func (h *APIHandlers) StreamEvents(c fiber.Ctx) error {
	id := c.Params("id")

	// The stream outlives the handler, so it cannot borrow the request context.
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := h.controller.Subscribe(ctx, id)
	if err != nil {
		cancel()

		return h.handleServiceError(c, err)
	}

	reader, writer := io.Pipe()

	go func() {
		defer cancel()
		defer sub.Close()

		writer.CloseWithError(h.writeEvents(sub, writer))
	}()

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("X-Accel-Buffering", "no")

	return c.SendStream(reader)
}

func (h *APIHandlers) writeEvents(sub *pipeline.Subscription, w io.Writer) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}

			data, err := json.Marshal(event)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Kind, data)
			if err != nil {
				h.logger.Debug("Event stream closed by client", "run_id", event.RunID, "error", err)

				return err
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return err
			}
		}
	}
}

func (h *APIHandlers) GetEventLog(c fiber.Ctx) error {
	id := c.Params("id")

	var after int64

	if afterStr := c.Query("after"); afterStr != "" {
		parsed, err := strconv.ParseInt(afterStr, 10, 64)
		if err != nil || parsed < 0 {
			return badRequest(c, "after must be a non-negative integer")
		}

		after = parsed
	}

	events, err := h.controller.Events(c.Context(), id, after)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	if events == nil {
		events = []models.StepEvent{}
	}

	lastSeq := after
	if n := len(events); n > 0 {
		lastSeq = events[n-1].Seq
	}

	return c.JSON(EventLogResponse{RunID: id, Events: events, LastSeq: lastSeq})
}

func (h *APIHandlers) GetBundle(c fiber.Ctx) error {
	bundle, err := h.controller.Bundle(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(bundle)
}

func (h *APIHandlers) GetBundleFile(c fiber.Ctx) error {
	name := c.Params("file")

	path, err := h.controller.BundleFile(c.Context(), c.Params("id"), name)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	f, err := os.Open(path) // #nosec G304 -- path is resolved inside the run's bundle
	if err != nil {
		if os.IsNotExist(err) {
			return notFound(c, "bundle file not found")
		}

		return h.handleServiceError(c, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return h.handleServiceError(c, err)
	}

	c.Attachment(name)

	return c.SendStream(f, int(info.Size()))
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "DailyReel API is healthy"
	httpStatus := http.StatusOK
	store := "ok"

	if err := h.controller.HealthCheck(c.Context()); err != nil {
		h.logger.WarnContext(c.Context(), "Health check failed", "error", err)

		status = "unhealthy"
		message = "DailyReel API is unhealthy"
		httpStatus = http.StatusServiceUnavailable
		store = "unavailable"
	}

	return c.Status(httpStatus).JSON(HealthResponse{
		Status:    status,
		Message:   message,
		Checkers:  map[string]string{"store": store},
		Timestamp: time.Now().UTC(),
	})
}
