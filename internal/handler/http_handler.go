package handler

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/compress-service/internal/pipeline"
	"github.com/weiawesome/wes-io-live/compress-service/pkg/log"
	"github.com/weiawesome/wes-io-live/compress-service/pkg/response"
)

const maxEventBytes = 1 << 20

// Processor runs the pipeline for one object.
type Processor interface {
	Process(ctx context.Context, ev pipeline.ChangeEvent) (pipeline.Result, error)
}

// Handler serves the push endpoint that storage notifications are delivered to.
type Handler struct {
	processor Processor
	version   string
}

// NewHandler creates a new HTTP handler.
func NewHandler(processor Processor, version string) *Handler {
	return &Handler{
		processor: processor,
		version:   version,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/events", h.HandleEvent)
	r.GET("/health", h.Health)
	r.GET("/healthz", h.Health)
}

// HandleEvent runs the pipeline for the object named in the request body.
// The status code is the platform's retry signal: 4xx drops the event,
// 5xx asks for redelivery.
func (h *Handler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBytes))
	if err != nil {
		l.Warn().Err(err).Msg("failed to read event body")
		response.BadRequest(c, "failed to read request body")
		return
	}

	ev, err := DecodeChangeEvent(body)
	if err != nil {
		l.Warn().Err(err).Msg("failed to decode event")
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.processor.Process(ctx, ev)
	if err != nil {
		var perr *pipeline.Error
		if errors.As(err, &perr) {
			response.Error(c, 500, strings.ToUpper(string(perr.Step))+"_FAILED", err.Error())
			return
		}
		response.InternalError(c, err.Error())
		return
	}

	l.Debug().
		Str(log.FieldInvocationID, res.InvocationID).
		Str(log.FieldOutcome, string(res.Outcome)).
		Msg("event processed")
	response.NoContent(c)
}

// Health returns the service health status.
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{
		"status":  "ok",
		"service": "compress-service",
		"version": h.version,
	})
}
