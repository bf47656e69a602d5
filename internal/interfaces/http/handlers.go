package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/agent"
	"github.com/finagent/invoiceflow/internal/intervention"
	"github.com/finagent/invoiceflow/internal/media"
	"github.com/finagent/invoiceflow/internal/pipeline"
	"github.com/finagent/invoiceflow/internal/stream"
)

// WorkflowRunner is the slice of the pipeline coordinator the HTTP layer
// needs: start a streaming run, apply a human decision.
type WorkflowRunner interface {
	Run(ctx context.Context, out *stream.Stream, st *agent.RunState)
	Resolve(ctx context.Context, id, decision string) error
}

// Handlers holds the HTTP request handlers
type Handlers struct {
	runner WorkflowRunner
	logger *zap.Logger
}

// NewHandlers creates handlers over the workflow runner.
func NewHandlers(runner WorkflowRunner, logger *zap.Logger) *Handlers {
	return &Handlers{runner: runner, logger: logger}
}

// streamRequest is the workflow submission body. Image is typed as any so
// a present-but-wrong-type value can be reported distinctly from a
// missing one.
type streamRequest struct {
	Image any `json:"image"`
}

// decisionRequest is the intervention decision body.
type decisionRequest struct {
	Decision string `json:"decision"`
}

// StreamWorkflow validates the submitted image, then streams the whole
// run as SSE frames. The response stays open across suspensions; it ends
// only when the run reaches a terminal state and the stream emits its
// done frame.
func (h *Handlers) StreamWorkflow(c *gin.Context) {
	var req streamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if req.Image == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image is required"})
		return
	}
	image, ok := req.Image.(string)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image must be a base64 string"})
		return
	}

	payload, err := media.Decode(image)
	if err != nil {
		h.logger.Warn("Rejected workflow submission", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	out := stream.New(stream.DefaultBuffer, h.logger)
	st := &agent.RunState{
		ImageBase64: payload.Base64,
		ImageMIME:   payload.MIMEType,
		ImageBytes:  payload.Bytes,
	}

	// The run is detached from the request context: a suspended run must
	// survive until its decision arrives even if this client goes away.
	go h.runner.Run(context.Background(), out, st)

	h.forward(c, out)
}

// forward copies stream events to the SSE response until the stream is
// finalized or the client disconnects. A disconnect abandons the stream;
// the pipeline keeps running and its later events are dropped.
func (h *Handlers) forward(c *gin.Context, out *stream.Stream) {
	clientGone := c.Request.Context().Done()

	for {
		select {
		case evt, ok := <-out.Events():
			if !ok {
				return
			}
			frame, err := stream.Frame(evt)
			if err != nil {
				h.logger.Warn("Failed to frame event", zap.Error(err))
				continue
			}
			if _, err := c.Writer.Write(frame); err != nil {
				out.Abandon()
				return
			}
			c.Writer.Flush()

		case <-clientGone:
			h.logger.Info("Client disconnected from workflow stream")
			out.Abandon()
			return
		}
	}
}

// ResolveIntervention applies a human accept/decline decision to a
// suspended run. The decision is acknowledged with 202: the effects are
// delivered on the original stream, not this response.
func (h *Handlers) ResolveIntervention(c *gin.Context) {
	id := c.Param("id")

	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.runner.Resolve(c.Request.Context(), id, req.Decision); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrInvalidDecision):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Decision must be accept or decline"})
		case errors.Is(err, intervention.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Intervention not found"})
		default:
			h.logger.Error("Failed to resolve intervention", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply decision"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":   "accepted",
		"id":       id,
		"decision": req.Decision,
	})
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "invoiceflow",
		"time":    time.Now().Format(time.RFC3339),
	})
}
