package api

import (
	"context"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mediagate/internal/core/domain"
	"mediagate/internal/service"
)

// Service is the media workflow the handlers drive.
type Service interface {
	Info(ctx context.Context, clientID string, req domain.MediaRequest) (*domain.ExtractionResult, error)
	Download(ctx context.Context, clientID string, req domain.MediaRequest) (*service.Delivery, error)
	Open(ctx context.Context, id string) (*service.Delivery, error)
	Stats(ctx context.Context) (*service.StatsReport, error)
	CredentialsConfigured() bool
}

type Handler struct {
	svc        Service
	persistent bool
	logger     *log.Logger
}

// NewHandler creates a Handler. persistent enables /download/:id links.
func NewHandler(svc Service, persistent bool, logger *log.Logger) *Handler {
	return &Handler{svc: svc, persistent: persistent, logger: logger}
}

// Index describes the service and its endpoints.
func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "mediagate is running",
		"endpoints": gin.H{
			"health":   "GET /health",
			"info":     "POST /api/media/info",
			"download": "POST /api/download",
			"stats":    "GET /api/stats",
			"artifact": "GET /download/:id",
		},
	})
}

// Health reports liveness and whether cookies are configured.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"cookiesConfigured": h.svc.CredentialsConfigured(),
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}

// Info returns extraction metadata without downloading.
func (h *Handler) Info(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	res, err := h.svc.Info(c.Request.Context(), c.ClientIP(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mediaInfo": res})
}

// Download extracts, packages and streams the requested media.
func (h *Handler) Download(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	d, err := h.svc.Download(c.Request.Context(), c.ClientIP(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.deliver(c, d)
}

// Fetch serves a retained artifact by id.
func (h *Handler) Fetch(c *gin.Context) {
	d, err := h.svc.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.deliver(c, d)
}

// Stats reports store and limiter figures.
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) deliver(c *gin.Context, d *service.Delivery) {
	defer d.Body.Close()
	a := d.Artifact

	extra := map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": a.Name}),
		"X-Artifact-Id":       a.ID,
	}
	if h.persistent {
		extra["Location"] = "/download/" + a.ID
	}
	size := a.Size
	if size <= 0 {
		size = -1
	}
	contentType := a.MIME
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, size, contentType, d.Body, extra)
}

// bind decodes the JSON body. An empty body is an empty request so the
// caller sees the validation message.
func (h *Handler) bind(c *gin.Context) (domain.MediaRequest, bool) {
	var req domain.MediaRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(c, domain.InvalidInput("Invalid JSON payload", err))
		return req, false
	}
	return req, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Printf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, errorBody(kind, domain.MessageOf(err)))
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindAuthRequired:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.KindUnsupportedFormat:
		return http.StatusUnprocessableEntity
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(kind domain.ErrorKind, message string) gin.H {
	return gin.H{"status": "error", "kind": kind, "message": message}
}
