// Package api exposes the media service over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mediagate/internal/core/domain"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	AllowedOrigins []string
	TrustedProxies []string
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(h *Handler, cfg RouterConfig) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		h.logger.Printf("PANIC serving %s: %v", c.Request.URL.Path, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(domain.KindExtractionFailure, "An unexpected technical error occurred during processing."))
	}))
	r.Use(CORSMiddleware(cfg.AllowedOrigins))

	// nil disables trust in forwarding headers entirely.
	var proxies []string
	if len(cfg.TrustedProxies) > 0 {
		proxies = cfg.TrustedProxies
	}
	if err := r.SetTrustedProxies(proxies); err != nil {
		return nil, err
	}

	r.GET("/", h.Index)
	r.GET("/health", h.Health)
	r.POST("/api/media/info", h.Info)
	r.POST("/api/download", h.Download)
	r.GET("/api/stats", h.Stats)
	r.GET("/download/:id", h.Fetch)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody(domain.KindNotFound, "Endpoint not found"))
	})
	return r, nil
}
