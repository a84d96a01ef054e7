package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with the review routes and middleware.
func NewRouter(h *Handler, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(logger))

	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	{
		v1.POST("/invoices", h.Create)
		v1.GET("/invoices/:id", h.Get)
		v1.POST("/invoices/:id/process", h.Process)
		v1.POST("/invoices/:id/validate", h.Validate)
		v1.POST("/invoices/:id/reset", h.Reset)
		v1.POST("/invoices/:id/retry", h.Retry)
	}

	return r
}
