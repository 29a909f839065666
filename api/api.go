// Package api exposes the job lifecycle over HTTP using gin.
//
// Routes:
//
//	POST /api/jobs             create a job (201)
//	GET  /api/jobs             list jobs, newest first (?status=&limit=&offset=)
//	GET  /api/jobs/:id         get a job
//	POST /api/jobs/:id/cancel  cancel a pending job
//	GET  /api/handlers         registered job types
//	GET  /healthz              job store and scheduling index health
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tempohq/tempo/engine"
)

// API wires the HTTP handlers to an engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// Option configures the API.
type Option func(*API)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// New creates an API from an Engine. The engine's worker loop need not be
// running; the API only uses its lifecycle manager and registry.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), a.requestLogger())
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all routes on the given router.
func (a *API) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", a.healthz)

	g := r.Group("/api")
	g.POST("/jobs", a.createJob)
	g.GET("/jobs", a.listJobs)
	g.GET("/jobs/:id", a.getJob)
	g.POST("/jobs/:id/cancel", a.cancelJob)
	g.GET("/handlers", a.listHandlers)
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		a.logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}
