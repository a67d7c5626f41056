// Package api exposes upload, generation and download of shorts over HTTP.
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/forPelevin/hlshorts/internal/pipeline"
	"github.com/forPelevin/hlshorts/internal/session"
)

// Runner executes one generation run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Outcome, error)
}

type Options struct {
	MaxUploadBytes   int64
	DefaultMaxShorts int
}

type Server struct {
	reg    *session.Registry
	runner Runner
	logger *slog.Logger
	opts   Options

	// baseCtx bounds background runs; it outlives the requests that start them.
	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewServer(ctx context.Context, reg *session.Registry, runner Runner, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 500 << 20
	}
	if opts.DefaultMaxShorts <= 0 {
		opts.DefaultMaxShorts = 3
	}
	return &Server{reg: reg, runner: runner, logger: logger, opts: opts, baseCtx: ctx}
}

// Router constructs a Gin engine with registered routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", handleHealth)

	g := r.Group("/api")
	g.POST("/upload", s.handleUpload)
	g.POST("/generate", s.handleGenerate)
	g.GET("/status/:id", s.handleStatus)
	g.GET("/download/:id/:file", s.handleDownload)
	g.GET("/download-all/:id", s.handleDownloadAll)
	g.GET("/preview/:id/:file", s.handlePreview)
	g.DELETE("/sessions/:id", s.handleDelete)
	return r
}

// Wait blocks until every background run has finished.
func (s *Server) Wait() { s.wg.Wait() }

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}
