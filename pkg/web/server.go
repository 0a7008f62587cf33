// Copyright 2026 © The Consilium Authors
// SPDX-License-Identifier: Apache-2.0

// Package web exposes the analysis pipeline over HTTP: an upload page,
// a JSON analysis endpoint, and a short-lived download of the rendered
// report. Results live only in memory and expire after a TTL.
package web

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/consilium-health/consilium/pkg/consult"
	"github.com/consilium-health/consilium/pkg/errors"
	"github.com/consilium-health/consilium/pkg/extract"
	"github.com/consilium-health/consilium/pkg/redact"
	"github.com/consilium-health/consilium/pkg/report"
	"github.com/consilium-health/consilium/pkg/runstore"
)

//go:embed index.html
var indexPage []byte

// Analyzer runs the multidisciplinary analysis of a report text.
type Analyzer interface {
	Analyze(ctx context.Context, report string) (*consult.Result, error)
}

// Server wraps a Gin router around an Analyzer.
type Server struct {
	engine   *gin.Engine
	server   *http.Server
	analyzer Analyzer
	store    *runstore.Store
	cache    *resultCache
	maxBytes int64
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables the run ledger. The ledger records metadata only,
// never report or assessment text.
func WithStore(s *runstore.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithMaxUploadBytes caps the accepted upload size.
func WithMaxUploadBytes(n int64) Option {
	return func(srv *Server) {
		if n > 0 {
			srv.maxBytes = n
		}
	}
}

// WithResultTTL sets how long a finished result stays downloadable.
func WithResultTTL(d time.Duration) Option {
	return func(srv *Server) {
		if d > 0 {
			srv.cache = newResultCache(d)
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(srv *Server) {
		if logger != nil {
			srv.logger = logger
		}
	}
}

// New builds the server and wires its routes.
func New(analyzer Analyzer, opts ...Option) (*Server, error) {
	if analyzer == nil {
		return nil, errors.New(errors.CodeInvalidInput, "analyzer is required", nil)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	srv := &Server{
		engine:   engine,
		analyzer: analyzer,
		cache:    newResultCache(15 * time.Minute),
		maxBytes: 10 << 20,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	engine.GET("/", srv.index)
	engine.GET("/healthz", srv.healthz)
	engine.POST("/analyze", srv.analyze)
	engine.GET("/analyze/:id/download", srv.download)
	engine.GET("/runs", srv.runs)

	return srv, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves HTTP on addr until Shutdown or a listen failure.
func (s *Server) Run(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("web ui listening", "addr", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexPage)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// analysisResponse is the JSON shape returned by POST /analyze.
type analysisResponse struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Partial     bool              `json:"partial,omitempty"`
	Assessments []assessmentJSON  `json:"assessments"`
	Synthesis   string            `json:"synthesis"`
	Usage       map[string]int    `json:"usage"`
	DownloadURL string            `json:"download_url"`
	Errors      map[string]string `json:"errors,omitempty"`
}

type assessmentJSON struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Failed  bool   `json:"failed,omitempty"`
}

func (s *Server) analyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBytes)

	fileHeader, err := c.FormFile("report")
	if err != nil {
		s.fail(c, errors.New(errors.CodeInvalidInput,
			"upload a report file under the 'report' form field", err))
		return
	}
	if fileHeader.Size > s.maxBytes {
		s.fail(c, errors.New(errors.CodeInvalidInput,
			fmt.Sprintf("file exceeds the %d byte upload limit", s.maxBytes), nil))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		s.fail(c, errors.New(errors.CodeInternal, "opening upload failed", err))
		return
	}
	defer f.Close()

	text, err := extract.Text(&extract.Document{
		Name:   fileHeader.Filename,
		Size:   fileHeader.Size,
		Reader: f,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	runID := s.beginRun(c.Request.Context(), fileHeader.Filename, fileHeader.Size)

	result, err := s.analyzer.Analyze(c.Request.Context(), text)
	if err != nil {
		s.finishRun(c.Request.Context(), runID, "failed", err, nil)
		s.fail(c, err)
		return
	}

	status := "completed"
	if result.Partial {
		status = "partial"
	}
	s.finishRun(c.Request.Context(), runID, status, nil, result)

	doc := report.FromResult(result)
	id := s.cache.put(doc)

	usage := result.Usage()
	resp := analysisResponse{
		ID:          id,
		Status:      status,
		Partial:     result.Partial,
		Synthesis:   result.Synthesis.Content,
		Usage:       map[string]int{"prompt_tokens": usage.PromptTokens, "completion_tokens": usage.CompletionTokens},
		DownloadURL: fmt.Sprintf("/analyze/%s/download", id),
	}
	for _, role := range result.Order {
		a := result.Assessments[role]
		if a.Err != nil {
			if resp.Errors == nil {
				resp.Errors = map[string]string{}
			}
			resp.Errors[string(role)] = string(errors.CodeOf(a.Err))
			resp.Assessments = append(resp.Assessments, assessmentJSON{Role: string(role), Failed: true})
			continue
		}
		resp.Assessments = append(resp.Assessments, assessmentJSON{Role: string(role), Content: a.Content})
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) download(c *gin.Context) {
	doc, ok := s.cache.get(c.Param("id"))
	if !ok {
		s.fail(c, errors.New(errors.CodeNotFound, "result expired or unknown", nil))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, doc.Filename()))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(doc.Render()))
}

func (s *Server) runs(c *gin.Context) {
	if s.store == nil {
		s.fail(c, errors.New(errors.CodeNotFound, "run ledger is not enabled", nil))
		return
	}
	runs, err := s.store.List(c.Request.Context(), 50)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) beginRun(ctx context.Context, fileName string, size int64) string {
	if s.store == nil {
		return ""
	}
	id, err := s.store.Begin(ctx, fileName, size)
	if err != nil {
		s.logger.Warn("run ledger begin failed", "error", err)
		return ""
	}
	return id
}

func (s *Server) finishRun(ctx context.Context, runID, status string, runErr error, result *consult.Result) {
	if s.store == nil || runID == "" {
		return
	}
	var code string
	if runErr != nil {
		code = string(errors.CodeOf(runErr))
	}
	if err := s.store.Finish(ctx, runID, status, code, roleStats(result)); err != nil {
		s.logger.Warn("run ledger finish failed", "error", err)
	}
}

// roleStats flattens a result into ledger rows. Only metadata crosses
// this boundary.
func roleStats(result *consult.Result) []runstore.RoleStat {
	if result == nil {
		return nil
	}
	stats := make([]runstore.RoleStat, 0, len(result.Order)+1)
	for _, role := range result.Order {
		a := result.Assessments[role]
		stats = append(stats, runstore.RoleStat{
			Role:             string(role),
			ElapsedMS:        a.Elapsed.Milliseconds(),
			PromptTokens:     a.Usage.PromptTokens,
			CompletionTokens: a.Usage.CompletionTokens,
			Failed:           a.Err != nil,
		})
	}
	stats = append(stats, runstore.RoleStat{
		Role:             string(result.Synthesis.Role),
		ElapsedMS:        result.Synthesis.Elapsed.Milliseconds(),
		PromptTokens:     result.Synthesis.Usage.PromptTokens,
		CompletionTokens: result.Synthesis.Usage.CompletionTokens,
		Failed:           result.Synthesis.Err != nil,
	})
	return stats
}

// fail writes a JSON error. Messages are masked so identifiers from an
// uploaded report never leak into responses or logs.
func (s *Server) fail(c *gin.Context, err error) {
	cerr := errors.AsConsiliumError(err)
	msg := redact.Mask(cerr.Message)
	s.logger.Error("request failed", "path", c.Request.URL.Path,
		"code", cerr.Code, "error", msg)
	c.JSON(cerr.HTTPStatus(), gin.H{
		"error": gin.H{"code": cerr.Code, "message": msg},
	})
}
