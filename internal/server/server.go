// Package server exposes the analysis engine and the knowledge catalog over
// HTTP.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cognicore/navrag/pkg/navrag"
	"github.com/cognicore/navrag/pkg/navrag/action"
	"github.com/cognicore/navrag/pkg/navrag/internalerr"
	"github.com/cognicore/navrag/pkg/navrag/knowledge"
	"github.com/cognicore/navrag/pkg/navrag/situation"
	"github.com/cognicore/navrag/pkg/navrag/trace"
)

// Options wires the server's collaborators. Engine is required.
type Options struct {
	Engine    *navrag.Engine
	Base      *knowledge.Base
	Scenarios *knowledge.Catalog
	Logger    *zap.Logger
	Gatherer  prometheus.Gatherer
}

// Server holds the HTTP handlers.
type Server struct {
	engine    *navrag.Engine
	base      *knowledge.Base
	scenarios *knowledge.Catalog
	logger    *zap.Logger
	gatherer  prometheus.Gatherer
	validate  *validator.Validate
}

// New creates a server. Nil catalogs fall back to the embedded fixtures.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("%w: server requires an engine", internalerr.ErrInvalidConfig)
	}
	s := &Server{
		engine:    opts.Engine,
		base:      opts.Base,
		scenarios: opts.Scenarios,
		logger:    opts.Logger,
		gatherer:  opts.Gatherer,
		validate:  validator.New(),
	}
	var err error
	if s.base == nil {
		if s.base, err = knowledge.Default(); err != nil {
			return nil, err
		}
	}
	if s.scenarios == nil {
		if s.scenarios, err = knowledge.DefaultScenarios(); err != nil {
			return nil, err
		}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	return s, nil
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	r.POST("/analyze", s.handleAnalyze)
	r.GET("/scenarios", s.handleListScenarios)
	r.GET("/scenarios/:id", s.handleGetScenario)
	r.POST("/scenarios/:id/analyze", s.handleAnalyzeScenario)

	r.GET("/rules", s.handleListRules)
	r.GET("/rules/:id", s.handleGetRule)
	r.GET("/cases", s.handleListCases)
	r.GET("/cases/:id", s.handleGetCase)
	return r
}

// AnalyzeRequest selects a catalog scenario or carries a live situation.
type AnalyzeRequest struct {
	ScenarioID string           `json:"scenario_id" validate:"required_without=Input,excluded_with=Input"`
	Input      *situation.Input `json:"input" validate:"required_without=ScenarioID"`
	Verbosity  string           `json:"verbosity" validate:"omitempty,oneof=summary full"`
}

// AnalyzeResponse is a successful analysis with its status.
type AnalyzeResponse struct {
	Status string `json:"status"`
	*navrag.Response
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Status          string                `json:"status"`
	Error           string                `json:"error"`
	Recommendations action.Recommendation `json:"recommendations"`
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.engine.Ping(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", internalerr.ErrInvalidInput, err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", internalerr.ErrInvalidInput, err))
		return
	}

	var in situation.Input
	if req.ScenarioID != "" {
		sc, ok := s.scenarios.Get(req.ScenarioID)
		if !ok {
			s.fail(c, fmt.Errorf("%w: scenario %q", internalerr.ErrNotFound, req.ScenarioID))
			return
		}
		in = sc.Input
	} else {
		in = *req.Input
	}
	s.analyze(c, in, req.Verbosity)
}

func (s *Server) handleAnalyzeScenario(c *gin.Context) {
	sc, ok := s.scenarios.Get(c.Param("id"))
	if !ok {
		s.fail(c, fmt.Errorf("%w: scenario %q", internalerr.ErrNotFound, c.Param("id")))
		return
	}
	s.analyze(c, sc.Input, c.Query("verbosity"))
}

func (s *Server) analyze(c *gin.Context, in situation.Input, verbosity string) {
	var (
		resp *navrag.Response
		err  error
	)
	if verbosity == "" {
		resp, err = s.engine.Analyze(c.Request.Context(), in)
	} else {
		v, perr := trace.ParseVerbosity(verbosity)
		if perr != nil {
			s.fail(c, fmt.Errorf("%w: %v", internalerr.ErrInvalidInput, perr))
			return
		}
		resp, err = s.engine.AnalyzeWithVerbosity(c.Request.Context(), in, v)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	status := "ok"
	if resp.NarrativeDegraded {
		status = "degraded"
	}
	c.JSON(http.StatusOK, AnalyzeResponse{Status: status, Response: resp})
}

func (s *Server) handleListScenarios(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scenarios": s.scenarios.List()})
}

func (s *Server) handleGetScenario(c *gin.Context) {
	sc, ok := s.scenarios.Get(c.Param("id"))
	if !ok {
		s.fail(c, fmt.Errorf("%w: scenario %q", internalerr.ErrNotFound, c.Param("id")))
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", sc.Raw)
}

type ruleSummary struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Category    string  `json:"category,omitempty"`
	LegalWeight float64 `json:"legal_weight"`
}

type caseSummary struct {
	CaseID        string  `json:"case_id"`
	Title         string  `json:"title"`
	Date          string  `json:"date,omitempty"`
	SituationType string  `json:"situation_type"`
	LegalWeight   float64 `json:"legal_weight"`
}

func (s *Server) handleListRules(c *gin.Context) {
	out := make([]ruleSummary, 0, len(s.base.Rules))
	for _, r := range s.base.Rules {
		out = append(out, ruleSummary{ID: r.ID, Title: r.Title, Category: r.Category, LegalWeight: r.LegalWeight})
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

func (s *Server) handleGetRule(c *gin.Context) {
	id := action.NormalizeRuleID(c.Param("id"))
	r, ok := s.base.Rule(id)
	if !ok {
		s.fail(c, fmt.Errorf("%w: rule %q", internalerr.ErrNotFound, c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleListCases(c *gin.Context) {
	out := make([]caseSummary, 0, len(s.base.Cases))
	for _, cs := range s.base.Cases {
		out = append(out, caseSummary{
			CaseID:        cs.CaseID,
			Title:         cs.Title,
			Date:          cs.Date,
			SituationType: cs.SituationType,
			LegalWeight:   cs.LegalWeight,
		})
	}
	c.JSON(http.StatusOK, gin.H{"cases": out})
}

func (s *Server) handleGetCase(c *gin.Context) {
	cs, ok := s.base.Case(c.Param("id"))
	if !ok {
		s.fail(c, fmt.Errorf("%w: case %q", internalerr.ErrNotFound, c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, cs)
}

func (s *Server) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Status:          "error",
		Error:           err.Error(),
		Recommendations: action.Empty(),
	})
}

// StatusFor maps pipeline errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, internalerr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, internalerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, internalerr.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, internalerr.ErrCancelled):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
