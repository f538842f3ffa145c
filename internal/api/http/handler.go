package http

import (
	"context"
	_ "embed"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/toolsascode/bfm/info/internal/api/http/dto"
	"github.com/toolsascode/bfm/info/internal/auth"
	"github.com/toolsascode/bfm/info/internal/info"
	"github.com/toolsascode/bfm/info/internal/logger"
	"github.com/toolsascode/bfm/info/internal/metrics"
	"github.com/toolsascode/bfm/info/internal/queue"
	"github.com/toolsascode/bfm/info/internal/registry"
	"github.com/toolsascode/bfm/info/internal/version"
)

// InfoService is the migration info service served over HTTP
type InfoService interface {
	metrics.InfoService
	All() []*info.MigrationInfo
	Current() *info.MigrationInfo
	Pending() []*info.MigrationInfo
	Applied() []*info.MigrationInfo
	Resolved() []*info.MigrationInfo
	Failed() []*info.MigrationInfo
	Future() []*info.MigrationInfo
	OutOfOrder() []*info.MigrationInfo
	Target() version.Version
}

// Scanner rescans migration sources and reports how many changed
type Scanner interface {
	Scan() (int, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Options holds the optional collaborators of a handler
type Options struct {
	Tokens   *auth.TokenValidator
	Metrics  *metrics.Collector
	Producer queue.Producer // nil refreshes synchronously
	Scanner  Scanner
	History  HealthChecker
	Source   *registry.MigrationTarget
}

// Handler handles HTTP API requests
type Handler struct {
	service   InfoService
	refresher *metrics.InstrumentedService
	opts      Options
}

// NewHandler creates a new HTTP handler
func NewHandler(svc InfoService, opts Options) *Handler {
	if opts.Tokens == nil {
		opts.Tokens = auth.NewTokenValidator("")
	}
	return &Handler{
		service:   svc,
		refresher: opts.Metrics.Instrument(svc),
		opts:      opts,
	}
}

// RegisterRoutes registers HTTP routes
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(h.recordMetrics)
	if h.opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.opts.Metrics.Handler()))
	}

	api := router.Group("/api/v1")
	{
		// Handle OPTIONS for all routes
		api.OPTIONS("/*path", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		api.GET("/info", h.authenticate, h.listInfo)
		api.GET("/info/current", h.authenticate, h.getCurrent)
		api.GET("/info/pending", h.authenticate, h.listView(h.service.Pending))
		api.GET("/info/applied", h.authenticate, h.listView(h.service.Applied))
		api.GET("/info/resolved", h.authenticate, h.listView(h.service.Resolved))
		api.GET("/info/failed", h.authenticate, h.listView(h.service.Failed))
		api.GET("/info/future", h.authenticate, h.listView(h.service.Future))
		api.GET("/info/out-of-order", h.authenticate, h.listView(h.service.OutOfOrder))
		api.GET("/migrations/:version", h.authenticate, h.getMigration)
		api.GET("/validate", h.authenticate, h.validate)
		api.POST("/refresh", h.authenticate, h.refresh)
		api.POST("/reindex", h.authenticate, h.reindex)
		api.GET("/health", h.Health)
		api.GET("/openapi.yaml", h.OpenAPISpec)
		api.GET("/openapi.json", h.OpenAPISpecJSON)
	}
}

// authenticate middleware validates API token
func (h *Handler) authenticate(c *gin.Context) {
	if err := h.opts.Tokens.ValidateHeader(c.GetHeader("Authorization")); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		c.Abort()
		return
	}
	c.Next()
}

// recordMetrics records every request against its route pattern
func (h *Handler) recordMetrics(c *gin.Context) {
	start := time.Now()
	c.Next()

	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	h.opts.Metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
}

func (h *Handler) infoResponse(items []*info.MigrationInfo) dto.InfoResponse {
	return dto.NewInfoResponse(h.service.Target().String(), h.service.Current(), items)
}

// listInfo lists every migration, optionally filtered by state code
func (h *Handler) listInfo(c *gin.Context) {
	var filters dto.InfoFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := h.service.All()
	if filters.State != "" {
		state, ok := info.ParseState(filters.State)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown state: " + filters.State})
			return
		}
		items = dto.FilterByState(items, state)
	}

	resp := h.infoResponse(items)
	resp.Summary = info.SummaryCodes(h.service.Summary())
	c.JSON(http.StatusOK, resp)
}

// listView serves one of the service's filtered views
func (h *Handler) listView(view func() []*info.MigrationInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, h.infoResponse(view()))
	}
}

// getCurrent returns the current migration
func (h *Handler) getCurrent(c *gin.Context) {
	cur := h.service.Current()
	if cur == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no migration has been applied"})
		return
	}
	c.JSON(http.StatusOK, dto.FromMigrationInfo(cur))
}

// getMigration returns a single migration by version
func (h *Handler) getMigration(c *gin.Context) {
	v, err := version.Parse(c.Param("version"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, m := range h.service.All() {
		if m.Version().Equal(v) {
			c.JSON(http.StatusOK, dto.FromMigrationInfo(m))
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "migration not found"})
}

// validate reports the first integrity problem, if any
func (h *Handler) validate(c *gin.Context) {
	err := h.service.Validate()
	h.opts.Metrics.ObserveValidation(err)

	statusCode := http.StatusOK
	if err != nil {
		statusCode = http.StatusConflict
	}
	c.JSON(statusCode, dto.FromValidation(err))
}

// refresh rebuilds the migration info, or queues a job when a producer is set
func (h *Handler) refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if h.opts.Producer != nil {
		h.enqueue(c, req)
		return
	}

	if err := h.refresher.Refresh(c.Request.Context()); err != nil {
		logger.Errorf("Refresh failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.RefreshResponse{Summary: info.SummaryCodes(h.service.Summary())}
	if cur := h.service.Current(); cur != nil {
		resp.Current = cur.Version().String()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) enqueue(c *gin.Context, req dto.RefreshRequest) {
	kind := strings.ToLower(req.Kind)
	if kind == "" {
		kind = queue.KindRefresh
	}
	if err := queue.CheckKind(kind); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target := &queue.MigrationTarget{Backend: req.Backend, Connection: req.Connection, Schema: req.Schema}
	if *target == (queue.MigrationTarget{}) && h.opts.Source != nil {
		target = &queue.MigrationTarget{
			Backend:    h.opts.Source.Backend,
			Connection: h.opts.Source.Connection,
			Schema:     h.opts.Source.Schema,
		}
	}

	job := queue.NewJob(kind, target)
	job.RequestedBy = "api"
	if err := h.opts.Producer.PublishJob(c.Request.Context(), job); err != nil {
		logger.Errorf("Failed to queue %s job: %v", kind, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, dto.RefreshResponse{Queued: true, JobID: job.ID})
}

// reindex rescans the migration sources and refreshes the migration info
func (h *Handler) reindex(c *gin.Context) {
	if h.opts.Scanner == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "reindex is not available"})
		return
	}

	changed, err := h.opts.Scanner.Scan()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.refresher.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.ReindexResponse{
		Changed: changed,
		Total:   len(h.service.Resolved()),
	})
}

// Health handles health check requests
func (h *Handler) Health(c *gin.Context) {
	healthStatus := gin.H{
		"status": "healthy",
		"checks": gin.H{},
	}

	if h.opts.History != nil {
		if err := h.opts.History.HealthCheck(c.Request.Context()); err != nil {
			healthStatus["status"] = "unhealthy"
			healthStatus["checks"].(gin.H)["history"] = err.Error()
		} else {
			healthStatus["checks"].(gin.H)["history"] = "ok"
		}
	}

	statusCode := http.StatusOK
	if healthStatus["status"] == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, healthStatus)
}

//go:embed openapi.yaml
var openAPISpecYAML []byte

// OpenAPISpec serves the OpenAPI specification in YAML format
func (h *Handler) OpenAPISpec(c *gin.Context) {
	c.Data(http.StatusOK, "application/x-yaml", openAPISpecYAML)
}

// OpenAPISpecJSON serves the OpenAPI specification in JSON format
func (h *Handler) OpenAPISpecJSON(c *gin.Context) {
	var spec map[string]interface{}
	if err := yaml.Unmarshal(openAPISpecYAML, &spec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to parse OpenAPI spec"})
		return
	}
	c.JSON(http.StatusOK, spec)
}
