package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mnemon-dev/mnemon"
	"github.com/mnemon-dev/mnemon/pkg/server/dto"
)

// Build information, settable at build time via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// AdminHandler serves health, schema, and stats endpoints.
type AdminHandler struct {
	engine *mnemon.Engine
}

// NewAdminHandler builds a handler over engine.
func NewAdminHandler(engine *mnemon.Engine) *AdminHandler {
	return &AdminHandler{engine: engine}
}

// HealthCheck handles GET /health.
func (h *AdminHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "mnemon",
		"version":   Version,
		"commit":    GitCommit,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadinessCheck handles GET /ready. It touches the default tenant's store
// so a dead graph database reports not-ready.
func (h *AdminHandler) ReadinessCheck(c *gin.Context) {
	if _, err := h.engine.Stats(c.Request.Context(), c.GetHeader("X-Tenant-ID")); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Schema handles GET /api/v1/schema.
func (h *AdminHandler) Schema(c *gin.Context) {
	ctx := c.Request.Context()
	cache, err := h.engine.Schema(ctx, c.GetHeader("X-Tenant-ID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	labels, err := cache.Labels(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	relTypes, err := cache.RelationshipTypes(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	pairs, err := cache.LabelPairTypes(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	pairList := make([]gin.H, 0, len(pairs))
	for pair, relationshipTypes := range pairs {
		pairList = append(pairList, gin.H{
			"start_label": pair.Start,
			"end_label":   pair.End,
			"types":       relationshipTypes,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"labels":             labels,
		"relationship_types": relTypes,
		"label_pairs":        pairList,
	})
}

// Stats handles GET /api/v1/stats.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.engine.Stats(c.Request.Context(), c.GetHeader("X-Tenant-ID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
