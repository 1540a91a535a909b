// Package handlers implements the HTTP endpoints over the engine.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mnemon-dev/mnemon"
	"github.com/mnemon-dev/mnemon/pkg/server/dto"
	"github.com/mnemon-dev/mnemon/pkg/types"
)

// MemoryHandler serves the turn, recall, and ingestion endpoints.
type MemoryHandler struct {
	engine *mnemon.Engine
}

// NewMemoryHandler builds a handler over engine.
func NewMemoryHandler(engine *mnemon.Engine) *MemoryHandler {
	return &MemoryHandler{engine: engine}
}

// tenantOf resolves the tenant from the body field or the X-Tenant-ID
// header, body winning.
func tenantOf(c *gin.Context, body string) string {
	if body != "" {
		return body
	}
	return c.GetHeader("X-Tenant-ID")
}

// CommitTurn handles POST /api/v1/turns.
func (h *MemoryHandler) CommitTurn(c *gin.Context) {
	var req dto.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.engine.CommitTurn(c.Request.Context(), mnemon.TurnRequest{
		Tenant:    tenantOf(c, req.Tenant),
		UserInput: req.UserInput,
		Response:  req.Response,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	resp := dto.TurnResponse{
		UserMessageID: result.UserMessageID,
		AIMessageID:   result.AIMessageID,
		Facts:         result.Facts,
		Dropped:       result.Dropped,
	}
	if result.StorageErr != nil {
		resp.StorageError = result.StorageErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// Recall handles POST /api/v1/recall.
func (h *MemoryHandler) Recall(c *gin.Context) {
	var req dto.RecallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.engine.Recall(c.Request.Context(), tenantOf(c, req.Tenant), req.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.RecallResponse{
		Activated: result.Activated,
		Expanded:  result.Expanded,
		Messages:  result.Messages,
		Scenes:    result.Scenes,
		Topics:    result.Topics,
	})
}

// IngestFacts handles POST /api/v1/facts.
func (h *MemoryHandler) IngestFacts(c *gin.Context) {
	var req dto.FactsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	report, err := h.engine.IngestFacts(c.Request.Context(), tenantOf(c, req.Tenant), req.Facts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// StoreTopic handles POST /api/v1/topics.
func (h *MemoryHandler) StoreTopic(c *gin.Context) {
	var req dto.TopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	id, err := h.engine.StoreTopic(c.Request.Context(), tenantOf(c, req.Tenant), req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// StoreDocument handles POST /api/v1/documents.
func (h *MemoryHandler) StoreDocument(c *gin.Context) {
	var req dto.DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	id, err := h.engine.StoreDocument(c.Request.Context(), tenantOf(c, req.Tenant), req.Content, types.Properties(req.Props))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// CloseScene handles POST /api/v1/scenes/close.
func (h *MemoryHandler) CloseScene(c *gin.Context) {
	var req dto.SceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.engine.CloseScene(c.Request.Context(), tenantOf(c, req.Tenant)); err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

// Integrate handles POST /api/v1/integrate.
func (h *MemoryHandler) Integrate(c *gin.Context) {
	var req dto.IntegrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	tenant := tenantOf(c, req.Tenant)
	a := types.NodeKey{Label: req.A.Label, Name: req.A.Name}
	b := types.NodeKey{Label: req.B.Label, Name: req.B.Name}

	if err := h.engine.IntegrateNodes(c.Request.Context(), tenant, a, b); err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	deleted := false
	if req.Delete {
		removed, err := h.engine.DeleteNode(c.Request.Context(), tenant, b)
		if err != nil {
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
			return
		}
		deleted = removed
	}
	c.JSON(http.StatusOK, gin.H{"status": "integrated", "deleted": deleted})
}
