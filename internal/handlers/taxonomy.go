package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medcase/medcase-backend/internal/pkg/dbctx"
	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/services"
)

type TaxonomyHandler struct {
	log         *logger.Logger
	taxonomySvc services.TaxonomyService
}

func NewTaxonomyHandler(log *logger.Logger, taxonomySvc services.TaxonomyService) *TaxonomyHandler {
	return &TaxonomyHandler{
		log:         log.With("handler", "TaxonomyHandler"),
		taxonomySvc: taxonomySvc,
	}
}

// GET /api/taxonomy/tree
// Full tag forest for selection UIs.
func (h *TaxonomyHandler) Tree(c *gin.Context) {
	forest, err := h.taxonomySvc.BuildForest(dbctx.Context{Ctx: c.Request.Context()})
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"tree": forest})
}

// POST /api/taxonomy/paths
// Resolve or create a "Parent::Child::Leaf" path, returning the leaf id.
func (h *TaxonomyHandler) UpsertPath(c *gin.Context) {
	var req struct {
		Path string `json:"path"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}

	leafID, err := h.taxonomySvc.UpsertPath(dbctx.Context{Ctx: c.Request.Context()}, req.Path)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"tagId": leafID})
}

// GET /api/taxonomy/tags/:slug/path
// Root-to-tag chain for breadcrumbs.
func (h *TaxonomyHandler) TagPath(c *gin.Context) {
	chain, err := h.taxonomySvc.TagPath(dbctx.Context{Ctx: c.Request.Context()}, c.Param("slug"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"path": chain})
}
