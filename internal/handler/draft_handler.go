package handler

import (
	"net/http"

	"costseg/internal/middleware"
	"costseg/internal/service"
	"costseg/pkg/response"

	"github.com/gin-gonic/gin"
)

type DraftHandler struct {
	draftService service.DraftService
}

// NewDraftHandler sets up the routing dependencies for Draft endpoints
func NewDraftHandler(draftService service.DraftService) *DraftHandler {
	return &DraftHandler{draftService: draftService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *DraftHandler) RegisterRoutes(router *gin.RouterGroup) {
	drafts := router.Group("/studies/:id/drafts")
	drafts.Use(middleware.RequireRole("admin", "engineer"))
	{
		drafts.PUT("", h.SaveDraft)
		drafts.GET("/:assetId", h.GetDraft)
		drafts.DELETE("/:assetId", h.DiscardDraft)
	}
}

// SaveDraft handles PUT /studies/:id/drafts
// @Summary      Save editing draft
// @Description  Stores in-progress editing state for one asset, replacing any earlier draft
// @Tags         drafts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                    true  "Study ID"
// @Param        payload  body      service.SaveDraftRequest  true  "Draft Payload"
// @Success      200      {object}  response.Response{data=model.EditingDraft}
// @Failure      400      {object}  response.Response
// @Router       /studies/{id}/drafts [put]
func (h *DraftHandler) SaveDraft(c *gin.Context) {
	var req service.SaveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	draft, err := h.draftService.SaveDraft(c.Request.Context(), currentUserID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, draft))
}

// GetDraft handles GET /studies/:id/drafts/:assetId
// @Summary      Get editing draft
// @Description  Fetches the stored draft for one asset, if any
// @Tags         drafts
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string  true  "Study ID"
// @Param        assetId  path      string  true  "Asset ID"
// @Success      200      {object}  response.Response{data=model.EditingDraft}
// @Failure      404      {object}  response.Response
// @Router       /studies/{id}/drafts/{assetId} [get]
func (h *DraftHandler) GetDraft(c *gin.Context) {
	draft, err := h.draftService.GetDraft(c.Request.Context(), c.Param("id"), c.Param("assetId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, draft))
}

// DiscardDraft handles DELETE /studies/:id/drafts/:assetId
// @Summary      Discard editing draft
// @Description  Drops the stored draft for one asset
// @Tags         drafts
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string  true  "Study ID"
// @Param        assetId  path      string  true  "Asset ID"
// @Success      200      {object}  response.Response
// @Router       /studies/{id}/drafts/{assetId} [delete]
func (h *DraftHandler) DiscardDraft(c *gin.Context) {
	if err := h.draftService.DiscardDraft(c.Request.Context(), c.Param("id"), c.Param("assetId")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Draft discarded"))
}
