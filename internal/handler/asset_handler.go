package handler

import (
	"net/http"

	"costseg/internal/middleware"
	"costseg/internal/service"
	"costseg/pkg/response"

	"github.com/gin-gonic/gin"
)

type AssetHandler struct {
	assetService service.AssetService
}

// NewAssetHandler sets up the routing dependencies for Asset endpoints
func NewAssetHandler(assetService service.AssetService) *AssetHandler {
	return &AssetHandler{assetService: assetService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *AssetHandler) RegisterRoutes(router *gin.RouterGroup) {
	assets := router.Group("/studies/:id/assets")
	assets.Use(middleware.RequireRole("admin", "engineer", "reviewer"))
	{
		assets.GET("", h.ListAssets)
		assets.GET("/progress", h.Progress)
		assets.PATCH("/:assetId", h.UpdateAsset)
		assets.POST("/:assetId/verify", h.VerifyAsset)
	}
}

// ListAssets handles GET /studies/:id/assets
// @Summary      List assets
// @Description  Returns the study's assets with percentages derived from current estimated values
// @Tags         assets
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Study ID"
// @Success      200  {object}  response.Response{data=[]service.AssetResponse}
// @Failure      404  {object}  response.Response
// @Router       /studies/{id}/assets [get]
func (h *AssetHandler) ListAssets(c *gin.Context) {
	assets, err := h.assetService.ListAssets(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, assets))
}

// UpdateAsset handles PATCH /studies/:id/assets/:assetId
// @Summary      Update asset
// @Description  Applies a partial update to one asset inside the study document
// @Tags         assets
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true  "Study ID"
// @Param        assetId  path      string                     true  "Asset ID"
// @Param        payload  body      service.UpdateAssetRequest true  "Partial Asset Payload"
// @Success      200      {object}  response.Response{data=service.AssetResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /studies/{id}/assets/{assetId} [patch]
func (h *AssetHandler) UpdateAsset(c *gin.Context) {
	var req service.UpdateAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	asset, err := h.assetService.UpdateAsset(c.Request.Context(), currentUserID(c), c.Param("id"), c.Param("assetId"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, asset))
}

// VerifyAsset handles POST /studies/:id/assets/:assetId/verify
// @Summary      Verify asset
// @Description  Marks one asset as verified; the write is durable before the response returns
// @Tags         assets
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string  true  "Study ID"
// @Param        assetId  path      string  true  "Asset ID"
// @Success      200      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /studies/{id}/assets/{assetId}/verify [post]
func (h *AssetHandler) VerifyAsset(c *gin.Context) {
	if err := h.assetService.VerifyAsset(c.Request.Context(), currentUserID(c), c.Param("id"), c.Param("assetId")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Asset verified"))
}

// Progress handles GET /studies/:id/assets/progress
// @Summary      Verification progress
// @Description  Returns verified/total counts and rounded percentage for the study's assets
// @Tags         assets
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Study ID"
// @Success      200  {object}  response.Response{data=service.VerificationProgress}
// @Failure      404  {object}  response.Response
// @Router       /studies/{id}/assets/progress [get]
func (h *AssetHandler) Progress(c *gin.Context) {
	progress, err := h.assetService.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, progress))
}
