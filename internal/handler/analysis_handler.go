package handler

import (
	"net/http"

	"costseg/internal/middleware"
	"costseg/internal/service"
	"costseg/pkg/response"

	"github.com/gin-gonic/gin"
)

type AnalysisHandler struct {
	analysisService service.AnalysisService
}

// NewAnalysisHandler sets up the routing dependencies for Analysis endpoints
func NewAnalysisHandler(analysisService service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analysisService: analysisService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *AnalysisHandler) RegisterRoutes(router *gin.RouterGroup) {
	analysis := router.Group("/studies/:id/analysis")
	analysis.Use(middleware.RequireRole("admin", "engineer"))
	{
		analysis.POST("/start", h.Start)
		analysis.POST("/stage/:stage", h.RunStage)
		analysis.GET("/status", h.Status)
		analysis.GET("/evidence", h.Evidence)
	}
}

// Start handles POST /studies/:id/analysis/start
// @Summary      Start analysis
// @Description  Kicks off the external classification run over the study's uploaded documents
// @Tags         analysis
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                        true  "Study ID"
// @Param        payload  body      service.StartAnalysisRequest  true  "Documents to analyze"
// @Success      202      {object}  response.Response{data=pipeline.RunResponse}
// @Failure      400      {object}  response.Response
// @Failure      502      {object}  response.Response
// @Router       /studies/{id}/analysis/start [post]
func (h *AnalysisHandler) Start(c *gin.Context) {
	var req service.StartAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	run, err := h.analysisService.StartAnalysis(c.Request.Context(), currentUserID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, response.Success(http.StatusAccepted, run))
}

// RunStage handles POST /studies/:id/analysis/stage/:stage
// @Summary      Run one pipeline stage
// @Description  Triggers a single named stage of the external workflow
// @Tags         analysis
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                        true  "Study ID"
// @Param        stage    path      string                        true  "Stage name"
// @Param        payload  body      service.StartAnalysisRequest  true  "Documents for the stage"
// @Success      202      {object}  response.Response{data=pipeline.RunResponse}
// @Failure      502      {object}  response.Response
// @Router       /studies/{id}/analysis/stage/{stage} [post]
func (h *AnalysisHandler) RunStage(c *gin.Context) {
	var req service.StartAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	run, err := h.analysisService.RunStage(c.Request.Context(), c.Param("id"), c.Param("stage"), req.DocumentIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, response.Success(http.StatusAccepted, run))
}

// Status handles GET /studies/:id/analysis/status
// @Summary      Analysis status
// @Description  Proxies the external workflow status for the study
// @Tags         analysis
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Study ID"
// @Success      200  {object}  response.Response{data=pipeline.StatusResponse}
// @Failure      502  {object}  response.Response
// @Router       /studies/{id}/analysis/status [get]
func (h *AnalysisHandler) Status(c *gin.Context) {
	status, err := h.analysisService.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, status))
}

// Evidence handles GET /studies/:id/analysis/evidence
// @Summary      Analysis evidence
// @Description  Returns the raw classification evidence payload
// @Tags         analysis
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Study ID"
// @Success      200  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Router       /studies/{id}/analysis/evidence [get]
func (h *AnalysisHandler) Evidence(c *gin.Context) {
	evidence, err := h.analysisService.Evidence(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, evidence))
}
