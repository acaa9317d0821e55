package handler

import (
	"fmt"
	"net/http"

	"costseg/internal/middleware"
	"costseg/internal/service"

	"github.com/gin-gonic/gin"
)

type ExportHandler struct {
	exportService service.ExportService
}

// NewExportHandler sets up the routing dependencies for Export endpoints
func NewExportHandler(exportService service.ExportService) *ExportHandler {
	return &ExportHandler{exportService: exportService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *ExportHandler) RegisterRoutes(router *gin.RouterGroup) {
	exports := router.Group("/studies/:id/export")
	exports.Use(middleware.RequireRole("admin", "engineer", "reviewer"))
	{
		exports.GET("/photos", h.ExportPhotos)
		exports.GET("/schedule", h.ExportSchedule)
	}
}

// ExportPhotos handles GET /studies/:id/export/photos
// @Summary      Export room photos
// @Description  Streams a zip of the study's photos grouped by category and room. Partial failures are reported in headers, not as an error.
// @Tags         exports
// @Produce      application/zip
// @Security     BearerAuth
// @Param        id   path      string  true  "Study ID"
// @Success      200  {file}    file
// @Failure      404  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /studies/{id}/export/photos [get]
func (h *ExportHandler) ExportPhotos(c *gin.Context) {
	res, err := h.exportService.ExportRoomPhotos(c.Request.Context(), currentUserID(c), c.Param("id"), nil)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	c.Header("X-Export-Success-Count", fmt.Sprint(res.SuccessCount))
	c.Header("X-Export-Error-Count", fmt.Sprint(res.ErrorCount))
	c.Data(http.StatusOK, res.ContentType, res.Data)
}

// ExportSchedule handles GET /studies/:id/export/schedule
// @Summary      Export depreciation schedule
// @Description  Streams an xlsx workbook of assets grouped by depreciation category
// @Tags         exports
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security     BearerAuth
// @Param        id   path      string  true  "Study ID"
// @Success      200  {file}    file
// @Failure      404  {object}  response.Response
// @Router       /studies/{id}/export/schedule [get]
func (h *ExportHandler) ExportSchedule(c *gin.Context) {
	res, err := h.exportService.ExportDepreciationSchedule(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	c.Data(http.StatusOK, res.ContentType, res.Data)
}
