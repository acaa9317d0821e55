package handler

import (
	"net/http"

	"costseg/internal/middleware"
	"costseg/internal/service"
	"costseg/pkg/response"

	"github.com/gin-gonic/gin"
)

type FileHandler struct {
	fileService service.FileService
}

// NewFileHandler sets up the routing dependencies for File endpoints
func NewFileHandler(fileService service.FileService) *FileHandler {
	return &FileHandler{fileService: fileService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *FileHandler) RegisterRoutes(router *gin.RouterGroup) {
	files := router.Group("/studies/:id/files")
	files.Use(middleware.RequireRole("admin", "engineer", "reviewer"))
	{
		files.GET("", h.ListFiles)
		files.POST("", middleware.RequireRole("admin", "engineer"), h.Upload)
		files.GET("/:fileId/url", h.ResolveURL)
		files.PUT("/:fileId/assets", middleware.RequireRole("admin", "engineer"), h.LinkAssets)
		files.DELETE("/:fileId", middleware.RequireRole("admin", "engineer"), h.Delete)
	}
}

type linkAssetsRequest struct {
	AssetIDs []string `json:"asset_ids"`
}

// Upload handles POST /studies/:id/files as multipart form data
// @Summary      Upload file
// @Description  Streams a file to blob storage and records it on the study
// @Tags         files
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id        path      string  true   "Study ID"
// @Param        file      formData  file    true   "File content"
// @Param        category  formData  string  false  "site_photo, document or plan"
// @Param        room_id   formData  string  false  "Room the file belongs to"
// @Success      201       {object}  response.Response{data=model.UploadedFile}
// @Failure      400       {object}  response.Response
// @Router       /studies/{id}/files [post]
func (h *FileHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Missing file: "+err.Error()))
		return
	}

	src, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Unreadable file: "+err.Error()))
		return
	}
	defer src.Close()

	req := service.UploadFileRequest{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Category:    c.PostForm("category"),
		RoomID:      c.PostForm("room_id"),
	}

	file, err := h.fileService.Upload(c.Request.Context(), currentUserID(c), c.Param("id"), req, src, nil)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, file))
}

// ListFiles handles GET /studies/:id/files
// @Summary      List files
// @Description  Returns the study's uploaded file entries
// @Tags         files
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Study ID"
// @Success      200  {object}  response.Response{data=[]model.UploadedFile}
// @Failure      404  {object}  response.Response
// @Router       /studies/{id}/files [get]
func (h *FileHandler) ListFiles(c *gin.Context) {
	files, err := h.fileService.ListFiles(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, files))
}

// ResolveURL handles GET /studies/:id/files/:fileId/url
// @Summary      Resolve download URL
// @Description  Returns a time-limited download URL for one file
// @Tags         files
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      string  true  "Study ID"
// @Param        fileId  path      string  true  "File ID"
// @Success      200     {object}  response.Response{data=object}
// @Failure      404     {object}  response.Response
// @Router       /studies/{id}/files/{fileId}/url [get]
func (h *FileHandler) ResolveURL(c *gin.Context) {
	url, err := h.fileService.ResolveURL(c.Request.Context(), c.Param("id"), c.Param("fileId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]string{"url": url}))
}

// LinkAssets handles PUT /studies/:id/files/:fileId/assets
// @Summary      Link file to assets
// @Description  Replaces the set of assets a photo is associated with
// @Tags         files
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string             true  "Study ID"
// @Param        fileId   path      string             true  "File ID"
// @Param        payload  body      linkAssetsRequest  true  "Asset IDs"
// @Success      200      {object}  response.Response{data=model.UploadedFile}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /studies/{id}/files/{fileId}/assets [put]
func (h *FileHandler) LinkAssets(c *gin.Context) {
	var req linkAssetsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}

	file, err := h.fileService.LinkAssets(c.Request.Context(), c.Param("id"), c.Param("fileId"), req.AssetIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, file))
}

// Delete handles DELETE /studies/:id/files/:fileId
// @Summary      Delete file
// @Description  Removes the file entry and its stored blob
// @Tags         files
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      string  true  "Study ID"
// @Param        fileId  path      string  true  "File ID"
// @Success      200     {object}  response.Response
// @Failure      404     {object}  response.Response
// @Router       /studies/{id}/files/{fileId} [delete]
func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.fileService.Delete(c.Request.Context(), currentUserID(c), c.Param("id"), c.Param("fileId")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "File deleted successfully"))
}
