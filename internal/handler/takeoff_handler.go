package handler

import (
	"net/http"

	"costseg/internal/middleware"
	"costseg/internal/service"
	"costseg/pkg/response"

	"github.com/gin-gonic/gin"
)

type TakeoffHandler struct {
	takeoffService service.TakeoffService
}

// NewTakeoffHandler sets up the routing dependencies for Takeoff endpoints
func NewTakeoffHandler(takeoffService service.TakeoffService) *TakeoffHandler {
	return &TakeoffHandler{takeoffService: takeoffService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *TakeoffHandler) RegisterRoutes(router *gin.RouterGroup) {
	takeoffs := router.Group("/studies/:id/takeoffs")
	takeoffs.Use(middleware.RequireRole("admin", "engineer"))
	{
		takeoffs.GET("", h.ListTakeoffs)
		takeoffs.GET("/status", h.SessionStatus)
		takeoffs.POST("/materialize", h.Materialize)
		takeoffs.POST("", h.AddItem)
		takeoffs.PUT("/:takeoffId", h.UpdateItem)
		takeoffs.DELETE("/:takeoffId", h.DeleteItem)
		takeoffs.POST("/save", h.Save)
	}
}

// ListTakeoffs handles GET /studies/:id/takeoffs
// @Summary      List takeoffs
// @Description  Returns the editable takeoff collection; an unknown study yields an empty list
// @Tags         takeoffs
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Study ID"
// @Success      200  {object}  response.Response{data=[]model.Takeoff}
// @Router       /studies/{id}/takeoffs [get]
func (h *TakeoffHandler) ListTakeoffs(c *gin.Context) {
	items, err := h.takeoffService.ListTakeoffs(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, items))
}

// Materialize handles POST /studies/:id/takeoffs/materialize
// @Summary      Materialize takeoffs
// @Description  Copies the immutable extraction results into the editable collection; repeat calls are no-ops
// @Tags         takeoffs
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Study ID"
// @Success      200  {object}  response.Response{data=[]model.Takeoff}
// @Failure      404  {object}  response.Response
// @Router       /studies/{id}/takeoffs/materialize [post]
func (h *TakeoffHandler) Materialize(c *gin.Context) {
	items, err := h.takeoffService.EnsureActiveTakeoffs(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, items))
}

// AddItem handles POST /studies/:id/takeoffs
// @Summary      Add takeoff item
// @Description  Appends an item to the editing session; persistence is debounced
// @Tags         takeoffs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                  true  "Study ID"
// @Param        payload  body      service.TakeoffRequest  true  "Takeoff Item"
// @Success      201      {object}  response.Response{data=model.Takeoff}
// @Failure      400      {object}  response.Response
// @Router       /studies/{id}/takeoffs [post]
func (h *TakeoffHandler) AddItem(c *gin.Context) {
	var req service.TakeoffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	session, err := h.takeoffService.OpenSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	item, err := session.AddItem(req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, item))
}

// UpdateItem handles PUT /studies/:id/takeoffs/:takeoffId
// @Summary      Update takeoff item
// @Description  Replaces one item in the editing session; persistence is debounced
// @Tags         takeoffs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id         path      string                  true  "Study ID"
// @Param        takeoffId  path      string                  true  "Takeoff ID"
// @Param        payload    body      service.TakeoffRequest  true  "Takeoff Item"
// @Success      200        {object}  response.Response{data=model.Takeoff}
// @Failure      400        {object}  response.Response
// @Failure      404        {object}  response.Response
// @Router       /studies/{id}/takeoffs/{takeoffId} [put]
func (h *TakeoffHandler) UpdateItem(c *gin.Context) {
	var req service.TakeoffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	session, err := h.takeoffService.OpenSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	item, err := session.UpdateItem(c.Param("takeoffId"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, item))
}

// DeleteItem handles DELETE /studies/:id/takeoffs/:takeoffId
// @Summary      Delete takeoff item
// @Description  Removes one item from the editing session; persistence is debounced
// @Tags         takeoffs
// @Produce      json
// @Security     BearerAuth
// @Param        id         path      string  true  "Study ID"
// @Param        takeoffId  path      string  true  "Takeoff ID"
// @Success      200        {object}  response.Response
// @Failure      404        {object}  response.Response
// @Router       /studies/{id}/takeoffs/{takeoffId} [delete]
func (h *TakeoffHandler) DeleteItem(c *gin.Context) {
	session, err := h.takeoffService.OpenSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if err := session.DeleteItem(c.Param("takeoffId")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Takeoff deleted"))
}

// Save handles POST /studies/:id/takeoffs/save
// @Summary      Save takeoffs now
// @Description  Flushes pending session edits immediately instead of waiting for the debounce window
// @Tags         takeoffs
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Study ID"
// @Success      200  {object}  response.Response{data=service.SaveStatus}
// @Failure      404  {object}  response.Response
// @Router       /studies/{id}/takeoffs/save [post]
func (h *TakeoffHandler) Save(c *gin.Context) {
	session, err := h.takeoffService.OpenSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if err := session.Flush(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, session.Status()))
}

// SessionStatus handles GET /studies/:id/takeoffs/status
// @Summary      Takeoff save status
// @Description  Reports the editing session's save-cycle state (idle, saving, saved, error)
// @Tags         takeoffs
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Study ID"
// @Success      200  {object}  response.Response{data=service.SaveStatus}
// @Router       /studies/{id}/takeoffs/status [get]
func (h *TakeoffHandler) SessionStatus(c *gin.Context) {
	session, err := h.takeoffService.OpenSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, session.Status()))
}
