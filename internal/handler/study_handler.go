package handler

import (
	"net/http"

	"costseg/internal/middleware"
	"costseg/internal/service"
	"costseg/pkg/pagination"
	"costseg/pkg/response"

	"github.com/gin-gonic/gin"
)

type StudyHandler struct {
	studyService service.StudyService
}

// NewStudyHandler sets up the routing dependencies for Study endpoints
func NewStudyHandler(studyService service.StudyService) *StudyHandler {
	return &StudyHandler{studyService: studyService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *StudyHandler) RegisterRoutes(router *gin.RouterGroup) {
	studies := router.Group("/studies")
	studies.Use(middleware.RequireRole("admin", "engineer", "reviewer"))
	{
		studies.GET("", h.ListStudies)
		studies.POST("", h.CreateStudy)
		studies.GET("/:id", h.GetStudy)
		studies.PATCH("/:id", h.UpdateStudy)
		studies.DELETE("/:id", middleware.RequireRole("admin"), h.DeleteStudy)

		studies.POST("/:id/workflow/advance", h.AdvanceWorkflow)
		studies.POST("/:id/workflow/navigate", h.NavigateToStep)
	}
}

type workflowTargetRequest struct {
	Target string `json:"target" binding:"required"`
}

// CreateStudy handles POST /studies
// @Summary      Create study
// @Description  Creates a cost segregation study owned by the caller
// @Tags         studies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateStudyRequest  true  "Create Study Payload"
// @Success      201      {object}  response.Response{data=model.Study}
// @Failure      400      {object}  response.Response
// @Router       /studies [post]
func (h *StudyHandler) CreateStudy(c *gin.Context) {
	var req service.CreateStudyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	study, err := h.studyService.CreateStudy(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, study))
}

// ListStudies handles GET /studies with filters and pagination
// @Summary      List studies
// @Description  Retrieves a paginated study list, optionally filtered by owner, status or workflow step
// @Tags         studies
// @Produce      json
// @Security     BearerAuth
// @Param        page             query     int     false  "Page number (default 1)"
// @Param        limit            query     int     false  "Number of items per page (default 10)"
// @Param        owner_id         query     string  false  "Filter by owner"
// @Param        status           query     string  false  "Filter by coarse status"
// @Param        workflow_status  query     string  false  "Filter by workflow step"
// @Success      200              {object}  response.Response{data=object}
// @Failure      500              {object}  response.Response
// @Router       /studies [get]
func (h *StudyHandler) ListStudies(c *gin.Context) {
	params := pagination.Parse(c)

	filter := service.StudyListFilter{
		OwnerID:        c.Query("owner_id"),
		Status:         c.Query("status"),
		WorkflowStatus: c.Query("workflow_status"),
	}

	studies, total, err := h.studyService.ListStudies(c.Request.Context(), filter, params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"studies": studies,
		"total":   total,
		"page":    params.Page,
		"limit":   params.Limit,
	}))
}

// GetStudy handles GET /studies/:id
// @Summary      Get study
// @Description  Fetch a single study aggregate by ID
// @Tags         studies
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Study ID"
// @Success      200  {object}  response.Response{data=model.Study}
// @Failure      404  {object}  response.Response
// @Router       /studies/{id} [get]
func (h *StudyHandler) GetStudy(c *gin.Context) {
	study, err := h.studyService.GetStudy(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, study))
}

// UpdateStudy handles PATCH /studies/:id with a partial document update
// @Summary      Update study
// @Description  Applies a partial update; omitted fields are left unchanged, collections replace wholesale
// @Tags         studies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                      true  "Study ID"
// @Param        payload  body      service.UpdateStudyRequest  true  "Partial Study Payload"
// @Success      200      {object}  response.Response{data=model.Study}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /studies/{id} [patch]
func (h *StudyHandler) UpdateStudy(c *gin.Context) {
	var req service.UpdateStudyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	study, err := h.studyService.UpdateStudy(c.Request.Context(), currentUserID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, study))
}

// AdvanceWorkflow handles POST /studies/:id/workflow/advance
// @Summary      Advance workflow
// @Description  Moves the study to the named next step; only forward transitions along the workflow are allowed
// @Tags         studies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "Study ID"
// @Param        payload  body      workflowTargetRequest  true  "Target Step"
// @Success      200      {object}  response.Response{data=model.Study}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /studies/{id}/workflow/advance [post]
func (h *StudyHandler) AdvanceWorkflow(c *gin.Context) {
	var req workflowTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}

	study, err := h.studyService.AdvanceWorkflow(c.Request.Context(), currentUserID(c), c.Param("id"), req.Target)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, study))
}

// NavigateToStep handles POST /studies/:id/workflow/navigate
// @Summary      Navigate to step
// @Description  Moves the displayed step to a visited step or the immediate next one without touching workflow progress
// @Tags         studies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "Study ID"
// @Param        payload  body      workflowTargetRequest  true  "Target Step"
// @Success      200      {object}  response.Response{data=model.Study}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /studies/{id}/workflow/navigate [post]
func (h *StudyHandler) NavigateToStep(c *gin.Context) {
	var req workflowTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}

	study, err := h.studyService.NavigateToStep(c.Request.Context(), currentUserID(c), c.Param("id"), req.Target)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, study))
}

// DeleteStudy handles DELETE /studies/:id
// @Summary      Delete study
// @Description  Deletes a study and its editing drafts
// @Tags         studies
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Study ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /studies/{id} [delete]
func (h *StudyHandler) DeleteStudy(c *gin.Context) {
	if err := h.studyService.DeleteStudy(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Study deleted successfully"))
}
