package handler

import (
	"errors"
	"net/http"

	"costseg/internal/export"
	"costseg/pkg/apperror"
	"costseg/pkg/response"

	"github.com/gin-gonic/gin"
)

// respondError maps service errors onto the standard response envelope.
func respondError(c *gin.Context, err error) {
	var extErr *apperror.ExternalServiceError
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	case apperror.IsValidation(err):
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
	case errors.Is(err, export.ErrNothingToExport), errors.Is(err, export.ErrAllExportsFailed):
		c.JSON(http.StatusUnprocessableEntity, response.Error(http.StatusUnprocessableEntity, err.Error()))
	case errors.Is(err, apperror.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, response.Error(http.StatusServiceUnavailable, err.Error()))
	case errors.As(err, &extErr):
		c.JSON(http.StatusBadGateway, response.Error(http.StatusBadGateway, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
	}
}

// currentUserID pulls the authenticated user id set by the auth middleware.
// Empty when the route is unauthenticated.
func currentUserID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
