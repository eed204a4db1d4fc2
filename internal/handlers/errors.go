package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/services"
	"github.com/huangang/taskflow/pkg/logger"
	"github.com/huangang/taskflow/pkg/response"
)

// toAppError maps the service error taxonomy onto HTTP responses.
func toAppError(err error) *response.AppError {
	msg := err.Error()
	switch {
	case errors.Is(err, services.ErrNotFound):
		return response.NewNotFound(msg)
	case errors.Is(err, services.ErrConflict):
		return response.NewConflict(msg)
	case errors.Is(err, services.ErrInvalidTransition):
		return response.NewUnprocessable("INVALID_TRANSITION", msg)
	case errors.Is(err, services.ErrInvalidHierarchy):
		return response.NewUnprocessable("INVALID_HIERARCHY", msg)
	case errors.Is(err, services.ErrRateLimited):
		return response.NewTooManyRequests(msg)
	case errors.Is(err, services.ErrUnavailable):
		return response.NewUnavailable("service temporarily unavailable")
	case errors.Is(err, services.ErrInvalidInput):
		return response.NewBadRequest(msg)
	case errors.Is(err, services.ErrForbidden):
		return response.NewForbidden(msg)
	case errors.Is(err, context.DeadlineExceeded):
		return response.NewUnavailable("request timed out")
	}
	return response.NewServerError("internal server error")
}

func respondError(c *gin.Context, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= 500 {
		logger.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("request failed")
	}
	response.Error(c, appErr)
}
