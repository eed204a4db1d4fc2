package response

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// ContextRequestID is the gin context key holding the request id that is
// echoed in every envelope.
const ContextRequestID = "request_id"

// Envelope is the body of every API response. Reason is the stable
// machine-readable error kind clients branch on.
type Envelope struct {
	Code      int         `json:"code"`
	Reason    string      `json:"reason,omitempty"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// AppError carries the HTTP status and reason for a failed request.
type AppError struct {
	HTTPStatus int
	Code       int
	Reason     string
	Message    string
}

func (e *AppError) Error() string {
	return e.Message
}

func newAppError(status int, reason, msg string) *AppError {
	return &AppError{HTTPStatus: status, Code: status, Reason: reason, Message: msg}
}

func NewBadRequest(msg string) *AppError {
	return newAppError(http.StatusBadRequest, "INVALID_INPUT", msg)
}

func NewUnauthorized(msg string) *AppError {
	return newAppError(http.StatusUnauthorized, "UNAUTHORIZED", msg)
}

func NewForbidden(msg string) *AppError {
	return newAppError(http.StatusForbidden, "FORBIDDEN", msg)
}

func NewNotFound(msg string) *AppError {
	return newAppError(http.StatusNotFound, "NOT_FOUND", msg)
}

func NewConflict(msg string) *AppError {
	return newAppError(http.StatusConflict, "CONFLICT", msg)
}

// NewUnprocessable reports a well-formed request that breaks a board rule,
// e.g. reason INVALID_TRANSITION or INVALID_HIERARCHY.
func NewUnprocessable(reason, msg string) *AppError {
	return newAppError(http.StatusUnprocessableEntity, reason, msg)
}

func NewTooManyRequests(msg string) *AppError {
	return newAppError(http.StatusTooManyRequests, "RATE_LIMITED", msg)
}

func NewUnavailable(msg string) *AppError {
	return newAppError(http.StatusServiceUnavailable, "UNAVAILABLE", msg)
}

func NewServerError(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusInternalServerError, Code: http.StatusInternalServerError, Message: msg}
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Message: "ok", Data: data, RequestID: c.GetString(ContextRequestID)})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Message: "created", Data: data, RequestID: c.GetString(ContextRequestID)})
}

// Error aborts the request with err. Anything other than an *AppError is
// reported as a bare 500 so storage and driver messages stay server-side.
func Error(c *gin.Context, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = NewServerError("internal server error")
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, Envelope{
		Code:      appErr.Code,
		Reason:    appErr.Reason,
		Message:   appErr.Message,
		RequestID: c.GetString(ContextRequestID),
	})
}

func BadRequest(c *gin.Context, msg string) {
	Error(c, NewBadRequest(msg))
}

func Unauthorized(c *gin.Context, msg string) {
	Error(c, NewUnauthorized(msg))
}

func Forbidden(c *gin.Context, msg string) {
	Error(c, NewForbidden(msg))
}

// TooManyRequests rejects a request over quota and tells the client how many
// whole seconds to wait.
func TooManyRequests(c *gin.Context, retryAfter time.Duration, msg string) {
	secs := int((retryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	Error(c, NewTooManyRequests(msg))
}
