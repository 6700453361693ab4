package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/univora/sharebox-backend/internal/pkg/errors"
)

// Response is the unified JSON envelope
type Response struct {
	Code    int         `json:"code"`              // business code (0 = success)
	Message string      `json:"message,omitempty"` // human-readable message
	Data    interface{} `json:"data"`              // payload, {} when empty
}

// Success writes a 200 response
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusOK, Response{
		Code: apperrors.Success,
		Data: data,
	})
}

// Created writes a 201 response
func Created(c *gin.Context, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusCreated, Response{
		Code: apperrors.Success,
		Data: data,
	})
}

// Error writes an error response derived from err. AppError codes map to
// their HTTP status; anything else becomes a 500.
func Error(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	c.JSON(apperrors.GetHTTPStatus(code), Response{
		Code:    code,
		Message: apperrors.GetMessage(code),
		Data:    struct{}{},
	})
}

// ErrorWithStatus writes an explicit status and message
func ErrorWithStatus(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, Response{
		Code:    httpStatus,
		Message: message,
		Data:    struct{}{},
	})
}
