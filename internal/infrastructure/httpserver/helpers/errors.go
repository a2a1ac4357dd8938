package helpers

import (
	"github.com/labstack/echo/v4"
)

// ErrorDetail is the machine-readable part of an error response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the structured error body written by WriteError.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// WriteError writes {"success":false,"error":{"code","message"}} with status.
func WriteError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
