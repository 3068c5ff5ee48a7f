package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every JSON route answers with. Code is a stable
// machine-readable reason set on failures so chat front ends can branch on it.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Success returns a success response
func Success(data any) Response {
	return Response{
		Success: true,
		Message: "success",
		Data:    data,
	}
}

// Failure returns an error response carrying code.
func Failure(code, message string) Response {
	return Response{
		Success: false,
		Message: message,
		Code:    code,
	}
}

// SuccessJSON sends a success JSON response
func SuccessJSON(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Success(data))
}

// MessageJSON sends a success response with a custom message
func MessageJSON(c *gin.Context, statusCode int, message string, data any) {
	c.JSON(statusCode, Response{Success: true, Message: message, Data: data})
}

// ErrorJSON sends an error JSON response
func ErrorJSON(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, Failure(code, message))
}

// AbortWithError sends an error response and stops the handler chain
func AbortWithError(c *gin.Context, statusCode int, code, message string) {
	c.AbortWithStatusJSON(statusCode, Failure(code, message))
}
