package response

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorInfo is the error body of the landing servers.
type ErrorInfo struct {
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// JSON sends a successful response with a bare JSON body.
func JSON(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Error sends an error response and aborts the chain.
func Error(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorInfo{
		Code:      statusCode,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// Forbidden sends a 403 error response.
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message)
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// IntQuery reads a positive integer query parameter.
func IntQuery(c *gin.Context, key string) (int, bool) {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		BadRequest(c, key+" must be a positive integer")
		return 0, false
	}
	return v, true
}

// IntParam reads a positive integer path parameter.
func IntParam(c *gin.Context, key string) (int, bool) {
	v, err := strconv.Atoi(c.Param(key))
	if err != nil || v < 1 {
		BadRequest(c, key+" must be a positive integer")
		return 0, false
	}
	return v, true
}
