// Package response defines the uniform JSON envelope returned by all
// HTTP handlers.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the envelope every endpoint returns.
type Body struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Detail  string      `json:"detail,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success writes a 200 with data wrapped in the envelope.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Code: 0, Message: "success", Data: data})
}

// ErrorWithStatus writes an error envelope with the given HTTP status.
func ErrorWithStatus(c *gin.Context, status int, message, detail string) {
	c.JSON(status, Body{Code: status, Message: message, Detail: detail})
}
