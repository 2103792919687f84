package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the JSON envelope every API endpoint returns.
type Body struct {
	Code   int         `json:"code"`
	Msg    string      `json:"msg"`
	Data   interface{} `json:"data,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// Success writes a 200 envelope.
func Success(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Body{Code: 0, Msg: msg, Data: data})
}

// Fail writes a 400 envelope.
func Fail(c *gin.Context, msg string, detail interface{}) {
	c.JSON(http.StatusBadRequest, Body{Code: 1, Msg: msg, Data: detail})
}

// FailWithStatus writes an envelope with an explicit HTTP status and a stable
// machine-readable reason code.
func FailWithStatus(c *gin.Context, status int, reason, msg string) {
	c.JSON(status, Body{Code: 1, Msg: msg, Reason: reason})
}
