package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OK writes data with success:true.
func OK(c *gin.Context, data gin.H) {
	JSON(c, http.StatusOK, data)
}

func Created(c *gin.Context, data gin.H) {
	JSON(c, http.StatusCreated, data)
}

func JSON(c *gin.Context, status int, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["success"] = true
	c.JSON(status, data)
}

// Fail aborts with {success:false, code, error}. code is the business error
// code, msg is safe to show to users.
func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.AbortWithStatusJSON(httpStatus, gin.H{
		"success": false,
		"code":    code,
		"error":   msg,
	})
}
