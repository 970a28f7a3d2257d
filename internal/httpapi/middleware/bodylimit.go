package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mestreprognosticos/chatbot/internal/common"
)

// BodyLimit caps request bodies at limit bytes. Declared oversize bodies get
// 413 up front; chunked ones fail at bind time once the cap is hit.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			common.Fail(c, http.StatusRequestEntityTooLarge, 41301, "request body too large")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
