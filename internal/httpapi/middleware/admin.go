package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mestreprognosticos/chatbot/internal/auth"
	"github.com/mestreprognosticos/chatbot/internal/common"
)

const AdminKey = "admin"

// Authenticator is satisfied by *auth.Gate.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (auth.Principal, bool)
}

// AdminRequired rejects with 403 unless the Authorization header carries a
// valid admin token or the raw admin secret.
func AdminRequired(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := a.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if !ok {
			common.Fail(c, http.StatusForbidden, 40301, "Acesso negado")
			return
		}
		c.Set(AdminKey, p)
		c.Next()
	}
}
