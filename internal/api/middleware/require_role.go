package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/medivoice/internal/utils"
)

func normRole(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// RequireRole lets the request through only when JWTAuth set one of the
// allowed roles.
func RequireRole(allowed ...string) gin.HandlerFunc {
	allow := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if a = normRole(a); a != "" {
			allow[a] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		role := normRole(c.GetString("role"))
		if _, ok := allow[role]; role == "" || !ok {
			abortAuth(c, http.StatusForbidden, utils.CodeForbidden, "forbidden")
			return
		}
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc { return RequireRole("admin") }
