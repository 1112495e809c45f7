package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/mockinterview/internal/models"
	"github.com/yoockh/mockinterview/internal/utils"
)

// RequireRole admits only callers whose app role (set by JWTAuth) is listed.
func RequireRole(allowed ...models.AccountRole) gin.HandlerFunc {
	allow := map[string]struct{}{}
	names := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if r := normalizeRole(string(a)); r != "" {
			allow[r] = struct{}{}
			names = append(names, r)
		}
	}

	return func(c *gin.Context) {
		v, _ := c.Get("role")
		role, _ := v.(string)

		if _, ok := allow[normalizeRole(role)]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, apiError{
				Code:    utils.CodeForbidden,
				Message: "this operation requires one of roles: " + strings.Join(names, ", "),
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin guards quota administration.
func RequireAdmin() gin.HandlerFunc { return RequireRole(models.RoleAdmin) }

func normalizeRole(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
