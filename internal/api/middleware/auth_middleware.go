package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"schoolPrint/internal/auth"
	"schoolPrint/internal/errcode"
)

const (
	schoolIDKey = "schoolID"
	roleKey     = "role"
)

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": errcode.Unauthorized})
}

// AuthMiddleware 校验访问令牌并将 schoolID 与 role 注入上下文。
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		rawToken := parts[1]
		if strings.TrimSpace(rawToken) == "" {
			abortUnauthorized(c)
			return
		}

		claims, err := authService.ValidateToken(rawToken)
		if err != nil {
			abortUnauthorized(c)
			return
		}

		c.Set(schoolIDKey, claims.SchoolID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// SchoolIDFromContext 返回鉴权后注入的学校 ID。
func SchoolIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get(schoolIDKey)
	if !exists {
		return 0, false
	}
	id, ok := value.(uint)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}
