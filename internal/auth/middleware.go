package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const userIDKey = "auth.user_id"

// Middleware JWT 认证中间件
// 浏览器 WebSocket 无法设置请求头，允许通过 access_token 查询参数传入
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractTokenFromBearer(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("access_token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "缺少认证令牌"})
			return
		}

		claims, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "令牌验证失败: " + err.Error()})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// UserID 当前请求的用户 ID
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
