// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"doc-organizer-go/internal/repository"
	"doc-organizer-go/internal/service"
	"doc-organizer-go/pkg/log"
	"doc-organizer-go/pkg/token"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会从请求头中提取 access token，验证其有效性与黑名单状态，并将完整的 User 对象存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, userService service.UserService, blacklist repository.TokenBlacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头"})
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, err := jwtManager.VerifyTyped(tokenString, token.TypeAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token"})
			return
		}

		if blacklist != nil {
			revoked, err := blacklist.Contains(c.Request.Context(), claims.ID)
			if err != nil {
				// Redis 不可用时放行，避免整个 API 不可用
				log.Warnf("[AuthMiddleware] 检查 token 黑名单失败: %v", err)
			} else if revoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "token 已注销"})
				return
			}
		}

		// 用户可能已经注销账户
		user, err := userService.GetProfile(claims.Username)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "用户不存在"})
			return
		}

		c.Set("user", user)
		c.Set("claims", claims)
		c.Next()
	}
}
