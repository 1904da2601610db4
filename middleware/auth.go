package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const apiKeyHeader = "X-API-KEY"

// APIKeyAuth 第一方接口共享密钥校验。
// 回调路由不挂这个中间件——上游不带密钥，必须保持可达。
// secret 为空时跳过校验（开发模式）。
func APIKeyAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		if c.GetHeader(apiKeyHeader) != secret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
