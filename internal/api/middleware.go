package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const authRealm = "CryptoNewsBot"

// adminAuth 配置了 APP_BASIC_USER / APP_BASIC_PASS 时返回 /api/v1 分组的 Basic Auth 中间件
func adminAuth(user, pass string) []gin.HandlerFunc {
	if user == "" || pass == "" {
		return nil
	}
	return []gin.HandlerFunc{gin.BasicAuthForRealm(gin.Accounts{user: pass}, authRealm)}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}
