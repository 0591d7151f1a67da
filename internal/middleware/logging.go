// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"doc-organizer-go/pkg/log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader 是请求 ID 的响应头，客户端传入时沿用。
const RequestIDHeader = "X-Request-ID"

// RequestLogger 是一个 Gin 中间件，为每个请求分配请求 ID 并记录一行结构化日志。
// 请求体不落日志，其中可能包含密码或上传的文件。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("requestID", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		fields := []interface{}{
			"requestID", requestID,
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"responseSize", c.Writer.Size(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}
		if c.Writer.Status() >= 500 {
			log.Warnw("HTTP Request Log", fields...)
			return
		}
		log.Infow("HTTP Request Log", fields...)
	}
}
