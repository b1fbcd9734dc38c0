// Package middleware provides the common gin middleware chain: request
// logging with trace propagation, panic recovery and per-route metrics.
package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hodlfi/btclending/pkg/logger"
	"github.com/hodlfi/btclending/pkg/metrics"
)

// RequestLogging generates request/trace IDs, stores them on the request
// context and logs request completion.
func RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}
		spanID := uuid.New().String()

		ctx := context.WithValue(c.Request.Context(), logger.TraceIDContextKey, traceID)
		ctx = context.WithValue(ctx, logger.SpanIDContextKey, spanID)
		ctx = context.WithValue(ctx, logger.RequestIDContextKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		logger.Info(ctx, "http request completed",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status_code", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"duration", time.Since(start),
		)
	}
}

// Recovery converts panics into 500 responses and logs the failure.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					"panic", r,
					"path", c.Request.URL.Path,
				)
				c.AbortWithStatusJSON(500, gin.H{"code": 500, "message": "internal server error"})
			}
		}()
		c.Next()
	}
}

// Metrics records request counts and latency per route.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
