package notify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradegate/internal/auth"
)

// WriteAuditMiddleware records every non-GET request as a PaaS log entry
// with the calling service, so admin actions such as kill-switch changes
// leave a trail outside the database.
func WriteAuditMiddleware(c *Client, agent string, logger *zap.Logger) gin.HandlerFunc {
	if !c.Enabled() {
		return func(ctx *gin.Context) { ctx.Next() }
	}
	agent = strings.TrimSpace(agent)
	if agent == "" {
		agent = "tradegate"
	}
	return func(g *gin.Context) {
		start := time.Now()
		g.Next()

		method := strings.ToUpper(g.Request.Method)
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			return
		}
		caller := ""
		if claims, ok := auth.ClaimsFromContext(g); ok {
			caller = claims.Service
		}
		status := g.Writer.Status()

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		err := c.send(ctx, entry{
			Agent:  agent,
			Action: "http_write",
			Level:  levelFromStatus(status),
			Details: map[string]any{
				"method":   method,
				"path":     g.FullPath(),
				"status":   status,
				"duration": time.Since(start).String(),
				"caller":   caller,
			},
		})
		if err != nil && logger != nil {
			logger.Debug("notify: audit log failed", zap.Error(err))
		}
	}
}

func levelFromStatus(status int) string {
	if status >= 500 {
		return "error"
	}
	if status >= 400 {
		return "warn"
	}
	return "info"
}
