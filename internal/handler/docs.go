package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RegisterDocs serves a short markdown page naming the routes of one service.
func RegisterDocs(r gin.IRouter, service string, routes []string) {
	var b strings.Builder
	b.WriteString("# Tradegate " + service + "\n\n")
	b.WriteString("All routes except health and docs require `Authorization: Bearer <jwt>` signed with the shared secret.\n\n")
	b.WriteString("## Routes\n\n")
	b.WriteString("- GET /healthz\n- GET /readyz\n- GET /swagger/index.html\n")
	for _, rt := range routes {
		b.WriteString("- " + rt + "\n")
	}
	page := b.String()
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, page)
	})
}

var (
	RiskRoutes = []string{
		"POST /validate-trade",
		"GET /portfolio-risk",
		"POST /monte-carlo",
		"POST /kill-switch",
		"GET /risk-events",
	}
	ExecutionRoutes = []string{
		"POST /execute-trade",
		"GET /trade/{id}",
		"POST /cancel/{id}",
		"GET /wallet",
		"GET /trades",
	}
	SwitchRoutes = []string{
		"GET /switches",
		"GET /switches/{name}",
		"PUT /switches/{name}",
	}
)
