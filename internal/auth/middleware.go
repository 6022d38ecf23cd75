package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

const claimsKey = "auth.claims"

// Service identities used in route allow-lists.
const (
	ServiceTrader   = "trader"
	ServiceRiskGate = "riskgate"
	ServiceExecutor = "executor"
	ServiceAdmin    = "admin"
)

// Guard builds per-route middleware. A disabled guard lets every request
// through, which is only meant for local runs.
type Guard struct {
	JWT      JWT
	Disabled bool
}

// Allow rejects requests without a valid token (401) and callers outside
// services (403).
func (g Guard) Allow(services ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.Disabled {
			c.Next()
			return
		}
		tok := bearerToken(c.GetHeader("Authorization"))
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing bearer token"})
			return
		}
		claims, err := g.JWT.Verify(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid token"})
			return
		}
		if !slices.Contains(services, claims.Service) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "service not allowed"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func ClaimsFromContext(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

func bearerToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
