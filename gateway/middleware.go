package gateway

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	principalKey = "principal"
	workerHeader = "X-Worker-Token"
)

// authenticate resolves the caller from a bearer token or the session
// cookie. Anonymous requests pass through; an invalid token is rejected.
func (g *Gateway) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token, _ = c.Cookie(g.config.Auth.SessionCookie)
		}
		if token == "" {
			c.Next()
			return
		}
		p, err := g.svc.Verifier.Verify(token)
		if err != nil {
			g.fail(c, apperr.Unauthorized("invalid or expired session"))
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func (g *Gateway) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if principal(c) == nil {
			g.fail(c, apperr.Unauthorized("sign in required"))
			return
		}
		c.Next()
	}
}

func (g *Gateway) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principal(c)
		if p == nil {
			g.fail(c, apperr.Unauthorized("sign in required"))
			return
		}
		if !p.IsAdmin() {
			g.fail(c, apperr.Forbidden("admin role required"))
			return
		}
		c.Next()
	}
}

func (g *Gateway) requireWorker() gin.HandlerFunc {
	return func(c *gin.Context) {
		want := g.config.Worker.Token
		got := c.GetHeader(workerHeader)
		if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
			g.fail(c, apperr.Unauthorized("invalid worker token"))
			return
		}
		c.Next()
	}
}

// rateLimit allows limit requests per window and client. Limiter failures
// let the request through.
func (g *Gateway) rateLimit(name string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || g.svc.Limiter == nil {
			c.Next()
			return
		}
		key := name + ":" + c.ClientIP()
		if p := principal(c); p != nil {
			key = name + ":user:" + p.UserID
		}
		allowed, err := g.svc.Limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			g.logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			g.fail(c, apperr.RateLimited("too many requests, try again later"))
			return
		}
		c.Next()
	}
}

func principal(c *gin.Context) *auth.Principal {
	v, exists := c.Get(principalKey)
	if !exists {
		return nil
	}
	p, _ := v.(*auth.Principal)
	return p
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
