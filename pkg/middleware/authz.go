package middleware

import (
	"net/http"

	"integrity-core/pkg/config"
	"integrity-core/pkg/errutil"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("authz", fx.Provide(NewEnforcer))

// NewEnforcer loads the RBAC model/policy named by config.Config.AccessControl,
// gating the operator HTTP API (finalize_revenue_window in particular commits
// money movement and must not be open to every authenticated caller). A run
// with no AccessControl.Model configured returns a nil enforcer, leaving the
// API open — acceptable for local development, never for production.
func NewEnforcer(cfg *config.Config) (*casbin.Enforcer, error) {
	if cfg.AccessControl.Model == "" {
		return nil, nil
	}
	return casbin.NewEnforcer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
}

// Authz builds gin middleware that checks the caller's subject (carried in
// the X-Operator-Subject header, set by the gateway after authentication)
// against enforcer for the request's path and method.
func Authz(enforcer *casbin.Enforcer) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetHeader("X-Operator-Subject")
		if subject == "" {
			c.Error(errutil.Unauthorized("missing operator subject", nil))
			c.Abort()
			return
		}

		ok, err := enforcer.Enforce(subject, c.FullPath(), c.Request.Method)
		if err != nil {
			zap.L().Error("authorization check failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{"code": errutil.StatusInternal, "message": "authorization check failed"},
			})
			return
		}
		if !ok {
			c.Error(errutil.Forbidden("operator subject not authorized for this action", nil))
			c.Abort()
			return
		}

		c.Next()
	}
}
