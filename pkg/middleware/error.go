// Package middleware holds gin middleware shared across the operator HTTP
// API.
package middleware

import (
	"errors"
	"net/http"

	"integrity-core/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler recovers the last error attached to the gin context (via
// c.Error) and renders it as the errutil.BaseError JSON envelope, mapping
// CoreStatus to the matching HTTP status. Unrecognised errors fall back to
// 500 without leaking internal detail to the client.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		var be errutil.BaseError
		if errors.As(err, &be) {
			zap.L().Warn("request failed", zap.String("status", string(be.Status())), zap.Error(err))
			c.AbortWithStatusJSON(be.Status().HTTPStatus(), be.JSON())
			return
		}

		zap.L().Error("unhandled request error", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": errutil.StatusInternal, "message": "internal error"},
		})
	}
}
