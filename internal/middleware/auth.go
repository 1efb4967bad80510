package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/repository/redis"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUserTypeKey = "user_type"
)

// abort 与 handler 的响应体结构一致
func abort(c *gin.Context, e *pkg.AppError) {
	c.AbortWithStatusJSON(e.Status, gin.H{"code": e.Code, "msg": e.Msg})
}

// Auth 校验 access token，并要求与 redis 中保存的最新 token 一致
func Auth(tm *pkg.TokenManager, sessions *redis.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, pkg.ErrUnauthorized.WithMsg("missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abort(c, pkg.ErrUnauthorized.WithMsg("invalid authorization format"))
			return
		}
		tokenStr := parts[1]

		claims, err := tm.ParseAccess(tokenStr)
		if err != nil {
			abort(c, pkg.ErrUnauthorized.WithMsg("invalid or expired token"))
			return
		}

		// 只认 redis 中的最新 token，其他端登录后旧 token 失效
		current, err := sessions.GetUserToken(c.Request.Context(), claims.UserID)
		if errors.Is(err, redis.ErrTokenNotFound) || (err == nil && current != tokenStr) {
			abort(c, pkg.ErrUnauthorized.WithMsg("session expired or signed in elsewhere"))
			return
		}
		if err != nil {
			abort(c, pkg.ErrInternal)
			return
		}

		if err := sessions.ExtendUserToken(c.Request.Context(), claims.UserID); err != nil {
			abort(c, pkg.ErrInternal)
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUserTypeKey, claims.UserType)
		c.Next()
	}
}
