package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Arham-Tahir64/chitty/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrMissingAuthHeader 表示请求缺少 Authorization 头。
var ErrMissingAuthHeader = errors.New("authorization header is missing")

// TokenVerifier 校验令牌并还原用户身份，由 AuthService 实现。
type TokenVerifier interface {
	VerifyToken(tokenString string) (domain.Identity, error)
}

// Auth 返回一个 Gin 中间件，校验 Bearer token 并把用户身份写入上下文。
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	if verifier == nil {
		panic("token verifier cannot be nil for Auth middleware")
	}

	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			logrus.Warn("Auth middleware: Missing or malformed Authorization header")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			c.Abort()
			return
		}

		identity, err := verifier.VerifyToken(tokenStr)
		if err != nil {
			logrus.WithError(err).Warn("Auth middleware: Invalid token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("user_id", identity.ID)
		c.Set("username", identity.Username)
		c.Next()
	}
}

// extractToken 从 Authorization 头提取 Bearer token。
func extractToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", ErrMissingAuthHeader
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrMissingAuthHeader
	}
	return parts[1], nil
}
